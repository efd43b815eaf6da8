package walletd

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = time.Minute
)

// limitSettings is the part of the config the limiter depends on. A change
// in any field drops every bucket.
type limitSettings struct {
	perMinute int
	burst     int
	identity  ClientIdentityConfig
}

func limitSettingsOf(cfg *Config) (limitSettings, bool) {
	return limitSettings{
		perMinute: cfg.RateLimit.RequestsPerMinute,
		burst:     cfg.RateLimit.Burst,
		identity:  cfg.ClientIdentity,
	}, cfg.RateLimit.EnabledOrDefault()
}

type bucket struct {
	*rate.Limiter
	used time.Time
}

// rateLimiter throttles the wallet endpoints that make the engine work
// (refresh, transfer). Each client gets one bucket per route, so a client
// polling refresh does not spend its transfer allowance. Settings are read
// from the ConfigStore per request and apply without a restart.
type rateLimiter struct {
	store *ConfigStore

	mu        sync.Mutex
	settings  limitSettings
	identity  *clientIdentity
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newRateLimiter(store *ConfigStore) *rateLimiter {
	if store == nil {
		return nil
	}
	return &rateLimiter{store: store, buckets: map[string]*bucket{}}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings, enabled := limitSettingsOf(rl.store.Get())
		if !enabled {
			next.ServeHTTP(w, r)
			return
		}
		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		client, wait := rl.take(settings, route, r, time.Now())
		if wait > 0 {
			slog.Warn("rate limit exceeded", "client", client, "route", route, "retry_after", wait)
			rateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take spends one token from the client's bucket for route. It returns how
// long the client has to wait when the bucket is empty.
func (rl *rateLimiter) take(settings limitSettings, route string, r *http.Request, now time.Time) (string, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.identity == nil || settings != rl.settings {
		rl.settings = settings
		rl.identity = newClientIdentity(settings.identity)
		rl.buckets = map[string]*bucket{}
		slog.Info("rate limits applied", "per_minute", settings.perMinute, "burst", settings.burst, "strategy", rl.identity.strategy)
	}
	client := rl.identity.Key(r)

	if now.Sub(rl.lastSweep) >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.used) > bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	key := route + " " + client
	b, ok := rl.buckets[key]
	if !ok {
		every := time.Minute / time.Duration(max(settings.perMinute, 1))
		b = &bucket{Limiter: rate.NewLimiter(rate.Every(every), settings.burst)}
		rl.buckets[key] = b
	}
	b.used = now

	res := b.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return client, delay
	}
	return client, 0
}
