package walletd

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

type ClientIdentityStrategy string

const (
	ClientIdentityStrategyRemoteAddr ClientIdentityStrategy = "remote_address"
	ClientIdentityStrategyXFF        ClientIdentityStrategy = "xff"
	ClientIdentityStrategyXFFUA      ClientIdentityStrategy = "xff_ua"
	ClientIdentityStrategyHeader     ClientIdentityStrategy = "header"
	ClientIdentityStrategyHeaderUA   ClientIdentityStrategy = "header_ua"
)

// ClientIdentityConfig selects how a caller is told apart for rate limiting
// and in the transfer journal. Behind a reverse proxy use xff or a header
// the proxy sets; remote_address would see only the proxy.
type ClientIdentityConfig struct {
	Strategy ClientIdentityStrategy `yaml:"strategy,omitempty"`
	Header   string                 `yaml:"header,omitempty"`
}

type clientIdentity struct {
	strategy ClientIdentityStrategy
	source   func(*http.Request) string
	withUA   bool
}

func newClientIdentity(cfg ClientIdentityConfig) *clientIdentity {
	ci := &clientIdentity{strategy: cfg.Strategy}
	header := http.CanonicalHeaderKey(strings.TrimSpace(cfg.Header))
	if header == "" {
		header = "X-Forwarded-For"
	}
	switch cfg.Strategy {
	case ClientIdentityStrategyXFF, ClientIdentityStrategyXFFUA:
		ci.source = forwardedFor
	case ClientIdentityStrategyHeader, ClientIdentityStrategyHeaderUA:
		ci.source = func(r *http.Request) string { return firstListValue(r.Header.Get(header)) }
	default:
		ci.strategy = ClientIdentityStrategyRemoteAddr
		ci.source = func(*http.Request) string { return "" }
	}
	ci.withUA = cfg.Strategy == ClientIdentityStrategyXFFUA || cfg.Strategy == ClientIdentityStrategyHeaderUA
	return ci
}

// Key names the client behind r. Strategies whose source is missing from
// the request fall back to the peer address.
func (ci *clientIdentity) Key(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	key := ci.source(r)
	if key == "" {
		key = peerHost(r.RemoteAddr)
	}
	if ci.withUA {
		key += "|ua:" + hashUA(r.UserAgent())
	}
	return key
}

// forwardedFor returns the originating client of X-Forwarded-For, or
// X-Real-IP when the former carries no usable address.
func forwardedFor(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := net.ParseIP(strings.TrimSpace(hop)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}

func firstListValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func peerHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

func hashUA(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(ua))
	return base64.RawURLEncoding.EncodeToString(sum[:9])
}
