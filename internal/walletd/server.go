package walletd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"github.com/kaigoh/xmrwallet/wallet_interfaces/xmr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/health"
)

const shutdownTimeout = 15 * time.Second

var defaultConfig = &Config{
	Logging:    LoggingConfig{Level: "info"},
	Network:    "mainnet",
	APIPort:    8080,
	HealthPort: 50051,
	Wallet: WalletConfig{
		Path:            "wallet",
		SeedLanguage:    "English",
		CreateIfMissing: boolPtr(true),
	},
	Daemon: DaemonConfig{
		Address: "127.0.0.1:18081",
	},
	WalletRPC: WalletRPCConfig{
		Address:        "http://127.0.0.1:18083/json_rpc",
		TimeoutSeconds: 30,
	},
	Refresh: RefreshConfig{
		IntervalSeconds: 10,
		Enabled:         boolPtr(true),
	},
	RateLimit: RateLimitConfig{
		Enabled:           boolPtr(true),
		RequestsPerMinute: 30,
		Burst:             5,
	},
	ClientIdentity: ClientIdentityConfig{
		Strategy: ClientIdentityStrategyRemoteAddr,
		Header:   "X-Forwarded-For",
	},
	Journal: JournalConfig{TTLSeconds: 3600},
}

// Daemon wires one Wallet to the HTTP API, the event hub and the health
// endpoints.
type Daemon struct {
	store    *ConfigStore
	wallet   *xmrwallet.Wallet
	journal  *Journal
	hub      *EventHub
	statuses *StatusStore
	health   *health.Server
	monitor  *walletMonitor
	limiter  *rateLimiter

	mu          sync.Mutex
	autoTrusted bool
	closed      bool
}

func NewDaemon(store *ConfigStore, wallet *xmrwallet.Wallet) (*Daemon, error) {
	journal, err := NewJournal(store.Path())
	if err != nil {
		return nil, fmt.Errorf("open transfer journal: %w", err)
	}
	d := &Daemon{
		store:    store,
		wallet:   wallet,
		journal:  journal,
		hub:      NewEventHub(),
		statuses: NewStatusStore(),
		health:   newHealthServer(),
		limiter:  newRateLimiter(store),
	}
	d.monitor = newWalletMonitor(wallet, d.hub, d.statuses, d.health)
	wallet.SetListener(d.monitor)
	return d, nil
}

// Handler returns the public HTTP API.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/wallet", WalletHandler(d.wallet))
	mux.Handle("POST /v1/refresh", d.limiter.middleware(RefreshHandler(d.wallet)))
	mux.HandleFunc("POST /v1/refresh/start", RefreshControlHandler(d.wallet, d.store, d.monitor, true))
	mux.HandleFunc("POST /v1/refresh/pause", RefreshControlHandler(d.wallet, d.store, d.monitor, false))
	mux.Handle("POST /v1/transfers", d.limiter.middleware(TransferHandler(d.wallet, d.store, d.journal)))
	mux.HandleFunc("GET /v1/transfers", TransferListHandler(d.journal))
	mux.HandleFunc("GET /v1/history", HistoryHandler(d.wallet))
	mux.HandleFunc("GET /v1/transfers/{id}", TransferGetHandler(d.journal))
	mux.HandleFunc("DELETE /v1/transfers/{id}", TransferDisposeHandler(d.journal))
	mux.HandleFunc("GET /v1/payment-id", PaymentIDHandler())
	mux.HandleFunc("GET /v1/integrated-address", IntegratedAddressHandler(d.wallet))
	mux.HandleFunc("GET /v1/keys", JWKSKeysHandler(d.store))
	mux.Handle("GET /v1/events", d.hub)
	mux.HandleFunc("GET /healthz", HealthHandler(d.statuses))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start opens (or creates) the configured wallet and connects it to the
// node. A failed first refresh is logged, not returned: the refresh loop
// keeps retrying.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.store.Get()
	if err := openOrCreate(ctx, d.wallet, cfg.Wallet); err != nil {
		d.monitor.observe(false)
		return err
	}
	if cfg.Wallet.DefaultMixin > 0 {
		d.wallet.SetDefaultMixin(cfg.Wallet.DefaultMixin)
	}

	var err error
	if cfg.Daemon.AsyncInit {
		err = d.wallet.InitAsync(ctx, cfg.Daemon.Address, cfg.Daemon.UpperTransactionSizeLimit)
	} else {
		err = d.wallet.Init(ctx, cfg.Daemon.Address, cfg.Daemon.UpperTransactionSizeLimit)
	}
	if err != nil && !d.wallet.RefreshEnabled() {
		d.monitor.observe(false)
		return err
	}
	if err != nil {
		slog.Warn("initial refresh failed", "daemon", cfg.Daemon.Address, "error", err)
	}

	d.mu.Lock()
	d.autoTrusted = d.wallet.TrustedDaemon()
	d.mu.Unlock()
	d.ApplyConfig(cfg)
	slog.Info("wallet ready", "file", d.wallet.Filename(), "network", d.wallet.Network(), "daemon", cfg.Daemon.Address, "trusted", d.wallet.TrustedDaemon())
	return nil
}

func openOrCreate(ctx context.Context, w *xmrwallet.Wallet, cfg WalletConfig) error {
	openErr := w.Open(ctx, cfg.Path, cfg.Password)
	if openErr == nil {
		slog.Info("wallet opened", "path", cfg.Path)
		return nil
	}
	if !cfg.CreateIfMissingOrDefault() {
		return openErr
	}
	err := w.Create(ctx, cfg.Path, cfg.Password, cfg.SeedLanguage)
	if xmrwallet.KindOf(err) == xmrwallet.KindAlreadyExists {
		// The wallet is there; opening it failed for another reason.
		return openErr
	}
	if err != nil {
		return err
	}
	slog.Info("wallet created", "path", cfg.Path, "language", cfg.SeedLanguage)
	return nil
}

// ApplyConfig pushes the live-reloadable settings onto the wallet.
func (d *Daemon) ApplyConfig(cfg *Config) {
	d.mu.Lock()
	autoTrusted := d.autoTrusted
	d.mu.Unlock()

	d.wallet.SetRefreshInterval(cfg.Refresh.Interval())
	d.wallet.SetTrustedDaemon(autoTrusted || cfg.Daemon.Trusted)
	if cfg.Wallet.DefaultMixin > 0 {
		d.wallet.SetDefaultMixin(cfg.Wallet.DefaultMixin)
	}
	if enabled := cfg.Refresh.EnabledOrDefault(); enabled != d.wallet.RefreshEnabled() {
		if enabled {
			d.wallet.StartRefresh()
		} else {
			d.wallet.PauseRefresh()
		}
	}
	d.monitor.observe(false)
	slog.Debug("wallet settings applied", "refresh_interval", cfg.Refresh.Interval(), "refresh_enabled", d.wallet.RefreshEnabled(), "trusted", d.wallet.TrustedDaemon())
}

// Close stops background refresh, stores and closes the wallet, and
// disconnects event subscribers. It is safe to call more than once.
func (d *Daemon) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.health.Shutdown()
	d.hub.Close()
	d.wallet.StopRefresh()
	d.journal.Close()
	if err := d.wallet.Close(ctx); err != nil {
		slog.Error("wallet close failed", "error", err)
		return err
	}
	slog.Info("wallet closed")
	return nil
}

// Run loads the config, starts the wallet and serves until ctx is done.
func Run(ctx context.Context, configPath string) error {
	if configPath == "" {
		configPath = "config.yml"
	}

	cfg, err := LoadOrCreateConfig(configPath, defaultConfig)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	InitLogger(cfg.Logging)
	slog.Info("config loaded", "path", configPath, "network", cfg.Network, "wallet_rpc", cfg.WalletRPC.Address)

	store := NewConfigStore(configPath, cfg)
	engine := xmr.NewWalletRPC(cfg.WalletRPC.Address, cfg.WalletRPC.Username, cfg.WalletRPC.Password,
		xmr.WithWalletDir(cfg.WalletRPC.WalletDir),
		xmr.WithTimeout(cfg.WalletRPC.Timeout()),
	)
	wallet := xmrwallet.New(engine,
		xmrwallet.WithLogger(slog.Default()),
		xmrwallet.WithNetwork(cfg.NetworkType()),
		xmrwallet.WithRefreshInterval(cfg.Refresh.Interval()),
	)
	d, err := NewDaemon(store, wallet)
	if err != nil {
		wallet.StopRefresh()
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = d.Close(closeCtx)
	}()

	if err := d.Start(ctx); err != nil {
		slog.Error("wallet failed to start", "path", cfg.Wallet.Path, "error", err)
		return err
	}

	watcher, err := WatchConfigFile(configPath, store, d.ApplyConfig)
	if err != nil {
		slog.Error("config watcher failed to start", "path", configPath, "error", err)
		return err
	}
	defer watcher.Close()
	slog.Info("config watcher started", "path", configPath)

	healthAddr := fmt.Sprintf(":%d", cfg.HealthPort)
	lis, err := net.Listen("tcp", healthAddr)
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	grpcServer, grpcErr := serveHealth(lis, d.health)
	slog.Info("grpc health server listening", "addr", healthAddr, "service", HealthServiceName)

	apiAddr := fmt.Sprintf(":%d", cfg.APIPort)
	httpServer := &http.Server{
		Addr:              apiAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.ListenAndServe()
	}()
	slog.Info("api server listening", "addr", apiAddr)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown requested")
	case serveErr = <-httpErr:
		slog.Error("api server exited", "error", serveErr)
	case serveErr = <-grpcErr:
		slog.Error("grpc health server exited", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
