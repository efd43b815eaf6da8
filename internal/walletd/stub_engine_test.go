package walletd

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

const testAddress = "44AFFq5kSiGBoZ4NMDwYtN18obc8AemS33DBLWs3H7otXft3XjrpDtQGv7SqSsaBYBb98uNbr2VBBEt7f2wfn3RVGQBEP3A"

// stubEngine is a minimal in-memory engine for driving the daemon.
type stubEngine struct {
	mu         sync.Mutex
	files      map[string]bool
	walletFile string
	refreshErr error
	buildErr   error
	onRefresh  func(cb walletinterfaces.Callback)
	built      []walletinterfaces.TransferRequest
	stores     int
	stops      int
	mixin      uint32
	cb         walletinterfaces.Callback
}

var _ walletinterfaces.Engine = (*stubEngine)(nil)

func newStubEngine() *stubEngine {
	return &stubEngine{files: map[string]bool{}}
}

func (s *stubEngine) WalletExists(path string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path+".keys"], s.files[path], nil
}

func (s *stubEngine) SetSeedLanguage(string) {}
func (s *stubEngine) SeedLanguage() string   { return "English" }

func (s *stubEngine) DecodeSeed(_ context.Context, words string) (walletinterfaces.Seed, error) {
	return walletinterfaces.Seed{Words: words, Language: "English"}, nil
}

func (s *stubEngine) GenerateKeys(_ context.Context, req walletinterfaces.GenerateRequest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[req.Path] = true
	s.files[req.Path+".keys"] = true
	s.walletFile = req.Path
	return nil, nil
}

func (s *stubEngine) Seed(context.Context) (string, error) { return "words", nil }

func (s *stubEngine) Load(_ context.Context, path, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.files[path] {
		return &walletinterfaces.InternalError{Msg: "file not found: " + path}
	}
	s.walletFile = path
	return nil
}

func (s *stubEngine) Store(context.Context) error {
	s.mu.Lock()
	s.stores++
	s.mu.Unlock()
	return nil
}

func (s *stubEngine) StoreTo(ctx context.Context, _, _ string) error { return s.Store(ctx) }
func (s *stubEngine) Rewrite(context.Context, string, string) error  { return nil }

func (s *stubEngine) Stop(context.Context) error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return nil
}

func (s *stubEngine) WalletFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletFile
}

func (s *stubEngine) KeysFile() string { return s.WalletFile() + ".keys" }

func (s *stubEngine) History(context.Context) ([]walletinterfaces.TransferInfo, error) {
	return []walletinterfaces.TransferInfo{
		{Direction: walletinterfaces.DirectionIn, TxHash: "in-1", Amount: 2e12, Height: 10, Confirmations: 5, Timestamp: time.Unix(100, 0).UTC()},
		{Direction: walletinterfaces.DirectionPool, TxHash: "pool-1", Amount: 1e9, Fee: 1e7, Timestamp: time.Unix(200, 0).UTC()},
	}, nil
}

func (s *stubEngine) Balance(context.Context) (uint64, error)         { return 3e12, nil }
func (s *stubEngine) UnlockedBalance(context.Context) (uint64, error) { return 1e12, nil }
func (s *stubEngine) PublicAddress(context.Context) (string, error)   { return testAddress, nil }

func (s *stubEngine) IntegratedAddress(_ context.Context, id [8]byte) (string, error) {
	addr, err := xmrwallet.ParseAddress(testAddress, xmrwallet.Mainnet)
	if err != nil {
		return "", err
	}
	addr.Kind = xmrwallet.AddressIntegrated
	addr.PaymentID = id
	return addr.String(), nil
}

func (s *stubEngine) Init(context.Context, string, uint64) error { return nil }
func (s *stubEngine) CheckConnection(context.Context) bool       { return true }
func (s *stubEngine) DaemonAddress() string                      { return "127.0.0.1:18081" }

func (s *stubEngine) Refresh(context.Context) error {
	s.mu.Lock()
	onRefresh, cb, err := s.onRefresh, s.cb, s.refreshErr
	s.mu.Unlock()
	if onRefresh != nil {
		onRefresh(cb)
	}
	return err
}

func (s *stubEngine) setRefreshErr(err error) {
	s.mu.Lock()
	s.refreshErr = err
	s.mu.Unlock()
}

func (s *stubEngine) BuildTransfer(_ context.Context, req walletinterfaces.TransferRequest) ([]walletinterfaces.PendingTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.built = append(s.built, req)
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return []walletinterfaces.PendingTx{{TxHash: "deadbeef", Amount: req.Destinations[0].Amount, Fee: 1e9}}, nil
}

func (s *stubEngine) DefaultMixin() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mixin
}

func (s *stubEngine) SetDefaultMixin(m uint32) {
	s.mu.Lock()
	s.mixin = m
	s.mu.Unlock()
}

func (s *stubEngine) SetCallback(cb walletinterfaces.Callback) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaultConfig.Clone()
	cfg.Wallet.Path = filepath.Join(t.TempDir(), "wallet")
	cfg.Normalize("")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate test config: %v", err)
	}
	return cfg
}

// newTestDaemon returns a started daemon over a stub engine, with its config
// stored under a temp dir.
func newTestDaemon(t *testing.T) (*Daemon, *stubEngine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	store := NewConfigStore(path, testConfig(t))
	engine := newStubEngine()
	wallet := xmrwallet.New(engine, xmrwallet.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	d, err := NewDaemon(store, wallet)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	return d, engine
}
