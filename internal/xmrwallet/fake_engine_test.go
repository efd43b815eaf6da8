package xmrwallet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// fakeEngine is a scripted engine. Refresh counts overlapping entries so
// tests can assert that passes never interleave.
type fakeEngine struct {
	mu sync.Mutex

	keysExist    bool
	walletExists bool
	existsErr    error

	language    string
	decodeErr   error
	generateErr error
	generated   []walletinterfaces.GenerateRequest

	loadErr    error
	storeErr   error
	stopErr    error
	rewriteErr error
	stores     int
	stops      int
	rewrites   []string
	walletFile string

	defaultMixin uint32
	buildErr     error
	buildPanic   any
	built        []walletinterfaces.TransferRequest
	buildResult  []walletinterfaces.PendingTx
	history      []walletinterfaces.TransferInfo
	historyErr   error

	refreshErr   error
	refreshErrOf func(ctx context.Context) error
	refreshDelay time.Duration
	onRefresh    func(cb walletinterfaces.Callback)
	refreshes    atomic.Int32
	inRefresh    atomic.Int32
	maxInRefresh atomic.Int32

	connected bool
	daemon    string
	cb        walletinterfaces.Callback
}

var _ walletinterfaces.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) WalletExists(string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keysExist, f.walletExists, f.existsErr
}

func (f *fakeEngine) SetSeedLanguage(language string) {
	f.mu.Lock()
	f.language = language
	f.mu.Unlock()
}

func (f *fakeEngine) SeedLanguage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.language
}

func (f *fakeEngine) DecodeSeed(_ context.Context, words string) (walletinterfaces.Seed, error) {
	if f.decodeErr != nil {
		return walletinterfaces.Seed{}, f.decodeErr
	}
	return walletinterfaces.Seed{Words: words, Language: "Deutsch", Key: []byte{1}}, nil
}

func (f *fakeEngine) GenerateKeys(_ context.Context, req walletinterfaces.GenerateRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated = append(f.generated, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.walletFile = req.Path
	return []byte{1, 2, 3}, nil
}

func (f *fakeEngine) Seed(context.Context) (string, error) { return "seed words", nil }

func (f *fakeEngine) Load(_ context.Context, path, _ string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.mu.Lock()
	f.walletFile = path
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Store(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores++
	return f.storeErr
}

func (f *fakeEngine) StoreTo(context.Context, string, string) error {
	return f.Store(context.Background())
}

func (f *fakeEngine) Rewrite(_ context.Context, _ string, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewrites = append(f.rewrites, password)
	return f.rewriteErr
}

func (f *fakeEngine) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeEngine) WalletFile() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walletFile
}

func (f *fakeEngine) KeysFile() string { return f.WalletFile() + ".keys" }

func (f *fakeEngine) History(context.Context) ([]walletinterfaces.TransferInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.historyErr
}

func (f *fakeEngine) Balance(context.Context) (uint64, error)         { return 2000, nil }
func (f *fakeEngine) UnlockedBalance(context.Context) (uint64, error) { return 1000, nil }
func (f *fakeEngine) PublicAddress(context.Context) (string, error)   { return testMainnetAddress, nil }

func (f *fakeEngine) IntegratedAddress(_ context.Context, id [8]byte) (string, error) {
	addr, err := ParseAddress(testMainnetAddress, Mainnet)
	if err != nil {
		return "", err
	}
	addr.Kind = AddressIntegrated
	addr.PaymentID = id
	return addr.String(), nil
}

func (f *fakeEngine) Init(_ context.Context, daemon string, _ uint64) error {
	f.mu.Lock()
	f.daemon = daemon
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) CheckConnection(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEngine) DaemonAddress() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daemon
}

func (f *fakeEngine) Refresh(ctx context.Context) error {
	n := f.inRefresh.Add(1)
	for {
		cur := f.maxInRefresh.Load()
		if n <= cur || f.maxInRefresh.CompareAndSwap(cur, n) {
			break
		}
	}
	defer f.inRefresh.Add(-1)
	defer f.refreshes.Add(1)

	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}
	f.mu.Lock()
	onRefresh, cb, err, errOf := f.onRefresh, f.cb, f.refreshErr, f.refreshErrOf
	f.mu.Unlock()
	if onRefresh != nil {
		onRefresh(cb)
	}
	if errOf != nil {
		return errOf(ctx)
	}
	return err
}

func (f *fakeEngine) BuildTransfer(_ context.Context, req walletinterfaces.TransferRequest) ([]walletinterfaces.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buildPanic != nil {
		panic(f.buildPanic)
	}
	f.built = append(f.built, req)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if f.buildResult != nil {
		return f.buildResult, nil
	}
	return []walletinterfaces.PendingTx{{TxHash: "aa", Amount: req.Destinations[0].Amount, Fee: 7}}, nil
}

func (f *fakeEngine) DefaultMixin() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaultMixin
}

func (f *fakeEngine) SetDefaultMixin(m uint32) {
	f.mu.Lock()
	f.defaultMixin = m
	f.mu.Unlock()
}

func (f *fakeEngine) SetCallback(cb walletinterfaces.Callback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *fakeEngine) callback() walletinterfaces.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func newTestWallet(t *testing.T, engine *fakeEngine, opts ...Option) *Wallet {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	w := New(engine, opts...)
	t.Cleanup(w.StopRefresh)
	return w
}

// recordingListener records the order of listener calls.
type recordingListener struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingListener) record(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *recordingListener) MoneySpent(txHash string, _ uint64)    { l.record("spent:" + txHash) }
func (l *recordingListener) MoneyReceived(txHash string, _ uint64) { l.record("received:" + txHash) }
func (l *recordingListener) Updated()                              { l.record("updated") }
func (l *recordingListener) Refreshed()                            { l.record("refreshed") }

func (l *recordingListener) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

const (
	testMainnetAddress    = "44AFFq5kSiGBoZ4NMDwYtN18obc8AemS33DBLWs3H7otXft3XjrpDtQGv7SqSsaBYBb98uNbr2VBBEt7f2wfn3RVGQBEP3A"
	testIntegratedAddress = "4DrvGduF3ynBoZ4NMDwYtN18obc8AemS33DBLWs3H7otXft3XjrpDtQGv7SqSsaBYBb98uNbr2VBBEt7f2wfn3RVPkQhNkvcj1x1ziWUt9"
	testTestnetAddress    = "9uhnk5k1j5NBoZ4NMDwYtN18obc8AemS33DBLWs3H7otXft3XjrpDtQGv7SqSsaBYBb98uNbr2VBBEt7f2wfn3RVGRySiok"
)
