// Package xmrwallet is the control plane of a Monero wallet: lifecycle,
// background refresh, transfer construction and event delivery on top of a
// walletinterfaces.Engine.
package xmrwallet

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

type Status int

const (
	StatusOk Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "error"
	}
	return "ok"
}

const DefaultRefreshInterval = 10 * time.Second

// Wallet owns one engine. Status and ErrorString always describe the most
// recent operation; StatusError holds exactly when ErrorString is non-empty.
type Wallet struct {
	engine  walletinterfaces.Engine
	log     *slog.Logger
	network Network

	mu            sync.RWMutex
	status        Status
	errorString   string
	err           *Error
	password      string
	trustedDaemon bool
	listener      Listener

	refresh *refreshScheduler
}

type Option func(*Wallet)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) {
		if logger != nil {
			w.log = logger
		}
	}
}

func WithNetwork(network Network) Option {
	return func(w *Wallet) {
		w.network = network
	}
}

func WithRefreshInterval(interval time.Duration) Option {
	return func(w *Wallet) {
		if interval > 0 {
			w.refresh.interval = interval
		}
	}
}

// New wraps engine and starts the refresh loop in the paused state. Callers
// must call StopRefresh when done with the wallet.
func New(engine walletinterfaces.Engine, opts ...Option) *Wallet {
	w := &Wallet{
		engine:  engine,
		log:     slog.Default(),
		refresh: newRefreshScheduler(DefaultRefreshInterval),
	}
	for _, opt := range opts {
		opt(w)
	}
	engine.SetCallback(notifier{w: w})
	go w.refreshLoop()
	return w
}

func (w *Wallet) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Wallet) ErrorString() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.errorString
}

// Err returns the failure behind the current status, or nil when it is Ok.
func (w *Wallet) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.err == nil {
		return nil
	}
	return w.err
}

func (w *Wallet) Network() Network {
	return w.network
}

func (w *Wallet) clearStatus() {
	w.mu.Lock()
	w.status = StatusOk
	w.errorString = ""
	w.err = nil
	w.mu.Unlock()
}

// fail publishes e as the wallet status and returns it.
func (w *Wallet) fail(e *Error) error {
	w.mu.Lock()
	w.status = StatusError
	w.errorString = e.Msg
	w.err = e
	w.mu.Unlock()
	return e
}

// SetListener replaces the listener. The previous one is not notified.
func (w *Wallet) SetListener(l Listener) {
	w.mu.Lock()
	w.listener = l
	w.mu.Unlock()
}

func (w *Wallet) currentListener() Listener {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.listener
}

func (w *Wallet) setPassword(password string) {
	w.mu.Lock()
	w.password = password
	w.mu.Unlock()
}

func (w *Wallet) currentPassword() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.password
}

// Create generates a new wallet at path. Existing key or wallet storage is
// never overwritten.
func (w *Wallet) Create(ctx context.Context, path, password, language string) error {
	w.clearStatus()
	if err := w.ensureAbsent(path); err != nil {
		return err
	}

	w.engine.SetSeedLanguage(language)
	err := guardEngine(func() error {
		_, err := w.engine.GenerateKeys(ctx, walletinterfaces.GenerateRequest{Path: path, Password: password})
		return err
	})
	if err != nil {
		w.log.Error("error creating wallet", "path", path, "err", err)
		return w.fail(lifecycleError(err))
	}
	w.setPassword(password)
	return nil
}

func (w *Wallet) ensureAbsent(path string) error {
	keysExist, walletExists, err := w.engine.WalletExists(path)
	if err != nil {
		return w.fail(lifecycleError(err))
	}
	w.log.Debug("wallet storage check", "path", path, "keys_exist", keysExist, "wallet_exists", walletExists)
	if keysExist || walletExists {
		w.log.Error(ErrAlreadyExists.Msg, "path", path)
		return w.fail(ErrAlreadyExists)
	}
	return nil
}

func (w *Wallet) Open(ctx context.Context, path, password string) error {
	w.clearStatus()
	err := guardEngine(func() error {
		return w.engine.Load(ctx, path, password)
	})
	if err != nil {
		w.log.Error("error opening wallet", "path", path, "err", err)
		return w.fail(lifecycleError(err))
	}
	w.setPassword(password)
	return nil
}

// Recover regenerates a wallet at path from a mnemonic seed, using the
// seed's own language. The recovered wallet has an empty password.
func (w *Wallet) Recover(ctx context.Context, path, seed string) error {
	w.clearStatus()
	if strings.TrimSpace(seed) == "" {
		w.log.Error(ErrEmptySeed.Msg)
		return w.fail(ErrEmptySeed)
	}

	var decoded walletinterfaces.Seed
	err := guardEngine(func() error {
		var err error
		decoded, err = w.engine.DecodeSeed(ctx, seed)
		return err
	})
	if err != nil {
		w.log.Error(ErrInvalidSeed.Msg, "err", err)
		return w.fail(ErrInvalidSeed)
	}
	if err := w.ensureAbsent(path); err != nil {
		return err
	}

	if decoded.Language != "" {
		w.engine.SetSeedLanguage(decoded.Language)
	}
	err = guardEngine(func() error {
		_, err := w.engine.GenerateKeys(ctx, walletinterfaces.GenerateRequest{Path: path, Recovery: &decoded})
		return err
	})
	if errors.Is(err, walletinterfaces.ErrInvalidSeed) {
		// Checksum and word list are only verified by some engines at restore.
		w.log.Error(ErrInvalidSeed.Msg, "err", err)
		return w.fail(ErrInvalidSeed)
	}
	if err != nil {
		w.log.Error("error recovering wallet", "path", path, "err", err)
		return w.fail(lifecycleError(err))
	}
	w.setPassword("")
	return nil
}

// Close stores the wallet when the last operation succeeded, then stops the
// engine. Stop is attempted even if storing failed. The Wallet may be
// reopened afterwards.
func (w *Wallet) Close(ctx context.Context) error {
	w.PauseRefresh()

	var storeErr error
	if w.Status() == StatusOk {
		storeErr = guardEngine(func() error { return w.engine.Store(ctx) })
	}
	stopErr := guardEngine(func() error { return w.engine.Stop(ctx) })

	err := storeErr
	if err == nil {
		err = stopErr
	}
	if err != nil {
		w.log.Error("error closing wallet", "err", err)
		return w.fail(lifecycleError(err))
	}
	w.clearStatus()
	return nil
}

// SetPassword rewrites the wallet under a new password. On failure the old
// password stays in effect.
func (w *Wallet) SetPassword(ctx context.Context, password string) error {
	w.clearStatus()
	err := guardEngine(func() error {
		return w.engine.Rewrite(ctx, w.engine.WalletFile(), password)
	})
	if err != nil {
		w.log.Error("error changing wallet password", "err", err)
		return w.fail(lifecycleError(err))
	}
	w.setPassword(password)
	return nil
}

// Store saves the wallet in place, or a copy at path under the current
// password when path is set.
func (w *Wallet) Store(ctx context.Context, path string) error {
	w.clearStatus()
	err := guardEngine(func() error {
		if path == "" {
			return w.engine.Store(ctx)
		}
		return w.engine.StoreTo(ctx, path, w.currentPassword())
	})
	if err != nil {
		w.log.Error("error storing wallet", "path", path, "err", err)
		return w.fail(lifecycleError(err))
	}
	return nil
}

func (w *Wallet) Seed(ctx context.Context) (string, error) {
	return w.engine.Seed(ctx)
}

func (w *Wallet) SeedLanguage() string {
	return w.engine.SeedLanguage()
}

func (w *Wallet) SetSeedLanguage(language string) {
	w.engine.SetSeedLanguage(language)
}

func (w *Wallet) Address(ctx context.Context) (string, error) {
	return w.engine.PublicAddress(ctx)
}

// IntegratedAddress embeds paymentID into the wallet address. A random id is
// used when paymentID is not a valid short payment id.
func (w *Wallet) IntegratedAddress(ctx context.Context, paymentID string) (string, error) {
	id, ok := parseShortPaymentID(paymentID)
	if !ok {
		id = randomShortPaymentID()
	}
	return w.engine.IntegratedAddress(ctx, id)
}

func (w *Wallet) Filename() string {
	return w.engine.WalletFile()
}

func (w *Wallet) KeysFilename() string {
	return w.engine.KeysFile()
}

func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	return w.engine.Balance(ctx)
}

func (w *Wallet) UnlockedBalance(ctx context.Context) (uint64, error) {
	return w.engine.UnlockedBalance(ctx)
}

// History lists the wallet's incoming, outgoing and unconfirmed transfers,
// oldest first. It does not touch Status.
func (w *Wallet) History(ctx context.Context) ([]walletinterfaces.TransferInfo, error) {
	var history []walletinterfaces.TransferInfo
	err := guardEngine(func() error {
		var err error
		history, err = w.engine.History(ctx)
		return err
	})
	if err != nil {
		return nil, lifecycleError(err)
	}
	return history, nil
}

func (w *Wallet) DefaultMixin() uint32 {
	return w.engine.DefaultMixin()
}

func (w *Wallet) SetDefaultMixin(mixin uint32) {
	w.engine.SetDefaultMixin(mixin)
}

func (w *Wallet) TrustedDaemon() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trustedDaemon
}

func (w *Wallet) SetTrustedDaemon(trusted bool) {
	w.mu.Lock()
	w.trustedDaemon = trusted
	w.mu.Unlock()
}
