package xmr

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
	"gitlab.com/moneropay/go-monero/walletrpc"
)

const defaultTimeout = 30 * time.Second

// WalletRPC drives a monero-wallet-rpc instance as a wallet engine. The RPC
// server owns the wallet files; WalletRPC tracks which one is open.
type WalletRPC struct {
	client    *walletrpc.Client
	walletDir string

	mu            sync.Mutex
	walletFile    string
	password      string
	language      string
	defaultMixin  uint32
	daemonAddress string
	// daemonTrusted is the trust flag last sent with set_daemon.
	daemonTrusted bool
	// lastHeight is the highest block whose transfers were replayed as
	// events; baselined is false until it has been read for the open wallet.
	lastHeight uint64
	baselined  bool
	cb         walletinterfaces.Callback
}

var _ walletinterfaces.Engine = (*WalletRPC)(nil)

type Option func(*WalletRPC, *http.Client)

// WithWalletDir points existence checks at the directory monero-wallet-rpc
// was started with (--wallet-dir). Without it, existence is left to the RPC
// server to report on create.
func WithWalletDir(dir string) Option {
	return func(w *WalletRPC, _ *http.Client) {
		w.walletDir = dir
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(_ *WalletRPC, c *http.Client) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

func NewWalletRPC(url, user, password string, opts ...Option) *WalletRPC {
	headers := map[string]string{}
	if user != "" || password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
		headers["Authorization"] = "Basic " + token
	}

	w := &WalletRPC{language: "English"}
	httpClient := &http.Client{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(w, httpClient)
	}

	w.client = walletrpc.New(walletrpc.Config{
		Address:       url,
		CustomHeaders: headers,
		Client:        httpClient,
	})
	return w
}

func (w *WalletRPC) WalletExists(path string) (bool, bool, error) {
	if w.walletDir == "" {
		return false, false, nil
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(w.walletDir, path)
	}
	keys, err := fileExists(full + ".keys")
	if err != nil {
		return false, false, err
	}
	wallet, err := fileExists(full)
	if err != nil {
		return false, false, err
	}
	return keys, wallet, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (w *WalletRPC) SetSeedLanguage(language string) {
	w.mu.Lock()
	w.language = language
	w.mu.Unlock()
}

func (w *WalletRPC) SeedLanguage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.language
}

// DecodeSeed only checks the shape of the mnemonic; checksum and word list
// verification happen on the RPC server during restore.
func (w *WalletRPC) DecodeSeed(_ context.Context, words string) (walletinterfaces.Seed, error) {
	fields := strings.Fields(words)
	switch len(fields) {
	case 12, 13, 24, 25:
	default:
		return walletinterfaces.Seed{}, fmt.Errorf("%w: seed has %d words, expected 12, 13, 24 or 25", walletinterfaces.ErrInvalidSeed, len(fields))
	}
	return walletinterfaces.Seed{Words: strings.Join(fields, " "), Language: w.SeedLanguage()}, nil
}

func (w *WalletRPC) GenerateKeys(ctx context.Context, req walletinterfaces.GenerateRequest) ([]byte, error) {
	if w.client == nil {
		return nil, errors.New("wallet rpc not configured")
	}
	language := w.SeedLanguage()
	var err error
	if req.Recovery != nil {
		if req.Recovery.Language != "" {
			language = req.Recovery.Language
		}
		_, err = w.client.RestoreDeterministicWallet(ctx, &walletrpc.RestoreDeterministicWalletRequest{
			Name:            req.Path,
			Password:        req.Password,
			Seed:            req.Recovery.Words,
			Language:        language,
			AutosaveCurrent: true,
		})
	} else {
		err = w.client.CreateWallet(ctx, &walletrpc.CreateWalletRequest{
			Filename: req.Path,
			Password: req.Password,
			Language: language,
		})
	}
	if err != nil {
		return nil, classifyWalletError(err)
	}
	w.opened(req.Path, req.Password)

	// The wallet exists at this point; a failed key query is not a failed generation.
	resp, err := w.client.QueryKey(ctx, &walletrpc.QueryKeyRequest{KeyType: "spend_key"})
	if err != nil {
		return nil, nil
	}
	key, err := hex.DecodeString(resp.Key)
	if err != nil {
		return nil, nil
	}
	return key, nil
}

func (w *WalletRPC) Seed(ctx context.Context) (string, error) {
	resp, err := w.client.QueryKey(ctx, &walletrpc.QueryKeyRequest{KeyType: "mnemonic"})
	if err != nil {
		return "", classifyWalletError(err)
	}
	return resp.Key, nil
}

func (w *WalletRPC) Load(ctx context.Context, path, password string) error {
	if w.client == nil {
		return errors.New("wallet rpc not configured")
	}
	if err := w.client.OpenWallet(ctx, &walletrpc.OpenWalletRequest{Filename: path, Password: password}); err != nil {
		return classifyWalletError(err)
	}
	w.opened(path, password)
	return nil
}

func (w *WalletRPC) opened(path, password string) {
	w.mu.Lock()
	w.walletFile = path
	w.password = password
	w.lastHeight = 0
	w.baselined = false
	w.mu.Unlock()
}

func (w *WalletRPC) Store(ctx context.Context) error {
	return classifyWalletError(w.client.Store(ctx))
}

func (w *WalletRPC) StoreTo(ctx context.Context, path, password string) error {
	w.mu.Lock()
	current, currentPassword := w.walletFile, w.password
	w.mu.Unlock()
	if path != current {
		return &walletinterfaces.InternalError{Msg: "wallet rpc cannot store a copy under a different path"}
	}
	if password != currentPassword {
		if err := w.Rewrite(ctx, path, password); err != nil {
			return err
		}
	}
	return w.Store(ctx)
}

func (w *WalletRPC) Rewrite(ctx context.Context, _ string, password string) error {
	w.mu.Lock()
	old := w.password
	w.mu.Unlock()
	err := w.client.ChangeWalletPassword(ctx, &walletrpc.ChangeWalletPasswordRequest{
		OldPassword: old,
		NewPassword: password,
	})
	if err != nil {
		return classifyWalletError(err)
	}
	w.mu.Lock()
	w.password = password
	w.mu.Unlock()
	return nil
}

func (w *WalletRPC) Stop(ctx context.Context) error {
	if w.client == nil {
		return errors.New("wallet rpc not configured")
	}
	if err := w.client.CloseWallet(ctx); err != nil {
		return classifyWalletError(err)
	}
	return nil
}

func (w *WalletRPC) WalletFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.walletFile
}

func (w *WalletRPC) KeysFile() string {
	file := w.WalletFile()
	if file == "" {
		return ""
	}
	return file + ".keys"
}

func (w *WalletRPC) Balance(ctx context.Context) (uint64, error) {
	resp, err := w.client.GetBalance(ctx, &walletrpc.GetBalanceRequest{AccountIndex: 0})
	if err != nil {
		return 0, classifyWalletError(err)
	}
	return resp.Balance, nil
}

func (w *WalletRPC) UnlockedBalance(ctx context.Context) (uint64, error) {
	resp, err := w.client.GetBalance(ctx, &walletrpc.GetBalanceRequest{AccountIndex: 0})
	if err != nil {
		return 0, classifyWalletError(err)
	}
	return resp.UnlockedBalance, nil
}

func (w *WalletRPC) PublicAddress(ctx context.Context) (string, error) {
	resp, err := w.client.GetAddress(ctx, &walletrpc.GetAddressRequest{AccountIndex: 0})
	if err != nil {
		return "", classifyWalletError(err)
	}
	if resp.Address == "" {
		return "", errors.New("address not found")
	}
	return resp.Address, nil
}

func (w *WalletRPC) IntegratedAddress(ctx context.Context, shortID [8]byte) (string, error) {
	resp, err := w.client.MakeIntegratedAddress(ctx, &walletrpc.MakeIntegratedAddressRequest{
		PaymentId: hex.EncodeToString(shortID[:]),
	})
	if err != nil {
		return "", classifyWalletError(err)
	}
	return resp.IntegratedAddress, nil
}

// Init points monero-wallet-rpc at daemonAddress with set_daemon. An empty
// address keeps the node the RPC server was started with. The node starts
// out untrusted; BuildTransfer re-sends set_daemon when the caller's trust
// flag differs.
func (w *WalletRPC) Init(ctx context.Context, daemonAddress string, _ uint64) error {
	if w.client == nil {
		return errors.New("wallet rpc not configured")
	}
	if daemonAddress != "" {
		if err := w.client.SetDaemon(ctx, &walletrpc.SetDaemonRequest{Address: daemonAddress}); err != nil {
			return classifyWalletError(err)
		}
	}
	w.mu.Lock()
	w.daemonAddress = daemonAddress
	w.daemonTrusted = false
	w.mu.Unlock()
	return nil
}

// syncTrust re-sends set_daemon when trusted differs from what the RPC
// server was last told.
func (w *WalletRPC) syncTrust(ctx context.Context, trusted bool) error {
	w.mu.Lock()
	address, current := w.daemonAddress, w.daemonTrusted
	w.mu.Unlock()
	if address == "" || trusted == current {
		return nil
	}
	if err := w.client.SetDaemon(ctx, &walletrpc.SetDaemonRequest{Address: address, Trusted: trusted}); err != nil {
		return classifyWalletError(err)
	}
	w.mu.Lock()
	w.daemonTrusted = trusted
	w.mu.Unlock()
	return nil
}

func (w *WalletRPC) CheckConnection(ctx context.Context) bool {
	if w.client == nil {
		return false
	}
	_, err := w.client.GetHeight(ctx)
	return err == nil
}

func (w *WalletRPC) DaemonAddress() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.daemonAddress
}

func (w *WalletRPC) DefaultMixin() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.defaultMixin
}

func (w *WalletRPC) SetDefaultMixin(mixin uint32) {
	w.mu.Lock()
	w.defaultMixin = mixin
	w.mu.Unlock()
}

func (w *WalletRPC) SetCallback(cb walletinterfaces.Callback) {
	w.mu.Lock()
	w.cb = cb
	w.mu.Unlock()
}

func (w *WalletRPC) callback() walletinterfaces.Callback {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cb
}
