package xmr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// rpcFailure is stubbed in place of a result to answer with a JSON-RPC error.
type rpcFailure string

type rpcCall struct {
	Method string
	Params map[string]any
}

// rpcStub answers wallet rpc JSON-RPC calls from a method table and records
// every call it receives. A func(int) any entry is called with the number of
// earlier calls to the same method.
type rpcStub struct {
	*httptest.Server

	mu    sync.Mutex
	calls []rpcCall
}

func rpcServer(t *testing.T, results map[string]any) *rpcStub {
	t.Helper()
	stub := &rpcStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     any            `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		stub.mu.Lock()
		seen := 0
		for _, c := range stub.calls {
			if c.Method == req.Method {
				seen++
			}
		}
		stub.calls = append(stub.calls, rpcCall{Method: req.Method, Params: req.Params})
		stub.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		result, ok := results[req.Method]
		if fn, isFunc := result.(func(int) any); isFunc {
			result = fn(seen)
		}
		switch v := result.(type) {
		case rpcFailure:
			resp["error"] = map[string]any{"code": -1, "message": string(v)}
		default:
			if ok {
				resp["result"] = v
			} else {
				resp["error"] = map[string]any{"code": -1, "message": "method not stubbed: " + req.Method}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *rpcStub) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Method)
	}
	return out
}

func (s *rpcStub) callsTo(method string) []rpcCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rpcCall
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type recordingCallback struct {
	mu       sync.Mutex
	blocks   []uint64
	received []string
	spent    []string
}

func (c *recordingCallback) OnNewBlock(height uint64) {
	c.mu.Lock()
	c.blocks = append(c.blocks, height)
	c.mu.Unlock()
}

func (c *recordingCallback) OnMoneyReceived(_ uint64, tx walletinterfaces.TxRecord, _ int) {
	c.mu.Lock()
	c.received = append(c.received, tx.Hash)
	c.mu.Unlock()
}

func (c *recordingCallback) OnMoneySpent(_ uint64, _ walletinterfaces.TxRecord, _ int, spend walletinterfaces.TxRecord) {
	c.mu.Lock()
	c.spent = append(c.spent, spend.Hash)
	c.mu.Unlock()
}

func (c *recordingCallback) OnSkipTransaction(uint64, walletinterfaces.TxRecord) {}

func TestBalanceReadsRPC(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"get_balance": map[string]any{"balance": 5000, "unlocked_balance": 3000},
	})

	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")
	balance, err := w.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	unlocked, err := w.UnlockedBalance(context.Background())
	if err != nil {
		t.Fatalf("unlocked balance: %v", err)
	}
	if balance != 5000 || unlocked != 3000 {
		t.Fatalf("expected 5000/3000, got %d/%d", balance, unlocked)
	}
}

func TestClassifyWalletError(t *testing.T) {
	cases := []struct {
		in    string
		check func(error) bool
	}{
		{"Wallet already exists.", func(err error) bool { return errors.Is(err, walletinterfaces.ErrWalletExists) }},
		{"daemon is busy", func(err error) bool { return errors.Is(err, walletinterfaces.ErrDaemonBusy) }},
		{"No connection to daemon", func(err error) bool { return errors.Is(err, walletinterfaces.ErrNoConnection) }},
		{"not enough money", func(err error) bool {
			var target *walletinterfaces.NotEnoughMoneyError
			return errors.As(err, &target)
		}},
		{"not enough outputs for specified ring size", func(err error) bool {
			var target *walletinterfaces.NotEnoughOutsError
			return errors.As(err, &target)
		}},
		{"transaction was rejected by daemon", func(err error) bool {
			var target *walletinterfaces.TxRejectedError
			return errors.As(err, &target)
		}},
		{"transaction is too big", func(err error) bool { return errors.Is(err, walletinterfaces.ErrTxTooBig) }},
		{"tx not possible", func(err error) bool { return errors.Is(err, walletinterfaces.ErrTxNotConstructed) }},
		{"Electrum-style word list failed verification", func(err error) bool { return errors.Is(err, walletinterfaces.ErrInvalidSeed) }},
		{"Invalid seed", func(err error) bool { return errors.Is(err, walletinterfaces.ErrInvalidSeed) }},
	}
	for _, tc := range cases {
		if got := classifyWalletError(errors.New(tc.in)); !tc.check(got) {
			t.Fatalf("classifyWalletError(%q) = %T %v", tc.in, got, got)
		}
	}
	if classifyWalletError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	plain := errors.New("something odd")
	if got := classifyWalletError(plain); got != plain {
		t.Fatalf("expected unrecognised error to pass through, got %v", got)
	}
}

func TestWalletExistsChecksWalletDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.keys"), []byte("k"), 0o600); err != nil {
		t.Fatalf("write keys: %v", err)
	}

	w := NewWalletRPC("http://127.0.0.1:1/json_rpc", "", "", WithWalletDir(dir))
	keys, wallet, err := w.WalletExists("main")
	if err != nil {
		t.Fatalf("wallet exists: %v", err)
	}
	if !keys || wallet {
		t.Fatalf("expected keys only, got keys=%v wallet=%v", keys, wallet)
	}
}

func TestDecodeSeedChecksWordCount(t *testing.T) {
	w := NewWalletRPC("http://127.0.0.1:1/json_rpc", "", "")
	_, err := w.DecodeSeed(context.Background(), "one two three")
	if !errors.Is(err, walletinterfaces.ErrInvalidSeed) {
		t.Fatalf("expected invalid seed, got %v", err)
	}
	if !strings.Contains(err.Error(), "12, 13, 24 or 25") {
		t.Fatalf("expected accepted word counts in %q", err)
	}
	words := "a b c d e f g h i j k l m n o p q r s t u v w x y"
	seed, err := w.DecodeSeed(context.Background(), "  "+words+"  ")
	if err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	if seed.Words != words || seed.Language != "English" {
		t.Fatalf("unexpected seed: %+v", seed)
	}
}

func TestRPCDestinationsRejectsLongPaymentID(t *testing.T) {
	w := NewWalletRPC("http://127.0.0.1:1/json_rpc", "", "")
	extra, err := walletinterfaces.AppendExtraNonce(nil, walletinterfaces.LongPaymentIDNonce([32]byte{1}))
	if err != nil {
		t.Fatalf("append nonce: %v", err)
	}
	_, err = w.rpcDestinations(context.Background(), walletinterfaces.TransferRequest{
		Destinations: []walletinterfaces.Destination{{Address: "addr", Amount: 1}},
		Extra:        extra,
	})
	if !errors.Is(err, walletinterfaces.ErrPaymentIDUnsupported) {
		t.Fatalf("expected unsupported payment id, got %v", err)
	}
}

func TestGenerateKeysRestoresByName(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"restore_deterministic_wallet": map[string]any{"address": "4restored", "seed": "", "info": ""},
		"query_key":                    map[string]any{"key": "0a0b"},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")

	key, err := w.GenerateKeys(context.Background(), walletinterfaces.GenerateRequest{
		Path:     "restored",
		Password: "pw",
		Recovery: &walletinterfaces.Seed{Words: "a b c", Language: "Deutsch"},
	})
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	if len(key) != 2 || key[0] != 0x0a {
		t.Fatalf("unexpected spend key %x", key)
	}
	calls := srv.callsTo("restore_deterministic_wallet")
	if len(calls) != 1 {
		t.Fatalf("expected one restore call, got %v", srv.methods())
	}
	p := calls[0].Params
	if p["name"] != "restored" || p["password"] != "pw" || p["seed"] != "a b c" || p["language"] != "Deutsch" {
		t.Fatalf("unexpected restore params: %v", p)
	}
	if p["autosave_current"] != true {
		t.Fatalf("expected autosave_current, got %v", p)
	}
	if w.WalletFile() != "restored" {
		t.Fatalf("expected restored wallet to be open, got %q", w.WalletFile())
	}
}

func TestGenerateKeysReportsRejectedSeed(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"restore_deterministic_wallet": rpcFailure("Electrum-style word list failed verification"),
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")

	_, err := w.GenerateKeys(context.Background(), walletinterfaces.GenerateRequest{
		Path:     "restored",
		Recovery: &walletinterfaces.Seed{Words: "a b c"},
	})
	if !errors.Is(err, walletinterfaces.ErrInvalidSeed) {
		t.Fatalf("expected invalid seed, got %v", err)
	}
}

func TestRefreshDoesNotReplayHistoryOnFirstPass(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"open_wallet": map[string]any{},
		"refresh":     map[string]any{"blocks_fetched": 0, "received_money": false},
		"get_height":  map[string]any{"height": 3000000},
		"get_transfers": map[string]any{
			"in": []any{map[string]any{"txid": "old-2019-deposit", "height": 1800000, "amount": 1000}},
		},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")
	cb := &recordingCallback{}
	w.SetCallback(cb)

	if err := w.Load(context.Background(), "main", "pw"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := w.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if len(cb.received) != 0 || len(cb.blocks) != 0 {
		t.Fatalf("expected no events, got blocks=%v received=%v", cb.blocks, cb.received)
	}
	if calls := srv.callsTo("get_transfers"); len(calls) != 0 {
		t.Fatalf("expected no transfer scan, got %d", len(calls))
	}
}

func TestRefreshDeliversTransfersFromNewBlocks(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"open_wallet": map[string]any{},
		"refresh": func(n int) any {
			if n == 0 {
				return map[string]any{"blocks_fetched": 3, "received_money": true}
			}
			return map[string]any{"blocks_fetched": 0, "received_money": false}
		},
		"get_height": func(n int) any {
			if n == 0 {
				return map[string]any{"height": 100}
			}
			return map[string]any{"height": 103}
		},
		"get_transfers": map[string]any{
			"in":  []any{map[string]any{"txid": "fresh-deposit", "height": 101, "amount": 7}},
			"out": []any{map[string]any{"txid": "fresh-spend", "height": 102, "amount": 3}},
		},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")
	cb := &recordingCallback{}
	w.SetCallback(cb)

	if err := w.Load(context.Background(), "main", "pw"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := w.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	if len(cb.blocks) != 1 || cb.blocks[0] != 103 {
		t.Fatalf("expected one new block event at 103, got %v", cb.blocks)
	}
	if len(cb.received) != 1 || cb.received[0] != "fresh-deposit" {
		t.Fatalf("expected deposit once, got %v", cb.received)
	}
	if len(cb.spent) != 1 || cb.spent[0] != "fresh-spend" {
		t.Fatalf("expected spend once, got %v", cb.spent)
	}
	calls := srv.callsTo("get_transfers")
	if len(calls) != 1 {
		t.Fatalf("expected one transfer scan, got %d", len(calls))
	}
	p := calls[0].Params
	if p["filter_by_height"] != true || p["min_height"] != float64(99) || p["max_height"] != float64(102) {
		t.Fatalf("unexpected scan window: %v", p)
	}
}

func TestInitSetsDaemonAndTransferSyncsTrust(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"set_daemon": map[string]any{},
		"transfer": map[string]any{
			"tx_hash": "abc", "amount": 5, "fee": 1, "tx_blob": "blob", "tx_key": "key", "tx_metadata": "meta",
		},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")
	ctx := context.Background()

	if err := w.Init(ctx, "node.example:18081", 0); err != nil {
		t.Fatalf("init: %v", err)
	}
	calls := srv.callsTo("set_daemon")
	if len(calls) != 1 || calls[0].Params["address"] != "node.example:18081" {
		t.Fatalf("expected set_daemon with address, got %v", calls)
	}
	if _, ok := calls[0].Params["trusted"]; ok {
		t.Fatalf("expected untrusted daemon on init, got %v", calls[0].Params)
	}

	req := walletinterfaces.TransferRequest{
		Destinations: []walletinterfaces.Destination{{Address: "4dest", Amount: 5}},
		MixinCount:   15,
		Trusted:      true,
	}
	pending, err := w.BuildTransfer(ctx, req)
	if err != nil {
		t.Fatalf("build transfer: %v", err)
	}
	if len(pending) != 1 || pending[0].TxHash != "abc" || pending[0].Blob != "blob" || pending[0].Metadata != "meta" {
		t.Fatalf("unexpected pending tx: %+v", pending)
	}
	if _, err := w.BuildTransfer(ctx, req); err != nil {
		t.Fatalf("second build transfer: %v", err)
	}

	got := strings.Join(srv.methods(), ",")
	if got != "set_daemon,set_daemon,transfer,transfer" {
		t.Fatalf("unexpected call order: %s", got)
	}
	trust := srv.callsTo("set_daemon")[1].Params
	if trust["address"] != "node.example:18081" || trust["trusted"] != true {
		t.Fatalf("expected trusted set_daemon, got %v", trust)
	}
	transfer := srv.callsTo("transfer")[0].Params
	if transfer["do_not_relay"] != true || transfer["ring_size"] != float64(16) {
		t.Fatalf("unexpected transfer params: %v", transfer)
	}
}

func TestBuildTransferFoldsShortPaymentID(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"make_integrated_address": map[string]any{"integrated_address": "4integrated", "payment_id": "deadbeef00000001"},
		"transfer":                map[string]any{"tx_hash": "abc", "amount": 5, "fee": 1},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")
	extra, err := walletinterfaces.AppendExtraNonce(nil, walletinterfaces.ShortPaymentIDNonce([8]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 1}))
	if err != nil {
		t.Fatalf("append nonce: %v", err)
	}

	_, err = w.BuildTransfer(context.Background(), walletinterfaces.TransferRequest{
		Destinations: []walletinterfaces.Destination{{Address: "4standard", Amount: 5}},
		Extra:        extra,
	})
	if err != nil {
		t.Fatalf("build transfer: %v", err)
	}
	made := srv.callsTo("make_integrated_address")
	if len(made) != 1 || made[0].Params["standard_address"] != "4standard" || made[0].Params["payment_id"] != "deadbeef00000001" {
		t.Fatalf("unexpected integrated address call: %v", made)
	}
	dests, _ := srv.callsTo("transfer")[0].Params["destinations"].([]any)
	if len(dests) != 1 {
		t.Fatalf("expected one destination, got %v", dests)
	}
	if d, _ := dests[0].(map[string]any); d["address"] != "4integrated" {
		t.Fatalf("expected integrated destination, got %v", dests[0])
	}
}

func TestBuildTransferFillsNotEnoughMoney(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"transfer":    rpcFailure("not enough money"),
		"get_balance": map[string]any{"balance": 900, "unlocked_balance": 400},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")

	_, err := w.BuildTransfer(context.Background(), walletinterfaces.TransferRequest{
		Destinations: []walletinterfaces.Destination{{Address: "4a", Amount: 600}, {Address: "4b", Amount: 500}},
	})
	var money *walletinterfaces.NotEnoughMoneyError
	if !errors.As(err, &money) {
		t.Fatalf("expected not enough money, got %v", err)
	}
	if money.TxAmount != 1100 || money.Available != 400 {
		t.Fatalf("expected 1100 wanted / 400 available, got %+v", money)
	}
}

func TestBuildTransferFillsNotEnoughOuts(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"transfer": rpcFailure("not enough outputs for specified ring size"),
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")

	_, err := w.BuildTransfer(context.Background(), walletinterfaces.TransferRequest{
		Destinations: []walletinterfaces.Destination{{Address: "4a", Amount: 1}},
		MixinCount:   10,
	})
	var outs *walletinterfaces.NotEnoughOutsError
	if !errors.As(err, &outs) {
		t.Fatalf("expected not enough outs, got %v", err)
	}
	if outs.MixinCount != 10 {
		t.Fatalf("expected mixin 10, got %d", outs.MixinCount)
	}
}

func TestHistoryMergesCategoriesByTime(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"get_transfers": map[string]any{
			"in":   []any{map[string]any{"txid": "in-1", "amount": 7, "height": 10, "timestamp": 200, "payment_id": "0000000000000000"}},
			"out":  []any{map[string]any{"txid": "out-1", "amount": 3, "fee": 1, "height": 9, "timestamp": 100}},
			"pool": []any{map[string]any{"txid": "pool-1", "amount": 2, "timestamp": 300}},
		},
	})
	w := NewWalletRPC(srv.URL+"/json_rpc", "", "")

	history, err := w.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transfers, got %+v", history)
	}
	want := []struct {
		hash string
		dir  walletinterfaces.Direction
	}{
		{"out-1", walletinterfaces.DirectionOut},
		{"in-1", walletinterfaces.DirectionIn},
		{"pool-1", walletinterfaces.DirectionPool},
	}
	for i, wt := range want {
		if history[i].TxHash != wt.hash || history[i].Direction != wt.dir {
			t.Fatalf("entry %d: expected %s/%s, got %+v", i, wt.hash, wt.dir, history[i])
		}
	}
	if history[0].Fee != 1 || history[0].Timestamp.Unix() != 100 {
		t.Fatalf("unexpected out entry: %+v", history[0])
	}
	p := srv.callsTo("get_transfers")[0].Params
	for _, k := range []string{"in", "out", "pending", "failed", "pool"} {
		if p[k] != true {
			t.Fatalf("expected %s in history request, got %v", k, p)
		}
	}
}
