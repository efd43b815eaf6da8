package walletd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

type walletInfo struct {
	Version               uint   `json:"version"`
	Network               string `json:"network"`
	Address               string `json:"address"`
	Balance               string `json:"balance"`
	AtomicBalance         uint64 `json:"atomic_balance"`
	UnlockedBalance       string `json:"unlocked_balance"`
	AtomicUnlockedBalance uint64 `json:"atomic_unlocked_balance"`
	Filename              string `json:"filename"`
	KeysFile              string `json:"keys_file"`
	Status                string `json:"status"`
	Error                 string `json:"error,omitempty"`
	RefreshEnabled        bool   `json:"refresh_enabled"`
	RefreshInterval       string `json:"refresh_interval"`
	TrustedDaemon         bool   `json:"trusted_daemon"`
	DefaultMixin          uint32 `json:"default_mixin"`
}

type transferRequest struct {
	Destination string `json:"destination"`
	PaymentID   string `json:"payment_id,omitempty"`
	// Amount is in XMR, e.g. "0.25".
	Amount   string `json:"amount"`
	Mixin    uint32 `json:"mixin,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// TransferReceipt is the payload of the compact JWS returned when a
// transfer has been built.
type TransferReceipt struct {
	Version      uint      `json:"version"`
	ID           string    `json:"id"`
	Network      string    `json:"network"`
	Destination  string    `json:"destination"`
	PaymentID    string    `json:"payment_id,omitempty"`
	Amount       string    `json:"amount"`
	AtomicAmount uint64    `json:"atomic_amount"`
	Fee          string    `json:"fee"`
	AtomicFee    uint64    `json:"atomic_fee"`
	TxIDs        []string  `json:"tx_ids"`
	Created      time.Time `json:"created"`
	Expires      time.Time `json:"expires"`
}

// statusForKind maps the wallet error taxonomy onto HTTP.
func statusForKind(kind xmrwallet.Kind) int {
	switch kind {
	case xmrwallet.KindValidation:
		return http.StatusBadRequest
	case xmrwallet.KindAlreadyExists:
		return http.StatusConflict
	case xmrwallet.KindConnectivity:
		return http.StatusServiceUnavailable
	case xmrwallet.KindResourceExhausted:
		return http.StatusUnprocessableEntity
	case xmrwallet.KindProtocolRejection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, msg)
}

func writeWalletError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var werr *xmrwallet.Error
	if errors.As(err, &werr) {
		msg = werr.Msg
	}
	writeError(w, statusForKind(xmrwallet.KindOf(err)), msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func parsePriority(s string) (xmrwallet.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return xmrwallet.PriorityDefault, nil
	case "low":
		return xmrwallet.PriorityLow, nil
	case "medium":
		return xmrwallet.PriorityMedium, nil
	case "high":
		return xmrwallet.PriorityHigh, nil
	default:
		return 0, fmt.Errorf("priority must be one of: default, low, medium, high")
	}
}

func WalletHandler(wallet *xmrwallet.Wallet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		address, err := wallet.Address(ctx)
		if err != nil {
			slog.Warn("wallet address unavailable", "error", err)
			writeWalletError(w, err)
			return
		}
		balance, err := wallet.Balance(ctx)
		if err != nil {
			slog.Warn("wallet balance unavailable", "error", err)
			writeWalletError(w, err)
			return
		}
		unlocked, err := wallet.UnlockedBalance(ctx)
		if err != nil {
			slog.Warn("wallet unlocked balance unavailable", "error", err)
			writeWalletError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, walletInfo{
			Version:               VERSION,
			Network:               wallet.Network().String(),
			Address:               address,
			Balance:               xmrwallet.FormatAmount(balance),
			AtomicBalance:         balance,
			UnlockedBalance:       xmrwallet.FormatAmount(unlocked),
			AtomicUnlockedBalance: unlocked,
			Filename:              wallet.Filename(),
			KeysFile:              wallet.KeysFilename(),
			Status:                wallet.Status().String(),
			Error:                 wallet.ErrorString(),
			RefreshEnabled:        wallet.RefreshEnabled(),
			RefreshInterval:       wallet.RefreshInterval().String(),
			TrustedDaemon:         wallet.TrustedDaemon(),
			DefaultMixin:          wallet.DefaultMixin(),
		})
	}
}

// RefreshHandler wakes the refresh loop, or with ?sync=true runs a pass on
// the request and reports its outcome.
func RefreshHandler(wallet *xmrwallet.Wallet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sync") != "true" {
			wallet.RefreshAsync()
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if err := wallet.Refresh(r.Context()); err != nil {
			slog.Warn("synchronous refresh failed", "error", err)
			writeWalletError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RefreshControlHandler starts or pauses background refresh and persists the
// choice as refresh.enabled so it survives a restart.
func RefreshControlHandler(wallet *xmrwallet.Wallet, store *ConfigStore, monitor *walletMonitor, start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if start {
			wallet.StartRefresh()
		} else {
			wallet.PauseRefresh()
		}
		if monitor != nil {
			monitor.observe(false)
		}
		if store != nil {
			err := store.Update(func(c *Config) error {
				c.Refresh.Enabled = &start
				return nil
			})
			if err != nil {
				slog.Error("refresh setting not saved", "error", err)
			}
		}
		slog.Info("refresh toggled", "enabled", wallet.RefreshEnabled())
		w.WriteHeader(http.StatusNoContent)
	}
}

type historyEntry struct {
	Direction     string    `json:"direction"`
	TxHash        string    `json:"tx_hash"`
	Amount        string    `json:"amount"`
	AtomicAmount  uint64    `json:"atomic_amount"`
	Fee           string    `json:"fee"`
	AtomicFee     uint64    `json:"atomic_fee"`
	Height        uint64    `json:"height,omitempty"`
	Confirmations uint64    `json:"confirmations"`
	Timestamp     time.Time `json:"timestamp"`
	PaymentID     string    `json:"payment_id,omitempty"`
}

func HistoryHandler(wallet *xmrwallet.Wallet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := wallet.History(r.Context())
		if err != nil {
			slog.Warn("wallet history unavailable", "error", err)
			writeWalletError(w, err)
			return
		}
		out := make([]historyEntry, 0, len(history))
		for _, t := range history {
			out = append(out, historyEntry{
				Direction:     string(t.Direction),
				TxHash:        t.TxHash,
				Amount:        xmrwallet.FormatAmount(t.Amount),
				AtomicAmount:  t.Amount,
				Fee:           xmrwallet.FormatAmount(t.Fee),
				AtomicFee:     t.Fee,
				Height:        t.Height,
				Confirmations: t.Confirmations,
				Timestamp:     t.Timestamp,
				PaymentID:     t.PaymentID,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// TransferHandler builds a transfer, journals it and answers with a signed
// receipt. Nothing is relayed.
func TransferHandler(wallet *xmrwallet.Wallet, store *ConfigStore, journal *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		amount, err := xmrwallet.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, xmrwallet.ErrInvalidAmount.Msg+": "+err.Error())
			return
		}
		priority, err := parsePriority(req.Priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		cfg := store.Get()
		client := newClientIdentity(cfg.ClientIdentity).Key(r)
		pt := wallet.CreateTransaction(r.Context(), req.Destination, req.PaymentID, amount, req.Mixin, priority)
		transfersBuilt.WithLabelValues(transferOutcome(pt.Err())).Inc()
		if err := pt.Err(); err != nil {
			slog.Warn("transfer rejected", "client", client, "kind", xmrwallet.KindOf(err), "error", pt.ErrorString())
			wallet.DisposeTransaction(pt)
			writeWalletError(w, err)
			return
		}

		now := time.Now().UTC()
		rec, err := journal.Put(pt, req.Destination, req.PaymentID, client, now, cfg.Journal.TTL())
		if err != nil {
			// The record is held in memory even when persisting fails.
			slog.Error("transfer journal save failed", "id", rec.ID, "error", err)
		}

		signed, err := signReceipt(cfg, TransferReceipt{
			Version:      VERSION,
			ID:           rec.ID,
			Network:      wallet.Network().String(),
			Destination:  rec.Destination,
			PaymentID:    rec.PaymentID,
			Amount:       xmrwallet.FormatAmount(rec.Amount),
			AtomicAmount: rec.Amount,
			Fee:          xmrwallet.FormatAmount(rec.Fee),
			AtomicFee:    rec.Fee,
			TxIDs:        rec.TxIDs,
			Created:      time.Unix(rec.CreatedAt, 0).UTC(),
			Expires:      time.Unix(rec.ExpiresAt, 0).UTC(),
		})
		if err != nil {
			slog.Error("receipt signing failed", "id", rec.ID, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		slog.Info("transfer built", "id", rec.ID, "client", client, "amount", xmrwallet.FormatAmount(rec.Amount), "fee", xmrwallet.FormatAmount(rec.Fee), "txs", len(rec.TxIDs))
		w.Header().Set("Content-Type", "application/jose")
		w.Header().Set("Location", "/v1/transfers/"+rec.ID)
		w.WriteHeader(http.StatusCreated)
		w.Write(signed)
	}
}

func signReceipt(cfg *Config, receipt TransferReceipt) ([]byte, error) {
	key, err := cfg.Receipts.GetSigningJWK()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, err
	}
	return jws.Sign(payload, jws.WithKey(jwa.EdDSA(), key))
}

func TransferListHandler(journal *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, journal.List(time.Now().UTC()))
	}
}

func TransferGetHandler(journal *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := journal.Get(r.PathValue("id"), time.Now().UTC())
		if !ok {
			writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func TransferDisposeHandler(journal *Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		found, err := journal.Dispose(id)
		if !found {
			writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		if err != nil {
			slog.Error("transfer journal save failed", "id", id, "error", err)
		}
		slog.Info("transfer disposed", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func PaymentIDHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"payment_id": xmrwallet.GenPaymentID()})
	}
}

// IntegratedAddressHandler embeds ?payment_id= (16 hex chars) into the
// wallet address; a missing or invalid id is replaced by a random one.
func IntegratedAddressHandler(wallet *xmrwallet.Wallet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := wallet.IntegratedAddress(r.Context(), r.URL.Query().Get("payment_id"))
		if err != nil {
			writeWalletError(w, err)
			return
		}
		parsed, err := xmrwallet.ParseAddress(address, wallet.Network())
		if err != nil {
			writeError(w, http.StatusBadGateway, "engine returned an invalid address")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"integrated_address": address,
			"payment_id":         fmt.Sprintf("%x", parsed.PaymentID),
		})
	}
}

// JWKSKeysHandler publishes the receipt verification key.
func JWKSKeysHandler(store *ConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := store.Get().Receipts.GetJWK()
		if err != nil {
			slog.Error("jwk generation failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		set := jwk.NewSet()
		if err := set.AddKey(key); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}
