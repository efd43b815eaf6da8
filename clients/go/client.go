package xmrwalletclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to an xmrwalletd HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx answer. Message carries the daemon's text without
// the leading status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed %d: %s", e.StatusCode, e.Message)
}

type WalletInfo struct {
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

// HistoryEntry is one wallet transfer. Direction is in, out, pending, pool or
// failed; Height is 0 while unconfirmed.
type HistoryEntry struct {
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

type TransferRequest struct {
	Destination string `json:"destination"`
	PaymentID   string `json:"payment_id,omitempty"`
	Amount      string `json:"amount"`
	Mixin       uint32 `json:"mixin,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

type Receipt struct {
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

type jwkKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
}

func (c *Client) Wallet(ctx context.Context) (WalletInfo, error) {
	var info WalletInfo
	body, err := c.do(ctx, http.MethodGet, "/v1/wallet", nil, "application/json")
	if err != nil {
		return info, err
	}
	return info, json.Unmarshal(body, &info)
}

func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/history", nil, "application/json")
	if err != nil {
		return nil, err
	}
	var out []HistoryEntry
	return out, json.Unmarshal(body, &out)
}

// Refresh wakes the daemon's refresh loop, or with wait runs a pass and
// reports its outcome.
func (c *Client) Refresh(ctx context.Context, wait bool) error {
	path := "/v1/refresh"
	if wait {
		path += "?sync=true"
	}
	_, err := c.do(ctx, http.MethodPost, path, nil, "")
	return err
}

func (c *Client) PaymentID(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/payment-id", nil, "application/json")
	if err != nil {
		return "", err
	}
	var out struct {
		PaymentID string `json:"payment_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.PaymentID, nil
}

// Transfer asks the daemon to build a transfer and verifies the signed
// receipt against the daemon's published keys.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, err
	}
	signed, err := c.do(ctx, http.MethodPost, "/v1/transfers", payload, "application/jose")
	if err != nil {
		return Receipt{}, err
	}
	keys, err := c.keys(ctx)
	if err != nil {
		return Receipt{}, err
	}
	return verifyReceipt(string(signed), keys)
}

func (c *Client) Dispose(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/transfers/"+url.PathEscape(id), nil, "")
	return err
}

func (c *Client) keys(ctx context.Context) ([]jwkKey, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/keys", nil, "application/json")
	if err != nil {
		return nil, err
	}
	var set struct {
		Keys []jwkKey `json:"keys"`
	}
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, err
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("daemon published no keys")
	}
	return set.Keys, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, accept string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(out))
		msg = strings.TrimPrefix(msg, fmt.Sprintf("%d ", res.StatusCode))
		return nil, &APIError{StatusCode: res.StatusCode, Message: msg}
	}
	return out, nil
}

func verifyReceipt(jws string, keys []jwkKey) (Receipt, error) {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 {
		return Receipt{}, errors.New("invalid JWS format")
	}
	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Receipt{}, err
	}
	var protected struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(header, &protected); err != nil {
		return Receipt{}, err
	}
	if protected.Alg != "EdDSA" {
		return Receipt{}, fmt.Errorf("unsupported JWS algorithm %q", protected.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Receipt{}, err
	}
	signingInput := []byte(parts[0] + "." + parts[1])

	verified := false
	for _, key := range keys {
		if protected.Kid != "" && key.Kid != "" && key.Kid != protected.Kid {
			continue
		}
		pubBytes, err := base64.RawURLEncoding.DecodeString(key.X)
		if err != nil || len(pubBytes) != ed25519.PublicKeySize {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(pubBytes), signingInput, sig) {
			verified = true
			break
		}
	}
	if !verified {
		return Receipt{}, errors.New("signature verification failed")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Receipt{}, err
	}
	var receipt Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return Receipt{}, err
	}
	if receipt.ID == "" {
		return Receipt{}, errors.New("missing id in receipt")
	}
	return receipt, nil
}
