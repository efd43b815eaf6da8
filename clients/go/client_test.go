package xmrwalletclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func signCompact(t *testing.T, priv ed25519.PrivateKey, payload any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"EdDSA","kid":"k1"}`))
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	input := header + "." + base64.RawURLEncoding.EncodeToString(body)
	sig := ed25519.Sign(priv, []byte(input))
	return input + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func newDaemonStub(t *testing.T, signer ed25519.PrivateKey, published ed25519.PublicKey) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/keys", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"keys":[{"kty":"OKP","crv":"Ed25519","kid":"k1","x":%q}]}`, base64.RawURLEncoding.EncodeToString(published))
	})
	mux.HandleFunc("POST /v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "400 invalid amount")
			return
		}
		w.Header().Set("Content-Type", "application/jose")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, signCompact(t, signer, Receipt{ID: "t1", Destination: req.Destination, Amount: req.Amount, TxIDs: []string{"aa"}}))
	})
	mux.HandleFunc("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"direction":"in","tx_hash":"aa","amount":"1.000000000000","atomic_amount":1000000000000,"fee":"0.000000000000","atomic_fee":0,"height":12,"confirmations":3,"timestamp":"2024-01-02T03:04:05Z"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTransferVerifiesReceipt(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newDaemonStub(t, priv, pub)

	receipt, err := New(srv.URL+"/").Transfer(context.Background(), TransferRequest{Destination: "4abc", Amount: "1.5"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if receipt.ID != "t1" || receipt.Amount != "1.5" || len(receipt.TxIDs) != 1 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestTransferRejectsForeignSignature(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	srv := newDaemonStub(t, other, pub)

	if _, err := New(srv.URL).Transfer(context.Background(), TransferRequest{Amount: "1"}); err == nil {
		t.Fatalf("expected signature verification to fail")
	}
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	srv := newDaemonStub(t, priv, pub)

	_, err := New(srv.URL).Transfer(context.Background(), TransferRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "invalid amount" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestHistoryDecodesEntries(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	srv := newDaemonStub(t, priv, pub)

	history, err := New(srv.URL).History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one entry, got %+v", history)
	}
	e := history[0]
	if e.Direction != "in" || e.TxHash != "aa" || e.AtomicAmount != 1e12 || e.Height != 12 || e.Timestamp.Year() != 2024 {
		t.Fatalf("unexpected entry %+v", e)
	}
}
