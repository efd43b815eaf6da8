package walletd

import (
	"sync"
	"time"
)

// WalletStatus is the daemon's view of the wallet as of the last refresh
// pass or operation it observed.
type WalletStatus struct {
	Status         string    `json:"status"`
	Kind           string    `json:"kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	RefreshEnabled bool      `json:"refresh_enabled"`
	Refreshes      uint64    `json:"refreshes"`
	LastRefresh    time.Time `json:"last_refresh,omitempty"`
	LastChecked    time.Time `json:"last_checked"`
}

func (s WalletStatus) Healthy() bool {
	return s.Status == "ok"
}

// StatusStore holds wallet health separately from config so the refresh
// loop and request handlers can coordinate safely.
type StatusStore struct {
	mu     sync.RWMutex
	status WalletStatus
}

func NewStatusStore() *StatusStore {
	return &StatusStore{status: WalletStatus{Status: "ok", LastChecked: time.Now().UTC()}}
}

func (s *StatusStore) Get() WalletStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *StatusStore) Update(fn func(*WalletStatus)) WalletStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	if s.status.LastChecked.IsZero() {
		s.status.LastChecked = time.Now().UTC()
	}
	return s.status
}
