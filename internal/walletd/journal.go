package walletd

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
)

// TransferRecord summarizes a built transfer. Records outlive the process;
// the PendingTransaction behind one does not.
type TransferRecord struct {
	ID          string   `json:"id"`
	Destination string   `json:"destination"`
	PaymentID   string   `json:"payment_id,omitempty"`
	Amount      uint64   `json:"amount"`
	Fee         uint64   `json:"fee"`
	TxIDs       []string `json:"tx_ids"`
	ClientKey   string   `json:"client_key,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	ExpiresAt   int64    `json:"expires_at"`
	// Live is false for records restored from disk whose transactions were
	// lost with the previous process.
	Live bool `json:"live"`
}

type journalEntry struct {
	record TransferRecord
	pt     *xmrwallet.PendingTransaction
}

type journalFile struct {
	Entries map[string]TransferRecord `json:"entries"`
}

// Journal keeps built transfers for a TTL so clients can inspect or
// dispose of them. Expired entries are disposed lazily when encountered.
type Journal struct {
	mu      sync.Mutex
	path    string
	entries map[string]*journalEntry
}

func journalPathFor(configPath string) string {
	return configPath + ".transfers.json"
}

func NewJournal(configPath string) (*Journal, error) {
	j := &Journal{
		path:    journalPathFor(configPath),
		entries: map[string]*journalEntry{},
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// Put records pt and returns its new id.
func (j *Journal) Put(pt *xmrwallet.PendingTransaction, destination, paymentID, clientKey string, now time.Time, ttl time.Duration) (TransferRecord, error) {
	rec := TransferRecord{
		ID:          uuid.NewString(),
		Destination: destination,
		PaymentID:   paymentID,
		Amount:      pt.Amount(),
		Fee:         pt.Fee(),
		TxIDs:       pt.TxIDs(),
		ClientKey:   clientKey,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
		Live:        true,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.purgeLocked(now)
	j.entries[rec.ID] = &journalEntry{record: rec, pt: pt}
	journalEntries.Set(float64(len(j.entries)))
	return rec, j.saveLocked()
}

func (j *Journal) Get(id string, now time.Time) (TransferRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, ok := j.entries[id]
	if !ok {
		return TransferRecord{}, false
	}
	if expired(entry.record, now) {
		j.dropLocked(id)
		if err := j.saveLocked(); err != nil {
			slog.Error("transfer journal save failed", "path", j.path, "error", err)
		}
		return TransferRecord{}, false
	}
	return entry.record, true
}

// Dispose releases the transfer's transactions and forgets it.
func (j *Journal) Dispose(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[id]; !ok {
		return false, nil
	}
	j.dropLocked(id)
	return true, j.saveLocked()
}

// List returns the unexpired records, oldest first.
func (j *Journal) List(now time.Time) []TransferRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.purgeLocked(now) {
		if err := j.saveLocked(); err != nil {
			slog.Error("transfer journal save failed", "path", j.path, "error", err)
		}
	}
	out := make([]TransferRecord, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.record)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt < out[b].CreatedAt
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Close disposes every live transfer. Records stay on disk.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.pt != nil {
			e.pt.Dispose()
			e.pt = nil
		}
	}
}

func expired(rec TransferRecord, now time.Time) bool {
	return rec.ExpiresAt > 0 && now.Unix() >= rec.ExpiresAt
}

func (j *Journal) purgeLocked(now time.Time) bool {
	purged := false
	for id, e := range j.entries {
		if expired(e.record, now) {
			j.dropLocked(id)
			purged = true
		}
	}
	return purged
}

func (j *Journal) dropLocked(id string) {
	if e := j.entries[id]; e != nil && e.pt != nil {
		e.pt.Dispose()
	}
	delete(j.entries, id)
	journalEntries.Set(float64(len(j.entries)))
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	b, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var file journalFile
	if err := json.Unmarshal(b, &file); err != nil {
		return err
	}
	for id, rec := range file.Entries {
		rec.Live = false
		j.entries[id] = &journalEntry{record: rec}
	}
	journalEntries.Set(float64(len(j.entries)))
	return nil
}

func (j *Journal) saveLocked() error {
	file := journalFile{Entries: make(map[string]TransferRecord, len(j.entries))}
	for id, e := range j.entries {
		file.Entries[id] = e.record
	}
	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(j.path, b, 0o600)
}
