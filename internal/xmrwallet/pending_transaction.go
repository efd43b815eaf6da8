package xmrwallet

import (
	"sync"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// PendingTransaction is a constructed transfer that has not been relayed.
// It belongs to the caller, who disposes of it when done.
type PendingTransaction struct {
	mu          sync.Mutex
	txs         []walletinterfaces.PendingTx
	status      Status
	errorString string
	err         *Error
}

func (p *PendingTransaction) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *PendingTransaction) ErrorString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorString
}

func (p *PendingTransaction) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return nil
	}
	return p.err
}

// Amount is the total paid to destinations, excluding fees.
func (p *PendingTransaction) Amount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint64
	for _, tx := range p.txs {
		total += tx.Amount
	}
	return total
}

func (p *PendingTransaction) Fee() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint64
	for _, tx := range p.txs {
		total += tx.Fee
	}
	return total
}

func (p *PendingTransaction) TxIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.txs))
	for _, tx := range p.txs {
		ids = append(ids, tx.TxHash)
	}
	return ids
}

// Transactions returns a copy of the engine's constructed transactions.
func (p *PendingTransaction) Transactions() []walletinterfaces.PendingTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]walletinterfaces.PendingTx(nil), p.txs...)
}

// Dispose drops the constructed transactions. It is safe to call twice.
func (p *PendingTransaction) Dispose() {
	p.mu.Lock()
	p.txs = nil
	p.mu.Unlock()
}
