package xmrwallet

import (
	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// Listener receives wallet events. Calls arrive on the goroutine that
// delivered the engine event, normally the refresh loop.
type Listener interface {
	MoneySpent(txHash string, amount uint64)
	MoneyReceived(txHash string, amount uint64)
	Updated()
	Refreshed()
}

// notifier turns engine callbacks into listener calls. With no listener
// attached, events are dropped.
type notifier struct {
	w *Wallet
}

var _ walletinterfaces.Callback = notifier{}

func (n notifier) OnNewBlock(height uint64) {
	n.w.log.Debug("new block", "height", height)
}

func (n notifier) OnMoneyReceived(height uint64, tx walletinterfaces.TxRecord, outIndex int) {
	amount, ok := outputAmount(tx, outIndex)
	if !ok {
		n.w.log.Warn("money received event with out of range output", "tx", tx.Hash, "out_index", outIndex)
		return
	}
	n.w.log.Debug("money received", "height", height, "tx", tx.Hash, "amount", FormatAmount(amount))
	if l := n.w.currentListener(); l != nil {
		l.MoneyReceived(tx.Hash, amount)
		l.Updated()
	}
}

func (n notifier) OnMoneySpent(height uint64, inTx walletinterfaces.TxRecord, outIndex int, spendTx walletinterfaces.TxRecord) {
	amount, ok := outputAmount(inTx, outIndex)
	if !ok {
		n.w.log.Warn("money spent event with out of range output", "tx", spendTx.Hash, "out_index", outIndex)
		return
	}
	n.w.log.Debug("money spent", "height", height, "tx", spendTx.Hash, "amount", FormatAmount(amount))
	if l := n.w.currentListener(); l != nil {
		l.MoneySpent(spendTx.Hash, amount)
		l.Updated()
	}
}

func (n notifier) OnSkipTransaction(height uint64, tx walletinterfaces.TxRecord) {
	n.w.log.Debug("skipped transaction", "height", height, "tx", tx.Hash)
}

func outputAmount(tx walletinterfaces.TxRecord, outIndex int) (uint64, bool) {
	if outIndex < 0 || outIndex >= len(tx.Outputs) {
		return 0, false
	}
	return tx.Outputs[outIndex], true
}
