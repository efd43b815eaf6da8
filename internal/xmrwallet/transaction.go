package xmrwallet

import (
	"context"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// DefaultMixin is used when neither the caller nor the wallet picks one.
const DefaultMixin = 4

// Priority is the fee multiplier passed to the engine.
type Priority uint32

const (
	PriorityDefault Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// CreateTransaction builds, but does not relay, a transfer of amount to dst.
// paymentID is ignored when dst is an integrated address. The result always
// carries the wallet status as of return; on failure it holds no
// transactions.
func (w *Wallet) CreateTransaction(ctx context.Context, dst, paymentID string, amount uint64, mixin uint32, priority Priority) *PendingTransaction {
	w.clearStatus()
	txs, buildErr := w.buildTransfer(ctx, dst, paymentID, amount, mixin, priority)

	pt := &PendingTransaction{txs: txs}
	w.mu.Lock()
	if buildErr != nil {
		w.status = StatusError
		w.errorString = buildErr.Msg
		w.err = buildErr
	}
	pt.status, pt.errorString, pt.err = w.status, w.errorString, w.err
	w.mu.Unlock()

	if buildErr != nil {
		w.log.Error("error creating transaction", "kind", buildErr.Kind, "err", buildErr.Msg)
	}
	return pt
}

func (w *Wallet) DisposeTransaction(pt *PendingTransaction) {
	if pt != nil {
		pt.Dispose()
	}
}

func (w *Wallet) buildTransfer(ctx context.Context, dst, paymentID string, amount uint64, mixin uint32, priority Priority) ([]walletinterfaces.PendingTx, *Error) {
	addr, err := ParseAddress(dst, w.network)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	dest := walletinterfaces.Destination{Address: dst, Amount: amount}

	var extra []byte
	if addr.Integrated() {
		id := addr.PaymentID
		dest.IntegratedPaymentID = &id
	} else if paymentID != "" {
		_, nonce, err := parsePaymentID(paymentID)
		if err != nil {
			return nil, ErrInvalidPaymentID
		}
		extra, err = walletinterfaces.AppendExtraNonce(nil, nonce)
		if err != nil {
			return nil, newError(KindInternal, err, "internal error: %s", err.Error())
		}
	}

	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	req := walletinterfaces.TransferRequest{
		Destinations:  []walletinterfaces.Destination{dest},
		MixinCount:    w.resolveMixin(mixin),
		UnlockTime:    0,
		FeeMultiplier: uint64(priority),
		Extra:         extra,
		Trusted:       w.TrustedDaemon(),
	}
	var txs []walletinterfaces.PendingTx
	err = guardEngine(func() error {
		var err error
		txs, err = w.engine.BuildTransfer(ctx, req)
		return err
	})
	if err != nil {
		return nil, classifyTransferError(err)
	}
	return txs, nil
}

func (w *Wallet) resolveMixin(requested uint32) uint32 {
	if requested > 0 {
		return requested
	}
	if m := w.engine.DefaultMixin(); m > 0 {
		return m
	}
	return DefaultMixin
}
