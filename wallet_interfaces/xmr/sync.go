package xmr

import (
	"context"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
	"gitlab.com/moneropay/go-monero/walletrpc"
)

// Refresh asks the RPC server to synchronize, then replays the transfers in
// blocks scanned by this pass as engine events. The first pass after a
// wallet is opened only records where the wallet already was, so history
// is never replayed as new money.
func (w *WalletRPC) Refresh(ctx context.Context) error {
	since, err := w.baseline(ctx)
	if err != nil {
		return err
	}

	resp, err := w.client.Refresh(ctx, &walletrpc.RefreshRequest{})
	if err != nil {
		return classifyWalletError(err)
	}
	height, err := w.client.GetHeight(ctx)
	if err != nil {
		return classifyWalletError(err)
	}
	// get_height is the block count; the last scanned block is one below.
	top := since
	if height.Height > 0 {
		top = height.Height - 1
	}

	if cb := w.callback(); cb != nil && top > since {
		if resp.BlocksFetched > 0 {
			cb.OnNewBlock(height.Height)
		}
		// min_height is exclusive, max_height inclusive.
		transfers, err := w.client.GetTransfers(ctx, &walletrpc.GetTransfersRequest{
			In:             true,
			Out:            true,
			FilterByHeight: true,
			MinHeight:      since,
			MaxHeight:      top,
		})
		if err != nil {
			return classifyWalletError(err)
		}
		for _, t := range transfers.In {
			cb.OnMoneyReceived(t.Height, walletinterfaces.TxRecord{Hash: t.Txid, Outputs: []uint64{t.Amount}}, 0)
		}
		for _, t := range transfers.Out {
			// wallet rpc reports the spend, not the spent output; the spent
			// amount is carried on a synthetic input record.
			in := walletinterfaces.TxRecord{Outputs: []uint64{t.Amount}}
			cb.OnMoneySpent(t.Height, in, 0, walletinterfaces.TxRecord{Hash: t.Txid})
		}
	}

	w.mu.Lock()
	if top > w.lastHeight {
		w.lastHeight = top
	}
	w.mu.Unlock()
	return nil
}

// baseline returns the last block already replayed, reading the wallet
// height first if the open wallet has not been baselined yet.
func (w *WalletRPC) baseline(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	since, ok := w.lastHeight, w.baselined
	w.mu.Unlock()
	if ok {
		return since, nil
	}

	height, err := w.client.GetHeight(ctx)
	if err != nil {
		return 0, classifyWalletError(err)
	}
	if height.Height > 0 {
		since = height.Height - 1
	}
	w.mu.Lock()
	w.lastHeight = since
	w.baselined = true
	w.mu.Unlock()
	return since, nil
}
