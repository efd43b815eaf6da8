package xmr

import (
	"context"
	"sort"
	"time"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
	"gitlab.com/moneropay/go-monero/walletrpc"
)

// History reads every transfer category from get_transfers and merges them
// by time.
func (w *WalletRPC) History(ctx context.Context) ([]walletinterfaces.TransferInfo, error) {
	resp, err := w.client.GetTransfers(ctx, &walletrpc.GetTransfersRequest{
		In:      true,
		Out:     true,
		Pending: true,
		Failed:  true,
		Pool:    true,
	})
	if err != nil {
		return nil, classifyWalletError(err)
	}

	var out []walletinterfaces.TransferInfo
	add := func(dir walletinterfaces.Direction, transfers []walletrpc.Transfer) {
		for _, t := range transfers {
			out = append(out, walletinterfaces.TransferInfo{
				Direction:     dir,
				TxHash:        t.Txid,
				Amount:        t.Amount,
				Fee:           t.Fee,
				Height:        t.Height,
				Confirmations: t.Confirmations,
				Timestamp:     time.Unix(int64(t.Timestamp), 0).UTC(),
				PaymentID:     t.PaymentId,
			})
		}
	}
	add(walletinterfaces.DirectionIn, resp.In)
	add(walletinterfaces.DirectionOut, resp.Out)
	add(walletinterfaces.DirectionPending, resp.Pending)
	add(walletinterfaces.DirectionPool, resp.Pool)
	add(walletinterfaces.DirectionFailed, resp.Failed)

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.Before(out[b].Timestamp)
	})
	return out, nil
}
