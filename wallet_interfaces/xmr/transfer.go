package xmr

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
	"gitlab.com/moneropay/go-monero/walletrpc"
)

var errLongPaymentID = fmt.Errorf("%w: wallet rpc does not accept long payment ids", walletinterfaces.ErrPaymentIDUnsupported)

func (w *WalletRPC) BuildTransfer(ctx context.Context, req walletinterfaces.TransferRequest) ([]walletinterfaces.PendingTx, error) {
	if w.client == nil {
		return nil, errors.New("wallet rpc not configured")
	}
	dests, err := w.rpcDestinations(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := w.syncTrust(ctx, req.Trusted); err != nil {
		return nil, err
	}

	resp, err := w.client.Transfer(ctx, &walletrpc.TransferRequest{
		Destinations:  dests,
		AccountIndex:  0,
		Priority:      walletrpc.Priority(req.FeeMultiplier),
		RingSize:      uint64(req.MixinCount) + 1,
		UnlockTime:    req.UnlockTime,
		GetTxKey:      true,
		DoNotRelay:    true,
		GetTxHex:      true,
		GetTxMetadata: true,
	})
	if err != nil {
		return nil, w.transferError(ctx, req, err)
	}
	return []walletinterfaces.PendingTx{{
		TxHash:   resp.TxHash,
		Amount:   resp.Amount,
		Fee:      resp.Fee,
		TxKey:    resp.TxKey,
		Blob:     resp.TxBlob,
		Metadata: resp.TxMetadata,
	}}, nil
}

// rpcDestinations folds a short payment id carried in the extra blob into an
// integrated address, which is the only form wallet rpc accepts.
func (w *WalletRPC) rpcDestinations(ctx context.Context, req walletinterfaces.TransferRequest) ([]walletrpc.Destination, error) {
	long, short, hasID := walletinterfaces.ExtraPaymentID(req.Extra)
	if hasID && long != nil {
		return nil, errLongPaymentID
	}

	out := make([]walletrpc.Destination, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		address := d.Address
		if hasID && d.IntegratedPaymentID == nil {
			resp, err := w.client.MakeIntegratedAddress(ctx, &walletrpc.MakeIntegratedAddressRequest{
				StandardAddress: d.Address,
				PaymentId:       hex.EncodeToString(short),
			})
			if err != nil {
				return nil, classifyWalletError(err)
			}
			address = resp.IntegratedAddress
		}
		out = append(out, walletrpc.Destination{Address: address, Amount: d.Amount})
	}
	return out, nil
}

func (w *WalletRPC) transferError(ctx context.Context, req walletinterfaces.TransferRequest, err error) error {
	classified := classifyWalletError(err)

	var money *walletinterfaces.NotEnoughMoneyError
	if errors.As(classified, &money) {
		for _, d := range req.Destinations {
			money.TxAmount += d.Amount
		}
		if unlocked, balErr := w.UnlockedBalance(ctx); balErr == nil {
			money.Available = unlocked
		}
	}
	var outs *walletinterfaces.NotEnoughOutsError
	if errors.As(classified, &outs) {
		outs.MixinCount = uint64(req.MixinCount)
	}
	return classified
}

// classifyWalletError maps wallet rpc failures onto the engine failure set.
// wallet rpc only reports a code and a message, so the message decides.
func classifyWalletError(err error) error {
	if err == nil {
		return nil
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", walletinterfaces.ErrNoConnection, err)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "word list failed verification"), strings.Contains(lower, "invalid seed"),
		strings.Contains(lower, "electrum-style"):
		return fmt.Errorf("%w: %s", walletinterfaces.ErrInvalidSeed, msg)
	case strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s", walletinterfaces.ErrWalletExists, msg)
	case strings.Contains(lower, "daemon is busy"):
		return walletinterfaces.ErrDaemonBusy
	case strings.Contains(lower, "no connection to daemon"):
		return walletinterfaces.ErrNoConnection
	case strings.Contains(lower, "not enough money"), strings.Contains(lower, "not enough unlocked money"):
		return &walletinterfaces.NotEnoughMoneyError{}
	case strings.Contains(lower, "not enough outputs"), strings.Contains(lower, "not enough outs"):
		return &walletinterfaces.NotEnoughOutsError{}
	case strings.Contains(lower, "random out"), strings.Contains(lower, "failed to get outs"):
		return walletinterfaces.ErrRandomOuts
	case strings.Contains(lower, "rejected"):
		return &walletinterfaces.TxRejectedError{Status: msg}
	case strings.Contains(lower, "too big"), strings.Contains(lower, "too large"):
		return walletinterfaces.ErrTxTooBig
	case strings.Contains(lower, "zero destination"), strings.Contains(lower, "destinations is zero"):
		return walletinterfaces.ErrZeroDestination
	case strings.Contains(lower, "overflow"):
		return &walletinterfaces.TxSumOverflowError{Msg: msg}
	case strings.Contains(lower, "not constructed"), strings.Contains(lower, "tx not possible"):
		return walletinterfaces.ErrTxNotConstructed
	case strings.Contains(lower, "internal error"):
		return &walletinterfaces.InternalError{Msg: msg}
	case strings.Contains(lower, "rpc"):
		return &walletinterfaces.RPCError{Status: msg}
	}
	return err
}
