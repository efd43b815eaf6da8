package xmrwallet

import (
	"errors"
	"fmt"
	"strings"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

// Kind classifies a wallet failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlreadyExists
	KindValidation
	KindConnectivity
	KindResourceExhausted
	KindProtocolRejection
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindValidation:
		return "validation"
	case KindConnectivity:
		return "connectivity"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindProtocolRejection:
		return "protocol_rejection"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the only error type the wallet returns. Msg is the rendered text
// also published as the wallet's error string.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists, Msg: "wallet or key storage already exists at the target path, refusing to overwrite"}
	ErrInvalidAddress   = &Error{Kind: KindValidation, Msg: "invalid destination address"}
	ErrInvalidPaymentID = &Error{Kind: KindValidation, Msg: "payment id has invalid format, expected 16 or 64 character hex string"}
	ErrInvalidAmount    = &Error{Kind: KindValidation, Msg: "invalid amount"}
	ErrEmptySeed        = &Error{Kind: KindValidation, Msg: "Electrum seed is empty"}
	ErrInvalidSeed      = &Error{Kind: KindValidation, Msg: "Electrum-style word list failed verification"}
)

// KindOf returns the kind of a wallet error, KindUnknown for anything else.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindUnknown
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// panicError carries a value recovered from a panicking engine call.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("engine panic: %v", p.value)
}

// guardEngine runs an engine call, turning a panic into an error so that no
// engine failure escapes the wallet.
func guardEngine(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return fn()
}

// lifecycleError maps a failed create/open/recover/store/close. The engine
// message is kept verbatim.
func lifecycleError(err error) *Error {
	var p panicError
	switch {
	case errors.As(err, &p):
		return newError(KindUnknown, err, "unknown error")
	case errors.Is(err, walletinterfaces.ErrWalletExists):
		return newError(KindAlreadyExists, err, "%s", err.Error())
	case errors.Is(err, walletinterfaces.ErrNoConnection), errors.Is(err, walletinterfaces.ErrDaemonBusy):
		return newError(KindConnectivity, err, "%s", err.Error())
	default:
		return newError(KindInternal, err, "%s", err.Error())
	}
}

// classifyTransferError maps an engine transfer failure onto a kind and the
// message shown to users.
func classifyTransferError(err error) *Error {
	var (
		p        panicError
		rpc      *walletinterfaces.RPCError
		money    *walletinterfaces.NotEnoughMoneyError
		outs     *walletinterfaces.NotEnoughOutsError
		rejected *walletinterfaces.TxRejectedError
		overflow *walletinterfaces.TxSumOverflowError
		transfer *walletinterfaces.TransferError
		internal *walletinterfaces.InternalError
	)
	switch {
	case errors.As(err, &p):
		return newError(KindUnknown, err, "unknown error")
	case errors.Is(err, walletinterfaces.ErrPaymentIDUnsupported):
		return newError(KindValidation, err, "%s", err.Error())
	case errors.Is(err, walletinterfaces.ErrDaemonBusy):
		return newError(KindConnectivity, err, "daemon is busy. Please try again later.")
	case errors.Is(err, walletinterfaces.ErrNoConnection):
		return newError(KindConnectivity, err, "no connection to daemon. Please make sure daemon is running.")
	case errors.As(err, &rpc):
		return newError(KindProtocolRejection, err, "RPC error: %s", rpc.Error())
	case errors.Is(err, walletinterfaces.ErrRandomOuts):
		return newError(KindProtocolRejection, err, "failed to get random outputs to mix")
	case errors.As(err, &money):
		return newError(KindResourceExhausted, err,
			"not enough money to transfer, available only %s, transaction amount %s = %s + %s (fee)",
			FormatAmount(money.Available),
			FormatAmount(money.TxAmount+money.Fee),
			FormatAmount(money.TxAmount),
			FormatAmount(money.Fee))
	case errors.As(err, &outs):
		var b strings.Builder
		fmt.Fprintf(&b, "not enough outputs for specified mixin_count = %d:", outs.MixinCount)
		for _, o := range outs.ScantyOuts {
			fmt.Fprintf(&b, "\noutput amount = %s, found outputs to mix = %d", FormatAmount(o.Amount), o.Found)
		}
		return newError(KindResourceExhausted, err, "%s", b.String())
	case errors.Is(err, walletinterfaces.ErrTxNotConstructed):
		return newError(KindInternal, err, "transaction was not constructed")
	case errors.As(err, &rejected):
		return newError(KindProtocolRejection, err, "transaction %s was rejected by daemon with status: %s", rejected.TxHash, rejected.Status)
	case errors.As(err, &overflow):
		return newError(KindInternal, err, "%s", overflow.Msg)
	case errors.Is(err, walletinterfaces.ErrZeroDestination):
		return newError(KindInternal, err, "one of destinations is zero")
	case errors.Is(err, walletinterfaces.ErrTxTooBig):
		return newError(KindResourceExhausted, err, "failed to find a suitable way to split transactions")
	case errors.As(err, &transfer):
		return newError(KindInternal, err, "unknown transfer error: %s", transfer.Msg)
	case errors.As(err, &internal):
		return newError(KindInternal, err, "internal error: %s", internal.Msg)
	default:
		return newError(KindUnknown, err, "unexpected error: %s", err.Error())
	}
}
