package walletinterfaces

import (
	"errors"
	"fmt"
)

// Failures an Engine reports. The set is closed: anything else an engine
// returns is treated as unexpected by callers.
var (
	ErrWalletExists     = errors.New("wallet already exists")
	ErrDaemonBusy       = errors.New("daemon is busy")
	ErrNoConnection     = errors.New("no connection to daemon")
	ErrRandomOuts       = errors.New("failed to get random outputs to mix")
	ErrTxNotConstructed = errors.New("transaction was not constructed")
	ErrZeroDestination  = errors.New("one of destinations is zero")
	ErrTxTooBig         = errors.New("transaction is too big")
	// ErrInvalidSeed is a mnemonic that failed word list or checksum
	// verification.
	ErrInvalidSeed = errors.New("seed failed verification")
	// ErrPaymentIDUnsupported is a payment id form the engine cannot attach.
	ErrPaymentIDUnsupported = errors.New("payment id form is not supported")
)

// RPCError is a failed or malformed node RPC call.
type RPCError struct {
	Request string
	Status  string
}

func (e *RPCError) Error() string {
	if e.Request == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Request, e.Status)
}

type NotEnoughMoneyError struct {
	Available uint64
	TxAmount  uint64
	Fee       uint64
}

func (e *NotEnoughMoneyError) Error() string {
	return fmt.Sprintf("not enough money: available %d, needed %d (fee %d)", e.Available, e.TxAmount+e.Fee, e.Fee)
}

// OutsForAmount is the number of decoys the node returned for an amount.
type OutsForAmount struct {
	Amount uint64
	Found  uint64
}

type NotEnoughOutsError struct {
	MixinCount uint64
	ScantyOuts []OutsForAmount
}

func (e *NotEnoughOutsError) Error() string {
	return fmt.Sprintf("not enough outputs to mix for mixin %d", e.MixinCount)
}

type TxRejectedError struct {
	TxHash string
	Status string
}

func (e *TxRejectedError) Error() string {
	return fmt.Sprintf("transaction %s rejected: %s", e.TxHash, e.Status)
}

type TxSumOverflowError struct {
	Msg string
}

func (e *TxSumOverflowError) Error() string {
	return e.Msg
}

// TransferError is a transfer failure the engine could not classify further.
type TransferError struct {
	Msg string
}

func (e *TransferError) Error() string {
	return e.Msg
}

// InternalError is an engine invariant violation.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return e.Msg
}
