package walletinterfaces

import (
	"context"
	"time"
)

// Engine is the wallet engine the control plane drives. It owns key
// derivation, signing, the wallet file format and the wire protocol to the
// node; callers only see coarse operations and the failure values declared
// in errors.go.
type Engine interface {
	// WalletExists reports whether key storage and/or wallet storage are
	// already present at path.
	WalletExists(path string) (keysExist bool, walletExists bool, err error)

	SetSeedLanguage(language string)
	SeedLanguage() string
	// DecodeSeed verifies a mnemonic against the word lists and returns the
	// recovered secret together with the seed's original language.
	DecodeSeed(ctx context.Context, words string) (Seed, error)
	// GenerateKeys creates key and wallet storage at req.Path. When
	// req.Recovery is set, keys are regenerated deterministically from it.
	GenerateKeys(ctx context.Context, req GenerateRequest) ([]byte, error)
	Seed(ctx context.Context) (string, error)

	Load(ctx context.Context, path, password string) error
	Store(ctx context.Context) error
	StoreTo(ctx context.Context, path, password string) error
	Rewrite(ctx context.Context, path, password string) error
	Stop(ctx context.Context) error
	WalletFile() string
	KeysFile() string

	Balance(ctx context.Context) (uint64, error)
	UnlockedBalance(ctx context.Context) (uint64, error)
	PublicAddress(ctx context.Context) (string, error)
	IntegratedAddress(ctx context.Context, shortID [8]byte) (string, error)

	Init(ctx context.Context, daemonAddress string, upperTxSizeLimit uint64) error
	CheckConnection(ctx context.Context) bool
	DaemonAddress() string

	// Refresh runs one chain synchronization step.
	Refresh(ctx context.Context) error
	// BuildTransfer constructs (but does not relay) the transactions paying
	// req.Destinations.
	BuildTransfer(ctx context.Context, req TransferRequest) ([]PendingTx, error)
	// History lists the wallet's transfers, oldest first.
	History(ctx context.Context) ([]TransferInfo, error)

	DefaultMixin() uint32
	SetDefaultMixin(mixin uint32)

	// SetCallback installs the receiver of engine events. Events may be
	// delivered on any goroutine.
	SetCallback(cb Callback)
}

// Callback receives engine events.
type Callback interface {
	OnNewBlock(height uint64)
	OnMoneyReceived(height uint64, tx TxRecord, outIndex int)
	OnMoneySpent(height uint64, inTx TxRecord, outIndex int, spendTx TxRecord)
	OnSkipTransaction(height uint64, tx TxRecord)
}

// TxRecord is the engine's view of a transaction as far as event delivery
// needs it: its hash and the amount of each output.
type TxRecord struct {
	Hash    string
	Outputs []uint64
}

// Seed is a decoded mnemonic.
type Seed struct {
	Words    string
	Language string
	// Key is the recovered spend secret. Engines that derive keys remotely
	// may leave it empty and recover from Words instead.
	Key []byte
}

type GenerateRequest struct {
	Path             string
	Password         string
	Recovery         *Seed
	NonDeterministic bool
}

// Destination is a single payee of a transfer.
type Destination struct {
	Address string
	Amount  uint64
	// IntegratedPaymentID is set when Address is an integrated address.
	IntegratedPaymentID *[8]byte
}

type TransferRequest struct {
	Destinations  []Destination
	MixinCount    uint32
	UnlockTime    uint64
	FeeMultiplier uint64
	// Extra is the tx-extra blob, see AppendExtraNonce.
	Extra []byte
	// Trusted selects the node as the source of output-selection data.
	Trusted bool
}

// PendingTx is one constructed, unrelayed transaction.
type PendingTx struct {
	TxHash   string
	Amount   uint64
	Fee      uint64
	TxKey    string
	Blob     string
	Metadata string
}

type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionPending Direction = "pending"
	DirectionPool    Direction = "pool"
	DirectionFailed  Direction = "failed"
)

// TransferInfo is one entry of the wallet's transaction history.
type TransferInfo struct {
	Direction Direction
	TxHash    string
	Amount    uint64
	Fee       uint64
	// Height is 0 while the transfer is unconfirmed.
	Height        uint64
	Confirmations uint64
	Timestamp     time.Time
	PaymentID     string
}
