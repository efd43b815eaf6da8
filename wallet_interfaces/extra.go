package walletinterfaces

import "errors"

const (
	txExtraNonce                   = 0x02
	txExtraNonceMaxSize            = 255
	txExtraNoncePaymentID          = 0x00
	txExtraNonceEncryptedPaymentID = 0x01
	longPaymentIDSize              = 32
	shortPaymentIDSize             = 8
)

var ErrExtraNonceTooLong = errors.New("extra nonce is too long")

// LongPaymentIDNonce builds the extra nonce carrying a cleartext 32 byte
// payment id.
func LongPaymentIDNonce(id [32]byte) []byte {
	return append([]byte{txExtraNoncePaymentID}, id[:]...)
}

// ShortPaymentIDNonce builds the extra nonce carrying an 8 byte payment id
// that the engine encrypts for the recipient while constructing the tx.
func ShortPaymentIDNonce(id [8]byte) []byte {
	return append([]byte{txExtraNonceEncryptedPaymentID}, id[:]...)
}

// AppendExtraNonce appends a nonce field to a tx-extra blob.
func AppendExtraNonce(extra, nonce []byte) ([]byte, error) {
	if len(nonce) > txExtraNonceMaxSize {
		return nil, ErrExtraNonceTooLong
	}
	extra = append(extra, txExtraNonce, byte(len(nonce)))
	return append(extra, nonce...), nil
}

// ExtraPaymentID scans a tx-extra blob for a payment id nonce. Exactly one of
// long or short is non-nil when ok is true.
func ExtraPaymentID(extra []byte) (long []byte, short []byte, ok bool) {
	for i := 0; i+1 < len(extra); {
		if extra[i] != txExtraNonce {
			return nil, nil, false
		}
		size := int(extra[i+1])
		start := i + 2
		if start+size > len(extra) {
			return nil, nil, false
		}
		nonce := extra[start : start+size]
		switch {
		case size == 1+longPaymentIDSize && nonce[0] == txExtraNoncePaymentID:
			return append([]byte(nil), nonce[1:]...), nil, true
		case size == 1+shortPaymentIDSize && nonce[0] == txExtraNonceEncryptedPaymentID:
			return nil, append([]byte(nil), nonce[1:]...), true
		}
		i = start + size
	}
	return nil, nil, false
}
