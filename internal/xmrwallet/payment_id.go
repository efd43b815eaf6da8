package xmrwallet

import (
	"crypto/rand"
	"encoding/hex"

	walletinterfaces "github.com/kaigoh/xmrwallet/wallet_interfaces"
)

type PaymentIDKind int

const (
	PaymentIDLong PaymentIDKind = iota + 1
	PaymentIDShort
)

const (
	longPaymentIDHexLen  = 64
	shortPaymentIDHexLen = 16
)

// parsePaymentID tries the 32 byte cleartext form first, then the 8 byte
// encrypted form, and returns the tx-extra nonce for whichever matched.
func parsePaymentID(s string) (PaymentIDKind, []byte, error) {
	if id, ok := parseLongPaymentID(s); ok {
		return PaymentIDLong, walletinterfaces.LongPaymentIDNonce(id), nil
	}
	if id, ok := parseShortPaymentID(s); ok {
		return PaymentIDShort, walletinterfaces.ShortPaymentIDNonce(id), nil
	}
	return 0, nil, ErrInvalidPaymentID
}

func parseLongPaymentID(s string) ([32]byte, bool) {
	var id [32]byte
	if len(s) != longPaymentIDHexLen {
		return id, false
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, false
	}
	return id, true
}

func parseShortPaymentID(s string) ([8]byte, bool) {
	var id [8]byte
	if len(s) != shortPaymentIDHexLen {
		return id, false
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, false
	}
	return id, true
}

// GenPaymentID returns a random short payment id as hex.
func GenPaymentID() string {
	id := randomShortPaymentID()
	return hex.EncodeToString(id[:])
}

// PaymentIDValid reports whether s is a short payment id.
func PaymentIDValid(s string) bool {
	_, ok := parseShortPaymentID(s)
	return ok
}

func randomShortPaymentID() [8]byte {
	var id [8]byte
	_, _ = rand.Read(id[:])
	return id
}
