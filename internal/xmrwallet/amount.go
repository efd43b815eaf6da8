package xmrwallet

import (
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayDecimalPoint is the number of decimal places of one XMR.
const DisplayDecimalPoint = 12

var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

var errAmountFormat = errors.New("amount is not a decimal number of XMR")

// FormatAmount renders atomic units as XMR with all twelve decimals.
func FormatAmount(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -DisplayDecimalPoint).StringFixed(DisplayDecimalPoint)
}

// ParseAmount converts an XMR display amount into atomic units. It rejects
// signs, exponents, more than twelve decimals and values above the uint64 range.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) || strings.Trim(s, ".") == "" {
		return 0, errAmountFormat
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errAmountFormat
	}
	atomic := d.Shift(DisplayDecimalPoint)
	if !atomic.IsInteger() {
		return 0, errAmountFormat
	}
	n := atomic.BigInt()
	if !n.IsUint64() {
		return 0, errAmountFormat
	}
	return n.Uint64(), nil
}

// AmountFromFloat converts a float XMR amount, returning 0 when it cannot be
// represented.
func AmountFromFloat(amount float64) uint64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0
	}
	v, err := ParseAmount(strconv.FormatFloat(amount, 'f', DisplayDecimalPoint, 64))
	if err != nil {
		return 0
	}
	return v
}

func MaximumAllowedAmount() uint64 {
	return math.MaxUint64
}
