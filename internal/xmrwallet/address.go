package xmrwallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/crypto/sha3"
)

type Network int

const (
	Mainnet Network = iota
	Testnet
	Stagenet
)

func (n Network) String() string {
	switch n {
	case Testnet:
		return "testnet"
	case Stagenet:
		return "stagenet"
	default:
		return "mainnet"
	}
}

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "stagenet":
		return Stagenet, nil
	}
	return Mainnet, fmt.Errorf("unknown network %q", s)
}

type AddressKind int

const (
	AddressStandard AddressKind = iota
	AddressIntegrated
	AddressSubaddress
)

// Address is a decoded public address.
type Address struct {
	Network  Network
	Kind     AddressKind
	SpendKey [32]byte
	ViewKey  [32]byte
	// PaymentID is only meaningful for integrated addresses.
	PaymentID [8]byte
}

func (a Address) Integrated() bool {
	return a.Kind == AddressIntegrated
}

type addressPrefix struct {
	network Network
	kind    AddressKind
}

var addressTags = map[uint64]addressPrefix{
	18: {Mainnet, AddressStandard},
	19: {Mainnet, AddressIntegrated},
	42: {Mainnet, AddressSubaddress},
	53: {Testnet, AddressStandard},
	54: {Testnet, AddressIntegrated},
	63: {Testnet, AddressSubaddress},
	24: {Stagenet, AddressStandard},
	25: {Stagenet, AddressIntegrated},
	36: {Stagenet, AddressSubaddress},
}

const (
	addressKeysSize     = 64
	addressChecksumSize = 4
)

var (
	errAddressChecksum = errors.New("address checksum mismatch")
	errAddressTag      = errors.New("unknown address tag")
	errAddressSize     = errors.New("address has invalid length")
)

// ParseAddress decodes s and checks that it belongs to network.
func ParseAddress(s string, network Network) (Address, error) {
	raw, err := base58Decode(s)
	if err != nil {
		return Address{}, err
	}
	if len(raw) <= addressChecksumSize {
		return Address{}, errAddressSize
	}
	payload, checksum := raw[:len(raw)-addressChecksumSize], raw[len(raw)-addressChecksumSize:]
	if !bytes.Equal(keccak256(payload)[:addressChecksumSize], checksum) {
		return Address{}, errAddressChecksum
	}

	tag, n := binary.Uvarint(payload)
	if n <= 0 {
		return Address{}, errAddressTag
	}
	prefix, ok := addressTags[tag]
	if !ok {
		return Address{}, errAddressTag
	}
	if prefix.network != network {
		return Address{}, fmt.Errorf("address is for %s, wallet is on %s", prefix.network, network)
	}

	body := payload[n:]
	want := addressKeysSize
	if prefix.kind == AddressIntegrated {
		want += 8
	}
	if len(body) != want {
		return Address{}, errAddressSize
	}

	addr := Address{Network: prefix.network, Kind: prefix.kind}
	copy(addr.SpendKey[:], body[:32])
	copy(addr.ViewKey[:], body[32:64])
	if prefix.kind == AddressIntegrated {
		copy(addr.PaymentID[:], body[64:])
	}
	return addr, nil
}

func (a Address) String() string {
	var tag uint64
	for t, p := range addressTags {
		if p.network == a.Network && p.kind == a.Kind {
			tag = t
			break
		}
	}
	payload := binary.AppendUvarint(nil, tag)
	payload = append(payload, a.SpendKey[:]...)
	payload = append(payload, a.ViewKey[:]...)
	if a.Kind == AddressIntegrated {
		payload = append(payload, a.PaymentID[:]...)
	}
	payload = append(payload, keccak256(payload)[:addressChecksumSize]...)
	return base58Encode(payload)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Monero base58 works on 8 byte blocks, each encoded into a fixed number of
// characters so that the output length depends only on the input length.
const (
	base58Alphabet        = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	base58FullBlock       = 8
	base58FullEncodedSize = 11
)

var base58EncodedSizes = [base58FullBlock + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var errBase58 = errors.New("invalid base58 string")

func base58Encode(data []byte) string {
	var out []byte
	for len(data) > 0 {
		n := min(len(data), base58FullBlock)
		out = append(out, base58EncodeBlock(data[:n])...)
		data = data[n:]
	}
	return string(out)
}

func base58EncodeBlock(block []byte) []byte {
	var num uint64
	for _, b := range block {
		num = num<<8 | uint64(b)
	}
	out := bytes.Repeat([]byte{base58Alphabet[0]}, base58EncodedSizes[len(block)])
	for i := len(out) - 1; num > 0; i-- {
		out[i] = base58Alphabet[num%58]
		num /= 58
	}
	return out
}

func base58Decode(s string) ([]byte, error) {
	var out []byte
	for len(s) > 0 {
		n := min(len(s), base58FullEncodedSize)
		block, err := base58DecodeBlock(s[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		s = s[n:]
	}
	return out, nil
}

func base58DecodeBlock(s string) ([]byte, error) {
	size := -1
	for i, encoded := range base58EncodedSizes {
		if encoded == len(s) {
			size = i
			break
		}
	}
	if size <= 0 {
		return nil, errBase58
	}

	var num uint64
	order := uint64(1)
	for i := len(s) - 1; i >= 0; i-- {
		digit := strings.IndexByte(base58Alphabet, s[i])
		if digit < 0 {
			return nil, errBase58
		}
		hi, lo := bits.Mul64(order, uint64(digit))
		if hi != 0 {
			return nil, errBase58
		}
		var carry uint64
		num, carry = bits.Add64(num, lo, 0)
		if carry != 0 {
			return nil, errBase58
		}
		order *= 58
	}
	if size < base58FullBlock && num >= uint64(1)<<(8*size) {
		return nil, errBase58
	}

	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(num)
		num >>= 8
	}
	return out, nil
}
