package walletd

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// PublicKey and PrivateKey round-trip through YAML as base64 strings.
type PublicKey ed25519.PublicKey

func (k PublicKey) MarshalYAML() (interface{}, error) {
	if len(k) == 0 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

func (k *PublicKey) UnmarshalYAML(unmarshal func(interface{}) error) error {
	decoded, err := decodeKeyFromYAML(unmarshal, ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	*k = PublicKey(decoded)
	return nil
}

type PrivateKey ed25519.PrivateKey

func (k PrivateKey) MarshalYAML() (interface{}, error) {
	if len(k) == 0 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

func (k *PrivateKey) UnmarshalYAML(unmarshal func(interface{}) error) error {
	decoded, err := decodeKeyFromYAML(unmarshal, ed25519.PrivateKeySize)
	if err != nil {
		return err
	}
	*k = PrivateKey(decoded)
	return nil
}

func decodeKeyFromYAML(unmarshal func(interface{}) error, size int) ([]byte, error) {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("key must be a base64 string: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("key must be %d bytes, got %d", size, len(decoded))
	}
	return decoded, nil
}
