package generator

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	DefaultAddressLength = 6
)

var ErrInvalidLength = errors.New("address length must be positive")

// Address returns a random base62 link address of the given length.
func Address(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", err
		}

		b[i] = base62Chars[n.Int64()]
	}

	return string(b), nil
}

// UniqueAddresses returns n distinct addresses, retrying on collision.
func UniqueAddresses(n, length int) ([]string, error) {
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		addr, err := Address(length)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}
