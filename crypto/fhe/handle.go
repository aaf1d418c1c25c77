// Package fhe describes the encrypted-value capability consumed by the ledger.
// Ciphertexts are referenced by opaque 32-byte handles; the ledger only ever
// combines handles through a Backend and never sees plaintext.
package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// HandleLength is the size of a ciphertext handle in bytes.
const HandleLength = 32

// Handle references a ciphertext held by a Backend.
type Handle [HandleLength]byte

var (
	// ErrUnknownHandle is returned for handles the backend never issued.
	ErrUnknownHandle = errors.New("fhe: unknown handle")
	// ErrInvalidProof is returned when an input proof does not attest the handle.
	ErrInvalidProof = errors.New("fhe: invalid input proof")
	// ErrTypeMismatch is returned when a boolean is used as an integer or vice versa.
	ErrTypeMismatch = errors.New("fhe: operand type mismatch")
)

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h == Handle{} }

// Bytes returns a copy of the handle bytes.
func (h Handle) Bytes() []byte { return append([]byte(nil), h[:]...) }

// Hex returns the lower-case 0x-prefixed encoding.
func (h Handle) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Handle) String() string { return h.Hex() }

// MarshalText encodes the handle as hex.
func (h Handle) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText accepts hex in either case, with or without 0x.
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle decodes a hex handle in either case, with or without 0x.
func ParseHandle(s string) (Handle, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Handle{}, fmt.Errorf("fhe: decode handle: %w", err)
	}
	if len(raw) != HandleLength {
		return Handle{}, fmt.Errorf("fhe: handle must be %d bytes, got %d", HandleLength, len(raw))
	}
	var h Handle
	copy(h[:], raw)
	return h, nil
}

// Backend performs homomorphic operations on ciphertext handles. Eq returns an
// encrypted boolean consumed only by Select.
type Backend interface {
	Add(a, b Handle) (Handle, error)
	Sub(a, b Handle) (Handle, error)
	Eq(a, b Handle) (Handle, error)
	Select(cond, ifTrue, ifFalse Handle) (Handle, error)
	// Validate checks a caller supplied input proof for h.
	Validate(h Handle, proof []byte) error
}

// Comparer is implemented by backends that can compare encrypted integers.
// The ledger uses it to turn overdrafts into zero-value transfers.
type Comparer interface {
	Le(a, b Handle) (Handle, error)
}

// Committer is implemented by backends that buffer ciphertexts in memory.
// The ledger calls Commit before it commits state that references them.
type Committer interface {
	Commit() error
}

// Zero returns an encryption of zero derived from h without any plaintext
// input.
func Zero(b Backend, h Handle) (Handle, error) {
	return b.Sub(h, h)
}
