package auth

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vledger/crypto/fhe"
)

var commitmentDomain = []byte("vledger/amount-commitment")

// Commit binds a ciphertext handle into a value that can be signed without
// revealing the amount.
func Commit(handle fhe.Handle) common.Hash {
	return ethcrypto.Keccak256Hash(commitmentDomain, handle[:])
}

// VerifyCommitment recomputes the commitment for handle and compares.
func VerifyCommitment(commitment common.Hash, handle fhe.Handle) bool {
	expected := Commit(handle)
	return bytes.Equal(expected[:], commitment[:])
}

// CheckCommitment is VerifyCommitment returning ErrCommitmentMismatch.
func CheckCommitment(commitment common.Hash, handle fhe.Handle) error {
	if !VerifyCommitment(commitment, handle) {
		return ErrCommitmentMismatch
	}
	return nil
}

// VerifyCommitmentHex compares hex encoded inputs. Either argument may use
// upper or lower case and an optional 0x prefix. Malformed input is a
// mismatch.
func VerifyCommitmentHex(commitmentHex, handleHex string) bool {
	commitment, ok := decodeHex32(commitmentHex)
	if !ok {
		return false
	}
	handle, ok := decodeHex32(handleHex)
	if !ok {
		return false
	}
	return VerifyCommitment(common.Hash(commitment), fhe.Handle(handle))
}

func decodeHex32(s string) ([32]byte, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.TrimPrefix(normalized, "0x")
	var out [32]byte
	if len(normalized) != 64 {
		return out, false
	}
	raw, err := hex.DecodeString(normalized)
	if err != nil {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}
