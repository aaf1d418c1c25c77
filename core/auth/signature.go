package auth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Sign produces a 65-byte R||S||V signature over hash with V in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("auth: nil signing key")
	}
	sig, err := ethcrypto.Sign(hash[:], key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the identity that produced sig over hash. V may be 0/1
// or 27/28; high-S signatures are rejected.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	normalized := make([]byte, ethcrypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	v := normalized[64]
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrMalformedSignature
	}
	pub, err := ethcrypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// CheckSignature verifies that expected signed hash, distinguishing malformed
// input from a signer mismatch.
func CheckSignature(hash common.Hash, sig []byte, expected common.Address) error {
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return err
	}
	if expected == (common.Address{}) || signer != expected {
		return ErrInvalidSignature
	}
	return nil
}

// Verify reports whether expected signed hash. It never panics and treats every
// failure as false.
func Verify(hash common.Hash, sig []byte, expected common.Address) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return CheckSignature(hash, sig, expected) == nil
}
