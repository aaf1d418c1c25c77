package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// IdentityPrefix tags 20-byte owner identities.
	IdentityPrefix AddressPrefix = "vid"
	// VAddrPrefix tags 32-byte virtual ledger addresses.
	VAddrPrefix AddressPrefix = "vaddr"
)

// Address is a bech32-displayable byte string: a 20-byte identity or a 32-byte
// virtual address.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	switch prefix {
	case IdentityPrefix:
		if len(b) != common.AddressLength {
			return Address{}, fmt.Errorf("crypto: identity must be %d bytes, got %d", common.AddressLength, len(b))
		}
	case VAddrPrefix:
		if len(b) != 32 {
			return Address{}, fmt.Errorf("crypto: vaddr must be 32 bytes, got %d", len(b))
		}
	default:
		return Address{}, fmt.Errorf("crypto: unknown address prefix %q", prefix)
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is NewAddress for inputs already known to be well formed.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Identity returns the 20-byte owner identity controlled by the key.
func (k *PrivateKey) Identity() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func (k *PublicKey) Identity() common.Address {
	return crypto.PubkeyToAddress(*k.PublicKey)
}

// Address returns the bech32 form of the key's identity.
func (k *PublicKey) Address() Address {
	return MustNewAddress(IdentityPrefix, k.Identity().Bytes())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex encoded secp256k1 key with or without 0x.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(trim0x(s))
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// ParseIdentity accepts either a 0x-prefixed hex identity or its bech32 form.
func ParseIdentity(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	addr, err := DecodeAddress(s)
	if err != nil {
		return common.Address{}, err
	}
	if addr.Prefix() != IdentityPrefix {
		return common.Address{}, fmt.Errorf("crypto: expected %s prefix, got %s", IdentityPrefix, addr.Prefix())
	}
	return common.BytesToAddress(addr.bytes), nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
