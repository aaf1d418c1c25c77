package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vledger/crypto"
)

// VAddrLength is the size of a virtual address in bytes.
const VAddrLength = 32

var vaddrDomain = []byte("vledger/vaddr")

// VAddr identifies an account in the virtual ledger. It is independent of any
// on-chain address.
type VAddr [VAddrLength]byte

// DeriveVAddr computes the virtual address owned by identity for salt.
func DeriveVAddr(owner common.Address, salt [32]byte) VAddr {
	return VAddr(ethcrypto.Keccak256Hash(vaddrDomain, owner.Bytes(), salt[:]))
}

func (v VAddr) IsZero() bool { return v == VAddr{} }

func (v VAddr) Bytes() []byte { return append([]byte(nil), v[:]...) }

// Hex returns the lower-case 0x-prefixed encoding.
func (v VAddr) Hex() string { return "0x" + hex.EncodeToString(v[:]) }

func (v VAddr) String() string { return v.Hex() }

// Bech32 returns the human readable vaddr1... form.
func (v VAddr) Bech32() string {
	return crypto.MustNewAddress(crypto.VAddrPrefix, v[:]).String()
}

func (v VAddr) MarshalText() ([]byte, error) { return []byte(v.Hex()), nil }

func (v *VAddr) UnmarshalText(text []byte) error {
	parsed, err := ParseVAddr(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVAddr accepts a 0x hex string in either case or the bech32 form.
func ParseVAddr(s string) (VAddr, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(trimmed), string(crypto.VAddrPrefix)+"1") {
		addr, err := crypto.DecodeAddress(strings.ToLower(trimmed))
		if err != nil {
			return VAddr{}, err
		}
		var out VAddr
		copy(out[:], addr.Bytes())
		return out, nil
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return VAddr{}, fmt.Errorf("types: decode vaddr: %w", err)
	}
	if len(raw) != VAddrLength {
		return VAddr{}, fmt.Errorf("types: vaddr must be %d bytes, got %d", VAddrLength, len(raw))
	}
	var out VAddr
	copy(out[:], raw)
	return out, nil
}
