package types

import (
	"github.com/ethereum/go-ethereum/common"

	"vledger/crypto/fhe"
)

// Account is the per-vaddr ledger record. Balance and Secret are ciphertext
// handles; the ledger never learns their values.
type Account struct {
	VAddr         VAddr          `json:"vaddr"`
	Owner         common.Address `json:"owner"`
	HasOwner      bool           `json:"hasOwner"`
	Balance       fhe.Handle     `json:"balance"`
	Nonce         uint64         `json:"nonce"`
	Secret        fhe.Handle     `json:"secret"`
	HasSecret     bool           `json:"hasSecret"`
	SecretEnabled bool           `json:"secretEnabled"`
	CreatedAt     uint64         `json:"createdAt"`
}

// Copy returns a detached copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// OwnedBy reports whether identity is the recorded owner.
func (a *Account) OwnedBy(identity common.Address) bool {
	return a != nil && a.HasOwner && a.Owner == identity
}
