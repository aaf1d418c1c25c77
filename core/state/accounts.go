package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/types"
)

// Account loads the ledger account at vaddr. A nil account with a nil error
// means the vaddr is unregistered.
func (m *Manager) Account(vaddr types.VAddr) (*types.Account, error) {
	var account types.Account
	ok, err := m.KVGet(prefixed(accountPrefix, vaddr[:]), &account)
	if err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", vaddr.Hex(), err)
	}
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// PutAccount stores account under its vaddr.
func (m *Manager) PutAccount(account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	if account.VAddr.IsZero() {
		return fmt.Errorf("state: account vaddr must not be zero")
	}
	return m.KVPut(prefixed(accountPrefix, account.VAddr[:]), account)
}

// IncrementAccountCount bumps the number of registered accounts.
func (m *Manager) IncrementAccountCount() (uint64, error) {
	return m.incrementCounter(accountCountKey)
}

// AccountCount returns the number of registered accounts.
func (m *Manager) AccountCount() (uint64, error) {
	return m.counter(accountCountKey)
}

// VAddrOf resolves the vaddr bound to an owner identity.
func (m *Manager) VAddrOf(owner common.Address) (types.VAddr, bool, error) {
	var vaddr types.VAddr
	ok, err := m.KVGet(prefixed(ownerIndexPrefix, owner.Bytes()), &vaddr)
	if err != nil {
		return types.VAddr{}, false, err
	}
	return vaddr, ok, nil
}

// BindOwner records vaddr as the default account of owner. Existing bindings
// are kept; the returned boolean reports whether a new binding was written.
func (m *Manager) BindOwner(owner common.Address, vaddr types.VAddr) (bool, error) {
	if _, ok, err := m.VAddrOf(owner); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := m.KVPut(prefixed(ownerIndexPrefix, owner.Bytes()), vaddr); err != nil {
		return false, err
	}
	return true, nil
}
