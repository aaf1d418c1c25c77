package confidential

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/events"
	"vledger/core/types"
	"vledger/crypto/fhe"
)

// Register creates an account at vaddr with no owner binding. Such accounts
// can receive transfers but cannot send until an owned account is used.
// Only administrators may call it.
func (e *Engine) Register(caller common.Address, vaddr types.VAddr, balance fhe.Handle, proof []byte) (*types.Account, error) {
	var created *types.Account
	err := e.atomically(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		account, err := e.register(vaddr, balance, proof, common.Address{}, false)
		created = account
		return err
	})
	if err != nil {
		return nil, err
	}
	return created.Copy(), nil
}

// RegisterOwned derives the vaddr of caller for salt, records caller as its
// owner and binds the identity to the vaddr if it has no binding yet.
func (e *Engine) RegisterOwned(caller common.Address, salt [32]byte, balance fhe.Handle, proof []byte) (*types.Account, error) {
	if caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty caller", ErrNotOwner)
	}
	var created *types.Account
	err := e.atomically(func() error {
		account, err := e.register(types.DeriveVAddr(caller, salt), balance, proof, caller, true)
		if err != nil {
			return err
		}
		if _, err := e.state.BindOwner(caller, account.VAddr); err != nil {
			return err
		}
		created = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Copy(), nil
}

func (e *Engine) register(vaddr types.VAddr, balance fhe.Handle, proof []byte, owner common.Address, hasOwner bool) (*types.Account, error) {
	if vaddr.IsZero() {
		return nil, ErrInvalidVAddr
	}
	existing, err := e.state.Account(vaddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, vaddr.Hex())
	}
	if err := e.validateProof(balance, proof); err != nil {
		return nil, err
	}
	account := &types.Account{
		VAddr:     vaddr,
		Owner:     owner,
		HasOwner:  hasOwner,
		Balance:   balance,
		CreatedAt: e.now(),
	}
	if err := e.state.PutAccount(account); err != nil {
		return nil, err
	}
	if _, err := e.state.IncrementAccountCount(); err != nil {
		return nil, err
	}
	e.queue(events.AccountRegistered{VAddr: vaddr, Owner: owner, HasOwner: hasOwner})
	return account, nil
}

// Account returns a copy of the account at vaddr.
func (e *Engine) Account(vaddr types.VAddr) (*types.Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAccount(vaddr)
}

// Balance returns the encrypted balance handle of vaddr.
func (e *Engine) Balance(vaddr types.VAddr) (fhe.Handle, error) {
	account, err := e.Account(vaddr)
	if err != nil {
		return fhe.Handle{}, err
	}
	return account.Balance, nil
}

// Nonce returns the next nonce expected from vaddr.
func (e *Engine) Nonce(vaddr types.VAddr) (uint64, error) {
	account, err := e.Account(vaddr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

// OwnerOf returns the recorded owner of vaddr. The boolean is false for
// accounts registered without an owner.
func (e *Engine) OwnerOf(vaddr types.VAddr) (common.Address, bool, error) {
	account, err := e.Account(vaddr)
	if err != nil {
		return common.Address{}, false, err
	}
	return account.Owner, account.HasOwner, nil
}

// VAddrOf resolves the vaddr bound to identity.
func (e *Engine) VAddrOf(identity common.Address) (types.VAddr, error) {
	if err := e.ready(); err != nil {
		return types.VAddr{}, err
	}
	vaddr, ok, err := e.state.VAddrOf(identity)
	if err != nil {
		return types.VAddr{}, err
	}
	if !ok {
		return types.VAddr{}, fmt.Errorf("%w: %s", ErrNotRegistered, identity.Hex())
	}
	return vaddr, nil
}

func (e *Engine) ownedAccount(caller common.Address, vaddr types.VAddr) (*types.Account, error) {
	account, err := e.loadAccount(vaddr)
	if err != nil {
		return nil, err
	}
	if !account.OwnedBy(caller) {
		return nil, ErrNotOwner
	}
	return account, nil
}

// SetSecret stores secret as the second factor of vaddr. It does not enable
// the secure flow.
func (e *Engine) SetSecret(caller common.Address, vaddr types.VAddr, secret fhe.Handle, proof []byte) error {
	return e.atomically(func() error {
		account, err := e.ownedAccount(caller, vaddr)
		if err != nil {
			return err
		}
		if err := e.validateProof(secret, proof); err != nil {
			return err
		}
		account.Secret = secret
		account.HasSecret = true
		if err := e.state.PutAccount(account); err != nil {
			return err
		}
		e.queue(events.SecretSet{VAddr: vaddr})
		return nil
	})
}

// EnableSecret routes signed transfers from vaddr through the challenge flow.
func (e *Engine) EnableSecret(caller common.Address, vaddr types.VAddr) error {
	return e.toggleSecret(caller, vaddr, true)
}

// DisableSecret returns vaddr to single-signature transfers. The stored
// secret is kept.
func (e *Engine) DisableSecret(caller common.Address, vaddr types.VAddr) error {
	return e.toggleSecret(caller, vaddr, false)
}

func (e *Engine) toggleSecret(caller common.Address, vaddr types.VAddr, enabled bool) error {
	return e.atomically(func() error {
		account, err := e.ownedAccount(caller, vaddr)
		if err != nil {
			return err
		}
		if enabled && !account.HasSecret {
			return ErrNoSecretSet
		}
		if account.SecretEnabled == enabled {
			return nil
		}
		account.SecretEnabled = enabled
		if err := e.state.PutAccount(account); err != nil {
			return err
		}
		e.queue(events.SecretToggled{VAddr: vaddr, Enabled: enabled})
		return nil
	})
}

// CreditFaucet adds amount to the balance of vaddr without touching its
// nonce. Only administrators may call it.
func (e *Engine) CreditFaucet(caller common.Address, vaddr types.VAddr, amount fhe.Handle, proof []byte) error {
	return e.atomically(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		account, err := e.loadAccount(vaddr)
		if err != nil {
			return err
		}
		if err := e.validateProof(amount, proof); err != nil {
			return err
		}
		balance, err := e.backend.Add(account.Balance, amount)
		if err != nil {
			return fmt.Errorf("confidential: credit: %w", err)
		}
		account.Balance = balance
		if err := e.state.PutAccount(account); err != nil {
			return err
		}
		e.queue(events.FaucetCredited{VAddr: vaddr, Amount: common.Hash(amount), Admin: caller})
		return nil
	})
}

// SetNonce lets an administrator skip nonces of vaddr forward, invalidating
// every outstanding signature below nonce.
func (e *Engine) SetNonce(caller common.Address, vaddr types.VAddr, nonce uint64) error {
	return e.atomically(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		account, err := e.loadAccount(vaddr)
		if err != nil {
			return err
		}
		if nonce < account.Nonce {
			return fmt.Errorf("%w: current %d, requested %d", ErrNonceRegression, account.Nonce, nonce)
		}
		if nonce == account.Nonce {
			return nil
		}
		previous := account.Nonce
		account.Nonce = nonce
		if err := e.state.PutAccount(account); err != nil {
			return err
		}
		e.queue(events.NonceOverridden{VAddr: vaddr, Previous: previous, Nonce: nonce, Admin: caller})
		return nil
	})
}
