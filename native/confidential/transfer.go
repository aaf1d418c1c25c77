package confidential

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vledger/core/auth"
	"vledger/core/events"
	"vledger/core/types"
	"vledger/crypto/fhe"
)

// ApplyTransfer moves amount from one vaddr to another on behalf of the
// owner of from. No signature is involved; caller is the authenticated
// identity submitting the call.
func (e *Engine) ApplyTransfer(caller common.Address, from, to types.VAddr, amount fhe.Handle, proof []byte, expectedNonce uint64) (common.Hash, error) {
	var txID common.Hash
	err := e.atomically(func() error {
		source, err := e.loadAccount(from)
		if err != nil {
			return err
		}
		if !source.OwnedBy(caller) {
			return ErrNotOwner
		}
		txID, err = e.execute(source, to, amount, proof, expectedNonce, types.TransferDirect)
		return err
	})
	return txID, err
}

// ApplySignedTransfer executes a transfer authorized by the owner's signature
// over intent. Accounts with the secret enabled must use
// RequestSecureTransfer instead.
func (e *Engine) ApplySignedTransfer(intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	var txID common.Hash
	err := e.atomically(func() error {
		var err error
		txID, err = e.applySigned(intent, proof, signature)
		return err
	})
	return txID, err
}

func (e *Engine) applySigned(intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	source, err := e.authorizeIntent(intent, signature)
	if err != nil {
		return common.Hash{}, err
	}
	if source.SecretEnabled {
		return common.Hash{}, ErrSecretRequired
	}
	return e.execute(source, intent.To, intent.AmountHandle, proof, intent.Nonce, types.TransferSigned)
}

// authorizeIntent runs the deadline, commitment and signature checks shared
// by the signed and secure paths and returns the source account.
func (e *Engine) authorizeIntent(intent types.TransferIntent, signature []byte) (*types.Account, error) {
	if err := auth.CheckDeadline(intent.Deadline, e.now()); err != nil {
		return nil, err
	}
	if err := auth.CheckCommitment(intent.AmountCommitment, intent.AmountHandle); err != nil {
		return nil, err
	}
	source, err := e.loadAccount(intent.From)
	if err != nil {
		return nil, err
	}
	if err := e.checkSigner(source, e.domain.TransferHash(intent), signature); err != nil {
		return nil, err
	}
	return source, nil
}

func (e *Engine) checkSigner(source *types.Account, hash common.Hash, signature []byte) error {
	if !source.HasOwner {
		return ErrNoSignerRegistered
	}
	return auth.CheckSignature(hash, signature, source.Owner)
}

// RequestPaySigned executes an identity-addressed payment. Both identities
// must have a bound vaddr.
func (e *Engine) RequestPaySigned(req types.PaymentRequest, proof, signature []byte) (common.Hash, error) {
	var txID common.Hash
	err := e.atomically(func() error {
		if err := auth.CheckDeadline(req.Deadline, e.now()); err != nil {
			return err
		}
		if err := auth.CheckCommitment(req.AmountCommitment, req.AmountHandle); err != nil {
			return err
		}
		if req.Quantity == 0 {
			return ErrInvalidQuantity
		}
		from, err := e.boundVAddr(req.From)
		if err != nil {
			return err
		}
		to, err := e.boundVAddr(req.To)
		if err != nil {
			return err
		}
		if err := auth.CheckSignature(e.domain.PaymentHash(req), signature, req.From); err != nil {
			return err
		}
		source, err := e.loadAccount(from)
		if err != nil {
			return err
		}
		if source.SecretEnabled {
			return ErrSecretRequired
		}
		txID, err = e.execute(source, to, req.AmountHandle, proof, req.Nonce, types.TransferPayment)
		return err
	})
	return txID, err
}

func (e *Engine) boundVAddr(identity common.Address) (types.VAddr, error) {
	vaddr, ok, err := e.state.VAddrOf(identity)
	if err != nil {
		return types.VAddr{}, err
	}
	if !ok {
		return types.VAddr{}, fmt.Errorf("%w: %s", ErrNotRegistered, identity.Hex())
	}
	return vaddr, nil
}

// execute runs the common tail of every transfer path: recipient lookup,
// nonce check, proof validation, ciphertext debit and credit, nonce and
// sequence advance, receipt and event.
func (e *Engine) execute(source *types.Account, to types.VAddr, amount fhe.Handle, proof []byte, expectedNonce uint64, kind types.TransferKind) (common.Hash, error) {
	recipient := source
	if to != source.VAddr {
		var err error
		if recipient, err = e.loadAccount(to); err != nil {
			return common.Hash{}, err
		}
	}
	if err := auth.CheckNonce(expectedNonce, source.Nonce); err != nil {
		return common.Hash{}, err
	}
	if err := e.validateProof(amount, proof); err != nil {
		return common.Hash{}, err
	}
	return e.settle(source, recipient, amount, kind)
}

// settle moves amount between two loaded accounts and advances the nonce of
// source. When the backend can compare ciphertexts an overdraft is turned
// into a zero-value transfer instead of wrapping the balance.
func (e *Engine) settle(source, recipient *types.Account, amount fhe.Handle, kind types.TransferKind) (common.Hash, error) {
	moved, err := e.clampToBalance(amount, source.Balance)
	if err != nil {
		return common.Hash{}, err
	}
	debited, err := e.backend.Sub(source.Balance, moved)
	if err != nil {
		return common.Hash{}, fmt.Errorf("confidential: debit: %w", err)
	}
	source.Balance = debited
	credited, err := e.backend.Add(recipient.Balance, moved)
	if err != nil {
		return common.Hash{}, fmt.Errorf("confidential: credit: %w", err)
	}
	recipient.Balance = credited

	nonce := source.Nonce
	source.Nonce++
	if err := e.state.PutAccount(source); err != nil {
		return common.Hash{}, err
	}
	if recipient != source {
		if err := e.state.PutAccount(recipient); err != nil {
			return common.Hash{}, err
		}
	}

	now := e.now()
	sequence, err := e.state.AdvanceSequence(now)
	if err != nil {
		return common.Hash{}, err
	}
	receipt := &types.Receipt{
		TxID:      transferID(source.VAddr, recipient.VAddr, nonce, sequence),
		From:      source.VAddr,
		To:        recipient.VAddr,
		Nonce:     nonce,
		Sequence:  sequence,
		Kind:      kind,
		Timestamp: now,
	}
	if err := e.state.PutReceipt(receipt); err != nil {
		return common.Hash{}, err
	}
	e.queue(events.TransferApplied{Receipt: *receipt})
	return receipt.TxID, nil
}

func (e *Engine) clampToBalance(amount, balance fhe.Handle) (fhe.Handle, error) {
	cmp, ok := e.backend.(fhe.Comparer)
	if !ok {
		return amount, nil
	}
	covered, err := cmp.Le(amount, balance)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("confidential: compare: %w", err)
	}
	zero, err := fhe.Zero(e.backend, amount)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("confidential: zero: %w", err)
	}
	return e.backend.Select(covered, amount, zero)
}

func transferID(from, to types.VAddr, nonce, sequence uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], nonce)
	binary.BigEndian.PutUint64(buf[8:], sequence)
	return ethcrypto.Keccak256Hash(from[:], to[:], buf[:])
}

// Receipt returns the receipt of a committed transfer.
func (e *Engine) Receipt(txID common.Hash) (*types.Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	receipt, err := e.state.Receipt(txID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txID.Hex())
	}
	return receipt, nil
}
