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

func challengeID(from, to types.VAddr, createdAt uint64, requester common.Address, seq uint64) common.Hash {
	var created, counter [8]byte
	binary.BigEndian.PutUint64(created[:], createdAt)
	binary.BigEndian.PutUint64(counter[:], seq)
	return ethcrypto.Keccak256Hash(from[:], to[:], created[:], requester.Bytes(), counter[:])
}

// RequestSecureTransfer opens a challenge for a signed transfer from an
// account with the secret enabled. The account nonce is checked but not
// consumed, so a leaked signature alone cannot burn nonces.
func (e *Engine) RequestSecureTransfer(requester common.Address, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	var id common.Hash
	err := e.atomically(func() error {
		source, err := e.loadAccount(intent.From)
		if err != nil {
			return err
		}
		if !source.SecretEnabled {
			return ErrSecretNotEnabled
		}
		if _, err := e.authorizeIntent(intent, signature); err != nil {
			return err
		}
		if _, err := e.loadAccount(intent.To); err != nil {
			return err
		}
		if err := auth.CheckNonce(intent.Nonce, source.Nonce); err != nil {
			return err
		}
		if err := e.validateProof(intent.AmountHandle, proof); err != nil {
			return err
		}
		seq, err := e.state.NextChallengeSeq()
		if err != nil {
			return err
		}
		now := e.now()
		challenge := &types.Challenge{
			ID:            challengeID(intent.From, intent.To, now, requester, seq),
			From:          intent.From,
			To:            intent.To,
			Requester:     requester,
			AmountHandle:  intent.AmountHandle,
			ExpectedNonce: intent.Nonce,
			CreatedAt:     now,
			ExpiresAt:     now + uint64(e.window.Seconds()),
			Status:        types.ChallengePending,
			UpdatedAt:     now,
		}
		if err := e.state.PutChallenge(challenge); err != nil {
			return err
		}
		e.queue(events.ChallengeRequested{Challenge: *challenge})
		id = challenge.ID
		return nil
	})
	return id, err
}

// openChallenge loads a pending challenge. Unknown and terminal challenges
// report ErrChallengeNotFound.
func (e *Engine) openChallenge(id common.Hash) (*types.Challenge, error) {
	challenge, err := e.state.Challenge(id)
	if err != nil {
		return nil, err
	}
	if challenge == nil || challenge.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, id.Hex())
	}
	return challenge, nil
}

func (e *Engine) markExpired(challenge *types.Challenge) error {
	return e.atomically(func() error {
		current, err := e.openChallenge(challenge.ID)
		if err != nil {
			return err
		}
		current.Status = types.ChallengeExpired
		current.UpdatedAt = e.now()
		if err := e.state.PutChallenge(current); err != nil {
			return err
		}
		e.queue(events.ChallengeExpired{ID: current.ID, ExpiresAt: current.ExpiresAt})
		return nil
	})
}

// CompleteSecureTransfer resolves a pending challenge with the supplied
// secret. The transfer always executes and consumes the nonce; when the
// secret does not match the stored one the moved amount is an encryption of
// zero. The caller cannot tell the two outcomes apart.
func (e *Engine) CompleteSecureTransfer(id common.Hash, secret fhe.Handle, proof []byte) (common.Hash, error) {
	var (
		txID    common.Hash
		expired *types.Challenge
	)
	err := e.atomically(func() error {
		challenge, err := e.openChallenge(id)
		if err != nil {
			return err
		}
		if challenge.ExpiredAt(e.now()) {
			expired = challenge
			return fmt.Errorf("%w: %s", ErrChallengeExpired, id.Hex())
		}
		if err := e.validateProof(secret, proof); err != nil {
			return err
		}
		source, err := e.loadAccount(challenge.From)
		if err != nil {
			return err
		}
		if err := auth.CheckNonce(challenge.ExpectedNonce, source.Nonce); err != nil {
			return err
		}
		recipient := source
		if challenge.To != source.VAddr {
			if recipient, err = e.loadAccount(challenge.To); err != nil {
				return err
			}
		}
		amount, err := e.gateOnSecret(secret, source.Secret, challenge.AmountHandle)
		if err != nil {
			return err
		}
		txID, err = e.settle(source, recipient, amount, types.TransferSecure)
		if err != nil {
			return err
		}
		challenge.Status = types.ChallengeCompleted
		challenge.UpdatedAt = e.now()
		if err := e.state.PutChallenge(challenge); err != nil {
			return err
		}
		e.queue(events.ChallengeCompleted{ID: challenge.ID, TxID: txID})
		return nil
	})
	if expired != nil {
		if markErr := e.markExpired(expired); markErr != nil {
			return common.Hash{}, markErr
		}
	}
	if err != nil {
		return common.Hash{}, err
	}
	return txID, nil
}

// gateOnSecret returns amount when supplied equals stored and an encryption
// of zero otherwise, without branching on the comparison.
func (e *Engine) gateOnSecret(supplied, stored, amount fhe.Handle) (fhe.Handle, error) {
	match, err := e.backend.Eq(supplied, stored)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("confidential: compare secret: %w", err)
	}
	zero, err := fhe.Zero(e.backend, amount)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("confidential: zero: %w", err)
	}
	gated, err := e.backend.Select(match, amount, zero)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("confidential: select: %w", err)
	}
	return gated, nil
}

// CancelSecureTransfer closes a pending challenge. Anyone may cancel since a
// cancellation cannot move funds. A challenge whose window already elapsed is
// recorded as expired and reported as not found.
func (e *Engine) CancelSecureTransfer(id common.Hash) error {
	var expired *types.Challenge
	err := e.atomically(func() error {
		challenge, err := e.openChallenge(id)
		if err != nil {
			return err
		}
		if challenge.ExpiredAt(e.now()) {
			expired = challenge
			return fmt.Errorf("%w: %s", ErrChallengeNotFound, id.Hex())
		}
		challenge.Status = types.ChallengeCancelled
		challenge.UpdatedAt = e.now()
		if err := e.state.PutChallenge(challenge); err != nil {
			return err
		}
		e.queue(events.ChallengeCancelled{ID: id})
		return nil
	})
	if expired != nil {
		if markErr := e.markExpired(expired); markErr != nil {
			return markErr
		}
	}
	return err
}

// SecureTransferChallenge returns the stored challenge. Pending challenges
// past their window are returned as stored; callers compare ExpiresAt with
// their own clock.
func (e *Engine) SecureTransferChallenge(id common.Hash) (*types.Challenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	challenge, err := e.state.Challenge(id)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, id.Hex())
	}
	return challenge, nil
}
