package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/types"
)

const (
	TypeAccountRegistered  = "ledger.account.registered"
	TypeSecretSet          = "ledger.secret.set"
	TypeSecretToggled      = "ledger.secret.toggled"
	TypeFaucetCredited     = "ledger.faucet.credited"
	TypeNonceOverridden    = "ledger.nonce.overridden"
	TypeTransferApplied    = "ledger.transfer.applied"
	TypeChallengeRequested = "ledger.challenge.requested"
	TypeChallengeCompleted = "ledger.challenge.completed"
	TypeChallengeCancelled = "ledger.challenge.cancelled"
	TypeChallengeExpired   = "ledger.challenge.expired"
	TypeBlockCreated       = "ledger.block.created"
	TypeCommitmentUpdated  = "ledger.commitment.updated"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

type AccountRegistered struct {
	VAddr    types.VAddr
	Owner    common.Address
	HasOwner bool
}

func (AccountRegistered) EventType() string { return TypeAccountRegistered }

func (e AccountRegistered) Event() *Envelope {
	attrs := map[string]string{"vaddr": e.VAddr.Hex()}
	if e.HasOwner {
		attrs["owner"] = e.Owner.Hex()
	}
	return &Envelope{Type: TypeAccountRegistered, Attributes: attrs}
}

type SecretSet struct {
	VAddr types.VAddr
}

func (SecretSet) EventType() string { return TypeSecretSet }

func (e SecretSet) Event() *Envelope {
	return &Envelope{Type: TypeSecretSet, Attributes: map[string]string{"vaddr": e.VAddr.Hex()}}
}

type SecretToggled struct {
	VAddr   types.VAddr
	Enabled bool
}

func (SecretToggled) EventType() string { return TypeSecretToggled }

func (e SecretToggled) Event() *Envelope {
	return &Envelope{
		Type: TypeSecretToggled,
		Attributes: map[string]string{
			"vaddr":   e.VAddr.Hex(),
			"enabled": strconv.FormatBool(e.Enabled),
		},
	}
}

type FaucetCredited struct {
	VAddr  types.VAddr
	Amount common.Hash
	Admin  common.Address
}

func (FaucetCredited) EventType() string { return TypeFaucetCredited }

func (e FaucetCredited) Event() *Envelope {
	return &Envelope{
		Type: TypeFaucetCredited,
		Attributes: map[string]string{
			"vaddr":  e.VAddr.Hex(),
			"amount": e.Amount.Hex(),
			"admin":  e.Admin.Hex(),
		},
	}
}

type NonceOverridden struct {
	VAddr    types.VAddr
	Previous uint64
	Nonce    uint64
	Admin    common.Address
}

func (NonceOverridden) EventType() string { return TypeNonceOverridden }

func (e NonceOverridden) Event() *Envelope {
	return &Envelope{
		Type: TypeNonceOverridden,
		Attributes: map[string]string{
			"vaddr":    e.VAddr.Hex(),
			"previous": u64(e.Previous),
			"nonce":    u64(e.Nonce),
			"admin":    e.Admin.Hex(),
		},
	}
}

// TransferApplied carries no amount information; only handles move.
type TransferApplied struct {
	Receipt types.Receipt
}

func (TransferApplied) EventType() string { return TypeTransferApplied }

func (e TransferApplied) Event() *Envelope {
	r := e.Receipt
	return &Envelope{
		Type: TypeTransferApplied,
		Attributes: map[string]string{
			"txId":      r.TxID.Hex(),
			"from":      r.From.Hex(),
			"to":        r.To.Hex(),
			"nonce":     u64(r.Nonce),
			"sequence":  u64(r.Sequence),
			"kind":      string(r.Kind),
			"timestamp": u64(r.Timestamp),
		},
	}
}

type ChallengeRequested struct {
	Challenge types.Challenge
}

func (ChallengeRequested) EventType() string { return TypeChallengeRequested }

func (e ChallengeRequested) Event() *Envelope {
	c := e.Challenge
	return &Envelope{
		Type: TypeChallengeRequested,
		Attributes: map[string]string{
			"id":        c.ID.Hex(),
			"from":      c.From.Hex(),
			"to":        c.To.Hex(),
			"requester": c.Requester.Hex(),
			"expiresAt": u64(c.ExpiresAt),
		},
	}
}

// ChallengeCompleted is identical whether or not the secret matched.
type ChallengeCompleted struct {
	ID   common.Hash
	TxID common.Hash
}

func (ChallengeCompleted) EventType() string { return TypeChallengeCompleted }

func (e ChallengeCompleted) Event() *Envelope {
	return &Envelope{
		Type:       TypeChallengeCompleted,
		Attributes: map[string]string{"id": e.ID.Hex(), "txId": e.TxID.Hex()},
	}
}

type ChallengeCancelled struct {
	ID common.Hash
}

func (ChallengeCancelled) EventType() string { return TypeChallengeCancelled }

func (e ChallengeCancelled) Event() *Envelope {
	return &Envelope{Type: TypeChallengeCancelled, Attributes: map[string]string{"id": e.ID.Hex()}}
}

type ChallengeExpired struct {
	ID        common.Hash
	ExpiresAt uint64
}

func (ChallengeExpired) EventType() string { return TypeChallengeExpired }

func (e ChallengeExpired) Event() *Envelope {
	return &Envelope{
		Type:       TypeChallengeExpired,
		Attributes: map[string]string{"id": e.ID.Hex(), "expiresAt": u64(e.ExpiresAt)},
	}
}

type BlockCreated struct {
	Block types.Block
}

func (BlockCreated) EventType() string { return TypeBlockCreated }

func (e BlockCreated) Event() *Envelope {
	b := e.Block
	return &Envelope{
		Type: TypeBlockCreated,
		Attributes: map[string]string{
			"number":          u64(b.Number),
			"stateCommitment": b.StateCommitment.Hex(),
			"ledgerRoot":      b.LedgerRoot.Hex(),
			"timestamp":       u64(b.Timestamp),
		},
	}
}

type CommitmentUpdated struct {
	Commitment common.Hash
	Counter    uint64
}

func (CommitmentUpdated) EventType() string { return TypeCommitmentUpdated }

func (e CommitmentUpdated) Event() *Envelope {
	return &Envelope{
		Type: TypeCommitmentUpdated,
		Attributes: map[string]string{
			"stateCommitment": e.Commitment.Hex(),
			"counter":         u64(e.Counter),
		},
	}
}
