package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	ledgererrors "vledger/core/errors"
	"vledger/core/types"
	"vledger/crypto/fhe"
)

// Check names one pre-validation step.
type Check string

const (
	CheckNone       Check = ""
	CheckDeadline   Check = "deadline"
	CheckCommitment Check = "commitment"
	CheckSignature  Check = "signature"
	CheckQuantity   Check = "quantity"
	CheckFee        Check = "fee"
)

const defaultOwnerTimeout = 2 * time.Second

// Params is the submission under validation. Exactly one of Transfer or
// Payment is set. Quantity is only consulted for Transfer; payment requests
// carry their own signed quantity.
type Params struct {
	Transfer    *types.TransferIntent
	Payment     *types.PaymentRequest
	Quantity    uint64
	PriorityFee uint64
}

func (p Params) quantity() uint64 {
	if p.Payment != nil {
		return p.Payment.Quantity
	}
	return p.Quantity
}

// Result is the outcome of Validate. FailedCheck and Kind are empty when
// Valid is true.
type Result struct {
	Valid       bool              `json:"valid"`
	FailedCheck Check             `json:"failedCheck,omitempty"`
	Kind        ledgererrors.Kind `json:"kind,omitempty"`
	Details     string            `json:"details,omitempty"`
}

func fail(check Check, kind ledgererrors.Kind, details string) Result {
	return Result{FailedCheck: check, Kind: kind, Details: details}
}

// OwnerLookup reads the recorded owner of an account. It may be remote.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, vaddr types.VAddr) (common.Address, bool, error)
}

// Validator mirrors the ledger's deadline, commitment and signature checks so
// bad submissions are rejected before they cost a ledger call. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	domain       auth.Domain
	owners       OwnerLookup
	ownerTimeout time.Duration
	nowFn        func() time.Time
}

func NewValidator(domain auth.Domain, owners OwnerLookup, ownerTimeout time.Duration) *Validator {
	if ownerTimeout <= 0 {
		ownerTimeout = defaultOwnerTimeout
	}
	return &Validator{domain: domain, owners: owners, ownerTimeout: ownerTimeout, nowFn: time.Now}
}

// SetNowFunc overrides the clock. Intended for tests.
func (v *Validator) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	v.nowFn = now
}

// Validate runs deadline, commitment, signature, quantity and fee checks in
// that order and stops at the first failure. It never panics.
func (v *Validator) Validate(ctx context.Context, params Params, signature []byte, amountHandle fhe.Handle, minPriorityFee uint64) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = fail(CheckNone, ledgererrors.KindInternal, fmt.Sprintf("validator panic: %v", r))
		}
	}()

	var (
		deadline   uint64
		commitment common.Hash
		handle     fhe.Handle
	)
	switch {
	case params.Transfer != nil && params.Payment == nil:
		deadline = params.Transfer.Deadline
		commitment = params.Transfer.AmountCommitment
		handle = params.Transfer.AmountHandle
	case params.Payment != nil && params.Transfer == nil:
		deadline = params.Payment.Deadline
		commitment = params.Payment.AmountCommitment
		handle = params.Payment.AmountHandle
	default:
		return fail(CheckNone, ledgererrors.KindInvalidArgument, "exactly one of transfer or payment required")
	}

	now := v.nowFn().Unix()
	if now < 0 {
		now = 0
	}
	if err := auth.CheckDeadline(deadline, uint64(now)); err != nil {
		return fail(CheckDeadline, ledgererrors.KindOf(err), err.Error())
	}

	if handle != amountHandle {
		return fail(CheckCommitment, ledgererrors.KindCommitmentMismatch, "amount handle differs from the signed request")
	}
	if err := auth.CheckCommitment(commitment, amountHandle); err != nil {
		return fail(CheckCommitment, ledgererrors.KindOf(err), err.Error())
	}

	if res := v.checkSignature(ctx, params, signature); !res.Valid {
		return res
	}

	if params.quantity() == 0 {
		return fail(CheckQuantity, ledgererrors.KindInvalidQuantity, "quantity must be positive")
	}
	if params.PriorityFee < minPriorityFee {
		return fail(CheckFee, ledgererrors.KindFeeTooLow,
			fmt.Sprintf("priority fee %d below minimum %d", params.PriorityFee, minPriorityFee))
	}
	return Result{Valid: true}
}

func (v *Validator) checkSignature(ctx context.Context, params Params, signature []byte) Result {
	var (
		hash     common.Hash
		expected common.Address
	)
	if params.Payment != nil {
		hash = v.domain.PaymentHash(*params.Payment)
		expected = params.Payment.From
	} else {
		owner, res := v.lookupOwner(ctx, params.Transfer.From)
		if !res.Valid {
			return res
		}
		hash = v.domain.TransferHash(*params.Transfer)
		expected = owner
	}
	if err := auth.CheckSignature(hash, signature, expected); err != nil {
		return fail(CheckSignature, ledgererrors.KindOf(err), err.Error())
	}
	return Result{Valid: true}
}

// lookupOwner bounds the owner read by the validator timeout. Transport
// failures are reported as Unavailable so they are never mistaken for a bad
// signature.
func (v *Validator) lookupOwner(ctx context.Context, vaddr types.VAddr) (common.Address, Result) {
	if v.owners == nil {
		return common.Address{}, fail(CheckSignature, ledgererrors.KindUnavailable, "owner lookup not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	lookupCtx, cancel := context.WithTimeout(ctx, v.ownerTimeout)
	defer cancel()
	owner, ok, err := v.owners.OwnerOf(lookupCtx, vaddr)
	switch {
	case err != nil && ledgererrors.IsKind(err, ledgererrors.KindNotFound):
		return common.Address{}, fail(CheckSignature, ledgererrors.KindNoSignerRegistered, "account not registered")
	case err != nil:
		return common.Address{}, fail(CheckSignature, ledgererrors.KindUnavailable, fmt.Sprintf("owner lookup: %v", err))
	case !ok:
		return common.Address{}, fail(CheckSignature, ledgererrors.KindNoSignerRegistered, "account has no registered owner")
	}
	return owner, Result{Valid: true}
}
