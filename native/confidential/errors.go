package confidential

import coreerrors "vledger/core/errors"

var (
	ErrAccountMissing     = coreerrors.New(coreerrors.KindNotFound, "confidential: account not found")
	ErrAccountExists      = coreerrors.New(coreerrors.KindAlreadyExists, "confidential: account already registered")
	ErrInvalidVAddr       = coreerrors.New(coreerrors.KindInvalidArgument, "confidential: vaddr must not be zero")
	ErrInvalidProof       = coreerrors.New(coreerrors.KindInvalidCiphertextProof, "confidential: ciphertext proof rejected")
	ErrNotOwner           = coreerrors.New(coreerrors.KindNotOwner, "confidential: caller is not the account owner")
	ErrUnauthorized       = coreerrors.New(coreerrors.KindUnauthorized, "confidential: caller is not an administrator")
	ErrSecretNotEnabled   = coreerrors.New(coreerrors.KindSecretNotEnabled, "confidential: secret not enabled")
	ErrNoSecretSet        = coreerrors.New(coreerrors.KindNoSecretSet, "confidential: no secret stored")
	ErrNoSignerRegistered = coreerrors.New(coreerrors.KindNoSignerRegistered, "confidential: account has no registered owner")
	ErrNotRegistered      = coreerrors.New(coreerrors.KindNotRegistered, "confidential: identity has no registered vaddr")
	ErrSecretRequired     = coreerrors.New(coreerrors.KindSecretRequired, "confidential: account requires the secure transfer flow")
	ErrInvalidQuantity    = coreerrors.New(coreerrors.KindInvalidQuantity, "confidential: quantity must be positive")
	ErrChallengeNotFound  = coreerrors.New(coreerrors.KindNotFound, "confidential: challenge not found")
	ErrChallengeExpired   = coreerrors.New(coreerrors.KindExpired, "confidential: challenge expired")
	ErrNonceRegression    = coreerrors.New(coreerrors.KindInvalidArgument, "confidential: nonce may only increase")
	ErrBlockNotFound      = coreerrors.New(coreerrors.KindNotFound, "confidential: block not found")
	ErrReceiptNotFound    = coreerrors.New(coreerrors.KindNotFound, "confidential: receipt not found")

	errNilState   = coreerrors.New(coreerrors.KindInternal, "confidential engine: state not configured")
	errNilBackend = coreerrors.New(coreerrors.KindInternal, "confidential engine: ciphertext backend not configured")
)
