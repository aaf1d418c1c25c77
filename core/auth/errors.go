package auth

import coreerrors "vledger/core/errors"

var (
	ErrBadNonce           = coreerrors.New(coreerrors.KindBadNonce, "auth: nonce mismatch")
	ErrExpired            = coreerrors.New(coreerrors.KindExpired, "auth: deadline elapsed")
	ErrCommitmentMismatch = coreerrors.New(coreerrors.KindCommitmentMismatch, "auth: amount commitment does not match handle")
	ErrMalformedSignature = coreerrors.New(coreerrors.KindMalformedSignature, "auth: malformed signature")
	ErrInvalidSignature   = coreerrors.New(coreerrors.KindInvalidSignature, "auth: signer mismatch")
)
