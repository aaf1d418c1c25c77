package relayer

import ledgererrors "vledger/core/errors"

var userMessages = map[ledgererrors.Kind]string{
	ledgererrors.KindBadNonce:               "already processed, refresh and retry",
	ledgererrors.KindAlreadyExists:          "already processed, refresh and retry",
	ledgererrors.KindExpired:                "expired, try again",
	ledgererrors.KindCommitmentMismatch:     "amount verification failed",
	ledgererrors.KindNotFound:               "account or request not found",
	ledgererrors.KindMalformedSignature:     "signature could not be read",
	ledgererrors.KindInvalidSignature:       "signature does not match the account owner",
	ledgererrors.KindInvalidCiphertextProof: "encrypted amount could not be verified",
	ledgererrors.KindNotOwner:               "not permitted for this account",
	ledgererrors.KindUnauthorized:           "not permitted",
	ledgererrors.KindSecretNotEnabled:       "secure transfers are not enabled for this account",
	ledgererrors.KindNoSecretSet:            "no secret configured for this account",
	ledgererrors.KindInvalidQuantity:        "quantity must be greater than zero",
	ledgererrors.KindFeeTooLow:              "priority fee too low",
	ledgererrors.KindNoSignerRegistered:     "no signer registered for this account",
	ledgererrors.KindNotRegistered:          "identity has no registered account",
	ledgererrors.KindSecretRequired:         "this account requires a secure transfer",
	ledgererrors.KindInvalidArgument:        "invalid request",
	ledgererrors.KindUnavailable:            "ledger temporarily unavailable, try again",
}

// UserMessage returns the stable user-facing text for kind.
func UserMessage(kind ledgererrors.Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return "request failed"
}
