// Package errors defines the closed set of failure kinds reported by the
// ledger. Every error surfaced by the ledger, the RPC layer and the relayer
// carries exactly one Kind which callers inspect with KindOf; message text is
// never matched on.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a ledger failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindBadNonce
	KindExpired
	KindMalformedSignature
	KindInvalidSignature
	KindCommitmentMismatch
	KindInvalidCiphertextProof
	KindNotOwner
	KindUnauthorized
	KindSecretNotEnabled
	KindNoSecretSet
	KindInvalidQuantity
	KindFeeTooLow
	KindNoSignerRegistered
	KindNotRegistered
	KindSecretRequired
	KindInvalidArgument
	KindUnavailable
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindNotFound:               "NotFound",
	KindAlreadyExists:          "AlreadyExists",
	KindBadNonce:               "BadNonce",
	KindExpired:                "Expired",
	KindMalformedSignature:     "MalformedSignature",
	KindInvalidSignature:       "InvalidSignature",
	KindCommitmentMismatch:     "CommitmentMismatch",
	KindInvalidCiphertextProof: "InvalidCiphertextProof",
	KindNotOwner:               "NotOwner",
	KindUnauthorized:           "Unauthorized",
	KindSecretNotEnabled:       "SecretNotEnabled",
	KindNoSecretSet:            "NoSecretSet",
	KindInvalidQuantity:        "InvalidQuantity",
	KindFeeTooLow:              "FeeTooLow",
	KindNoSignerRegistered:     "NoSignerRegistered",
	KindNotRegistered:          "NotRegistered",
	KindSecretRequired:         "SecretRequired",
	KindInvalidArgument:        "InvalidArgument",
	KindUnavailable:            "Unavailable",
	KindInternal:               "Internal",
}

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("errors: unknown kind %q", string(text))
	}
	*k = parsed
	return nil
}

// ParseKind resolves a wire name back into a Kind.
func ParseKind(name string) (Kind, bool) {
	trimmed := strings.TrimSpace(name)
	for kind, candidate := range kindNames {
		if strings.EqualFold(candidate, trimmed) {
			return kind, true
		}
	}
	return KindUnknown, false
}

// Error is a ledger failure tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with kind, keeping it available through errors.Unwrap.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind and message. It lets
// sentinel values match after being re-wrapped with extra context.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind && e.Msg == other.Msg
}

// KindOf returns the kind of the first *Error in err's chain. Untagged errors
// report KindInternal and nil reports KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var tagged *Error
	if stderrors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Is and As re-export the standard helpers so callers importing this package
// under the name errors keep access to them.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
