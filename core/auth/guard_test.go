package auth

import (
	"errors"
	"testing"

	coreerrors "vledger/core/errors"
)

func TestCheckNonceExactMatch(t *testing.T) {
	if err := CheckNonce(4, 4); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	for _, submitted := range []uint64{3, 5} {
		err := CheckNonce(submitted, 4)
		if !errors.Is(err, ErrBadNonce) {
			t.Fatalf("nonce %d: expected ErrBadNonce, got %v", submitted, err)
		}
		if coreerrors.KindOf(err) != coreerrors.KindBadNonce {
			t.Fatalf("unexpected kind %s", coreerrors.KindOf(err))
		}
	}
}

func TestCheckDeadlineBoundary(t *testing.T) {
	const d = 1_700_000_000
	if err := CheckDeadline(d, d); !errors.Is(err, ErrExpired) {
		t.Fatalf("deadline == now must be expired, got %v", err)
	}
	if err := CheckDeadline(d, d-1); err != nil {
		t.Fatalf("deadline after now must pass, got %v", err)
	}
	if err := CheckDeadline(d, d+1); !errors.Is(err, ErrExpired) {
		t.Fatalf("deadline before now must be expired, got %v", err)
	}
}
