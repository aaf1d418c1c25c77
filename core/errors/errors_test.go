package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	base := New(KindBadNonce, "ledger: nonce mismatch")
	wrapped := fmt.Errorf("apply transfer: %w", base)

	require.Equal(t, KindBadNonce, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindBadNonce))
	require.True(t, stderrors.Is(wrapped, base))
	require.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
	require.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("dial tcp: timeout")
	err := Wrap(KindUnavailable, "owner lookup", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "owner lookup: dial tcp: timeout", err.Error())
}

func TestParseKindRoundTrip(t *testing.T) {
	for kind := range kindNames {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		var decoded Kind
		require.NoError(t, decoded.UnmarshalText(text))
		require.Equal(t, kind, decoded)
	}
	_, ok := ParseKind("NoSuchKind")
	require.False(t, ok)
}
