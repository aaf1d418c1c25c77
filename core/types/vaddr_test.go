package types

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDeriveVAddrUniquePerSalt(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other := common.HexToAddress("0x00000000000000000000000000000000000000a2")

	a := DeriveVAddr(owner, [32]byte{1})
	require.Equal(t, a, DeriveVAddr(owner, [32]byte{1}))
	require.NotEqual(t, a, DeriveVAddr(owner, [32]byte{2}))
	require.NotEqual(t, a, DeriveVAddr(other, [32]byte{1}))
}

func TestParseVAddrForms(t *testing.T) {
	v := DeriveVAddr(common.HexToAddress("0x01"), [32]byte{})

	fromHex, err := ParseVAddr(strings.ToUpper(v.Hex()[2:]))
	require.NoError(t, err)
	require.Equal(t, v, fromHex)

	fromBech, err := ParseVAddr(v.Bech32())
	require.NoError(t, err)
	require.Equal(t, v, fromBech)

	_, err = ParseVAddr("0xabcd")
	require.Error(t, err)
}

func TestChallengeStatusTerminal(t *testing.T) {
	require.False(t, ChallengePending.Terminal())
	for _, s := range []ChallengeStatus{ChallengeCompleted, ChallengeCancelled, ChallengeExpired} {
		require.True(t, s.Terminal(), s.String())
	}
	require.False(t, ChallengeStatus(0).Valid())

	c := &Challenge{ExpiresAt: 100}
	require.False(t, c.ExpiredAt(100))
	require.True(t, c.ExpiredAt(101))
}
