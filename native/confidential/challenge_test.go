package confidential

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "vledger/core/errors"
	"vledger/core/events"
	"vledger/core/types"
)

func (f *fixture) requestSecure(from, to party, amount uint64) common.Hash {
	f.t.Helper()
	intent, proof, sig := f.signed(from, to, amount, f.nonce(from.vaddr), f.now+60)
	id, err := f.engine.RequestSecureTransfer(to.id, intent, proof, sig)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) completeWith(id common.Hash, secret uint64) (common.Hash, error) {
	h, proof := f.backend.Encrypt(secret)
	return f.engine.CompleteSecureTransfer(id, h, proof)
}

func TestSecureTransferCorrectSecret(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)
	f.enableSecret(alice, 4242)

	id := f.requestSecure(alice, bob, 200)
	challenge, err := f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengePending, challenge.Status)
	require.Equal(t, uint64(testStart+300), challenge.ExpiresAt)
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))

	txID, err := f.completeWith(id, 4242)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txID)
	require.Equal(t, uint64(800), f.balance(alice.vaddr))
	require.Equal(t, uint64(700), f.balance(bob.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))

	challenge, err = f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengeCompleted, challenge.Status)
}

func TestSecureTransferWrongSecretIsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)
	f.enableSecret(alice, 4242)

	id := f.requestSecure(alice, bob, 200)
	before := len(f.events.Events())
	txID, err := f.completeWith(id, 1111)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txID)

	require.Equal(t, uint64(1000), f.balance(alice.vaddr))
	require.Equal(t, uint64(500), f.balance(bob.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))

	challenge, err := f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengeCompleted, challenge.Status)

	emitted := f.events.Events()[before:]
	require.Len(t, emitted, 2)
	require.Equal(t, events.TypeTransferApplied, emitted[0].EventType())
	require.Equal(t, events.TypeChallengeCompleted, emitted[1].EventType())
}

func TestPhaseANeverAdvancesNonce(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)
	f.enableSecret(alice, 7)

	ids := map[common.Hash]bool{}
	for i := 0; i < 4; i++ {
		id := f.requestSecure(alice, bob, 10)
		require.False(t, ids[id], "challenge ids must be unique")
		ids[id] = true
	}
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))
	require.Equal(t, uint64(1000), f.balance(alice.vaddr))
}

func TestCompletingSecondChallengeAfterFirstFailsBadNonce(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)
	f.enableSecret(alice, 7)

	first := f.requestSecure(alice, bob, 10)
	second := f.requestSecure(alice, bob, 20)

	_, err := f.completeWith(first, 7)
	require.NoError(t, err)
	_, err = f.completeWith(second, 7)
	requireKind(t, err, coreerrors.KindBadNonce)
	require.Equal(t, uint64(990), f.balance(alice.vaddr))

	challenge, err := f.engine.SecureTransferChallenge(second)
	require.NoError(t, err)
	require.Equal(t, types.ChallengePending, challenge.Status)
}

func TestSecureTransferRequestValidation(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)

	intent, proof, sig := f.signed(alice, bob, 1, 0, testStart+60)
	_, err := f.engine.RequestSecureTransfer(bob.id, intent, proof, sig)
	require.ErrorIs(t, err, ErrSecretNotEnabled)

	f.enableSecret(alice, 1)

	expired, proof, sig := f.signed(alice, bob, 1, 0, testStart)
	_, err = f.engine.RequestSecureTransfer(bob.id, expired, proof, sig)
	requireKind(t, err, coreerrors.KindExpired)

	intent, proof, sig = f.signed(alice, bob, 1, 0, testStart+60)
	tampered := intent
	tampered.Deadline++
	_, err = f.engine.RequestSecureTransfer(bob.id, tampered, proof, sig)
	requireKind(t, err, coreerrors.KindInvalidSignature)

	stale, proof, sig := f.signed(alice, bob, 1, 3, testStart+60)
	_, err = f.engine.RequestSecureTransfer(bob.id, stale, proof, sig)
	requireKind(t, err, coreerrors.KindBadNonce)
}

func TestChallengeLifecycle(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)
	f.enableSecret(alice, 9)

	_, err := f.engine.SecureTransferChallenge(common.HexToHash("0xdead"))
	requireKind(t, err, coreerrors.KindNotFound)
	requireKind(t, f.engine.CancelSecureTransfer(common.HexToHash("0xdead")), coreerrors.KindNotFound)

	cancelled := f.requestSecure(alice, bob, 10)
	require.NoError(t, f.engine.CancelSecureTransfer(cancelled))
	requireKind(t, f.engine.CancelSecureTransfer(cancelled), coreerrors.KindNotFound)
	_, err = f.completeWith(cancelled, 9)
	requireKind(t, err, coreerrors.KindNotFound)

	completed := f.requestSecure(alice, bob, 10)
	_, err = f.completeWith(completed, 9)
	require.NoError(t, err)
	requireKind(t, f.engine.CancelSecureTransfer(completed), coreerrors.KindNotFound)
	_, err = f.completeWith(completed, 9)
	requireKind(t, err, coreerrors.KindNotFound)
}

func TestChallengeLazyExpiry(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)
	f.enableSecret(alice, 9)

	id := f.requestSecure(alice, bob, 10)
	f.now += 300
	// Exactly at expiresAt the challenge is still open.
	stored, err := f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.False(t, stored.ExpiredAt(uint64(f.now)))

	f.now++
	stored, err = f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengePending, stored.Status, "reads return stale pending entries")

	_, err = f.completeWith(id, 9)
	require.ErrorIs(t, err, ErrChallengeExpired)
	require.Equal(t, uint64(1000), f.balance(alice.vaddr))
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))

	stored, err = f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengeExpired, stored.Status)
	require.Contains(t, f.events.Types(), events.TypeChallengeExpired)

	_, err = f.completeWith(id, 9)
	requireKind(t, err, coreerrors.KindNotFound)
}

func TestCancelAfterExpiryRecordsExpired(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)
	f.enableSecret(alice, 9)

	id := f.requestSecure(alice, bob, 10)
	f.now += 301
	requireKind(t, f.engine.CancelSecureTransfer(id), coreerrors.KindNotFound)

	stored, err := f.engine.SecureTransferChallenge(id)
	require.NoError(t, err)
	require.Equal(t, types.ChallengeExpired, stored.Status)
}

func TestSecureTransferEndToEndBothOutcomes(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)
	f.enableSecret(alice, 31337)

	right := f.requestSecure(alice, bob, 100)
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))
	_, err := f.completeWith(right, 31337)
	require.NoError(t, err)
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))
	require.Equal(t, uint64(900), f.balance(alice.vaddr))
	require.Equal(t, uint64(600), f.balance(bob.vaddr))

	wrong := f.requestSecure(alice, bob, 100)
	_, err = f.completeWith(wrong, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), f.nonce(alice.vaddr))
	require.Equal(t, uint64(900), f.balance(alice.vaddr))
	require.Equal(t, uint64(600), f.balance(bob.vaddr))
}
