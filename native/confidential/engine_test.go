package confidential

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"vledger/core/auth"
	coreerrors "vledger/core/errors"
	"vledger/core/events"
	"vledger/core/state"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/storage"
	"vledger/storage/trie"
)

const testStart int64 = 1_700_000_000

type fixture struct {
	t       *testing.T
	engine  *Engine
	state   *state.Manager
	backend *fhe.Plaintext
	events  *events.Buffer
	now     int64
	admin   *ecdsa.PrivateKey
}

type party struct {
	key   *ecdsa.PrivateKey
	id    common.Address
	vaddr types.VAddr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	backend, err := fhe.NewPlaintext()
	require.NoError(t, err)
	admin, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	mgr := state.NewManager(tr)
	f := &fixture{t: t, state: mgr, backend: backend, events: &events.Buffer{}, now: testStart, admin: admin}
	f.engine = NewEngine(mgr, backend, Config{
		Domain:          auth.DefaultDomain(),
		ChallengeWindow: 5 * time.Minute,
		Admins:          []common.Address{ethcrypto.PubkeyToAddress(admin.PublicKey)},
	})
	f.engine.SetNowFunc(func() int64 { return f.now })
	f.engine.SetEmitter(f.events)
	return f
}

func (f *fixture) adminID() common.Address {
	return ethcrypto.PubkeyToAddress(f.admin.PublicKey)
}

func (f *fixture) register(balance uint64) party {
	f.t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(f.t, err)
	id := ethcrypto.PubkeyToAddress(key.PublicKey)
	h, proof := f.backend.Encrypt(balance)
	account, err := f.engine.RegisterOwned(id, [32]byte{}, h, proof)
	require.NoError(f.t, err)
	return party{key: key, id: id, vaddr: account.VAddr}
}

func (f *fixture) balance(vaddr types.VAddr) uint64 {
	f.t.Helper()
	h, err := f.engine.Balance(vaddr)
	require.NoError(f.t, err)
	v, err := f.backend.Decrypt(h)
	require.NoError(f.t, err)
	return v.Uint64()
}

func (f *fixture) nonce(vaddr types.VAddr) uint64 {
	f.t.Helper()
	n, err := f.engine.Nonce(vaddr)
	require.NoError(f.t, err)
	return n
}

// signed builds an intent for amount and signs it with from's key.
func (f *fixture) signed(from, to party, amount, nonce uint64, deadline int64) (types.TransferIntent, []byte, []byte) {
	f.t.Helper()
	h, proof := f.backend.Encrypt(amount)
	intent := types.TransferIntent{
		From:             from.vaddr,
		To:               to.vaddr,
		AmountHandle:     h,
		AmountCommitment: auth.Commit(h),
		Nonce:            nonce,
		Deadline:         uint64(deadline),
	}
	sig, err := auth.Sign(f.engine.Domain().TransferHash(intent), from.key)
	require.NoError(f.t, err)
	return intent, proof, sig
}

func (f *fixture) enableSecret(p party, secret uint64) {
	f.t.Helper()
	h, proof := f.backend.Encrypt(secret)
	require.NoError(f.t, f.engine.SetSecret(p.id, p.vaddr, h, proof))
	require.NoError(f.t, f.engine.EnableSecret(p.id, p.vaddr))
}

func requireKind(t *testing.T, err error, kind coreerrors.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, coreerrors.KindOf(err), "error: %v", err)
}

func TestDirectTransferMovesBalances(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)

	h, proof := f.backend.Encrypt(200)
	txID, err := f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, proof, 0)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txID)

	require.Equal(t, uint64(800), f.balance(alice.vaddr))
	require.Equal(t, uint64(700), f.balance(bob.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))
	require.Equal(t, uint64(0), f.nonce(bob.vaddr))

	receipt, err := f.engine.Receipt(txID)
	require.NoError(t, err)
	require.Equal(t, types.TransferDirect, receipt.Kind)
	require.Equal(t, uint64(0), receipt.Nonce)
	require.Equal(t, uint64(1), receipt.Sequence)

	seq, err := f.engine.Sequence()
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq.Counter)
	require.Contains(t, f.events.Types(), events.TypeTransferApplied)
}

func TestDirectTransferFailures(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(100), f.register(0)
	h, proof := f.backend.Encrypt(10)

	_, err := f.engine.ApplyTransfer(alice.id, types.VAddr{0x99}, bob.vaddr, h, proof, 0)
	require.ErrorIs(t, err, ErrAccountMissing)

	_, err = f.engine.ApplyTransfer(bob.id, alice.vaddr, bob.vaddr, h, proof, 0)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = f.engine.ApplyTransfer(alice.id, alice.vaddr, types.VAddr{0x99}, h, proof, 0)
	requireKind(t, err, coreerrors.KindNotFound)

	_, err = f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, proof, 1)
	requireKind(t, err, coreerrors.KindBadNonce)

	_, err = f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, []byte("bogus"), 0)
	requireKind(t, err, coreerrors.KindInvalidCiphertextProof)

	require.Equal(t, uint64(100), f.balance(alice.vaddr))
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))
	seq, err := f.engine.Sequence()
	require.NoError(t, err)
	require.Zero(t, seq.Counter)
}

func TestNonceAdvancesByExactlyOne(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)

	for i := uint64(0); i < 5; i++ {
		h, proof := f.backend.Encrypt(1)
		_, err := f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, proof, i)
		require.NoError(t, err)
		require.Equal(t, i+1, f.nonce(alice.vaddr))

		_, err = f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, proof, i)
		requireKind(t, err, coreerrors.KindBadNonce)
		require.Equal(t, i+1, f.nonce(alice.vaddr))
	}
	require.Equal(t, uint64(5), f.balance(bob.vaddr))
}

func TestOverdraftMovesZero(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(50), f.register(10)

	h, proof := f.backend.Encrypt(80)
	_, err := f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, proof, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(50), f.balance(alice.vaddr))
	require.Equal(t, uint64(10), f.balance(bob.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))
}

func TestSelfTransferKeepsBalance(t *testing.T) {
	f := newFixture(t)
	alice := f.register(300)

	h, proof := f.backend.Encrypt(120)
	_, err := f.engine.ApplyTransfer(alice.id, alice.vaddr, alice.vaddr, h, proof, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(300), f.balance(alice.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))
}

func TestSignedTransfer(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)

	intent, proof, sig := f.signed(alice, bob, 200, 0, testStart+60)
	_, err := f.engine.ApplySignedTransfer(intent, proof, sig)
	require.NoError(t, err)
	require.Equal(t, uint64(800), f.balance(alice.vaddr))
	require.Equal(t, uint64(700), f.balance(bob.vaddr))
	require.Equal(t, uint64(1), f.nonce(alice.vaddr))

	// Replaying the same authorization fails on the consumed nonce.
	_, err = f.engine.ApplySignedTransfer(intent, proof, sig)
	requireKind(t, err, coreerrors.KindBadNonce)
	require.Equal(t, uint64(800), f.balance(alice.vaddr))
}

func TestSignedTransferExpiredDeadline(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(500)

	intent, proof, sig := f.signed(alice, bob, 200, 0, testStart-1)
	_, err := f.engine.ApplySignedTransfer(intent, proof, sig)
	requireKind(t, err, coreerrors.KindExpired)

	intent, proof, sig = f.signed(alice, bob, 200, 0, testStart)
	_, err = f.engine.ApplySignedTransfer(intent, proof, sig)
	requireKind(t, err, coreerrors.KindExpired)

	require.Equal(t, uint64(1000), f.balance(alice.vaddr))
	require.Equal(t, uint64(500), f.balance(bob.vaddr))
	require.Equal(t, uint64(0), f.nonce(alice.vaddr))
}

func TestSignedTransferRejections(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)

	intent, proof, sig := f.signed(alice, bob, 5, 0, testStart+60)

	swapped := intent
	other, _ := f.backend.Encrypt(500)
	swapped.AmountHandle = other
	_, err := f.engine.ApplySignedTransfer(swapped, proof, sig)
	requireKind(t, err, coreerrors.KindCommitmentMismatch)

	redirected := intent
	redirected.To = alice.vaddr
	_, err = f.engine.ApplySignedTransfer(redirected, proof, sig)
	requireKind(t, err, coreerrors.KindInvalidSignature)

	_, err = f.engine.ApplySignedTransfer(intent, proof, sig[:10])
	requireKind(t, err, coreerrors.KindMalformedSignature)

	bobSig, err := auth.Sign(f.engine.Domain().TransferHash(intent), bob.key)
	require.NoError(t, err)
	_, err = f.engine.ApplySignedTransfer(intent, proof, bobSig)
	requireKind(t, err, coreerrors.KindInvalidSignature)

	// Accounts registered without an owner have no signer.
	h, p := f.backend.Encrypt(10)
	orphan := types.VAddr{0x42}
	_, err = f.engine.Register(f.adminID(), orphan, h, p)
	require.NoError(t, err)
	orphanIntent := intent
	orphanIntent.From = orphan
	_, err = f.engine.ApplySignedTransfer(orphanIntent, proof, sig)
	require.ErrorIs(t, err, ErrNoSignerRegistered)

	require.Equal(t, uint64(0), f.nonce(alice.vaddr))
}

func TestSignedTransferRequiresSecureFlowWhenEnabled(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(100), f.register(0)
	f.enableSecret(alice, 1234)

	intent, proof, sig := f.signed(alice, bob, 5, 0, testStart+60)
	_, err := f.engine.ApplySignedTransfer(intent, proof, sig)
	require.ErrorIs(t, err, ErrSecretRequired)
}

func TestRequestPaySigned(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)

	build := func(quantity, amount uint64) (types.PaymentRequest, []byte, []byte) {
		h, proof := f.backend.Encrypt(amount)
		req := types.PaymentRequest{
			From:             alice.id,
			To:               bob.id,
			Quantity:         quantity,
			AmountHandle:     h,
			AmountCommitment: auth.Commit(h),
			Nonce:            f.nonce(alice.vaddr),
			Deadline:         uint64(testStart + 60),
		}
		sig, err := auth.Sign(f.engine.Domain().PaymentHash(req), alice.key)
		require.NoError(t, err)
		return req, proof, sig
	}

	req, proof, sig := build(2, 250)
	txID, err := f.engine.RequestPaySigned(req, proof, sig)
	require.NoError(t, err)
	require.Equal(t, uint64(750), f.balance(alice.vaddr))
	require.Equal(t, uint64(250), f.balance(bob.vaddr))
	receipt, err := f.engine.Receipt(txID)
	require.NoError(t, err)
	require.Equal(t, types.TransferPayment, receipt.Kind)

	req, proof, sig = build(0, 1)
	_, err = f.engine.RequestPaySigned(req, proof, sig)
	requireKind(t, err, coreerrors.KindInvalidQuantity)

	req, proof, sig = build(1, 1)
	req.To = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	_, err = f.engine.RequestPaySigned(req, proof, sig)
	requireKind(t, err, coreerrors.KindNotRegistered)

	req, proof, sig = build(1, 1)
	req.Quantity = 9
	_, err = f.engine.RequestPaySigned(req, proof, sig)
	requireKind(t, err, coreerrors.KindInvalidSignature)
}

func TestBatchPartialFailure(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(1000), f.register(0)

	first, p1, s1 := f.signed(alice, bob, 100, 0, testStart+60)
	stale, p2, s2 := f.signed(alice, bob, 100, 0, testStart+60)
	second, p3, s3 := f.signed(alice, bob, 50, 1, testStart+60)

	results := f.engine.ApplyTransferBatch([]BatchEntry{
		{Intent: first, Proof: p1, Signature: s1},
		{Intent: stale, Proof: p2, Signature: s2},
		{Intent: second, Proof: p3, Signature: s3},
	})
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	requireKind(t, results[1].Err, coreerrors.KindBadNonce)
	require.Equal(t, common.Hash{}, results[1].TxID)
	require.NoError(t, results[2].Err)
	require.NotEqual(t, results[0].TxID, results[2].TxID)

	require.Equal(t, uint64(850), f.balance(alice.vaddr))
	require.Equal(t, uint64(150), f.balance(bob.vaddr))
	require.Equal(t, uint64(2), f.nonce(alice.vaddr))
}

func TestAtomicFailureEmitsNothing(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.register(10), f.register(0)
	before := len(f.events.Events())
	root := f.state.Root()

	h, _ := f.backend.Encrypt(1)
	_, err := f.engine.ApplyTransfer(alice.id, alice.vaddr, bob.vaddr, h, nil, 0)
	require.Error(t, err)
	require.Len(t, f.events.Events(), before)
	require.Equal(t, root, f.state.Root())
}
