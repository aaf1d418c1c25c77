package core

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"vledger/core/auth"
	coreerrors "vledger/core/errors"
	"vledger/core/events"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/native/confidential"
	"vledger/storage"
)

const now int64 = 1_700_000_000

func openLedger(t *testing.T, db storage.Database, backend *fhe.Plaintext, admin common.Address, emitter events.Emitter) *Ledger {
	t.Helper()
	l, err := NewLedger(db, backend, confidential.Config{
		Domain:          auth.DefaultDomain(),
		ChallengeWindow: time.Minute,
		Admins:          []common.Address{admin},
	}, WithNowFunc(func() int64 { return now }), WithEmitter(emitter))
	require.NoError(t, err)
	return l
}

func decrypt(t *testing.T, backend *fhe.Plaintext, l *Ledger, vaddr types.VAddr) uint64 {
	t.Helper()
	h, err := l.Balance(vaddr)
	require.NoError(t, err)
	v, err := backend.Decrypt(h)
	require.NoError(t, err)
	return v.Uint64()
}

func TestLedgerPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	key := [32]byte{7}
	admin := common.HexToAddress("0x00000000000000000000000000000000000000ad")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	backend := fhe.NewPlaintextWithKey(key, fhe.WithStore(db))
	l := openLedger(t, db, backend, admin, nil)

	h, proof := backend.Encrypt(1000)
	account, err := l.RegisterOwned(owner, [32]byte{}, h, proof)
	require.NoError(t, err)
	block, err := l.CreateBlock(admin, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Number)
	balance, err := l.Balance(account.VAddr)
	require.NoError(t, err)

	// Uncommitted changes after the block are lost without a flush.
	h2, proof2 := backend.Encrypt(1)
	_, err = l.Register(admin, types.VAddr{0x02}, h2, proof2)
	require.NoError(t, err)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	restarted := fhe.NewPlaintextWithKey(key, fhe.WithStore(db))
	reopened := openLedger(t, db, restarted, admin, nil)

	require.Equal(t, uint64(1000), decrypt(t, restarted, reopened, account.VAddr))
	_, err = reopened.Account(types.VAddr{0x02})
	require.Equal(t, coreerrors.KindNotFound, coreerrors.KindOf(err))
	_, err = restarted.Decrypt(h2)
	require.ErrorIs(t, err, fhe.ErrUnknownHandle)
	stored, err := reopened.Block(1)
	require.NoError(t, err)
	require.Equal(t, block.LedgerRoot, stored.LedgerRoot)

	// New handles never collide with committed ones.
	fresh, freshProof := restarted.Encrypt(5)
	require.NotEqual(t, balance, fresh)
	require.Equal(t, uint64(1000), decrypt(t, restarted, reopened, account.VAddr))

	_, err = reopened.Register(admin, types.VAddr{0x03}, fresh, freshProof)
	require.NoError(t, err)
	amount, amountProof := restarted.Encrypt(100)
	_, err = reopened.ApplyTransfer(owner, account.VAddr, types.VAddr{0x03}, amount, amountProof, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(900), decrypt(t, restarted, reopened, account.VAddr))
	require.Equal(t, uint64(105), decrypt(t, restarted, reopened, types.VAddr{0x03}))

	root, err := reopened.Flush()
	require.NoError(t, err)
	require.Equal(t, root, reopened.Root())
}

func TestLedgerSerializesConcurrentTransfers(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	backend, err := fhe.NewPlaintext()
	require.NoError(t, err)
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)

	admin := common.HexToAddress("0x00000000000000000000000000000000000000ad")
	buf := &events.Buffer{}
	l := openLedger(t, db, backend, admin, buf)
	bal, proof := backend.Encrypt(1000)
	alice, err := l.RegisterOwned(owner, [32]byte{}, bal, proof)
	require.NoError(t, err)
	bal, proof = backend.Encrypt(0)
	bob, err := l.Register(admin, types.VAddr{0xb0}, bal, proof)
	require.NoError(t, err)

	// Every goroutine races for the same nonce; exactly one wins per round.
	const rounds = 5
	for round := uint64(0); round < rounds; round++ {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 8; i++ {
			amount, amountProof := backend.Encrypt(1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.ApplyTransfer(owner, alice.VAddr, bob.VAddr, amount, amountProof, round)
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, success, "round %d", round)
	}

	n, err := l.Nonce(alice.VAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(rounds), n)
	require.Equal(t, uint64(rounds), decrypt(t, backend, l, bob.VAddr))
	seq, err := l.Sequence()
	require.NoError(t, err)
	require.Equal(t, uint64(rounds), seq.Counter)
}

func TestLedgerEndToEndScenarios(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	backend, err := fhe.NewPlaintext()
	require.NoError(t, err)
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	owner := ethcrypto.PubkeyToAddress(key.PublicKey)
	admin := common.HexToAddress("0x00000000000000000000000000000000000000ad")
	l := openLedger(t, db, backend, admin, nil)

	bal, proof := backend.Encrypt(1000)
	a, err := l.RegisterOwned(owner, [32]byte{}, bal, proof)
	require.NoError(t, err)
	bal, proof = backend.Encrypt(500)
	b, err := l.Register(admin, types.VAddr{0xbb}, bal, proof)
	require.NoError(t, err)

	sign := func(amount, nonce uint64, deadline int64) (types.TransferIntent, []byte, []byte) {
		h, p := backend.Encrypt(amount)
		intent := types.TransferIntent{
			From: a.VAddr, To: b.VAddr, AmountHandle: h, AmountCommitment: auth.Commit(h),
			Nonce: nonce, Deadline: uint64(deadline),
		}
		sig, err := auth.Sign(l.Domain().TransferHash(intent), key)
		require.NoError(t, err)
		return intent, p, sig
	}

	// Expired deadline: no change.
	intent, p, sig := sign(200, 0, now-10)
	_, err = l.ApplySignedTransfer(intent, p, sig)
	require.Equal(t, coreerrors.KindExpired, coreerrors.KindOf(err))

	// 1000/500 transfer of 200.
	intent, p, sig = sign(200, 0, now+10)
	_, err = l.ApplySignedTransfer(intent, p, sig)
	require.NoError(t, err)
	require.Equal(t, uint64(800), decrypt(t, backend, l, a.VAddr))
	require.Equal(t, uint64(700), decrypt(t, backend, l, b.VAddr))

	// Replay.
	_, err = l.ApplySignedTransfer(intent, p, sig)
	require.Equal(t, coreerrors.KindBadNonce, coreerrors.KindOf(err))
	n, err := l.Nonce(a.VAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}
