package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"vledger/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("account"))
	value := []byte("balance-handle")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)
	require.Equal(t, root, tr.Root())

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieCopyIsolatesMutations(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("nonce"))
	require.NoError(t, tr.Update(key, []byte{0x01}))
	before := tr.Hash()

	snapshot := tr.Copy()
	require.NoError(t, tr.Update(key, []byte{0x02}))
	require.NotEqual(t, before, tr.Hash())

	got, err := snapshot.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
	require.Equal(t, before, snapshot.Hash())
}

func TestTrieDelete(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	empty := tr.Hash()

	key := crypto.Keccak256([]byte("k"))
	require.NoError(t, tr.Update(key, []byte("v")))
	require.NoError(t, tr.Delete(key))
	require.Equal(t, empty, tr.Hash())

	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Empty(t, got)
}
