package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vledger/storage/trie"
)

// Manager reads and writes RLP encoded ledger records stored under hashed
// keys in the state trie.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores value RLP encoded under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

// Snapshot captures the current state so it can be restored with Revert.
func (m *Manager) Snapshot() *trie.Trie {
	return m.trie.Copy()
}

// Revert restores a state captured by Snapshot, discarding every mutation
// made since.
func (m *Manager) Revert(snapshot *trie.Trie) {
	if snapshot != nil {
		m.trie = snapshot
	}
}

// Root returns the state root including uncommitted mutations.
func (m *Manager) Root() common.Hash {
	return m.trie.Hash()
}

// CommittedRoot returns the root of the last commit.
func (m *Manager) CommittedRoot() common.Hash {
	return m.trie.Root()
}

// Commit persists pending mutations to the node database.
func (m *Manager) Commit(blockNumber uint64) (common.Hash, error) {
	return m.trie.Commit(m.trie.Root(), blockNumber)
}

func (m *Manager) counter(key []byte) (uint64, error) {
	var value uint64
	if _, err := m.KVGet(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (m *Manager) incrementCounter(key []byte) (uint64, error) {
	value, err := m.counter(key)
	if err != nil {
		return 0, err
	}
	value++
	if err := m.KVPut(key, value); err != nil {
		return 0, err
	}
	return value, nil
}
