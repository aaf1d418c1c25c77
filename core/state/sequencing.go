package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/types"
)

// Sequence returns the global sequencing record. A fresh ledger reports the
// zero value.
func (m *Manager) Sequence() (*types.Sequence, error) {
	var seq types.Sequence
	if _, err := m.KVGet(sequenceKeyBytes, &seq); err != nil {
		return nil, fmt.Errorf("state: load sequence: %w", err)
	}
	return &seq, nil
}

// PutSequence stores the global sequencing record.
func (m *Manager) PutSequence(seq *types.Sequence) error {
	if seq == nil {
		return fmt.Errorf("state: nil sequence")
	}
	return m.KVPut(sequenceKeyBytes, seq)
}

// AdvanceSequence increments the counter and returns its new value.
func (m *Manager) AdvanceSequence(now uint64) (uint64, error) {
	seq, err := m.Sequence()
	if err != nil {
		return 0, err
	}
	seq.Counter++
	seq.UpdatedAt = now
	if err := m.PutSequence(seq); err != nil {
		return 0, err
	}
	return seq.Counter, nil
}

func blockKey(number uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return prefixed(blockPrefix, buf[:])
}

// Block loads the block record created at number.
func (m *Manager) Block(number uint64) (*types.Block, error) {
	var block types.Block
	ok, err := m.KVGet(blockKey(number), &block)
	if err != nil {
		return nil, fmt.Errorf("state: load block %d: %w", number, err)
	}
	if !ok {
		return nil, nil
	}
	return &block, nil
}

// PutBlock stores a block record under its number.
func (m *Manager) PutBlock(block *types.Block) error {
	if block == nil {
		return fmt.Errorf("state: nil block")
	}
	return m.KVPut(blockKey(block.Number), block)
}

// Receipt loads the receipt of a committed transfer.
func (m *Manager) Receipt(txID common.Hash) (*types.Receipt, error) {
	var receipt types.Receipt
	ok, err := m.KVGet(prefixed(receiptPrefix, txID.Bytes()), &receipt)
	if err != nil {
		return nil, fmt.Errorf("state: load receipt %s: %w", txID.Hex(), err)
	}
	if !ok {
		return nil, nil
	}
	return &receipt, nil
}

// PutReceipt stores a transfer receipt under its tx id.
func (m *Manager) PutReceipt(receipt *types.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("state: nil receipt")
	}
	return m.KVPut(prefixed(receiptPrefix, receipt.TxID.Bytes()), receipt)
}
