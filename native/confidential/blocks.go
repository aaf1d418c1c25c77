package confidential

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/events"
	"vledger/core/types"
)

// CreateBlock advances the sequencing counter and records commitment
// together with the current ledger root.
func (e *Engine) CreateBlock(caller common.Address, commitment common.Hash) (*types.Block, error) {
	var block *types.Block
	err := e.atomically(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		now := e.now()
		root := e.state.Root()
		seq, err := e.state.Sequence()
		if err != nil {
			return err
		}
		seq.Counter++
		seq.StateCommitment = commitment
		seq.UpdatedAt = now
		if err := e.state.PutSequence(seq); err != nil {
			return err
		}
		block = &types.Block{
			Number:          seq.Counter,
			StateCommitment: commitment,
			LedgerRoot:      root,
			Timestamp:       now,
		}
		if err := e.state.PutBlock(block); err != nil {
			return err
		}
		e.queue(events.BlockCreated{Block: *block})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// UpdateStateCommitment replaces the recorded commitment without advancing
// the counter.
func (e *Engine) UpdateStateCommitment(caller common.Address, commitment common.Hash) error {
	return e.atomically(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		seq, err := e.state.Sequence()
		if err != nil {
			return err
		}
		seq.StateCommitment = commitment
		seq.UpdatedAt = e.now()
		if err := e.state.PutSequence(seq); err != nil {
			return err
		}
		e.queue(events.CommitmentUpdated{Commitment: commitment, Counter: seq.Counter})
		return nil
	})
}

// Sequence returns the sequencing counter and latest commitment.
func (e *Engine) Sequence() (*types.Sequence, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.Sequence()
}

// Block returns the block recorded at number.
func (e *Engine) Block(number uint64) (*types.Block, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	block, err := e.state.Block(number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}
	return block, nil
}
