package confidential

import (
	"github.com/ethereum/go-ethereum/common"

	"vledger/core/types"
)

// BatchEntry is one signed transfer inside a batch.
type BatchEntry struct {
	Intent    types.TransferIntent
	Proof     []byte
	Signature []byte
}

// BatchResult reports the outcome of the entry at the same index.
type BatchResult struct {
	TxID common.Hash
	Err  error
}

// ApplyTransferBatch runs entries in order, each atomically on its own. A
// failed entry leaves earlier successes in place and later entries observe
// the state produced by the earlier ones.
func (e *Engine) ApplyTransferBatch(entries []BatchEntry) []BatchResult {
	results := make([]BatchResult, len(entries))
	for i, entry := range entries {
		entry := entry
		results[i].Err = e.atomically(func() error {
			txID, err := e.applySigned(entry.Intent, entry.Proof, entry.Signature)
			results[i].TxID = txID
			return err
		})
		if results[i].Err != nil {
			results[i].TxID = common.Hash{}
		}
	}
	return results
}
