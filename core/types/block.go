package types

import "github.com/ethereum/go-ethereum/common"

// Sequence is the global ledger progress counter paired with the last state
// commitment supplied by an operator.
type Sequence struct {
	Counter         uint64      `json:"counter"`
	StateCommitment common.Hash `json:"stateCommitment"`
	UpdatedAt       uint64      `json:"updatedAt"`
}

// Block records a virtual block created by an operator. LedgerRoot is the
// state trie root at creation time.
type Block struct {
	Number          uint64      `json:"number"`
	StateCommitment common.Hash `json:"stateCommitment"`
	LedgerRoot      common.Hash `json:"ledgerRoot"`
	Timestamp       uint64      `json:"timestamp"`
}
