package types

import (
	"github.com/ethereum/go-ethereum/common"

	"vledger/crypto/fhe"
)

// TransferIntent is a vaddr-to-vaddr transfer as signed by the owner of From.
type TransferIntent struct {
	From             VAddr       `json:"from"`
	To               VAddr       `json:"to"`
	AmountHandle     fhe.Handle  `json:"amountHandle"`
	AmountCommitment common.Hash `json:"amountCommitment"`
	Nonce            uint64      `json:"nonce"`
	Deadline         uint64      `json:"deadline"`
}

// PaymentRequest is the identity-addressed transfer format. Quantity is a
// public unit count chosen by the payer; the moved value is AmountHandle.
type PaymentRequest struct {
	From             common.Address `json:"from"`
	To               common.Address `json:"to"`
	Quantity         uint64         `json:"quantity"`
	AmountHandle     fhe.Handle     `json:"amountHandle"`
	AmountCommitment common.Hash    `json:"amountCommitment"`
	Nonce            uint64         `json:"nonce"`
	Deadline         uint64         `json:"deadline"`
}
