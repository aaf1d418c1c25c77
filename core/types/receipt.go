package types

import "github.com/ethereum/go-ethereum/common"

// TransferKind identifies the authorization path a transfer took.
type TransferKind string

const (
	TransferDirect  TransferKind = "direct"
	TransferSigned  TransferKind = "signed"
	TransferPayment TransferKind = "payment"
	TransferSecure  TransferKind = "secure"
)

// Receipt is stored for every committed transfer.
type Receipt struct {
	TxID      common.Hash  `json:"txId"`
	From      VAddr        `json:"from"`
	To        VAddr        `json:"to"`
	Nonce     uint64       `json:"nonce"`
	Sequence  uint64       `json:"sequence"`
	Kind      TransferKind `json:"kind"`
	Timestamp uint64       `json:"timestamp"`
}
