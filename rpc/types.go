package rpc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vledger/core/types"
	"vledger/crypto/fhe"
)

// RegisterParams creates an unowned account at VAddr.
type RegisterParams struct {
	VAddr   types.VAddr   `json:"vaddr"`
	Balance fhe.Handle    `json:"balance"`
	Proof   hexutil.Bytes `json:"proof"`
}

// RegisterOwnedParams derives the account address from the caller identity
// and Salt.
type RegisterOwnedParams struct {
	Salt    common.Hash   `json:"salt"`
	Balance fhe.Handle    `json:"balance"`
	Proof   hexutil.Bytes `json:"proof"`
}

type VAddrParams struct {
	VAddr types.VAddr `json:"vaddr"`
}

type IdentityParams struct {
	Identity common.Address `json:"identity"`
}

type SetSecretParams struct {
	VAddr  types.VAddr   `json:"vaddr"`
	Secret fhe.Handle    `json:"secret"`
	Proof  hexutil.Bytes `json:"proof"`
}

type FaucetParams struct {
	VAddr  types.VAddr   `json:"vaddr"`
	Amount fhe.Handle    `json:"amount"`
	Proof  hexutil.Bytes `json:"proof"`
}

type SetNonceParams struct {
	VAddr types.VAddr `json:"vaddr"`
	Nonce uint64      `json:"nonce"`
}

// TransferParams is the caller-authorized direct transfer.
type TransferParams struct {
	From   types.VAddr   `json:"from"`
	To     types.VAddr   `json:"to"`
	Amount fhe.Handle    `json:"amount"`
	Proof  hexutil.Bytes `json:"proof"`
	Nonce  uint64        `json:"nonce"`
}

// SignedTransferParams carries a relayed intent and the owner's signature.
type SignedTransferParams struct {
	Intent    types.TransferIntent `json:"intent"`
	Proof     hexutil.Bytes        `json:"proof"`
	Signature hexutil.Bytes        `json:"signature"`
}

type PaymentParams struct {
	Request   types.PaymentRequest `json:"request"`
	Proof     hexutil.Bytes        `json:"proof"`
	Signature hexutil.Bytes        `json:"signature"`
}

type BatchParams struct {
	Entries []SignedTransferParams `json:"entries"`
}

type CompleteParams struct {
	ID     common.Hash   `json:"id"`
	Secret fhe.Handle    `json:"secret"`
	Proof  hexutil.Bytes `json:"proof"`
}

type ChallengeParams struct {
	ID common.Hash `json:"id"`
}

type ReceiptParams struct {
	TxID common.Hash `json:"txId"`
}

type BlockParams struct {
	Number uint64 `json:"number"`
}

type CommitmentParams struct {
	StateCommitment common.Hash `json:"stateCommitment"`
}

type EncryptParams struct {
	Value uint64 `json:"value"`
}

type DecryptParams struct {
	Handle fhe.Handle `json:"handle"`
}

// TxResult is returned by every state-changing transfer call.
type TxResult struct {
	TxID common.Hash `json:"txId"`
}

// ChallengeResult identifies a freshly opened secure transfer challenge.
type ChallengeResult struct {
	ID common.Hash `json:"id"`
}

type NonceResult struct {
	VAddr types.VAddr `json:"vaddr"`
	Nonce uint64      `json:"nonce"`
}

// OwnerResult reports the recorded owner. Registered is false for accounts
// created without an owner.
type OwnerResult struct {
	VAddr      types.VAddr    `json:"vaddr"`
	Owner      common.Address `json:"owner"`
	Registered bool           `json:"registered"`
}

type VAddrResult struct {
	VAddr types.VAddr `json:"vaddr"`
}

type BatchEntryResult struct {
	TxID  common.Hash `json:"txId"`
	Kind  string      `json:"kind,omitempty"`
	Error string      `json:"error,omitempty"`
}

type EncryptResult struct {
	Handle     fhe.Handle    `json:"handle"`
	Proof      hexutil.Bytes `json:"proof"`
	Commitment common.Hash   `json:"commitment"`
}

type DecryptResult struct {
	Value string `json:"value"`
}

type StatusResult struct {
	OK bool `json:"ok"`
}
