package auth

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"vledger/core/types"
)

// ProtocolVersion is mixed into every signed message. Any change to the field
// set or order of a message format must bump it.
const ProtocolVersion uint64 = 1

var (
	DomainTypeHash = ethcrypto.Keccak256Hash([]byte(
		"VLedgerDomain(string name,uint256 version,uint256 chainId,bytes32 ledgerId)"))
	TransferTypeHash = ethcrypto.Keccak256Hash([]byte(
		"Transfer(uint256 version,bytes32 from,bytes32 to,bytes32 amountCommitment,uint256 nonce,uint256 deadline,uint256 chainId,bytes32 ledgerId)"))
	PaymentTypeHash = ethcrypto.Keccak256Hash([]byte(
		"Payment(uint256 version,address from,address to,uint256 quantity,bytes32 amountCommitment,uint256 nonce,uint256 deadline,uint256 chainId,bytes32 ledgerId)"))
	CallTypeHash = ethcrypto.Keccak256Hash([]byte(
		"Call(string method,bytes32 paramsHash,uint256 timestamp)"))
)

// Domain identifies one ledger instance. Signatures made for one domain never
// verify under another.
type Domain struct {
	Name     string      `json:"name" toml:"Name" yaml:"name"`
	Version  uint64      `json:"version" toml:"Version" yaml:"version"`
	ChainID  uint64      `json:"chainId" toml:"ChainID" yaml:"chainId"`
	LedgerID common.Hash `json:"ledgerId" toml:"LedgerID" yaml:"ledgerId"`
}

// DefaultDomain returns the domain used by development nodes.
func DefaultDomain() Domain {
	return Domain{
		Name:     "vledger",
		Version:  ProtocolVersion,
		ChainID:  1337,
		LedgerID: ethcrypto.Keccak256Hash([]byte("vledger/devnet")),
	}
}

func word(v uint64) []byte {
	b := uint256.NewInt(v).Bytes32()
	return b[:]
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// Separator returns the domain separator.
func (d Domain) Separator() common.Hash {
	return ethcrypto.Keccak256Hash(
		DomainTypeHash[:],
		ethcrypto.Keccak256([]byte(d.Name)),
		word(d.Version),
		word(d.ChainID),
		d.LedgerID[:],
	)
}

func typedDigest(separator common.Hash, structHash common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash([]byte{0x19, 0x01}, separator[:], structHash[:])
}

// BuildMessageHash canonicalizes a vaddr transfer intent into the digest the
// owner of intent.From signs.
func BuildMessageHash(separator common.Hash, version uint64, chainID uint64, ledgerID common.Hash, intent types.TransferIntent) common.Hash {
	structHash := ethcrypto.Keccak256Hash(
		TransferTypeHash[:],
		word(version),
		intent.From[:],
		intent.To[:],
		intent.AmountCommitment[:],
		word(intent.Nonce),
		word(intent.Deadline),
		word(chainID),
		ledgerID[:],
	)
	return typedDigest(separator, structHash)
}

// BuildPaymentHash canonicalizes an identity-addressed payment request.
func BuildPaymentHash(separator common.Hash, version uint64, chainID uint64, ledgerID common.Hash, req types.PaymentRequest) common.Hash {
	structHash := ethcrypto.Keccak256Hash(
		PaymentTypeHash[:],
		word(version),
		addressWord(req.From),
		addressWord(req.To),
		word(req.Quantity),
		req.AmountCommitment[:],
		word(req.Nonce),
		word(req.Deadline),
		word(chainID),
		ledgerID[:],
	)
	return typedDigest(separator, structHash)
}

// TransferHash is BuildMessageHash bound to d.
func (d Domain) TransferHash(intent types.TransferIntent) common.Hash {
	return BuildMessageHash(d.Separator(), d.Version, d.ChainID, d.LedgerID, intent)
}

// PaymentHash is BuildPaymentHash bound to d.
func (d Domain) PaymentHash(req types.PaymentRequest) common.Hash {
	return BuildPaymentHash(d.Separator(), d.Version, d.ChainID, d.LedgerID, req)
}

// CallHash is the digest an RPC caller signs to prove its identity for method
// with the given raw params at timestamp (unix seconds).
func (d Domain) CallHash(method string, params []byte, timestamp uint64) common.Hash {
	structHash := ethcrypto.Keccak256Hash(
		CallTypeHash[:],
		ethcrypto.Keccak256([]byte(method)),
		ethcrypto.Keccak256(params),
		word(timestamp),
	)
	return typedDigest(d.Separator(), structHash)
}
