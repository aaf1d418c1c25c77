package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core"
	"vledger/core/types"
	"vledger/crypto/fhe"
)

// LocalClient forwards to an in-process ledger. Secure transfer challenges
// are requested as identity.
type LocalClient struct {
	ledger   *core.Ledger
	identity common.Address
}

func NewLocalClient(ledger *core.Ledger, identity common.Address) *LocalClient {
	return &LocalClient{ledger: ledger, identity: identity}
}

func (c *LocalClient) OwnerOf(ctx context.Context, vaddr types.VAddr) (common.Address, bool, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, false, err
	}
	return c.ledger.OwnerOf(vaddr)
}

func (c *LocalClient) Nonce(_ context.Context, vaddr types.VAddr) (uint64, error) {
	return c.ledger.Nonce(vaddr)
}

func (c *LocalClient) SubmitTransfer(_ context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	return c.ledger.ApplySignedTransfer(intent, proof, signature)
}

func (c *LocalClient) SubmitPayment(_ context.Context, req types.PaymentRequest, proof, signature []byte) (common.Hash, error) {
	return c.ledger.RequestPaySigned(req, proof, signature)
}

func (c *LocalClient) RequestSecureTransfer(_ context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	return c.ledger.RequestSecureTransfer(c.identity, intent, proof, signature)
}

func (c *LocalClient) CompleteSecureTransfer(_ context.Context, id common.Hash, secret fhe.Handle, proof []byte) (common.Hash, error) {
	return c.ledger.CompleteSecureTransfer(id, secret, proof)
}

func (c *LocalClient) CancelSecureTransfer(_ context.Context, id common.Hash) error {
	return c.ledger.CancelSecureTransfer(id)
}

func (c *LocalClient) Challenge(_ context.Context, id common.Hash) (*types.Challenge, error) {
	return c.ledger.SecureTransferChallenge(id)
}
