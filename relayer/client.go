package relayer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	ledgererrors "vledger/core/errors"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/rpc"
)

// LedgerClient is the ledger surface the relayer forwards to.
type LedgerClient interface {
	OwnerLookup
	Nonce(ctx context.Context, vaddr types.VAddr) (uint64, error)
	SubmitTransfer(ctx context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error)
	SubmitPayment(ctx context.Context, req types.PaymentRequest, proof, signature []byte) (common.Hash, error)
	RequestSecureTransfer(ctx context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error)
	CompleteSecureTransfer(ctx context.Context, id common.Hash, secret fhe.Handle, proof []byte) (common.Hash, error)
	CancelSecureTransfer(ctx context.Context, id common.Hash) error
	Challenge(ctx context.Context, id common.Hash) (*types.Challenge, error)
}

// RPCNodeClient is a JSON-RPC client for a vledger node. Calls that act as an
// identity are signed with the relayer key.
type RPCNodeClient struct {
	baseURL string
	domain  auth.Domain
	key     *ecdsa.PrivateKey
	http    *http.Client
	nextID  atomic.Int64
	nowFn   func() time.Time
}

// NewRPCNodeClient constructs a client for the node at baseURL. key may be nil
// when no identity-bound calls are made.
func NewRPCNodeClient(baseURL string, domain auth.Domain, key *ecdsa.PrivateKey, timeout time.Duration) *RPCNodeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCNodeClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		domain:  domain,
		key:     key,
		http:    &http.Client{Timeout: timeout},
		nowFn:   time.Now,
	}
}

func (c *RPCNodeClient) OwnerOf(ctx context.Context, vaddr types.VAddr) (common.Address, bool, error) {
	var result rpc.OwnerResult
	if err := c.call(ctx, "vledger_getOwner", rpc.VAddrParams{VAddr: vaddr}, &result, false); err != nil {
		return common.Address{}, false, err
	}
	return result.Owner, result.Registered, nil
}

func (c *RPCNodeClient) Nonce(ctx context.Context, vaddr types.VAddr) (uint64, error) {
	var result rpc.NonceResult
	if err := c.call(ctx, "vledger_getNonce", rpc.VAddrParams{VAddr: vaddr}, &result, false); err != nil {
		return 0, err
	}
	return result.Nonce, nil
}

func (c *RPCNodeClient) SubmitTransfer(ctx context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	var result rpc.TxResult
	params := rpc.SignedTransferParams{Intent: intent, Proof: proof, Signature: signature}
	if err := c.call(ctx, "vledger_submitTransfer", params, &result, false); err != nil {
		return common.Hash{}, err
	}
	return result.TxID, nil
}

func (c *RPCNodeClient) SubmitPayment(ctx context.Context, req types.PaymentRequest, proof, signature []byte) (common.Hash, error) {
	var result rpc.TxResult
	params := rpc.PaymentParams{Request: req, Proof: proof, Signature: signature}
	if err := c.call(ctx, "vledger_submitPayment", params, &result, false); err != nil {
		return common.Hash{}, err
	}
	return result.TxID, nil
}

func (c *RPCNodeClient) RequestSecureTransfer(ctx context.Context, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	var result rpc.ChallengeResult
	params := rpc.SignedTransferParams{Intent: intent, Proof: proof, Signature: signature}
	if err := c.call(ctx, "vledger_requestSecureTransfer", params, &result, true); err != nil {
		return common.Hash{}, err
	}
	return result.ID, nil
}

func (c *RPCNodeClient) CompleteSecureTransfer(ctx context.Context, id common.Hash, secret fhe.Handle, proof []byte) (common.Hash, error) {
	var result rpc.TxResult
	params := rpc.CompleteParams{ID: id, Secret: secret, Proof: proof}
	if err := c.call(ctx, "vledger_completeSecureTransfer", params, &result, false); err != nil {
		return common.Hash{}, err
	}
	return result.TxID, nil
}

func (c *RPCNodeClient) CancelSecureTransfer(ctx context.Context, id common.Hash) error {
	return c.call(ctx, "vledger_cancelSecureTransfer", rpc.ChallengeParams{ID: id}, nil, false)
}

func (c *RPCNodeClient) Challenge(ctx context.Context, id common.Hash) (*types.Challenge, error) {
	var result types.Challenge
	if err := c.call(ctx, "vledger_getChallenge", rpc.ChallengeParams{ID: id}, &result, false); err != nil {
		return nil, err
	}
	return &result, nil
}

func unavailable(method string, err error) error {
	return ledgererrors.Wrap(ledgererrors.KindUnavailable, fmt.Sprintf("node rpc %s", method), err)
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}, signed bool) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id := c.nextID.Add(1)
	buf, err := json.Marshal(rpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  []json.RawMessage{rawParams},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		if c.key == nil {
			return ledgererrors.New(ledgererrors.KindUnauthorized, "relayer signing key not configured")
		}
		key := c.key
		header, err := rpc.SignCall(c.domain, method, rawParams, uint64(c.nowFn().Unix()), func(h common.Hash) ([]byte, error) {
			return auth.Sign(h, key)
		})
		if err != nil {
			return err
		}
		for k, v := range header {
			req.Header[k] = v
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(method, err)
	}
	defer resp.Body.Close()
	var rpcResp rpc.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return unavailable(method, fmt.Errorf("status=%d: %w", resp.StatusCode, err))
	}
	if rpcResp.Error != nil {
		return rpcResp.Error.Err()
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return unavailable(method, fmt.Errorf("empty result"))
	}
	return json.Unmarshal(rpcResp.Result, out)
}
