package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vledger/core/auth"
	"vledger/core/types"
	"vledger/crypto"
	"vledger/crypto/fhe"
	"vledger/relayer"
	"vledger/rpc"
)

// amountFlags are shared by the transfer and payment signers.
type amountFlags struct {
	handle   *string
	proof    *string
	nonce    *uint64
	deadline *uint64
	ttl      *time.Duration
	fee      *uint64
}

func (f amountFlags) parse(now time.Time) (fhe.Handle, []byte, uint64, error) {
	h, err := fhe.ParseHandle(*f.handle)
	if err != nil {
		return fhe.Handle{}, nil, 0, fmt.Errorf("handle: %w", err)
	}
	var proof []byte
	if raw := strings.TrimSpace(*f.proof); raw != "" {
		proof, err = hexutil.Decode(raw)
		if err != nil {
			return fhe.Handle{}, nil, 0, fmt.Errorf("proof: %w", err)
		}
	}
	deadline := *f.deadline
	if deadline == 0 {
		deadline = uint64(now.Add(*f.ttl).Unix())
	}
	return h, proof, deadline, nil
}

func runSignTransfer(args []string, out io.Writer) error {
	fs := newFlagSet("sign-transfer")
	signer := addSignerFlags(fs)
	domainOpts := addDomainFlags(fs)
	amount := addAmountFlags(fs)
	from := fs.String("from", "", "Sender virtual address")
	to := fs.String("to", "", "Recipient virtual address")
	quantity := fs.Uint64("quantity", 1, "Declared unit count forwarded to the relayer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := signer.load()
	if err != nil {
		return err
	}
	domain, err := domainOpts.domain()
	if err != nil {
		return err
	}
	fromAddr, err := types.ParseVAddr(*from)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	toAddr, err := types.ParseVAddr(*to)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	handle, proof, deadline, err := amount.parse(time.Now())
	if err != nil {
		return err
	}
	sub, err := buildTransfer(domain, key, types.TransferIntent{
		From:         fromAddr,
		To:           toAddr,
		AmountHandle: handle,
		Nonce:        *amount.nonce,
		Deadline:     deadline,
	}, proof)
	if err != nil {
		return err
	}
	sub.Quantity = *quantity
	sub.PriorityFee = *amount.fee
	return writeJSON(out, sub)
}

func runSignPayment(args []string, out io.Writer) error {
	fs := newFlagSet("sign-payment")
	signer := addSignerFlags(fs)
	domainOpts := addDomainFlags(fs)
	amount := addAmountFlags(fs)
	to := fs.String("to", "", "Recipient identity (0x hex or vid1...)")
	quantity := fs.Uint64("quantity", 1, "Unit count bound into the signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := signer.load()
	if err != nil {
		return err
	}
	domain, err := domainOpts.domain()
	if err != nil {
		return err
	}
	recipient, err := crypto.ParseIdentity(strings.TrimSpace(*to))
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}
	handle, proof, deadline, err := amount.parse(time.Now())
	if err != nil {
		return err
	}
	sub, err := buildPayment(domain, key, types.PaymentRequest{
		From:         key.Identity(),
		To:           recipient,
		Quantity:     *quantity,
		AmountHandle: handle,
		Nonce:        *amount.nonce,
		Deadline:     deadline,
	}, proof)
	if err != nil {
		return err
	}
	sub.PriorityFee = *amount.fee
	return writeJSON(out, sub)
}

func runSignCall(args []string, out io.Writer) error {
	fs := newFlagSet("sign-call")
	signer := addSignerFlags(fs)
	domainOpts := addDomainFlags(fs)
	method := fs.String("method", "", "JSON-RPC method name")
	params := fs.String("params", "{}", "JSON params object exactly as it will be sent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*method) == "" {
		return errors.New("-method is required")
	}
	if !json.Valid([]byte(*params)) {
		return errors.New("-params must be valid JSON")
	}
	key, err := signer.load()
	if err != nil {
		return err
	}
	domain, err := domainOpts.domain()
	if err != nil {
		return err
	}
	header, err := rpc.SignCall(domain, *method, []byte(*params), uint64(time.Now().Unix()), func(h common.Hash) ([]byte, error) {
		return auth.Sign(h, key.PrivateKey)
	})
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{
		rpc.HeaderCallerTimestamp: header.Get(rpc.HeaderCallerTimestamp),
		rpc.HeaderCallerSignature: header.Get(rpc.HeaderCallerSignature),
	})
}

func addAmountFlags(fs *flag.FlagSet) amountFlags {
	return amountFlags{
		handle:   fs.String("amount", "", "Amount ciphertext handle"),
		proof:    fs.String("proof", "", "Hex proof accompanying the amount handle"),
		nonce:    fs.Uint64("nonce", 0, "Sender nonce"),
		deadline: fs.Uint64("deadline", 0, "Unix deadline; derived from -ttl when zero"),
		ttl:      fs.Duration("ttl", 10*time.Minute, "Validity window used when -deadline is zero"),
		fee:      fs.Uint64("priority-fee", 0, "Priority fee offered to the relayer"),
	}
}

// buildTransfer binds the amount commitment and signs the intent.
func buildTransfer(domain auth.Domain, key *crypto.PrivateKey, intent types.TransferIntent, proof []byte) (relayer.TransferSubmission, error) {
	intent.AmountCommitment = auth.Commit(intent.AmountHandle)
	sig, err := auth.Sign(domain.TransferHash(intent), key.PrivateKey)
	if err != nil {
		return relayer.TransferSubmission{}, err
	}
	return relayer.TransferSubmission{
		Intent:     intent,
		Ciphertext: intent.AmountHandle,
		Proof:      proof,
		Signature:  sig,
	}, nil
}

func buildPayment(domain auth.Domain, key *crypto.PrivateKey, req types.PaymentRequest, proof []byte) (relayer.PaymentSubmission, error) {
	req.AmountCommitment = auth.Commit(req.AmountHandle)
	sig, err := auth.Sign(domain.PaymentHash(req), key.PrivateKey)
	if err != nil {
		return relayer.PaymentSubmission{}, err
	}
	return relayer.PaymentSubmission{
		Request:    req,
		Ciphertext: req.AmountHandle,
		Proof:      proof,
		Signature:  sig,
	}, nil
}
