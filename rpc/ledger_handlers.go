package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	ledgererrors "vledger/core/errors"
	"vledger/native/confidential"
	"vledger/observability/logging"
)

const maxBatchEntries = 64

func (s *Server) routes() map[string]method {
	m := map[string]method{
		"vledger_register":              {accessAdmin, s.handleRegister},
		"vledger_registerOwned":         {accessCaller, s.handleRegisterOwned},
		"vledger_getAccount":            {accessPublic, s.handleGetAccount},
		"vledger_getNonce":              {accessPublic, s.handleGetNonce},
		"vledger_getOwner":              {accessPublic, s.handleGetOwner},
		"vledger_vaddrOf":               {accessPublic, s.handleVAddrOf},
		"vledger_setSecret":             {accessCaller, s.handleSetSecret},
		"vledger_enableSecret":          {accessCaller, s.handleEnableSecret},
		"vledger_disableSecret":         {accessCaller, s.handleDisableSecret},
		"vledger_creditFaucet":          {accessAdmin, s.handleCreditFaucet},
		"vledger_setNonce":              {accessAdmin, s.handleSetNonce},
		"vledger_transfer":              {accessCaller, s.handleTransfer},
		"vledger_submitTransfer":        {accessPublic, s.handleSubmitTransfer},
		"vledger_submitPayment":         {accessPublic, s.handleSubmitPayment},
		"vledger_submitBatch":           {accessPublic, s.handleSubmitBatch},
		"vledger_getReceipt":            {accessPublic, s.handleGetReceipt},
		"vledger_requestSecureTransfer": {accessCaller, s.handleRequestSecureTransfer},
		"vledger_completeSecureTransfer": {
			accessPublic, s.handleCompleteSecureTransfer,
		},
		"vledger_cancelSecureTransfer": {accessPublic, s.handleCancelSecureTransfer},
		"vledger_getChallenge":         {accessPublic, s.handleGetChallenge},
		"vledger_getSequence":          {accessPublic, s.handleGetSequence},
		"vledger_getBlock":             {accessPublic, s.handleGetBlock},
		"vledger_createBlock":          {accessAdmin, s.handleCreateBlock},
		"vledger_updateStateCommitment": {
			accessAdmin, s.handleUpdateStateCommitment,
		},
		"vledger_domain": {accessPublic, s.handleDomain},
	}
	if s.index != nil {
		m["vledger_listTransfers"] = method{accessPublic, s.handleListTransfers}
		m["vledger_getIndexedChallenge"] = method{accessPublic, s.handleIndexedChallenge}
	}
	if s.plaintext != nil {
		m["vledger_devEncrypt"] = method{accessPublic, s.handleDevEncrypt}
		m["vledger_devDecrypt"] = method{accessAdmin, s.handleDevDecrypt}
	}
	return m
}

func (s *Server) handleRegister(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params RegisterParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.Register(caller, params.VAddr, params.Balance, params.Proof)
}

func (s *Server) handleRegisterOwned(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params RegisterOwnedParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.RegisterOwned(caller, params.Salt, params.Balance, params.Proof)
}

func (s *Server) handleGetAccount(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params VAddrParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.Account(params.VAddr)
}

func (s *Server) handleGetNonce(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params VAddrParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	nonce, err := s.ledger.Nonce(params.VAddr)
	if err != nil {
		return nil, err
	}
	return NonceResult{VAddr: params.VAddr, Nonce: nonce}, nil
}

func (s *Server) handleGetOwner(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params VAddrParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	owner, ok, err := s.ledger.OwnerOf(params.VAddr)
	if err != nil {
		return nil, err
	}
	return OwnerResult{VAddr: params.VAddr, Owner: owner, Registered: ok}, nil
}

func (s *Server) handleVAddrOf(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params IdentityParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	vaddr, err := s.ledger.VAddrOf(params.Identity)
	if err != nil {
		return nil, err
	}
	return VAddrResult{VAddr: vaddr}, nil
}

func (s *Server) handleSetSecret(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params SetSecretParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.SetSecret(caller, params.VAddr, params.Secret, params.Proof); err != nil {
		return nil, err
	}
	s.logger.Info("secret stored", "vaddr", params.VAddr.Hex(), logging.MaskField("secret", params.Secret.Hex()))
	return StatusResult{OK: true}, nil
}

func (s *Server) handleEnableSecret(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params VAddrParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.EnableSecret(caller, params.VAddr); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleDisableSecret(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params VAddrParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.DisableSecret(caller, params.VAddr); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleCreditFaucet(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params FaucetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.CreditFaucet(caller, params.VAddr, params.Amount, params.Proof); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleSetNonce(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params SetNonceParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.SetNonce(caller, params.VAddr, params.Nonce); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleTransfer(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params TransferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	txID, err := s.ledger.ApplyTransfer(caller, params.From, params.To, params.Amount, params.Proof, params.Nonce)
	if err != nil {
		return nil, err
	}
	return TxResult{TxID: txID}, nil
}

func (s *Server) handleSubmitTransfer(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params SignedTransferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	txID, err := s.ledger.ApplySignedTransfer(params.Intent, params.Proof, params.Signature)
	if err != nil {
		return nil, err
	}
	return TxResult{TxID: txID}, nil
}

func (s *Server) handleSubmitPayment(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params PaymentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	txID, err := s.ledger.RequestPaySigned(params.Request, params.Proof, params.Signature)
	if err != nil {
		return nil, err
	}
	return TxResult{TxID: txID}, nil
}

func (s *Server) handleSubmitBatch(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params BatchParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if len(params.Entries) == 0 {
		return nil, &paramsError{msg: "entries required"}
	}
	if len(params.Entries) > maxBatchEntries {
		return nil, ledgererrors.New(ledgererrors.KindInvalidArgument, "too many batch entries")
	}
	entries := make([]confidential.BatchEntry, len(params.Entries))
	for i, entry := range params.Entries {
		entries[i] = confidential.BatchEntry{Intent: entry.Intent, Proof: entry.Proof, Signature: entry.Signature}
	}
	results := s.ledger.ApplyTransferBatch(entries)
	out := make([]BatchEntryResult, len(results))
	for i, res := range results {
		out[i].TxID = res.TxID
		if res.Err != nil {
			kind := ledgererrors.KindOf(res.Err)
			out[i].Kind = kind.String()
			out[i].Error = res.Err.Error()
			if kind == ledgererrors.KindInternal {
				out[i].Error = "internal error"
			}
		}
	}
	return out, nil
}

func (s *Server) handleGetReceipt(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params ReceiptParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.Receipt(params.TxID)
}

func (s *Server) handleRequestSecureTransfer(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params SignedTransferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	id, err := s.ledger.RequestSecureTransfer(caller, params.Intent, params.Proof, params.Signature)
	if err != nil {
		return nil, err
	}
	return ChallengeResult{ID: id}, nil
}

// handleCompleteSecureTransfer always reports the transfer id of a settled
// challenge; a wrong secret moves zero and is indistinguishable here.
func (s *Server) handleCompleteSecureTransfer(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params CompleteParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	txID, err := s.ledger.CompleteSecureTransfer(params.ID, params.Secret, params.Proof)
	if err != nil {
		return nil, err
	}
	return TxResult{TxID: txID}, nil
}

func (s *Server) handleCancelSecureTransfer(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params ChallengeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.CancelSecureTransfer(params.ID); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleGetChallenge(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params ChallengeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.SecureTransferChallenge(params.ID)
}

func (s *Server) handleGetSequence(context.Context, common.Address, json.RawMessage) (interface{}, error) {
	return s.ledger.Sequence()
}

func (s *Server) handleGetBlock(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params BlockParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.Block(params.Number)
}

func (s *Server) handleCreateBlock(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params CommitmentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.ledger.CreateBlock(caller, params.StateCommitment)
}

func (s *Server) handleUpdateStateCommitment(_ context.Context, caller common.Address, raw json.RawMessage) (interface{}, error) {
	var params CommitmentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.UpdateStateCommitment(caller, params.StateCommitment); err != nil {
		return nil, err
	}
	return StatusResult{OK: true}, nil
}

func (s *Server) handleDomain(context.Context, common.Address, json.RawMessage) (interface{}, error) {
	return s.ledger.Domain(), nil
}

func (s *Server) handleDevEncrypt(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params EncryptParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	handle, proof := s.plaintext.Encrypt(params.Value)
	return EncryptResult{Handle: handle, Proof: proof, Commitment: auth.Commit(handle)}, nil
}

func (s *Server) handleDevDecrypt(_ context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params DecryptParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	value, err := s.plaintext.Decrypt(params.Handle)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.KindNotFound, "decrypt", err)
	}
	s.logger.Warn("dev decrypt served", logging.Fingerprint("handle", params.Handle.Hex()))
	return DecryptResult{Value: value.Dec()}, nil
}
