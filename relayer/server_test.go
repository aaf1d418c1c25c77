package relayer

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"vledger/core"
	"vledger/core/auth"
	ledgererrors "vledger/core/errors"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/native/confidential"
	"vledger/storage"
)

const testNow int64 = 1_700_000_000

type relayerEnv struct {
	ledger  *core.Ledger
	backend *fhe.Plaintext
	server  *Server
	http    *httptest.Server
	journal *Journal
}

type account struct {
	key   *ecdsa.PrivateKey
	id    common.Address
	vaddr types.VAddr
}

func newRelayerEnv(t *testing.T) *relayerEnv {
	t.Helper()
	backend := fhe.NewPlaintextWithKey([32]byte{7})
	ledger, err := core.NewLedger(storage.NewMemDB(), backend, confidential.Config{Domain: auth.DefaultDomain()},
		core.WithNowFunc(func() int64 { return testNow }))
	require.NoError(t, err)
	journal, err := OpenJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	cfg := DefaultConfig()
	cfg.MinPriorityFee = 2
	cfg.RateLimit.Burst = 1000
	srv := NewServer(cfg, NewLocalClient(ledger, common.HexToAddress("0x00000000000000000000000000000000000000aa")), journal, nil)
	srv.SetNowFunc(func() time.Time { return time.Unix(testNow, 0) })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &relayerEnv{ledger: ledger, backend: backend, server: srv, http: ts, journal: journal}
}

func (e *relayerEnv) register(t *testing.T, balance uint64) account {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	id := ethcrypto.PubkeyToAddress(key.PublicKey)
	h, proof := e.backend.Encrypt(balance)
	acct, err := e.ledger.RegisterOwned(id, [32]byte{}, h, proof)
	require.NoError(t, err)
	return account{key: key, id: id, vaddr: acct.VAddr}
}

func (e *relayerEnv) balance(t *testing.T, vaddr types.VAddr) uint64 {
	t.Helper()
	h, err := e.ledger.Balance(vaddr)
	require.NoError(t, err)
	v, err := e.backend.Decrypt(h)
	require.NoError(t, err)
	return v.Uint64()
}

func (e *relayerEnv) transfer(t *testing.T, from, to account, amount, nonce uint64, signer *ecdsa.PrivateKey) TransferSubmission {
	t.Helper()
	h, proof := e.backend.Encrypt(amount)
	intent := types.TransferIntent{
		From:             from.vaddr,
		To:               to.vaddr,
		AmountHandle:     h,
		AmountCommitment: auth.Commit(h),
		Nonce:            nonce,
		Deadline:         uint64(testNow + 120),
	}
	sig, err := auth.Sign(auth.DefaultDomain().TransferHash(intent), signer)
	require.NoError(t, err)
	return TransferSubmission{Intent: intent, Ciphertext: h, Proof: proof, Signature: sig, Quantity: 1, PriorityFee: 5}
}

func (e *relayerEnv) post(t *testing.T, path string, body interface{}, out interface{}) (int, ErrorBody) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.http.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get(headerRequestID))
	if resp.StatusCode != http.StatusOK {
		var failure errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&failure))
		return resp.StatusCode, failure.Error
	}
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode, ErrorBody{}
}

func TestRelayTransferForwardsAndJournals(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 100), env.register(t, 5)

	sub := env.transfer(t, alice, bob, 30, 0, alice.key)
	var out SubmissionResponse
	status, _ := env.post(t, "/v1/transfers", sub, &out)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, out.TxID)
	require.Equal(t, auth.DefaultDomain().TransferHash(sub.Intent), out.MessageHash)
	require.Equal(t, uint64(70), env.balance(t, alice.vaddr))
	require.Equal(t, uint64(35), env.balance(t, bob.vaddr))

	receipt, err := env.ledger.Receipt(*out.TxID)
	require.NoError(t, err)
	require.Equal(t, alice.vaddr, receipt.From)

	status, failure := env.post(t, "/v1/transfers", sub, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, ledgererrors.KindAlreadyExists, failure.Kind)
	require.NotNil(t, failure.TxID)
	require.Equal(t, *out.TxID, *failure.TxID)
	require.Equal(t, "already processed, refresh and retry", failure.Message)
}

func TestRelayQuantityDoesNotChangeAmount(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 100), env.register(t, 0)

	sub := env.transfer(t, alice, bob, 3, 0, alice.key)
	sub.Quantity = 1_000
	var out SubmissionResponse
	status, _ := env.post(t, "/v1/transfers", sub, &out)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(97), env.balance(t, alice.vaddr))
	require.Equal(t, uint64(3), env.balance(t, bob.vaddr))
}

func TestRelayRejectsBeforeForwarding(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 100), env.register(t, 0)
	mallory, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*TransferSubmission)
		status int
		check  Check
		kind   ledgererrors.Kind
	}{
		{
			name: "expired deadline",
			mutate: func(s *TransferSubmission) {
				*s = env.transfer(t, alice, bob, 1, 0, alice.key)
				s.Intent.Deadline = uint64(testNow - 1)
			},
			status: http.StatusGone,
			check:  CheckDeadline,
			kind:   ledgererrors.KindExpired,
		},
		{
			name: "ciphertext swapped",
			mutate: func(s *TransferSubmission) {
				other, _ := env.backend.Encrypt(99)
				s.Ciphertext = other
			},
			status: http.StatusBadRequest,
			check:  CheckCommitment,
			kind:   ledgererrors.KindCommitmentMismatch,
		},
		{
			name: "wrong signer",
			mutate: func(s *TransferSubmission) {
				*s = env.transfer(t, alice, bob, 1, 0, mallory)
			},
			status: http.StatusForbidden,
			check:  CheckSignature,
			kind:   ledgererrors.KindInvalidSignature,
		},
		{
			name: "zero quantity",
			mutate: func(s *TransferSubmission) {
				s.Quantity = 0
			},
			status: http.StatusBadRequest,
			check:  CheckQuantity,
			kind:   ledgererrors.KindInvalidQuantity,
		},
		{
			name: "fee below minimum",
			mutate: func(s *TransferSubmission) {
				s.PriorityFee = 1
			},
			status: http.StatusBadRequest,
			check:  CheckFee,
			kind:   ledgererrors.KindFeeTooLow,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := env.transfer(t, alice, bob, 1, 0, alice.key)
			tc.mutate(&sub)
			status, failure := env.post(t, "/v1/transfers", sub, nil)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.check, failure.Check)
			require.Equal(t, tc.kind, failure.Kind)
			require.Equal(t, UserMessage(tc.kind), failure.Message)
		})
	}

	nonce, err := env.ledger.Nonce(alice.vaddr)
	require.NoError(t, err)
	require.Zero(t, nonce)
	require.Equal(t, uint64(100), env.balance(t, alice.vaddr))
}

func TestRelayUnregisteredSender(t *testing.T) {
	env := newRelayerEnv(t)
	bob := env.register(t, 0)
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	ghost := account{key: key, id: ethcrypto.PubkeyToAddress(key.PublicKey)}
	ghost.vaddr = types.DeriveVAddr(ghost.id, [32]byte{})

	status, failure := env.post(t, "/v1/transfers", env.transfer(t, ghost, bob, 1, 0, key), nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, CheckSignature, failure.Check)
	require.Equal(t, ledgererrors.KindNoSignerRegistered, failure.Kind)
}

func TestRelayLedgerErrorPassesThrough(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 100), env.register(t, 0)

	status, failure := env.post(t, "/v1/transfers", env.transfer(t, alice, bob, 1, 4, alice.key), nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, ledgererrors.KindBadNonce, failure.Kind)
	require.Equal(t, CheckNone, failure.Check)
}

func TestRelayPayment(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 50), env.register(t, 0)

	h, proof := env.backend.Encrypt(20)
	req := types.PaymentRequest{
		From:             alice.id,
		To:               bob.id,
		Quantity:         2,
		AmountHandle:     h,
		AmountCommitment: auth.Commit(h),
		Deadline:         uint64(testNow + 60),
	}
	sig, err := auth.Sign(auth.DefaultDomain().PaymentHash(req), alice.key)
	require.NoError(t, err)

	var out SubmissionResponse
	status, _ := env.post(t, "/v1/payments", PaymentSubmission{Request: req, Proof: proof, Signature: sig, PriorityFee: 2}, &out)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, out.TxID)
	require.Equal(t, uint64(30), env.balance(t, alice.vaddr))
	require.Equal(t, uint64(20), env.balance(t, bob.vaddr))

	req.Quantity = 0
	sig, err = auth.Sign(auth.DefaultDomain().PaymentHash(req), alice.key)
	require.NoError(t, err)
	status, failure := env.post(t, "/v1/payments", PaymentSubmission{Request: req, Proof: proof, Signature: sig, PriorityFee: 2}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, CheckQuantity, failure.Check)
}

func TestRelaySecureTransferLifecycle(t *testing.T) {
	env := newRelayerEnv(t)
	alice, bob := env.register(t, 100), env.register(t, 0)
	secret, secretProof := env.backend.Encrypt(4242)
	require.NoError(t, env.ledger.SetSecret(alice.id, alice.vaddr, secret, secretProof))
	require.NoError(t, env.ledger.EnableSecret(alice.id, alice.vaddr))

	status, failure := env.post(t, "/v1/transfers", env.transfer(t, alice, bob, 10, 0, alice.key), nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, ledgererrors.KindSecretRequired, failure.Kind)

	var requested SubmissionResponse
	status, _ = env.post(t, "/v1/secure-transfers/", env.transfer(t, alice, bob, 10, 0, alice.key), &requested)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, requested.ChallengeID)
	id := *requested.ChallengeID

	resp, err := http.Get(env.http.URL + "/v1/secure-transfers/" + id.Hex())
	require.NoError(t, err)
	var challenge types.Challenge
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&challenge))
	resp.Body.Close()
	require.Equal(t, types.ChallengePending, challenge.Status)

	guess, guessProof := env.backend.Encrypt(4242)
	var completed SubmissionResponse
	status, _ = env.post(t, "/v1/secure-transfers/"+id.Hex()+"/complete", CompleteSubmission{Secret: guess, Proof: guessProof}, &completed)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, completed.TxID)
	require.Equal(t, uint64(90), env.balance(t, alice.vaddr))

	status, failure = env.post(t, "/v1/secure-transfers/"+id.Hex()+"/cancel", struct{}{}, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, ledgererrors.KindNotFound, failure.Kind)
}

func TestNonceEndpointAndBadIDs(t *testing.T) {
	env := newRelayerEnv(t)
	alice := env.register(t, 1)

	resp, err := http.Get(env.http.URL + "/v1/accounts/" + alice.vaddr.Hex() + "/nonce")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(env.http.URL + "/v1/secure-transfers/0x1234")
	require.NoError(t, err)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short challenge id, got %d", resp2.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newRelayerEnv(t)
	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
