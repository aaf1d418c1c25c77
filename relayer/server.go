package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	ledgererrors "vledger/core/errors"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/observability"
	"vledger/observability/logging"
	"vledger/rpc"
)

const (
	maxRequestBody  = 1 << 20
	headerRequestID = "X-Request-ID"

	routeTransfer = "transfer"
	routePayment  = "payment"
	routeSecure   = "secure"
)

// TransferSubmission is the body of POST /v1/transfers and
// POST /v1/secure-transfers. Ciphertext is the amount handle the client
// encrypted; it must equal the handle inside the signed intent.
type TransferSubmission struct {
	Intent     types.TransferIntent `json:"intent"`
	Ciphertext fhe.Handle           `json:"ciphertext"`
	Proof      hexutil.Bytes        `json:"proof"`
	Signature  hexutil.Bytes        `json:"signature"`
	// Quantity is declared by the client and only screened for zero. It is
	// neither signed nor bound to Ciphertext, so it is advisory and must not
	// be used to authorize anything.
	Quantity    uint64 `json:"quantity"`
	PriorityFee uint64 `json:"priorityFee"`
}

// PaymentSubmission is the body of POST /v1/payments.
type PaymentSubmission struct {
	Request     types.PaymentRequest `json:"request"`
	Ciphertext  fhe.Handle           `json:"ciphertext"`
	Proof       hexutil.Bytes        `json:"proof"`
	Signature   hexutil.Bytes        `json:"signature"`
	PriorityFee uint64               `json:"priorityFee"`
}

// CompleteSubmission is the body of POST /v1/secure-transfers/{id}/complete.
type CompleteSubmission struct {
	Secret fhe.Handle    `json:"secret"`
	Proof  hexutil.Bytes `json:"proof"`
}

// SubmissionResponse reports a forwarded submission.
type SubmissionResponse struct {
	TxID        *common.Hash `json:"txId,omitempty"`
	ChallengeID *common.Hash `json:"challengeId,omitempty"`
	MessageHash common.Hash  `json:"messageHash,omitempty"`
}

// ErrorBody is the error payload of every failed request.
type ErrorBody struct {
	Kind    ledgererrors.Kind `json:"kind"`
	Check   Check             `json:"check,omitempty"`
	Message string            `json:"message"`
	Details string            `json:"details,omitempty"`
	TxID    *common.Hash      `json:"txId,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// Server is the relayer submission endpoint. Submissions are pre-validated
// and forwarded unchanged to the ledger.
type Server struct {
	client    LedgerClient
	validator *Validator
	journal   *Journal
	limiter   *RateLimiter
	http      *observability.HTTPMetrics
	metrics   *observability.RelayerMetrics
	minFee    uint64
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewServer wires a relayer. journal may be nil to disable duplicate
// detection.
func NewServer(cfg Config, client LedgerClient, journal *Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relayer")
	return &Server{
		client:    client,
		validator: NewValidator(cfg.Domain, client, cfg.OwnerTimeout.Duration),
		journal:   journal,
		limiter:   NewRateLimiter(cfg.RateLimit, logger),
		http:      observability.NewHTTPMetrics(observability.HTTPMetricsConfig{ServiceName: "vledger-relayer", MetricsPrefix: "relayer"}, logger),
		metrics:   observability.Relayer(),
		minFee:    cfg.MinPriorityFee,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the clock used by the validator and the journal.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
	s.validator.SetNowFunc(now)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.http.Handler())
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)
		v1.With(s.http.Middleware("transfers")).Post("/transfers", s.handleTransfer)
		v1.With(s.http.Middleware("payments")).Post("/payments", s.handlePayment)
		v1.Route("/secure-transfers", func(sr chi.Router) {
			sr.Use(s.http.Middleware("secure-transfers"))
			sr.Post("/", s.handleSecureRequest)
			sr.Get("/{id}", s.handleChallengeGet)
			sr.Post("/{id}/complete", s.handleSecureComplete)
			sr.Post("/{id}/cancel", s.handleSecureCancel)
		})
		v1.With(s.http.Middleware("accounts")).Get("/accounts/{vaddr}/nonce", s.handleNonce)
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var sub TransferSubmission
	if !s.decode(w, r, &sub) {
		return
	}
	s.submitIntent(w, r, routeTransfer, sub, func(ctx context.Context) (SubmissionResponse, error) {
		txID, err := s.client.SubmitTransfer(ctx, sub.Intent, sub.Proof, sub.Signature)
		return SubmissionResponse{TxID: &txID}, err
	})
}

func (s *Server) handleSecureRequest(w http.ResponseWriter, r *http.Request) {
	var sub TransferSubmission
	if !s.decode(w, r, &sub) {
		return
	}
	s.submitIntent(w, r, routeSecure, sub, func(ctx context.Context) (SubmissionResponse, error) {
		id, err := s.client.RequestSecureTransfer(ctx, sub.Intent, sub.Proof, sub.Signature)
		return SubmissionResponse{ChallengeID: &id}, err
	})
}

func (s *Server) submitIntent(w http.ResponseWriter, r *http.Request, route string, sub TransferSubmission, forward func(context.Context) (SubmissionResponse, error)) {
	ciphertext := sub.Ciphertext
	if ciphertext.IsZero() {
		ciphertext = sub.Intent.AmountHandle
	}
	intent := sub.Intent
	params := Params{Transfer: &intent, Quantity: sub.Quantity, PriorityFee: sub.PriorityFee}
	hash := s.validator.domain.TransferHash(sub.Intent)
	s.submit(w, r, route, hash, params, sub.Signature, ciphertext, forward)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var sub PaymentSubmission
	if !s.decode(w, r, &sub) {
		return
	}
	ciphertext := sub.Ciphertext
	if ciphertext.IsZero() {
		ciphertext = sub.Request.AmountHandle
	}
	req := sub.Request
	params := Params{Payment: &req, PriorityFee: sub.PriorityFee}
	hash := s.validator.domain.PaymentHash(sub.Request)
	s.submit(w, r, routePayment, hash, params, sub.Signature, ciphertext, func(ctx context.Context) (SubmissionResponse, error) {
		txID, err := s.client.SubmitPayment(ctx, sub.Request, sub.Proof, sub.Signature)
		return SubmissionResponse{TxID: &txID}, err
	})
}

// submit runs the pre-validator, the duplicate journal and then forward. A
// rejected submission never reaches the ledger.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, route string, hash common.Hash, params Params, signature []byte, ciphertext fhe.Handle, forward func(context.Context) (SubmissionResponse, error)) {
	ctx := r.Context()
	res := s.validator.Validate(ctx, params, signature, ciphertext, s.minFee)
	s.metrics.ObserveValidation(string(res.FailedCheck), res.Kind.String(), res.Valid)
	if !res.Valid {
		s.logger.Info("submission rejected", "route", route, "check", res.FailedCheck, "kind", res.Kind.String(),
			"message_hash", hash.Hex(), logging.Fingerprint("signature", hexutil.Encode(signature)))
		s.writeFailure(w, ErrorBody{Kind: res.Kind, Check: res.FailedCheck, Details: res.Details})
		return
	}

	if s.journal != nil {
		entry, err := s.journal.Lookup(hash)
		if err != nil {
			s.logger.Error("journal lookup failed", "error", err)
		} else if entry != nil {
			txID := entry.TxID
			s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindAlreadyExists, Details: "submission already forwarded", TxID: &txID})
			return
		}
	}

	start := s.nowFn()
	out, err := forward(ctx)
	s.metrics.ObserveForward(route, ledgererrors.KindOf(err).String(), s.nowFn().Sub(start))
	if err != nil {
		s.writeLedgerFailure(w, route, err)
		return
	}
	out.MessageHash = hash
	if s.journal != nil {
		var recorded common.Hash
		switch {
		case out.TxID != nil:
			recorded = *out.TxID
		case out.ChallengeID != nil:
			recorded = *out.ChallengeID
		}
		if err := s.journal.Record(hash, JournalEntry{TxID: recorded, Route: route, ObservedAt: s.nowFn()}); err != nil {
			s.logger.Error("journal record failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSecureComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}
	var sub CompleteSubmission
	if !s.decode(w, r, &sub) {
		return
	}
	txID, err := s.client.CompleteSecureTransfer(r.Context(), id, sub.Secret, sub.Proof)
	if err != nil {
		s.writeLedgerFailure(w, routeSecure, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmissionResponse{TxID: &txID, ChallengeID: &id})
}

func (s *Server) handleSecureCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}
	if err := s.client.CancelSecureTransfer(r.Context(), id); err != nil {
		s.writeLedgerFailure(w, routeSecure, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.StatusResult{OK: true})
}

func (s *Server) handleChallengeGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.challengeID(w, r)
	if !ok {
		return
	}
	challenge, err := s.client.Challenge(r.Context(), id)
	if err != nil {
		s.writeLedgerFailure(w, routeSecure, err)
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	vaddr, err := types.ParseVAddr(chi.URLParam(r, "vaddr"))
	if err != nil {
		s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindInvalidArgument, Details: err.Error()})
		return
	}
	nonce, err := s.client.Nonce(r.Context(), vaddr)
	if err != nil {
		s.writeLedgerFailure(w, "nonce", err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.NonceResult{VAddr: vaddr, Nonce: nonce})
}

func (s *Server) challengeID(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := chi.URLParam(r, "id")
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindInvalidArgument, Details: fmt.Sprintf("invalid challenge id %q", raw)})
		return common.Hash{}, false
	}
	return common.BytesToHash(decoded), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindInvalidArgument, Details: "request body too large"})
			return false
		}
		s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindInvalidArgument, Details: "failed to read request body"})
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.writeFailure(w, ErrorBody{Kind: ledgererrors.KindInvalidArgument, Details: fmt.Sprintf("invalid JSON payload: %v", err)})
		return false
	}
	return true
}

func (s *Server) writeLedgerFailure(w http.ResponseWriter, route string, err error) {
	kind := ledgererrors.KindOf(err)
	body := ErrorBody{Kind: kind}
	if kind == ledgererrors.KindInternal {
		s.logger.Error("ledger call failed", "route", route, "error", err)
	} else {
		body.Details = err.Error()
	}
	s.writeFailure(w, body)
}

func (s *Server) writeFailure(w http.ResponseWriter, body ErrorBody) {
	body.Message = UserMessage(body.Kind)
	writeJSON(w, rpc.StatusForKind(body.Kind), errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Serve runs the relayer until ctx is cancelled, pruning the journal
// periodically.
func (s *Server) Serve(ctx context.Context, addr string, retention time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relayer listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			if s.journal == nil || retention <= 0 {
				continue
			}
			removed, err := s.journal.Prune(ctx, s.nowFn().Add(-retention))
			if err != nil {
				s.logger.Warn("journal prune failed", "error", err)
				continue
			}
			s.logger.Debug("journal pruned", "removed", removed)
		}
	}
}
