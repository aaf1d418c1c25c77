package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vledger/core"
	"vledger/core/events"
	"vledger/crypto/fhe"
	"vledger/indexer"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

// ServerConfig wires optional server features.
type ServerConfig struct {
	Auth AuthConfig
	// CallerSkew bounds the age of caller signatures. Defaults to one minute.
	CallerSkew time.Duration
	// Plaintext enables the dev encrypt/decrypt helpers when set.
	Plaintext *fhe.Plaintext
	// Events feeds the websocket stream. The stream is disabled when nil.
	Events *events.Broadcaster
	// Index serves the history queries. They are not routed when nil.
	Index  *indexer.Store
	Logger *slog.Logger
	NowFn  func() time.Time
}

// Server exposes the ledger over JSON-RPC 2.0.
type Server struct {
	ledger     *core.Ledger
	auth       AuthConfig
	callerSkew time.Duration
	plaintext  *fhe.Plaintext
	events     *events.Broadcaster
	index      *indexer.Store
	logger     *slog.Logger
	nowFn      func() time.Time

	callerMu   sync.Mutex
	callerSeen map[common.Hash]time.Time

	methods map[string]method
}

// access describes who may invoke a method.
type access uint8

const (
	accessPublic access = iota
	accessCaller
	accessAdmin
)

type handlerFunc func(ctx context.Context, caller common.Address, raw json.RawMessage) (interface{}, error)

type method struct {
	access  access
	handler handlerFunc
}

func NewServer(ledger *core.Ledger, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	skew := cfg.CallerSkew
	if skew <= 0 {
		skew = defaultCallerSkew
	}
	s := &Server{
		ledger:     ledger,
		auth:       cfg.Auth.withDefaults(),
		callerSkew: skew,
		plaintext:  cfg.Plaintext,
		events:     cfg.Events,
		index:      cfg.Index,
		logger:     logger.With("component", "rpc"),
		nowFn:      nowFn,
		callerSeen: make(map[common.Hash]time.Time),
	}
	s.methods = s.routes()
	return s
}

func (s *Server) now() time.Time { return s.nowFn() }

// Handler returns the HTTP surface: JSON-RPC on POST /, the event stream on
// /ws and a health check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.events != nil {
		r.Get("/ws", s.handleEventsWS)
	}
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "vledger.rpc")
}

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
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
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload"})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version"})
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)})
		return
	}
	var raw json.RawMessage
	if len(req.Params) > 0 {
		raw = req.Params[0]
	}

	var caller common.Address
	switch m.access {
	case accessAdmin:
		admin, rpcErr := s.authenticateAdmin(r)
		if rpcErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, rpcErr)
			return
		}
		caller = admin
	case accessCaller:
		identity, err := s.authenticateCaller(r, req.Method, raw)
		if err != nil {
			writeLedgerError(w, req.ID, err)
			return
		}
		caller = identity
	}

	result, err := m.handler(r.Context(), caller, raw)
	if err != nil {
		var paramErr *paramsError
		if errors.As(err, &paramErr) {
			writeInvalidParams(w, req.ID, paramErr.msg, paramErr.err)
			return
		}
		s.logger.Debug("rpc call failed", "method", req.Method, "error", err)
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

type paramsError struct {
	msg string
	err error
}

func (e *paramsError) Error() string { return e.msg }

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &paramsError{msg: "params required"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &paramsError{msg: "invalid params", err: err}
	}
	return nil
}
