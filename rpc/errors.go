package rpc

import (
	"encoding/json"
	"net/http"

	ledgererrors "vledger/core/errors"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeLedgerError    = -32010
)

// RPCError is the JSON-RPC error object. Ledger failures carry their kind in
// Data so clients can rebuild a typed error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    *RPCErrorDetail `json:"data,omitempty"`
}

type RPCErrorDetail struct {
	Kind    ledgererrors.Kind `json:"kind"`
	Details string            `json:"details,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// Err converts the wire error into a kind-tagged ledger error.
func (e *RPCError) Err() error {
	kind := ledgererrors.KindInternal
	if e.Data != nil && e.Data.Kind != ledgererrors.KindUnknown {
		kind = e.Data.Kind
	} else {
		switch e.Code {
		case codeUnauthorized:
			kind = ledgererrors.KindUnauthorized
		case codeInvalidParams, codeInvalidRequest, codeParseError:
			kind = ledgererrors.KindInvalidArgument
		}
	}
	return ledgererrors.New(kind, e.Message)
}

// StatusForKind maps a failure kind onto the HTTP status used by the node and
// the relayer.
func StatusForKind(kind ledgererrors.Kind) int {
	switch kind {
	case ledgererrors.KindNotFound, ledgererrors.KindNotRegistered, ledgererrors.KindNoSignerRegistered:
		return http.StatusNotFound
	case ledgererrors.KindAlreadyExists, ledgererrors.KindBadNonce:
		return http.StatusConflict
	case ledgererrors.KindUnauthorized:
		return http.StatusUnauthorized
	case ledgererrors.KindNotOwner, ledgererrors.KindInvalidSignature:
		return http.StatusForbidden
	case ledgererrors.KindExpired:
		return http.StatusGone
	case ledgererrors.KindUnavailable:
		return http.StatusServiceUnavailable
	case ledgererrors.KindInternal, ledgererrors.KindUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

// writeLedgerError reports err with its kind. Internal failures are not
// described to the caller.
func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	kind := ledgererrors.KindOf(err)
	message := err.Error()
	if kind == ledgererrors.KindInternal {
		message = "internal error"
	}
	writeError(w, StatusForKind(kind), id, &RPCError{
		Code:    codeLedgerError,
		Message: message,
		Data:    &RPCErrorDetail{Kind: kind},
	})
}

func writeInvalidParams(w http.ResponseWriter, id interface{}, message string, err error) {
	detail := &RPCErrorDetail{Kind: ledgererrors.KindInvalidArgument}
	if err != nil {
		detail.Details = err.Error()
	}
	writeError(w, http.StatusBadRequest, id, &RPCError{Code: codeInvalidParams, Message: message, Data: detail})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, &RPCError{Code: codeServerError, Message: "encode result"})
		return
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: raw})
}
