package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"vledger/core/events"
	"vledger/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams ledger events as JSON text frames. The "types" query
// parameter restricts the stream to a comma separated list of event types and
// "vaddr" to events naming that address on either side.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.events == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseStreamFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

type streamFilter struct {
	types map[string]struct{}
	vaddr string
}

var vaddrAttributes = []string{"vaddr", "from", "to"}

func parseStreamFilter(q url.Values) (streamFilter, error) {
	var f streamFilter
	if raw := strings.TrimSpace(q.Get("types")); raw != "" {
		f.types = make(map[string]struct{})
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.types[part] = struct{}{}
			}
		}
	}
	if raw := strings.TrimSpace(q.Get("vaddr")); raw != "" {
		vaddr, err := types.ParseVAddr(raw)
		if err != nil {
			return f, fmt.Errorf("invalid vaddr: %w", err)
		}
		f.vaddr = vaddr.Hex()
	}
	return f, nil
}

func (f streamFilter) match(env *events.Envelope) bool {
	if f.types != nil {
		if _, ok := f.types[env.Type]; !ok {
			return false
		}
	}
	if f.vaddr == "" {
		return true
	}
	for _, key := range vaddrAttributes {
		if strings.EqualFold(env.Attributes[key], f.vaddr) {
			return true
		}
	}
	return false
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.events.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-updates:
			if !ok {
				return nil
			}
			if !filter.match(env) {
				continue
			}
			if err := writeEnvelope(ctx, conn, env); err != nil {
				return err
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
