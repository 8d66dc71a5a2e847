package ntsadapt

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nefrols/nts-mcp-fs/internal/engine"
	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// serverRequestIDFloor is where the adapter's own server-to-client request
// ids start, per spec §6 ("responses are matched by numeric id >= 1000"),
// keeping them out of the range a well-behaved client assigns its own
// requests.
const serverRequestIDFloor = 1000

// Server runs the line-delimited JSON-RPC stdio loop (spec §6) against one
// Engine. All writes to the output stream are serialised so that no two
// JSON messages interleave on the byte stream (spec §5).
type Server struct {
	eng *engine.Engine

	writeMu sync.Mutex
	out     *json.Encoder

	nextServerID atomic.Int64
	pendingMu    sync.Mutex
	pending      map[int64]chan inbound

	initialized atomic.Bool
}

// NewServer builds a Server around eng.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{eng: eng, pending: make(map[int64]chan inbound)}
	s.nextServerID.Store(serverRequestIDFloor)
	return s
}

// Serve runs the read loop against r, writing responses to w, until r is
// exhausted or ctx is cancelled. One JSON object per line in both
// directions (spec §6).
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.out = json.NewEncoder(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			s.write(errorResponse(nil, codeInvalidParams, fmt.Sprintf("invalid JSON: %v", err)))
			continue
		}
		s.handle(ctx, msg)
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, msg inbound) {
	if msg.isResponse() {
		s.routeResponse(msg)
		return
	}

	start := time.Now()
	ctx = logging.WithComponent(ctx, "ntsadapt")
	logging.Debug(ctx, "request received", "method", msg.Method)

	result, rpcErr := s.dispatch(ctx, msg)

	if msg.isNotification() {
		return // notifications never produce a response (spec §6)
	}
	if rpcErr != nil {
		s.write(errorResponse(msg.ID, rpcErr.Code, rpcErr.Message))
	} else {
		s.write(successResponse(msg.ID, result))
	}
	logging.LogDuration(ctx, slog.LevelDebug, "request handled", start, "method", msg.Method)
}

// dispatch routes one request/notification to its handler (spec §6
// "Required methods").
func (s *Server) dispatch(ctx context.Context, msg inbound) (any, *rpcError) {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(ctx, msg.Params)
	case "notifications/initialized":
		s.initialized.Store(true)
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.handleToolsList()
	case "tools/call":
		return s.handleToolsCall(ctx, msg.Params)
	case "resources/list":
		return map[string]any{"resources": []any{}}, nil
	case "prompts/list":
		return map[string]any{"prompts": []any{}}, nil
	case "logging/setLevel":
		return map[string]any{}, nil
	case "notifications/roots/list_changed":
		s.refreshRoots(ctx)
		return nil, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)}
	}
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	logging.Info(ctx, "initialize", "params", string(params))
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
			"logging":   map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "nts-mcp-fs",
			"version": "0.1.0",
		},
	}, nil
}

// write serialises one message to the output stream under writeMu (spec §5:
// writes to the response stream are serialised across all tasks).
func (s *Server) write(msg outbound) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.out.Encode(msg); err != nil {
		logging.Error(context.Background(), "writing response failed", "err", err)
	}
}

// requestRoots issues a roots/list server-to-client request (spec §6) and
// blocks (with a timeout) for the matching response.
func (s *Server) requestRoots(ctx context.Context) ([]string, error) {
	id := s.nextServerID.Add(1)
	ch := make(chan inbound, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	s.writeServerRequest(id, "roots/list", nil)

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, ntserr.New(ntserr.KindInternal, "roots/list failed: %s", resp.Error.Message)
		}
		var payload struct {
			Roots []struct {
				URI string `json:"uri"`
			} `json:"roots"`
		}
		if err := json.Unmarshal(resp.Result, &payload); err != nil {
			return nil, ntserr.Wrap(ntserr.KindInternal, err, "decoding roots/list response")
		}
		out := make([]string, 0, len(payload.Roots))
		for _, r := range payload.Roots {
			out = append(out, r.URI)
		}
		return out, nil
	case <-time.After(5 * time.Second):
		return nil, ntserr.New(ntserr.KindTimeout, "roots/list timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeServerRequest sends a server-to-client request with the given id,
// bypassing the response-shaped outbound struct used for client replies.
func (s *Server) writeServerRequest(id int64, method string, params any) {
	idBytes, _ := json.Marshal(id)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.out.Encode(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  any             `json:"params,omitempty"`
	}{JSONRPC: jsonrpcVersion, ID: idBytes, Method: method, Params: params})
}

func (s *Server) routeResponse(msg inbound) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return
	}
	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- msg
}

// refreshRoots re-issues roots/list and swaps the Path Registry's root set
// atomically (spec §4.1 "Root set is replaceable at runtime").
func (s *Server) refreshRoots(ctx context.Context) {
	roots, err := s.requestRoots(ctx)
	if err != nil || len(roots) == 0 {
		logging.Warn(ctx, "roots refresh failed or returned nothing", "err", err)
		return
	}
	s.eng.Paths.SetRoots(roots[0], roots[1:]...)
	logging.Info(ctx, "roots refreshed", "roots", roots)
}
