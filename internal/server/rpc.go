package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bridgeport-dev/bridgeport/internal/event"
	"github.com/bridgeport-dev/bridgeport/internal/tool"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleRPC dispatches a JSON-RPC 2.0 call to the tool registry. The method
// name is the tool name, params are passed through as raw JSON.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, rpcParseError, "parse error")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, rpcInvalidRequest, "invalid request")
		return
	}

	callID := ulid.Make().String()
	start := time.Now()
	result, err := s.toolReg.Execute(r.Context(), req.Method, req.Params)
	duration := time.Since(start)

	if s.bus != nil {
		data := event.ToolExecutedData{
			CallID:     callID,
			Tool:       req.Method,
			DurationMs: duration.Milliseconds(),
		}
		if err != nil {
			data.Err = err.Error()
		}
		s.bus.Publish(event.Event{Type: event.ToolExecuted, Data: data})
	}

	if err != nil {
		switch {
		case errors.Is(err, tool.ErrUnknownTool):
			writeRPCError(w, req.ID, rpcMethodNotFound, err.Error())
		case errors.Is(err, tool.ErrToolDisabled):
			writeRPCError(w, req.ID, rpcMethodNotFound, err.Error())
		default:
			writeRPCError(w, req.ID, rpcInternalError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	})
}

// writeRPCError writes a JSON-RPC error response. Transport-level status is
// always 200; errors live in the envelope.
func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}
