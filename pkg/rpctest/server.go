// Package rpctest serves canned JSON-RPC responses for tests that exercise
// go-ethereum clients against a fake wallet or node.
package rpctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Handler answers one method call. Returning a non-nil *Error sends an error
// response instead of the result.
type Handler func(params []json.RawMessage) (interface{}, *Error)

// Server is an httptest server dispatching JSON-RPC calls by method name.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	params   map[string][][]json.RawMessage
}

func NewServer() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
		params:   make(map[string][][]json.RawMessage),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle registers a handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Result registers a handler that always returns result.
func (s *Server) Result(method string, result interface{}) {
	s.Handle(method, func([]json.RawMessage) (interface{}, *Error) { return result, nil })
}

// Fail registers a handler that always returns the given error.
func (s *Server) Fail(method string, code int, message string, data interface{}) {
	s.Handle(method, func([]json.RawMessage) (interface{}, *Error) {
		return nil, &Error{Code: code, Message: message, Data: data}
	})
}

// Calls returns how often method was invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Params returns the raw params of every call to method.
func (s *Server) Params(method string) [][]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]json.RawMessage, len(s.params[method]))
	copy(out, s.params[method])
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	s.params[req.Method] = append(s.params[req.Method], req.Params)
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if !ok {
		resp["error"] = Error{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
