// Package rpc exposes the raffle over JSON-RPC 2.0. The server routes
// a fixed method table, supports batch requests up to a configured
// size, and caps request body size.
package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/raffled/raffled/log"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError covers application-level failures such as a
	// rejected entry.
	CodeServerError = -32000
)

// Request is a parsed JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Handler processes the params of one method call.
type Handler func(params json.RawMessage) (interface{}, *Error)

// Config holds server limits.
type Config struct {
	// MaxBatchSize is the maximum number of requests in one batch.
	MaxBatchSize int
	// MaxRequestSize is the maximum request body size in bytes.
	MaxRequestSize int64
}

// DefaultConfig returns limits suitable for a local service.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:   100,
		MaxRequestSize: 1 << 20, // 1 MB
	}
}

// Server is a JSON-RPC 2.0 HTTP handler with a fixed method table.
// Register all methods before serving; the table is not guarded.
type Server struct {
	cfg     Config
	methods map[string]Handler
	log     *log.Logger
}

// NewServer creates a server with an empty method table.
func NewServer(cfg Config, logger *log.Logger) *Server {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultConfig().MaxRequestSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		methods: make(map[string]Handler),
		log:     logger.Module("rpc"),
	}
}

// Register adds a method to the table, replacing any existing handler.
func (s *Server) Register(method string, h Handler) {
	s.methods[method] = h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestSize))
	if err != nil {
		writeJSON(w, errorResponse(nil, CodeParseError, "failed to read body"))
		return
	}

	if isBatch(body) {
		s.serveBatch(w, body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse(nil, CodeParseError, "invalid JSON"))
		return
	}
	writeJSON(w, s.handle(&req))
}

func (s *Server) serveBatch(w http.ResponseWriter, body []byte) {
	var reqs []Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		writeJSON(w, errorResponse(nil, CodeParseError, "invalid JSON batch"))
		return
	}
	if len(reqs) == 0 {
		writeJSON(w, errorResponse(nil, CodeInvalidRequest, "empty batch"))
		return
	}
	if len(reqs) > s.cfg.MaxBatchSize {
		writeJSON(w, errorResponse(nil, CodeInvalidRequest, "batch too large"))
		return
	}

	resps := make([]*Response, len(reqs))
	for i := range reqs {
		resps[i] = s.handle(&reqs[i])
	}
	writeJSON(w, resps)
}

// handle dispatches one request.
func (s *Server) handle(req *Request) *Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "not a JSON-RPC 2.0 request")
	}
	h, ok := s.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method "+req.Method)
	}

	result, rpcErr := h(req.Params)
	if rpcErr != nil {
		s.log.Debug("method failed", "method", req.Method, "code", rpcErr.Code, "msg", rpcErr.Message)
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// isBatch reports whether the body starts with '[' after whitespace.
func isBatch(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '['
		}
	}
	return false
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg}}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
