package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"rosca/core"
	"rosca/crypto"
	"rosca/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "ROSCA_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handlerResult carries a handler outcome back to the dispatch loop so it can
// serialize the response and record metrics in one place.
type handlerResult struct {
	status int
	result interface{}
	err    *RPCError
}

func resultOK(result interface{}) handlerResult {
	return handlerResult{status: http.StatusOK, result: result}
}

func resultErr(status, code int, message string, data interface{}) handlerResult {
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	return handlerResult{status: status, err: errObj}
}

// Server exposes the circle operations over JSON-RPC 2.0. Mutating methods
// require the bearer token configured via ROSCA_RPC_TOKEN; queries stay open.
type Server struct {
	node      *core.Node
	authToken string
}

func NewServer(node *core.Node) *Server {
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	start := time.Now()
	res := s.dispatch(r, &req)
	outcome := "ok"
	if res.err != nil {
		outcome = "error"
	}
	observability.ModuleMetrics().Observe("circle", req.Method, outcome, time.Since(start))

	if res.err != nil {
		writeError(w, res.status, req.ID, res.err.Code, res.err.Message, res.err.Data)
		return
	}
	writeResult(w, req.ID, res.result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) handlerResult {
	switch req.Method {
	case "circle_create":
		return s.withAuth(r, req, s.handleCircleCreate)
	case "circle_join":
		return s.withAuth(r, req, s.handleCircleJoin)
	case "circle_deposit":
		return s.withAuth(r, req, s.handleCircleDeposit)
	case "circle_executeCycle":
		return s.withAuth(r, req, s.handleCircleExecuteCycle)
	case "circle_claim":
		return s.withAuth(r, req, s.handleCircleClaim)
	case "circle_pause":
		return s.withAuth(r, req, s.handleCirclePause)
	case "circle_unpause":
		return s.withAuth(r, req, s.handleCircleUnpause)
	case "circle_get":
		return s.handleCircleGet(req)
	case "circle_getMember":
		return s.handleCircleGetMember(req)
	case "token_balance":
		return s.handleTokenBalance(req)
	default:
		return resultErr(http.StatusNotFound, codeMethodNotFound, "method_not_found", req.Method)
	}
}

func (s *Server) withAuth(r *http.Request, req *RPCRequest, next func(*RPCRequest) handlerResult) handlerResult {
	if s.authToken == "" {
		return next(req)
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return resultErr(http.StatusUnauthorized, codeUnauthorized, "unauthorized", "bearer token required")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return resultErr(http.StatusUnauthorized, codeUnauthorized, "unauthorized", "invalid token")
	}
	return next(req)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func parseBech32Address(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	if decoded.Prefix() != crypto.RSCPrefix {
		return out, fmt.Errorf("unexpected address prefix %q", decoded.Prefix())
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func encodeAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.RSCPrefix, addr[:]).String()
}
