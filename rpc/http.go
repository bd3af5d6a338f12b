package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dgmarket/core"
	"dgmarket/index"
	"dgmarket/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// RPCTokenEnv names the environment variable carrying the bearer token that
// guards mutating methods.
const RPCTokenEnv = "MARKETD_RPC_TOKEN"

type Server struct {
	node      *core.Node
	activity  *index.Store
	authToken string
	logger    *slog.Logger
}

func NewServer(node *core.Node, activity *index.Store, logger *slog.Logger) *Server {
	token := strings.TrimSpace(os.Getenv(RPCTokenEnv))
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		activity:  activity,
		authToken: token,
		logger:    logger,
	}
}

// Handler returns the HTTP handler serving JSON-RPC on "/" and Prometheus
// metrics on "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return &authError{Code: codeUnauthorized, Message: "rpc auth token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &authError{Code: codeUnauthorized, Message: "invalid auth token"}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
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
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	s.dispatch(recorder, r, req)
	observability.ModuleMetrics().Observe(moduleForMethod(req.Method), req.Method, recorder.status, time.Since(started))
}

func moduleForMethod(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return "unknown"
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "market_sell":
		s.withAuth(w, r, req, s.handleMarketSell)
	case "market_cancel":
		s.withAuth(w, r, req, s.handleMarketCancel)
	case "market_buy":
		s.withAuth(w, r, req, s.handleMarketBuy)
	case "market_setFee":
		s.withAuth(w, r, req, s.handleMarketSetFee)
	case "market_setFeeOwner":
		s.withAuth(w, r, req, s.handleMarketSetFeeOwner)
	case "market_transferOwnership":
		s.withAuth(w, r, req, s.handleMarketTransferOwnership)
	case "market_pause":
		s.withAuth(w, r, req, s.handleMarketPause)
	case "market_resume":
		s.withAuth(w, r, req, s.handleMarketResume)
	case "market_withdrawToken":
		s.withAuth(w, r, req, s.handleMarketWithdrawToken)
	case "market_withdrawAsset":
		s.withAuth(w, r, req, s.handleMarketWithdrawAsset)
	case "token_mint":
		s.withAuth(w, r, req, s.handleTokenMint)
	case "token_approve":
		s.withAuth(w, r, req, s.handleTokenApprove)
	case "collection_mint":
		s.withAuth(w, r, req, s.handleCollectionMint)
	case "collection_setApprovalForAll":
		s.withAuth(w, r, req, s.handleCollectionSetApprovalForAll)
	case "market_getPrice":
		s.handleMarketGetPrice(w, req)
	case "market_isActive":
		s.handleMarketIsActive(w, req)
	case "market_getListing":
		s.handleMarketGetListing(w, req)
	case "market_getParams":
		s.handleMarketGetParams(w, req)
	case "market_listActivity":
		s.handleMarketListActivity(w, req)
	case "token_balanceOf":
		s.handleTokenBalanceOf(w, req)
	case "collection_ownerOf":
		s.handleCollectionOwnerOf(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest, handler func(http.ResponseWriter, *RPCRequest)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	handler(w, req)
}
