package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"dscd/config"
	"dscd/native/dsc"
	"dscd/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError          = -32700
	codeInvalidRequest      = -32600
	codeMethodNotFound      = -32601
	codeInvalidParams       = -32602
	codeServerError         = -32000
	codeUnauthorized        = -32001
	codeRateLimited         = -32020
	codeHealthViolation     = -32030
	codeInsufficientFunds   = -32031
	codeLiquidationRejected = -32032
	codeOracleUnavailable   = -32040
)

// Server exposes the DSC engine operations over JSON-RPC 2.0.
type Server struct {
	engine *dsc.Engine
	logger *slog.Logger
	auth   *authenticator

	rateLimit rate.Limit
	rateBurst int
	mu        sync.Mutex
	visitors  map[string]*rate.Limiter
}

// NewServer constructs a server over the engine using the supplied settings.
func NewServer(engine *dsc.Engine, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	perSecond := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	if perSecond <= 0 {
		perSecond = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		engine:    engine,
		logger:    logger,
		auth:      newAuthenticator(cfg.Auth),
		rateLimit: perSecond,
		rateBurst: burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP handler tree: JSON-RPC at POST /, health probe and
// Prometheus metrics alongside, all wrapped for trace propagation.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/", s.handle)
	return otelhttp.NewHandler(router, "dscd.rpc")
}

// Start serves the handler tree on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "listen", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest models one JSON-RPC call.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse models the reply envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries the failure code and diagnostic message.
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

// handle is the main request handler that routes to specific methods.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(clientID(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = "request body too large"
		}
		writeError(w, status, nil, codeInvalidRequest, message, nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w}
	logger := s.logger.With("requestId", requestID, "method", req.Method)

	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(recorder, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		s.observe(req.Method, recorder, start)
		return
	}
	if mutating {
		if err := s.auth.authorize(r); err != nil {
			logger.Warn("request rejected", "error", err)
			writeError(recorder, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
			s.observe(req.Method, recorder, start)
			return
		}
	}

	handler(recorder, r.WithContext(r.Context()), &req, logger)
	s.observe(req.Method, recorder, start)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger)

func (s *Server) route(method string) (handlerFunc, bool) {
	switch method {
	case "dsc_depositCollateral":
		return s.handleDepositCollateral, true
	case "dsc_mintDsc":
		return s.handleMintDSC, true
	case "dsc_redeemCollateral":
		return s.handleRedeemCollateral, true
	case "dsc_redeemCollateralForDsc":
		return s.handleRedeemCollateralForDSC, true
	case "dsc_burnDsc":
		return s.handleBurnDSC, true
	case "dsc_liquidate":
		return s.handleLiquidate, true
	case "dsc_getAccountInformation":
		return s.handleGetAccountInformation, false
	case "dsc_healthFactor":
		return s.handleHealthFactor, false
	case "dsc_getPosition":
		return s.handleGetPosition, false
	case "dsc_getCollateralTokens":
		return s.handleGetCollateralTokens, false
	case "dsc_getUsdValue":
		return s.handleGetUSDValue, false
	default:
		return nil, false
	}
}

func (s *Server) observe(method string, recorder *statusRecorder, start time.Time) {
	outcome := "ok"
	code := ""
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
		code = fmt.Sprintf("%d", recorder.status)
	}
	if method == "" {
		method = "unknown"
	}
	observability.RPCMetrics().Observe(method, outcome, code, time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) allow(client string) bool {
	if s.rateLimit == rate.Inf {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.visitors[client]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
		s.visitors[client] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientID(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// constantTimeEqual avoids leaking token prefixes through timing.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
