package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/x1-rewards/pkg/metrics"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// MaxBatchSize is the maximum number of calls in one batch.
	MaxBatchSize int

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	// RateLimitRPS is the per-IP request rate; zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	Version VersionResult
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        "127.0.0.1:8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 1 << 20,
		MaxBatchSize:   100,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// Server is a JSON-RPC 2.0 server over a rewards deployment.
type Server struct {
	config   ServerConfig
	handlers *Handlers
	router   *chi.Mux
	log      *logrus.Entry

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server reading from backend.
func NewServer(config ServerConfig, backend Backend) *Server {
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = DefaultServerConfig().MaxRequestSize
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultServerConfig().MaxBatchSize
	}

	s := &Server{
		config:   config,
		handlers: NewHandlers(backend, config.Version),
		router:   chi.NewRouter(),
		log:      logrus.StandardLogger().WithField("type", "rpc/server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400,
	}))
	if s.config.RateLimitRPS > 0 {
		limiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
		s.router.Use(limiter.Middleware)
	}

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.router.Post("/", s.handleRequest)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("rpc server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.config.Address)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("rpc server stopped")
		}
	}(s.server)

	s.log.WithFields(logrus.Fields{
		"addr":    listener.Addr().String(),
		"methods": s.handlers.Methods(),
	}).Info("rpc server started")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// handleRequest processes a single call or a batch.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, errorResponse(nil, NewRPCError(InvalidRequest, "failed to read request body")))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(w, body)
		return
	}
	s.writeResponse(w, s.processRequest(body))
}

func (s *Server) handleBatchRequest(w http.ResponseWriter, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		s.writeResponse(w, errorResponse(nil, NewRPCError(ParseError, "invalid JSON")))
		return
	}
	if len(requests) == 0 {
		s.writeResponse(w, errorResponse(nil, NewRPCError(InvalidRequest, "empty batch")))
		return
	}
	if len(requests) > s.config.MaxBatchSize {
		s.writeResponse(w, errorResponse(nil, NewRPCError(InvalidRequest,
			fmt.Sprintf("batch of %d exceeds limit %d", len(requests), s.config.MaxBatchSize))))
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(reqBody)
		// Notifications (no id) get no response.
		if response.ID != nil || response.Error != nil {
			responses = append(responses, response)
		}
	}
	s.writeResponse(w, responses)
}

func (s *Server) processRequest(body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return errorResponse(nil, NewRPCError(ParseError, "invalid JSON"))
	}
	if request.JSONRPC != JSONRPCVersion {
		return errorResponse(request.ID, NewRPCError(InvalidRequest, "invalid jsonrpc version"))
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		metrics.RPCRequestsTotal.WithLabelValues("unknown", metrics.StatusFailed).Inc()
		return errorResponse(request.ID, NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)))
	}

	result, rpcErr := handler(request.Params)
	if rpcErr != nil {
		metrics.RPCRequestsTotal.WithLabelValues(request.Method, metrics.StatusFailed).Inc()
		return errorResponse(request.ID, rpcErr)
	}
	metrics.RPCRequestsTotal.WithLabelValues(request.Method, metrics.StatusSuccess).Inc()
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: result, ID: request.ID}
}

func errorResponse(id interface{}, rpcErr *RPCError) RPCResponse {
	return RPCResponse{JSONRPC: JSONRPCVersion, Error: rpcErr, ID: id}
}

func (s *Server) writeResponse(w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}
