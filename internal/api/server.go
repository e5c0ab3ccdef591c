package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/blockrank/blockrank/internal/api/docs"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/rpc"
	"github.com/blockrank/blockrank/internal/store"
)

// Ensure docs are initialized
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server is the query API HTTP server.
type Server struct {
	config *config.APIConfig
	server *http.Server
	log    *logger.Logger
}

// NewServer creates a new query API server over the entity store.
func NewServer(cfg *config.APIConfig, s *store.Store, engine *ranking.Engine,
	sources SourceCounter, rpcClient rpc.EthClient, log *logger.Logger) *Server {
	handler := NewHandler(s, engine, sources, rpcClient, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	mux.HandleFunc("GET /api/v1/blocks", handler.ListBlocks)
	mux.HandleFunc("GET /api/v1/blocks/{address}", handler.GetBlock)
	mux.HandleFunc("GET /api/v1/users/{address}", handler.GetUser)
	mux.HandleFunc("GET /api/v1/users/{address}/transactions", handler.GetUserTransactions)
	mux.HandleFunc("GET /api/v1/ranking/{level}", handler.GetRanking)

	// Swagger documentation endpoints
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	// Apply middleware
	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.RateLimit.Enabled {
		h = RateLimitMiddleware(&cfg.RateLimit)(h)
	}

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config: cfg,
		server: httpServer,
		log:    log,
	}
}

// Start runs the server until the context is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Query API server is disabled")
		return nil
	}

	s.log.Infof("Starting query API server on %s", s.config.ListenAddress)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("Query API server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down query API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("query API server shutdown error: %w", err)
	}

	s.log.Info("Query API server stopped")
	return nil
}
