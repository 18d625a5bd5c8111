package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	port        int
	redisClient *redis.Client
	stream      string
	ready       func() bool
	logger      *zap.Logger
	server      *http.Server
}

// NewHealthServer creates a new health server. stream is the invocation
// stream whose consumer group must exist, ready reports whether the worker
// loop is running. Either may be empty or nil to skip the check.
func NewHealthServer(port int, redisClient *redis.Client, stream string, ready func() bool, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		port:        port,
		redisClient: redisClient,
		stream:      stream,
		ready:       ready,
		logger:      logger,
	}
}

// Handler returns the health endpoints
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	return mux
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports Redis connectivity and the invocation stream
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if err := hs.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = fmt.Sprintf("unhealthy: %v", err)
		healthy = false
	} else {
		checks["redis"] = "healthy"
	}

	if healthy && hs.stream != "" {
		groups, err := hs.redisClient.XInfoGroups(ctx, hs.stream).Result()
		switch {
		case err != nil:
			checks["stream"] = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
		case len(groups) == 0:
			checks["stream"] = "unhealthy: no consumer group"
			healthy = false
		default:
			checks["stream"] = "healthy"
		}
	}

	if !healthy {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Checks: checks,
	})
}

// handleReady reports whether the worker can take requests
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := hs.redisClient.Ping(ctx).Err(); err != nil {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
		})
		return
	}

	if hs.ready != nil && !hs.ready() {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
		})
		return
	}

	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
	})
}

// respondJSON writes a JSON response
func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
