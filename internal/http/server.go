// Package http serves the worker's operational endpoints: health checks,
// Prometheus metrics and a small notification API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotificationStore is the read side of notifications exposed over HTTP.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

type requestIDKey struct{}

// Server is the ops HTTP server.
type Server struct {
	http.Server

	health        Pinger
	notifications NotificationStore
	logger        *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server. A nil
// notification store leaves the notification routes unregistered.
func NewServer(addr string, health Pinger, notifications NotificationStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		health:        health,
		notifications: notifications,
		logger:        logger,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	if notifications != nil {
		mux.HandleFunc("GET /api/users/{userID}/notifications", s.handleListNotifications)
		mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)
	}

	s.Handler = withRequestID(log.Middleware(logger)(mux))
	return s
}

// Shutdown gracefully shuts down the server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withRequestID tags each request with an id, reusing X-Request-ID when the
// caller sent one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
