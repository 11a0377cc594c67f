// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/handlers"
	"github.com/efchatnet/efrelay/backend/instrument"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/relay"
	"github.com/efchatnet/efrelay/backend/storage"
	"github.com/efchatnet/efrelay/backend/storage/memory"
	"github.com/efchatnet/efrelay/backend/storage/postgres"
	redisstore "github.com/efchatnet/efrelay/backend/storage/redis"
	"github.com/efchatnet/efrelay/backend/transport"
)

// RelayIntegration wires the chat relay into a router. It can run on its
// own or be embedded into efchat.
type RelayIntegration struct {
	service      *relay.Service
	store        *postgres.Store
	gate         storage.Gate
	memGate      *memory.Gate
	redis        *redis.Client
	wsHandler    *handlers.WSHandler
	queryHandler *handlers.QueryHandler
	config       *Config
}

// Config holds configuration for the relay integration. DB and Redis are
// optional.
type Config struct {
	DB             *sql.DB
	Redis          *redis.Client
	JWTSecret      string
	JWTIssuer      string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	SendBuffer     int
	PingInterval   time.Duration
	AllowedOrigins []string
}

// NewRelayIntegration creates the relay service and its storage. With a
// database the identity table is migrated.
func NewRelayIntegration(config *Config) (*RelayIntegration, error) {
	e := &RelayIntegration{config: config, redis: config.Redis}

	opts := relay.Options{RequestTimeout: config.RequestTimeout}
	if config.DB != nil {
		e.store = postgres.NewStore(config.DB)
		if err := e.store.Migrate(); err != nil {
			return nil, errors.WithMessage(err, "failed to migrate relay tables")
		}
		opts.Registry = e.store
	}
	e.service = relay.NewService(opts)

	if config.Redis != nil {
		e.gate = redisstore.NewGate(config.Redis, config.RateLimit, config.RateWindow)
	} else {
		e.memGate = memory.NewGate(config.RateLimit, config.RateWindow, nil)
		e.gate = e.memGate
	}

	e.wsHandler = handlers.NewWSHandler(e.service, transport.Config{
		SendBuffer:   config.SendBuffer,
		PingInterval: config.PingInterval,
	}, originPatterns(config.AllowedOrigins))
	e.queryHandler = handlers.NewQueryHandler(e.service)

	return e, nil
}

// RegisterRoutes adds relay routes to an existing router.
// If authMiddleware is nil and a JWT secret is configured, the built-in JWT
// validation is used. Without either the relay runs unauthenticated.
func (e *RelayIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	if authMiddleware == nil && e.config.JWTSecret != "" {
		authMiddleware = middleware.NewAuthMiddleware(e.config.JWTSecret, e.config.JWTIssuer)
	}

	ws := router.Path("/ws").Subrouter()
	api := router.PathPrefix("/api/relay").Subrouter()
	for _, sub := range []*mux.Router{ws, api} {
		sub.Use(middleware.RateLimit(e.gate))
		sub.Use(middleware.CORS(e.config.AllowedOrigins))
	}
	if authMiddleware != nil {
		ws.Use(authMiddleware)
		api.Use(authMiddleware)
	} else {
		jww.WARN.Printf("[Relay] No JWT secret configured, identities are not authenticated")
	}

	ws.Methods("GET").Handler(e.wsHandler)

	api.HandleFunc("/users", e.queryHandler.OnlineUsers).Methods("GET", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/messages", e.queryHandler.Messages).Methods("GET", "OPTIONS")
	api.HandleFunc("/blocks", e.queryHandler.Blocks).Methods("GET", "OPTIONS")

	// Health and metrics (no auth required)
	router.HandleFunc("/health", e.Health).Methods("GET")
	router.Handle("/metrics", instrument.Handler()).Methods("GET")
}

// Health reports whether the configured database and redis answer.
func (e *RelayIntegration) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if e.store != nil {
		if err := e.store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
	}
	if e.redis != nil {
		if err := e.redis.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Redis unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Start runs background upkeep until ctx is done. Only the in-process gate
// needs any.
func (e *RelayIntegration) Start(ctx context.Context) {
	if e.memGate == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(e.config.RateWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.memGate.Sweep()
			}
		}
	}()
}

// GetService returns the relay service
func (e *RelayIntegration) GetService() *relay.Service {
	return e.service
}

// ValidateSetup checks if the relay is properly configured
func (e *RelayIntegration) ValidateSetup() error {
	if e.config.RateLimit <= 0 || e.config.RateWindow <= 0 {
		return &ValidationError{Message: "rate limit and window must be positive"}
	}
	if e.config.SendBuffer <= 0 {
		return &ValidationError{Message: "send buffer must be positive"}
	}
	if e.config.JWTSecret != "" && e.config.JWTIssuer == "" {
		return &ValidationError{Message: "JWT issuer is not configured"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// coder/websocket matches origin hosts, not full origins.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
