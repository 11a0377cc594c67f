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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"github.com/efchatnet/efrelay/backend/config"
	"github.com/efchatnet/efrelay/backend/integration"
)

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "efrelay",
	Short: "Runs the efchat peer to peer chat relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return errors.WithMessage(err, "invalid configuration")
		}
		initLog(cfg.LogLevel, cfg.LogPath)
		return run(cfg)
	},
}

func run(cfg *config.Config) error {
	relayConfig := &integration.Config{
		JWTSecret:      cfg.JWTSecret,
		JWTIssuer:      cfg.JWTIssuer,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		RateWindow:     cfg.RateWindow,
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "failed to connect to database")
		}
		defer db.Close()
		relayConfig.DB = db
	} else {
		jww.INFO.Printf("No database configured, identities are known only while online")
	}

	if cfg.RedisURL != "" {
		rdb := newRedisClient(cfg.RedisURL)
		defer rdb.Close()
		relayConfig.Redis = rdb
	} else {
		jww.INFO.Printf("No redis configured, request gate is per process")
	}

	relayIntegration, err := integration.NewRelayIntegration(relayConfig)
	if err != nil {
		return err
	}
	if err := relayIntegration.ValidateSetup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	relayIntegration.Start(ctx)

	r := mux.NewRouter()
	relayIntegration.RegisterRoutes(r, nil)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		jww.INFO.Printf("Relay server starting on port %s", cfg.Port)
		jww.INFO.Printf("JWT Issuer: %s", cfg.JWTIssuer)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed to start")
		}
		return nil
	case <-ctx.Done():
	}

	jww.INFO.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// REDIS_URL may be a redis:// URL or a bare host:port.
func newRedisClient(raw string) *redis.Client {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		opts = &redis.Options{Addr: raw}
	}
	return redis.NewClient(opts)
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "8081", "Port to listen on")
	flags.String("database-url", "", "Postgres URL for the identity registry, empty keeps identities in memory")
	flags.String("redis-url", "", "Redis URL for the shared request gate, empty gates per process")
	flags.String("jwt-secret", "", "HS256 secret for session tokens, empty disables authentication")
	flags.String("jwt-issuer", "efchat", "Expected token issuer")
	flags.Duration("request-timeout", 2*time.Minute, "How long a chat request stays pending")
	flags.Int("rate-limit", 50, "Requests allowed per client IP per window")
	flags.Duration("rate-window", time.Minute, "Request gate window")
	flags.Int("send-buffer", 64, "Events queued per connection before dropping")
	flags.StringSlice("allowed-origins", []string{"*"}, "Allowed CORS and websocket origins")
	flags.UintP("log-level", "v", 0, "Verbose mode for debugging")
	flags.StringP("log", "l", "-", "Path to the log output path (- is stdout)")

	for key, flag := range map[string]string{
		config.KeyPort:           "port",
		config.KeyDatabaseURL:    "database-url",
		config.KeyRedisURL:       "redis-url",
		config.KeyJWTSecret:      "jwt-secret",
		config.KeyJWTIssuer:      "jwt-issuer",
		config.KeyRequestTimeout: "request-timeout",
		config.KeyRateLimit:      "rate-limit",
		config.KeyRateWindow:     "rate-window",
		config.KeySendBuffer:     "send-buffer",
		config.KeyAllowedOrigins: "allowed-origins",
		config.KeyLogLevel:       "log-level",
		config.KeyLog:            "log",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}
