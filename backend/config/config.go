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

package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Viper keys
const (
	KeyPort           = "port"
	KeyDatabaseURL    = "database_url"
	KeyRedisURL       = "redis_url"
	KeyJWTSecret      = "jwt_secret"
	KeyJWTIssuer      = "jwt_issuer"
	KeyRequestTimeout = "request_timeout"
	KeyRateLimit      = "rate_limit"
	KeyRateWindow     = "rate_window"
	KeySendBuffer     = "send_buffer"
	KeyPingInterval   = "ping_interval"
	KeyAllowedOrigins = "allowed_origins"
	KeyLogLevel       = "log_level"
	KeyLog            = "log"
)

// Config is the resolved server configuration.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	JWTIssuer      string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	SendBuffer     int
	PingInterval   time.Duration
	AllowedOrigins []string
	LogLevel       uint
	LogPath        string
}

// SetDefaults registers defaults and the environment variable names on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8081")
	v.SetDefault(KeyJWTIssuer, "efchat")
	v.SetDefault(KeyRequestTimeout, 2*time.Minute)
	v.SetDefault(KeyRateLimit, 50)
	v.SetDefault(KeyRateWindow, time.Minute)
	v.SetDefault(KeySendBuffer, 64)
	v.SetDefault(KeyPingInterval, 30*time.Second)
	v.SetDefault(KeyAllowedOrigins, []string{"*"})
	v.SetDefault(KeyLogLevel, 0)
	v.SetDefault(KeyLog, "-")

	v.BindEnv(KeyPort, "PORT")
	v.BindEnv(KeyDatabaseURL, "DATABASE_URL")
	v.BindEnv(KeyRedisURL, "REDIS_URL")
	v.BindEnv(KeyJWTSecret, "JWT_SECRET")
	v.BindEnv(KeyJWTIssuer, "JWT_ISSUER")
	v.BindEnv(KeyAllowedOrigins, "ALLOWED_ORIGINS")

	v.SetEnvPrefix("EFRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:           v.GetString(KeyPort),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		RedisURL:       v.GetString(KeyRedisURL),
		JWTSecret:      v.GetString(KeyJWTSecret),
		JWTIssuer:      v.GetString(KeyJWTIssuer),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		RateLimit:      v.GetInt(KeyRateLimit),
		RateWindow:     v.GetDuration(KeyRateWindow),
		SendBuffer:     v.GetInt(KeySendBuffer),
		PingInterval:   v.GetDuration(KeyPingInterval),
		AllowedOrigins: splitOrigins(v.GetStringSlice(KeyAllowedOrigins)),
		LogLevel:       v.GetUint(KeyLogLevel),
		LogPath:        v.GetString(KeyLog),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must be set")
	}
	if c.RequestTimeout <= 0 {
		return errors.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RateLimit <= 0 {
		return errors.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return errors.Errorf("rate_window must be positive, got %s", c.RateWindow)
	}
	if c.SendBuffer <= 0 {
		return errors.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}

// Environment values arrive as one comma separated string.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, origin := range strings.Split(entry, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
