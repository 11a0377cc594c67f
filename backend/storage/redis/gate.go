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

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efrelay/backend/storage"
)

const (
	// Redis key prefixes
	gatePrefix = "relay:gate:" // relay:gate:{ip} - request counter for the current window
)

// Gate is a fixed-window request counter shared by every relay instance
// that talks to the same redis.
type Gate struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

var _ storage.Gate = (*Gate)(nil)

func NewGate(rdb *redis.Client, limit int, window time.Duration) *Gate {
	return &Gate{
		rdb:    rdb,
		limit:  int64(limit),
		window: window,
	}
}

// Allow counts one request for key and reports whether it fits the window.
func (g *Gate) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := gatePrefix + key

	var incr *redis.IntCmd
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, counterKey)
		// only the first request of a window sets the expiry
		pipe.ExpireNX(ctx, counterKey, g.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}

	return incr.Val() <= g.limit, nil
}

// Reset forgets the counter for key.
func (g *Gate) Reset(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, gatePrefix+key).Err()
}

func (g *Gate) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
