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
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *redis.Client {
	t.Helper()
	raw := os.Getenv("REDIS_URL")
	if raw == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		opts = &redis.Options{Addr: raw}
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestGateAllow(t *testing.T) {
	g := NewGate(openTestClient(t), 3, time.Minute)
	ctx := context.Background()
	key := "test-" + uuid.New().String()
	t.Cleanup(func() { g.Reset(ctx, key) })

	for i := 0; i < 3; i++ {
		ok, err := g.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := g.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := g.rdb.TTL(ctx, gatePrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, g.Reset(ctx, key))
	ok, err = g.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}
