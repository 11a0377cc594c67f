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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGateWindow(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	g := NewGate(50, time.Minute, c.now)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ok, err := g.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i+1)
	}
	ok, _ := g.Allow(ctx, "203.0.113.7")
	assert.False(t, ok)

	// quiet for longer than the window resets the counter
	c.advance(61 * time.Second)
	ok, _ = g.Allow(ctx, "203.0.113.7")
	assert.True(t, ok)
}

func TestGateSweep(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	g := NewGate(1, time.Minute, c.now)
	ctx := context.Background()

	g.Allow(ctx, "a")
	c.advance(30 * time.Second)
	g.Allow(ctx, "b")
	c.advance(45 * time.Second)

	g.Sweep()
	assert.NotContains(t, g.windows, "a")
	assert.Contains(t, g.windows, "b")
}
