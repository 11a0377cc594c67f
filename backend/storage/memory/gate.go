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

// Package memory holds the single-process fallbacks used when no redis is
// configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/efchatnet/efrelay/backend/storage"
)

type window struct {
	attempts    int
	lastAttempt time.Time
}

// Gate counts requests per key. A key's counter resets once more than the
// window has passed since its previous request.
type Gate struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	span    time.Duration
	now     func() time.Time
}

var _ storage.Gate = (*Gate)(nil)

func NewGate(limit int, span time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
		now:     now,
	}
}

func (g *Gate) Allow(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.windows[key]
	if !ok {
		w = &window{lastAttempt: now}
		g.windows[key] = w
	}
	if now.Sub(w.lastAttempt) > g.span {
		w.attempts = 0
	}
	w.attempts++
	w.lastAttempt = now

	return w.attempts <= g.limit, nil
}

// Sweep drops counters idle for longer than the window.
func (g *Gate) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for key, w := range g.windows {
		if now.Sub(w.lastAttempt) > g.span {
			delete(g.windows, key)
		}
	}
}
