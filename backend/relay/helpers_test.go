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

package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []models.Event
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(evt models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *fakeConn) of(eventType string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, eventType string) models.Event {
	t.Helper()
	evts := c.of(eventType)
	require.NotEmpty(t, evts, "no %s event on %s", eventType, c.id)
	return evts[len(evts)-1]
}

// manualTimers collects scheduled expiry callbacks instead of running them.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualTimers) afterFunc(_ time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, f)
	return nil
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func newTestService(t *testing.T) (*Service, *manualTimers) {
	t.Helper()
	s := NewService(Options{})
	timers := &manualTimers{}
	s.afterFunc = timers.afterFunc
	return s, timers
}

func join(t *testing.T, s *Service, identity string) *fakeConn {
	t.Helper()
	c := newFakeConn("conn-" + identity)
	require.NoError(t, s.Join(context.Background(), c, identity))
	return c
}

// startChat runs a full request/accept between a and b and returns the room.
func startChat(t *testing.T, s *Service, a, b *fakeConn, to string) string {
	t.Helper()
	req, err := s.RequestChat(context.Background(), a, to)
	require.NoError(t, err)
	require.NoError(t, s.Respond(b, req.ID, true))
	return req.RoomID
}
