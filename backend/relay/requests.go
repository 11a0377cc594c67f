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
	"sync"
	"time"

	"github.com/google/uuid"
)

type RequestState int

const (
	StatePending RequestState = iota
	StateAccepted
	StateDeclined
	StateExpired
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateDeclined:
		return "declined"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// PendingRequest is an unresolved chat request from one identity to another.
type PendingRequest struct {
	ID        string
	From      string
	To        string
	CreatedAt time.Time
	RoomID    string
	State     RequestState
}

type pair struct{ from, to string }

// Negotiator holds the pending request table. A request leaves the table on
// its first terminal transition, so a later transition finds nothing and
// fails.
type Negotiator struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
	byPair  map[pair]string
}

func NewNegotiator() *Negotiator {
	return &Negotiator{
		pending: make(map[string]*PendingRequest),
		byPair:  make(map[pair]string),
	}
}

// create registers a request from -> to. When one is already pending for the
// same ordered pair it is returned with created set to false.
func (n *Negotiator) create(from, to string, now time.Time) (req PendingRequest, created bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if id, ok := n.byPair[pair{from, to}]; ok {
		if existing, ok := n.pending[id]; ok {
			return *existing, false
		}
	}

	r := &PendingRequest{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		CreatedAt: now,
		RoomID:    RoomID(from, to),
		State:     StatePending,
	}
	n.pending[r.ID] = r
	n.byPair[pair{from, to}] = r.ID
	return *r, true
}

// resolve moves a pending request to accepted or declined on behalf of
// responder.
func (n *Negotiator) resolve(id, responder string, accept bool) (PendingRequest, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.pending[id]
	if !ok {
		return PendingRequest{}, newError(ErrRequestNotFound, "Chat request not found or expired.")
	}
	if r.To != responder {
		return PendingRequest{}, newError(ErrNotAuthorized, "Invalid chat request.")
	}

	if accept {
		r.State = StateAccepted
	} else {
		r.State = StateDeclined
	}
	n.remove(r)
	return *r, nil
}

// expire moves id to expired if it is still pending.
func (n *Negotiator) expire(id string) (PendingRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.pending[id]
	if !ok || r.State != StatePending {
		return PendingRequest{}, false
	}
	r.State = StateExpired
	n.remove(r)
	return *r, true
}

func (n *Negotiator) remove(r *PendingRequest) {
	delete(n.pending, r.ID)
	if n.byPair[pair{r.From, r.To}] == r.ID {
		delete(n.byPair, pair{r.From, r.To})
	}
}

// Get returns a copy of the pending request id.
func (n *Negotiator) Get(id string) (PendingRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.pending[id]
	if !ok {
		return PendingRequest{}, false
	}
	return *r, true
}

// Len returns the number of pending requests.
func (n *Negotiator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}
