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
	"sort"
	"sync"

	"github.com/efchatnet/efrelay/backend/models"
)

// Conn is a live connection the relay can push events to. Send must not
// block; a connection that cannot take the event drops it.
type Conn interface {
	ID() string
	Send(evt models.Event) bool
}

// PresenceRecord is the directory entry for one identity. Online is true
// exactly when Conn is non-nil.
type PresenceRecord struct {
	Identity string
	Online   bool
	Conn     Conn
}

// Directory maps identities to their live connection.
type Directory struct {
	mu      sync.RWMutex
	records map[string]*PresenceRecord // identity -> record
	byConn  map[string]string          // conn id -> identity
}

func NewDirectory() *Directory {
	return &Directory{
		records: make(map[string]*PresenceRecord),
		byConn:  make(map[string]string),
	}
}

// Binding reports what a Bind changed.
type Binding struct {
	Superseded Conn   // connection that held identity before, if any
	CameOnline bool   // identity was offline before the bind
	Released   string // identity conn held before and no longer does
}

// Bind makes conn the live connection for identity. Everything in the
// returned Binding is decided under the directory lock.
func (d *Directory) Bind(identity string, conn Conn) Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b Binding

	// same connection joining under a new identity releases the old one
	if prevIdentity, ok := d.byConn[conn.ID()]; ok && prevIdentity != identity {
		if rec := d.records[prevIdentity]; rec != nil && rec.Conn != nil && rec.Conn.ID() == conn.ID() {
			rec.Online = false
			rec.Conn = nil
			b.Released = prevIdentity
		}
	}

	rec, ok := d.records[identity]
	if !ok {
		rec = &PresenceRecord{Identity: identity}
		d.records[identity] = rec
	}
	b.CameOnline = !rec.Online

	if rec.Conn != nil && rec.Conn.ID() != conn.ID() {
		b.Superseded = rec.Conn
		delete(d.byConn, b.Superseded.ID())
	}

	rec.Conn = conn
	rec.Online = true
	d.byConn[conn.ID()] = identity
	return b
}

// Unbind releases whatever identity conn is bound to. The boolean is false
// when conn was never bound or has been superseded.
func (d *Directory) Unbind(conn Conn) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(d.byConn, conn.ID())

	rec := d.records[identity]
	if rec == nil || rec.Conn == nil || rec.Conn.ID() != conn.ID() {
		return "", false
	}
	rec.Online = false
	rec.Conn = nil
	return identity, true
}

func (d *Directory) IsOnline(identity string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[identity]
	return ok && rec.Online
}

func (d *Directory) ConnectionFor(identity string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[identity]
	if !ok || rec.Conn == nil {
		return nil, false
	}
	return rec.Conn, true
}

// IdentityOf returns the identity conn currently speaks for.
func (d *Directory) IdentityOf(conn Conn) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	identity, ok := d.byConn[conn.ID()]
	return identity, ok
}

// Known reports whether identity has ever been bound.
func (d *Directory) Known(identity string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.records[identity]
	return ok
}

// ListOnline returns the online identities in sorted order, leaving out
// excluding.
func (d *Directory) ListOnline(excluding string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.records))
	for identity, rec := range d.records {
		if !rec.Online || identity == excluding {
			continue
		}
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// connectionsFor snapshots the live connections of identities, skipping the
// offline ones.
func (d *Directory) connectionsFor(identities ...string) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Conn, 0, len(identities))
	for _, identity := range identities {
		if rec, ok := d.records[identity]; ok && rec.Conn != nil {
			out = append(out, rec.Conn)
		}
	}
	return out
}
