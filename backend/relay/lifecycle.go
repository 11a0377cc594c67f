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
	"strings"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/instrument"
	"github.com/efchatnet/efrelay/backend/models"
)

// Join binds conn to identity and acknowledges it. A connection previously
// bound to identity is superseded and its later disconnect does nothing.
func (s *Service) Join(ctx context.Context, conn Conn, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return newError(ErrInvalidTarget, "User code is required.")
	}
	if !ValidIdentity(identity) {
		return newError(ErrInvalidTarget, "User code may not contain %q.", RoomSeparator)
	}

	if s.registry != nil {
		if err := s.registry.Register(ctx, identity); err != nil {
			jww.WARN.Printf("[Relay] Failed to register identity %s: %v", identity, err)
		}
	}

	b := s.presence.Bind(identity, conn)
	if b.CameOnline {
		instrument.IdentityOnline()
	}
	if b.Released != "" {
		instrument.IdentityOffline()
	}
	if b.Superseded != nil {
		jww.INFO.Printf("[Relay] User %s moved from connection %s to %s", identity, b.Superseded.ID(), conn.ID())
	}

	s.deliver(conn, models.EvtJoined, models.JoinedEvent{UserCode: identity})
	jww.INFO.Printf("[Relay] User %s joined", identity)
	return nil
}

// Disconnect releases conn. Rooms, requests and blocklists are kept.
func (s *Service) Disconnect(conn Conn) {
	identity, ok := s.presence.Unbind(conn)
	if !ok {
		return
	}
	instrument.IdentityOffline()
	jww.INFO.Printf("[Relay] User %s disconnected", identity)
}
