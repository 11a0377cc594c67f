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
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/instrument"
	"github.com/efchatnet/efrelay/backend/models"
)

// RelayKey forwards key material from conn's identity to another member of
// roomID. The key is a JSON value and is forwarded untouched. It never
// fails: anything that cannot be delivered is dropped and the client starts
// the exchange again later.
func (s *Service) RelayKey(conn Conn, roomID, to string, publicKey json.RawMessage) {
	from, ok := s.presence.IdentityOf(conn)
	if !ok {
		instrument.KeyRelayed("dropped")
		return
	}
	jww.DEBUG.Printf("[Relay] Key exchange: %s -> %s in room %s", from, to, roomID)

	if !json.Valid(publicKey) {
		instrument.KeyRelayed("invalid")
		jww.DEBUG.Printf("[Relay] Key from %s is not valid JSON", from)
		return
	}

	if !s.rooms.AreMembers(roomID, from, to) {
		instrument.KeyRelayed("dropped")
		jww.DEBUG.Printf("[Relay] Invalid key exchange request from %s", from)
		return
	}

	target, online := s.presence.ConnectionFor(to)
	if !online {
		instrument.KeyRelayed("dropped")
		return
	}

	instrument.KeyRelayed("delivered")
	s.deliver(target, models.EvtPublicKey, models.PublicKeyEvent{
		From:      from,
		RoomID:    roomID,
		PublicKey: publicKey,
	})
}
