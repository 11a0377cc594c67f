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

package handlers

import (
	"context"
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/tidwall/gjson"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/relay"
)

// Session is a connection as the dispatcher sees it: somewhere to push
// events, plus the identity its token proved (empty without auth).
type Session interface {
	relay.Conn
	AuthIdentity() string
}

// Dispatcher turns inbound frames {"type": ..., "data": ...} into relay
// operations and reports failures back to the sending connection.
type Dispatcher struct {
	service *relay.Service
}

func NewDispatcher(service *relay.Service) *Dispatcher {
	return &Dispatcher{service: service}
}

func (d *Dispatcher) Dispatch(ctx context.Context, s Session, frame []byte) {
	if !gjson.ValidBytes(frame) {
		sendError(s, "BadRequest", "Malformed message.")
		return
	}
	typ := gjson.GetBytes(frame, "type").String()
	data := gjson.GetBytes(frame, "data")

	switch typ {
	case models.CmdJoin:
		identity := data.String()
		if auth := s.AuthIdentity(); auth != "" && auth != identity {
			jww.WARN.Printf("[WS] Connection %s tried to join as %s with a token for %s", s.ID(), identity, auth)
			sendError(s, relay.Code(relay.ErrNotAuthorized), "You can only join as yourself.")
			return
		}
		d.report(s, d.service.Join(ctx, s, identity))

	case models.CmdSendChatRequest:
		_, err := d.service.RequestChat(ctx, s, data.String())
		d.report(s, err)

	case models.CmdRespondToChatRequest:
		var cmd models.RespondToChatRequest
		if !decode(s, data, &cmd) {
			return
		}
		d.report(s, d.service.Respond(s, cmd.RequestID, cmd.Accepted))

	case models.CmdBlockUser:
		d.service.Block(s, data.String())

	case models.CmdUnblockUser:
		d.service.Unblock(s, data.String())

	case models.CmdExchangeKeys:
		var cmd models.ExchangeKeys
		if !decode(s, data, &cmd) {
			return
		}
		d.service.RelayKey(s, cmd.RoomID, cmd.TargetUser, cmd.PublicKey)

	case models.CmdSendMessage:
		var cmd models.SendMessage
		if !decode(s, data, &cmd) {
			return
		}
		_, err := d.service.SendMessage(s, cmd.RoomID, cmd.Message, cmd.Encrypted)
		d.report(s, err)

	case models.CmdGetOnlineUsers:
		identity, _ := d.service.IdentityOf(s)
		users := d.service.OnlineUsers(identity)
		out := make([]models.OnlineUser, 0, len(users))
		for _, u := range users {
			out = append(out, models.OnlineUser{UserCode: u})
		}
		s.Send(models.Event{Type: models.EvtOnlineUsers, Data: models.OnlineUsersEvent{Users: out}})

	case models.CmdGetMessages:
		var cmd models.GetMessages
		if !decode(s, data, &cmd) {
			return
		}
		identity, ok := d.service.IdentityOf(s)
		if !ok {
			sendError(s, relay.Code(relay.ErrNotJoined), "User not found. Please refresh and try again.")
			return
		}
		msgs, err := d.service.MessagesSince(cmd.RoomID, identity, cmd.LastMessageID)
		if err != nil {
			d.report(s, err)
			return
		}
		s.Send(models.Event{Type: models.EvtMessages, Data: models.MessagesEvent{RoomID: cmd.RoomID, Messages: msgs}})

	default:
		jww.DEBUG.Printf("[WS] Unknown command %q from %s", typ, s.ID())
		sendError(s, "BadRequest", "Unknown command.")
	}
}

func (d *Dispatcher) report(s Session, err error) {
	if err == nil {
		return
	}
	jww.DEBUG.Printf("[WS] Command from %s failed: %v", s.ID(), err)
	sendError(s, relay.Code(err), relay.Message(err))
}

func decode(s Session, data gjson.Result, v interface{}) bool {
	if !data.IsObject() {
		sendError(s, "BadRequest", "Malformed message.")
		return false
	}
	if err := json.Unmarshal([]byte(data.Raw), v); err != nil {
		sendError(s, "BadRequest", "Malformed message.")
		return false
	}
	return true
}

func sendError(s Session, code, message string) {
	s.Send(models.Event{Type: models.EvtError, Data: models.ErrorEvent{Code: code, Message: message}})
}
