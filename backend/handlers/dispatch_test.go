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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/relay"
)

type fakeSession struct {
	id   string
	auth string

	mu     sync.Mutex
	events []models.Event
}

func (s *fakeSession) ID() string           { return s.id }
func (s *fakeSession) AuthIdentity() string { return s.auth }

func (s *fakeSession) Send(evt models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return true
}

func (s *fakeSession) last(t *testing.T, eventType string) models.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i]
		}
	}
	t.Fatalf("no %s event on %s", eventType, s.id)
	return models.Event{}
}

func frame(t *testing.T, typ string, data interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"type": typ, "data": data})
	require.NoError(t, err)
	return b
}

func joined(t *testing.T, d *Dispatcher, identity string) *fakeSession {
	t.Helper()
	s := &fakeSession{id: "session-" + identity}
	d.Dispatch(context.Background(), s, frame(t, models.CmdJoin, identity))
	s.last(t, models.EvtJoined)
	return s
}

func TestDispatchChatFlow(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	d := NewDispatcher(svc)
	ctx := context.Background()

	a := joined(t, d, "A1")
	b := joined(t, d, "B2")

	d.Dispatch(ctx, a, frame(t, models.CmdSendChatRequest, "B2"))
	req := b.last(t, models.EvtChatRequest).Data.(models.ChatRequestEvent)
	assert.Equal(t, "A1", req.From)

	d.Dispatch(ctx, b, frame(t, models.CmdRespondToChatRequest, map[string]interface{}{
		"requestId": req.RequestID,
		"accepted":  true,
	}))
	started := a.last(t, models.EvtChatStarted).Data.(models.ChatStartedEvent)
	assert.Equal(t, "A1-B2", started.RoomID)

	d.Dispatch(ctx, a, frame(t, models.CmdExchangeKeys, map[string]interface{}{
		"roomId":     started.RoomID,
		"targetUser": "B2",
		"publicKey":  map[string]string{"kty": "EC"},
	}))
	key := b.last(t, models.EvtPublicKey).Data.(models.PublicKeyEvent)
	assert.JSONEq(t, `{"kty":"EC"}`, string(key.PublicKey))

	d.Dispatch(ctx, a, frame(t, models.CmdSendMessage, map[string]interface{}{
		"roomId":  started.RoomID,
		"message": "hi",
	}))
	msg := b.last(t, models.EvtNewMessage).Data.(models.Message)
	assert.Equal(t, "hi", msg.Payload)
	assert.True(t, a.last(t, models.EvtMessageSent).Data.(models.MessageSentEvent).Success)

	d.Dispatch(ctx, b, frame(t, models.CmdGetMessages, map[string]interface{}{"roomId": started.RoomID}))
	history := b.last(t, models.EvtMessages).Data.(models.MessagesEvent)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, msg.ID, history.Messages[0].ID)

	d.Dispatch(ctx, a, frame(t, models.CmdGetOnlineUsers, nil))
	online := a.last(t, models.EvtOnlineUsers).Data.(models.OnlineUsersEvent)
	assert.Equal(t, []models.OnlineUser{{UserCode: "B2"}}, online.Users)
}

func TestDispatchReportsErrors(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	d := NewDispatcher(svc)
	ctx := context.Background()

	a := joined(t, d, "A1")

	d.Dispatch(ctx, a, frame(t, models.CmdSendChatRequest, "nobody"))
	evt := a.last(t, models.EvtError).Data.(models.ErrorEvent)
	assert.Equal(t, relay.Code(relay.ErrPeerUnavailable), evt.Code)

	d.Dispatch(ctx, a, []byte(`{not json`))
	assert.Equal(t, "BadRequest", a.last(t, models.EvtError).Data.(models.ErrorEvent).Code)

	d.Dispatch(ctx, a, frame(t, "launchRockets", nil))
	assert.Equal(t, "Unknown command.", a.last(t, models.EvtError).Data.(models.ErrorEvent).Message)

	d.Dispatch(ctx, a, frame(t, models.CmdRespondToChatRequest, "not-an-object"))
	assert.Equal(t, "Malformed message.", a.last(t, models.EvtError).Data.(models.ErrorEvent).Message)

	d.Dispatch(ctx, a, frame(t, models.CmdRespondToChatRequest, map[string]interface{}{"requestId": "missing", "accepted": true}))
	assert.Equal(t, relay.Code(relay.ErrRequestNotFound), a.last(t, models.EvtError).Data.(models.ErrorEvent).Code)
}

func TestDispatchJoinMustMatchToken(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	d := NewDispatcher(svc)

	s := &fakeSession{id: "session-1", auth: "A1"}
	d.Dispatch(context.Background(), s, frame(t, models.CmdJoin, "B2"))

	evt := s.last(t, models.EvtError).Data.(models.ErrorEvent)
	assert.Equal(t, relay.Code(relay.ErrNotAuthorized), evt.Code)
	assert.False(t, svc.Presence().IsOnline("B2"))

	d.Dispatch(context.Background(), s, frame(t, models.CmdJoin, "A1"))
	assert.True(t, svc.Presence().IsOnline("A1"))
}

func TestDispatchInertConnection(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	d := NewDispatcher(svc)

	s := &fakeSession{id: "session-1"}
	d.Dispatch(context.Background(), s, frame(t, models.CmdGetMessages, map[string]interface{}{"roomId": "A1-B2"}))
	assert.Equal(t, relay.Code(relay.ErrNotJoined), s.last(t, models.EvtError).Data.(models.ErrorEvent).Code)

	// block from an inert connection is silently ignored
	d.Dispatch(context.Background(), s, frame(t, models.CmdBlockUser, "B2"))
	assert.Len(t, s.events, 1)
}
