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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/relay"
)

func newQueryRouter(svc *relay.Service) *mux.Router {
	h := NewQueryHandler(svc)
	r := mux.NewRouter()
	r.HandleFunc("/api/relay/users", h.OnlineUsers).Methods("GET")
	r.HandleFunc("/api/relay/rooms/{roomId}/messages", h.Messages).Methods("GET")
	r.HandleFunc("/api/relay/blocks", h.Blocks).Methods("GET")
	return r
}

// chatting joins A1 and B2 over the dispatcher and opens their room.
func chatting(t *testing.T, svc *relay.Service) (a, b *fakeSession, roomID string) {
	t.Helper()
	d := NewDispatcher(svc)
	a = joined(t, d, "A1")
	b = joined(t, d, "B2")
	req, err := svc.RequestChat(context.Background(), a, "B2")
	require.NoError(t, err)
	require.NoError(t, svc.Respond(b, req.ID, true))
	return a, b, req.RoomID
}

func TestOnlineUsersExcludesCaller(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	chatting(t, svc)

	rec := httptest.NewRecorder()
	newQueryRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/api/relay/users?user=A1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var users []models.OnlineUser
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	assert.Equal(t, []models.OnlineUser{{UserCode: "B2"}}, users)
}

func TestMessagesSince(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	a, _, roomID := chatting(t, svc)

	first, err := svc.SendMessage(a, roomID, "one", false)
	require.NoError(t, err)
	_, err = svc.SendMessage(a, roomID, "two", false)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/relay/rooms/"+roomID+"/messages?since="+first.ID, nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), "B2"))
	rec := httptest.NewRecorder()
	newQueryRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RoomID   string           `json:"roomId"`
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, roomID, body.RoomID)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "two", body.Messages[0].Payload)
}

func TestMessagesRejectsOutsiders(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	_, _, roomID := chatting(t, svc)
	router := newQueryRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/relay/rooms/"+roomID+"/messages?user=C3", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/relay/rooms/nope/messages?user=A1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var evt models.ErrorEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&evt))
	assert.Equal(t, relay.Code(relay.ErrRoomNotFound), evt.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/relay/rooms/"+roomID+"/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBlocksListsCallerBlocks(t *testing.T) {
	svc := relay.NewService(relay.Options{})
	a, _, _ := chatting(t, svc)
	svc.Block(a, "B2")

	rec := httptest.NewRecorder()
	newQueryRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/api/relay/blocks?user=A1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Blocked []string `json:"blocked"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"B2"}, body.Blocked)
}
