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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/relay"
)

// QueryHandler serves the polling side of presence and history.
type QueryHandler struct {
	service *relay.Service
}

func NewQueryHandler(service *relay.Service) *QueryHandler {
	return &QueryHandler{service: service}
}

// requester returns the caller's identity: the token's when authenticated,
// otherwise the "user" query parameter.
func requester(r *http.Request) string {
	if userID, ok := middleware.GetUserID(r); ok {
		return userID
	}
	return r.URL.Query().Get("user")
}

// OnlineUsers lists online identities, leaving out the caller
// GET /api/relay/users
func (h *QueryHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	users := h.service.OnlineUsers(requester(r))
	out := make([]models.OnlineUser, 0, len(users))
	for _, u := range users {
		out = append(out, models.OnlineUser{UserCode: u})
	}
	writeJSON(w, http.StatusOK, out)
}

// Messages returns a room's log after the "since" message id
// GET /api/relay/rooms/{roomId}/messages
func (h *QueryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := requester(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomId"]

	msgs, err := h.service.MessagesSince(roomID, userID, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roomId":   roomID,
		"messages": msgs,
		"count":    len(msgs),
	})
}

// Blocks lists the identities the caller has blocked
// GET /api/relay/blocks
func (h *QueryHandler) Blocks(w http.ResponseWriter, r *http.Request) {
	userID := requester(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocked": h.service.Blocklist().Blocked(userID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, relay.ErrRoomNotFound), errors.Is(err, relay.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, relay.ErrNotAMember), errors.Is(err, relay.ErrNotAuthorized), errors.Is(err, relay.ErrBlocked):
		status = http.StatusForbidden
	case errors.Is(err, relay.ErrPeerUnavailable):
		status = http.StatusConflict
	}
	writeJSON(w, status, models.ErrorEvent{Code: relay.Code(err), Message: relay.Message(err)})
}
