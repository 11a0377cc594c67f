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
	"net/http"

	"github.com/coder/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/instrument"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/relay"
	"github.com/efchatnet/efrelay/backend/transport"
)

// WSHandler upgrades requests to websocket connections and feeds their
// frames to the dispatcher.
type WSHandler struct {
	service        *relay.Service
	dispatcher     *Dispatcher
	config         transport.Config
	originPatterns []string
}

func NewWSHandler(service *relay.Service, config transport.Config, originPatterns []string) *WSHandler {
	return &WSHandler{
		service:        service,
		dispatcher:     NewDispatcher(service),
		config:         config,
		originPatterns: originPatterns,
	}
}

// ServeHTTP handles GET /ws
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authIdentity, _ := middleware.GetUserID(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		jww.WARN.Printf("[WS] Upgrade from %s failed: %v", middleware.ClientIP(r), err)
		return
	}

	onMessage := func(ctx context.Context, c *transport.Connection, msg []byte) {
		h.dispatcher.Dispatch(ctx, c, msg)
	}
	onClose := func(c *transport.Connection, err error) {
		h.service.Disconnect(c)
		instrument.ConnectionClosed()
	}

	conn := transport.NewConnection(context.Background(), ws, h.config, authIdentity, middleware.ClientIP(r), onMessage, onClose)
	instrument.ConnectionOpened()
	jww.INFO.Printf("[WS] User connected: %s", conn.ID())
	conn.Run()
}
