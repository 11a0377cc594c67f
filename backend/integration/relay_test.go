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

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestIntegration(t *testing.T, rateLimit int) (*RelayIntegration, *httptest.Server) {
	t.Helper()
	e, err := NewRelayIntegration(&Config{
		RequestTimeout: time.Minute,
		RateLimit:      rateLimit,
		RateWindow:     time.Minute,
		SendBuffer:     16,
		AllowedOrigins: []string{"*"},
	})
	require.NoError(t, err)
	require.NoError(t, e.ValidateSetup())

	r := mux.NewRouter()
	e.RegisterRoutes(r, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return e, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

// expect reads frames until one of eventType arrives.
func expect(t *testing.T, ctx context.Context, c *websocket.Conn, eventType string) gjson.Result {
	t.Helper()
	for {
		_, msg, err := c.Read(ctx)
		require.NoError(t, err)
		if gjson.GetBytes(msg, "type").String() == eventType {
			return gjson.GetBytes(msg, "data")
		}
	}
}

func TestWebsocketChat(t *testing.T) {
	_, srv := newTestIntegration(t, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, srv)
	b := dial(t, ctx, srv)

	send(t, ctx, a, `{"type":"join","data":"A1"}`)
	assert.Equal(t, "A1", expect(t, ctx, a, "joined").Get("userCode").String())
	send(t, ctx, b, `{"type":"join","data":"B2"}`)
	expect(t, ctx, b, "joined")

	send(t, ctx, a, `{"type":"sendChatRequest","data":"B2"}`)
	requestID := expect(t, ctx, b, "chatRequest").Get("requestId").String()
	require.NotEmpty(t, requestID)

	send(t, ctx, b, `{"type":"respondToChatRequest","data":{"requestId":"`+requestID+`","accepted":true}}`)
	roomID := expect(t, ctx, a, "chatStarted").Get("roomId").String()
	assert.Equal(t, "A1-B2", roomID)

	send(t, ctx, a, `{"type":"sendMessage","data":{"roomId":"A1-B2","message":"hello"}}`)
	msg := expect(t, ctx, b, "newMessage")
	assert.Equal(t, "hello", msg.Get("message").String())
	assert.Equal(t, "A1", msg.Get("sender").String())
	assert.True(t, expect(t, ctx, a, "messageSent").Get("success").Bool())
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv := newTestIntegration(t, 100)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestGate(t *testing.T) {
	_, srv := newTestIntegration(t, 2)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/api/relay/users")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := http.Get(srv.URL + "/api/relay/users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestValidateSetup(t *testing.T) {
	e := &RelayIntegration{config: &Config{RateLimit: 1, RateWindow: time.Second, SendBuffer: 1, JWTSecret: "s"}}
	var verr *ValidationError
	require.ErrorAs(t, e.ValidateSetup(), &verr)
	assert.Contains(t, verr.Message, "issuer")
}
