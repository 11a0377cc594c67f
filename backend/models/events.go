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

package models

import "encoding/json"

// Inbound command types
const (
	CmdJoin                 = "join"
	CmdSendChatRequest      = "sendChatRequest"
	CmdRespondToChatRequest = "respondToChatRequest"
	CmdBlockUser            = "blockUser"
	CmdUnblockUser          = "unblockUser"
	CmdExchangeKeys         = "exchangeKeys"
	CmdSendMessage          = "sendMessage"
	CmdGetOnlineUsers       = "getOnlineUsers"
	CmdGetMessages          = "getMessages"
)

// Outbound event types
const (
	EvtJoined             = "joined"
	EvtChatRequest        = "chatRequest"
	EvtChatRequestSent    = "chatRequestSent"
	EvtChatRequestExpired = "chatRequestExpired"
	EvtChatStarted        = "chatStarted"
	EvtChatRequestDenied  = "chatRequestDenied"
	EvtUserBlocked        = "userBlocked"
	EvtUserUnblocked      = "userUnblocked"
	EvtPublicKey          = "publicKey"
	EvtNewMessage         = "newMessage"
	EvtMessageSent        = "messageSent"
	EvtOnlineUsers        = "onlineUsers"
	EvtMessages           = "messages"
	EvtError              = "error"
)

// Event is the envelope for everything the relay pushes to a connection.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type JoinedEvent struct {
	UserCode string `json:"userCode"`
}

type ChatRequestEvent struct {
	RequestID string `json:"requestId"`
	From      string `json:"from"`
	Message   string `json:"message"`
}

type ChatRequestSentEvent struct {
	TargetUser string `json:"targetUser"`
	RequestID  string `json:"requestId"`
	Message    string `json:"message"`
}

// ChatRequestExpiredEvent is sent to both sides. The requester gets
// TargetUser, the target gets From.
type ChatRequestExpiredEvent struct {
	RequestID  string `json:"requestId"`
	TargetUser string `json:"targetUser,omitempty"`
	From       string `json:"from,omitempty"`
}

type ChatStartedEvent struct {
	RoomID     string    `json:"roomId"`
	TargetUser string    `json:"targetUser"`
	Messages   []Message `json:"messages"`
}

type ChatRequestDeniedEvent struct {
	TargetUser string `json:"targetUser"`
	Message    string `json:"message"`
}

type UserBlockEvent struct {
	UserCode string `json:"userCode"`
}

type PublicKeyEvent struct {
	From      string          `json:"from"`
	RoomID    string          `json:"roomId"`
	PublicKey json.RawMessage `json:"publicKey"`
}

type MessageSentEvent struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type OnlineUsersEvent struct {
	Users []OnlineUser `json:"users"`
}

type MessagesEvent struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Command payloads

type RespondToChatRequest struct {
	RequestID string `json:"requestId"`
	Accepted  bool   `json:"accepted"`
}

type ExchangeKeys struct {
	RoomID     string          `json:"roomId"`
	TargetUser string          `json:"targetUser"`
	PublicKey  json.RawMessage `json:"publicKey"`
}

type SendMessage struct {
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
	Encrypted bool   `json:"encrypted"`
}

type GetMessages struct {
	RoomID        string `json:"roomId"`
	LastMessageID string `json:"lastMessageId"`
}
