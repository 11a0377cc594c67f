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

// Package relay is the presence, consent negotiation, blocking and room
// broadcast engine. Every table has its own lock; events are always pushed
// after the lock that produced them has been released.
package relay

import (
	"context"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/efchatnet/efrelay/backend/instrument"
	"github.com/efchatnet/efrelay/backend/models"
)

// DefaultRequestTimeout is how long a chat request waits for an answer.
const DefaultRequestTimeout = 120 * time.Second

// IdentityRegistry is the account side of identities. The relay only asks it
// whether an identity exists and tells it about identities it sees join.
type IdentityRegistry interface {
	Register(ctx context.Context, identity string) error
	Exists(ctx context.Context, identity string) (bool, error)
}

type Options struct {
	RequestTimeout time.Duration
	Registry       IdentityRegistry
	Now            func() time.Time
}

// Service owns the relay state and exposes its operations.
type Service struct {
	presence *Directory
	blocks   *Blocklist
	requests *Negotiator
	rooms    *RoomTable

	registry  IdentityRegistry
	timeout   time.Duration
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewService(opts Options) *Service {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		presence:  NewDirectory(),
		blocks:    NewBlocklist(),
		requests:  NewNegotiator(),
		rooms:     NewRoomTable(opts.Now),
		registry:  opts.Registry,
		timeout:   opts.RequestTimeout,
		now:       opts.Now,
		afterFunc: time.AfterFunc,
	}
}

func (s *Service) Presence() *Directory  { return s.presence }
func (s *Service) Blocklist() *Blocklist { return s.blocks }
func (s *Service) Requests() *Negotiator { return s.requests }
func (s *Service) Rooms() *RoomTable     { return s.rooms }

func (s *Service) identityOf(conn Conn) (string, error) {
	identity, ok := s.presence.IdentityOf(conn)
	if !ok {
		return "", newError(ErrNotJoined, "User not found. Please refresh and try again.")
	}
	return identity, nil
}

// IdentityOf returns the identity conn is joined as.
func (s *Service) IdentityOf(conn Conn) (string, bool) {
	return s.presence.IdentityOf(conn)
}

// RequestChat asks to for consent to chat with the identity conn is joined
// as. A request already pending for the same pair is returned again and its
// notification resent.
func (s *Service) RequestChat(ctx context.Context, conn Conn, to string) (PendingRequest, error) {
	from, err := s.identityOf(conn)
	if err != nil {
		return PendingRequest{}, err
	}
	jww.DEBUG.Printf("[Relay] Chat request: %s -> %s", from, to)

	if to == from {
		instrument.ChatRequest("rejected")
		return PendingRequest{}, newError(ErrInvalidTarget, "You cannot start a chat with yourself.")
	}
	if !ValidIdentity(to) {
		instrument.ChatRequest("rejected")
		return PendingRequest{}, newError(ErrInvalidTarget, "Invalid user code.")
	}
	if s.blocks.Blocks(from, to) {
		instrument.ChatRequest("rejected")
		return PendingRequest{}, newError(ErrBlocked, "You have blocked this user.")
	}
	if s.blocks.Blocks(to, from) {
		instrument.ChatRequest("rejected")
		return PendingRequest{}, newError(ErrBlocked, "This user has blocked you.")
	}

	target, online := s.presence.ConnectionFor(to)
	if !online {
		instrument.ChatRequest("rejected")
		if !s.exists(ctx, to) {
			jww.INFO.Printf("[Relay] Target user %s does not exist", to)
			return PendingRequest{}, newError(ErrPeerUnavailable, "User with code %s does not exist", to)
		}
		jww.INFO.Printf("[Relay] Target user %s is not online", to)
		return PendingRequest{}, newError(ErrPeerUnavailable, "User %s is not online", to)
	}

	req, created := s.requests.create(from, to, s.now())
	if created {
		instrument.ChatRequest("created")
		id := req.ID
		s.afterFunc(s.timeout, func() { s.expire(id) })
	}

	s.deliver(target, models.EvtChatRequest, models.ChatRequestEvent{
		RequestID: req.ID,
		From:      from,
		Message:   from + " wants to start an encrypted chat with you.",
	})
	s.deliver(conn, models.EvtChatRequestSent, models.ChatRequestSentEvent{
		TargetUser: to,
		RequestID:  req.ID,
		Message:    "Chat request sent. Waiting for approval...",
	})
	return req, nil
}

func (s *Service) exists(ctx context.Context, identity string) bool {
	if s.presence.Known(identity) {
		return true
	}
	if s.registry == nil {
		return false
	}
	ok, err := s.registry.Exists(ctx, identity)
	if err != nil {
		jww.WARN.Printf("[Relay] Identity lookup for %s failed: %v", identity, err)
		return false
	}
	return ok
}

// Respond answers a pending request on behalf of the identity conn is joined
// as.
func (s *Service) Respond(conn Conn, requestID string, accept bool) error {
	responder, err := s.identityOf(conn)
	if err != nil {
		return err
	}

	req, err := s.requests.resolve(requestID, responder, accept)
	if err != nil {
		return err
	}

	requester, _ := s.presence.ConnectionFor(req.From)

	if !accept {
		instrument.ChatRequest("declined")
		s.deliver(requester, models.EvtChatRequestDenied, models.ChatRequestDeniedEvent{
			TargetUser: req.To,
			Message:    req.To + " declined your chat request.",
		})
		jww.INFO.Printf("[Relay] Chat denied: %s -> %s", req.From, req.To)
		return nil
	}

	history, err := s.rooms.EnsureRoom(req.RoomID, req.From, req.To)
	if err != nil {
		jww.ERROR.Printf("[Relay] Room %s refused %s and %s: %v", req.RoomID, req.From, req.To, err)
		return err
	}
	instrument.ChatRequest("accepted")

	s.deliver(conn, models.EvtChatStarted, models.ChatStartedEvent{
		RoomID:     req.RoomID,
		TargetUser: req.From,
		Messages:   history,
	})
	s.deliver(requester, models.EvtChatStarted, models.ChatStartedEvent{
		RoomID:     req.RoomID,
		TargetUser: req.To,
		Messages:   history,
	})
	jww.INFO.Printf("[Relay] Chat approved: %s <-> %s", req.From, req.To)
	return nil
}

// expire is the timer callback of a request. It does nothing if the request
// was already answered.
func (s *Service) expire(requestID string) {
	req, ok := s.requests.expire(requestID)
	if !ok {
		return
	}
	instrument.ChatRequest("expired")
	jww.INFO.Printf("[Relay] Chat request expired: %s -> %s", req.From, req.To)

	if c, ok := s.presence.ConnectionFor(req.From); ok {
		s.deliver(c, models.EvtChatRequestExpired, models.ChatRequestExpiredEvent{
			RequestID:  req.ID,
			TargetUser: req.To,
		})
	}
	if c, ok := s.presence.ConnectionFor(req.To); ok {
		s.deliver(c, models.EvtChatRequestExpired, models.ChatRequestExpiredEvent{
			RequestID: req.ID,
			From:      req.From,
		})
	}
}

// Block records that conn's identity blocks target. Inert connections are
// ignored.
func (s *Service) Block(conn Conn, target string) {
	identity, ok := s.presence.IdentityOf(conn)
	if !ok {
		return
	}
	s.blocks.Block(identity, target)
	s.deliver(conn, models.EvtUserBlocked, models.UserBlockEvent{UserCode: target})
	jww.INFO.Printf("[Relay] %s blocked %s", identity, target)
}

func (s *Service) Unblock(conn Conn, target string) {
	identity, ok := s.presence.IdentityOf(conn)
	if !ok {
		return
	}
	s.blocks.Unblock(identity, target)
	s.deliver(conn, models.EvtUserUnblocked, models.UserBlockEvent{UserCode: target})
	jww.INFO.Printf("[Relay] %s unblocked %s", identity, target)
}

// SendMessage appends to roomID and pushes the message to every online
// member. Blank messages return a nil message and no error.
func (s *Service) SendMessage(conn Conn, roomID, payload string, encrypted bool) (*models.Message, error) {
	sender, err := s.identityOf(conn)
	if err != nil {
		return nil, err
	}

	msg, members, err := s.rooms.AppendMessage(roomID, sender, payload, encrypted)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		jww.DEBUG.Printf("[Relay] Empty message from %s in room %s dropped", sender, roomID)
		return nil, nil
	}
	instrument.MessageAppended(encrypted)

	if encrypted {
		jww.DEBUG.Printf("[Relay] Message from %s in room %s: [ENCRYPTED]", sender, roomID)
	} else {
		jww.DEBUG.Printf("[Relay] Message from %s in room %s (%d bytes)", sender, roomID, len(msg.Payload))
	}

	for _, c := range s.presence.connectionsFor(members...) {
		s.deliver(c, models.EvtNewMessage, *msg)
	}
	s.deliver(conn, models.EvtMessageSent, models.MessageSentEvent{Success: true, MessageID: msg.ID})
	return msg, nil
}

// MessagesSince returns roomID's log after lastMessageID for requester.
func (s *Service) MessagesSince(roomID, requester, lastMessageID string) ([]models.Message, error) {
	return s.rooms.MessagesSince(roomID, requester, lastMessageID)
}

// OnlineUsers lists online identities other than excluding.
func (s *Service) OnlineUsers(excluding string) []string {
	return s.presence.ListOnline(excluding)
}

func (s *Service) deliver(c Conn, eventType string, data interface{}) {
	if c == nil {
		return
	}
	if !c.Send(models.Event{Type: eventType, Data: data}) {
		instrument.EventDropped(eventType)
		jww.DEBUG.Printf("[Relay] Dropped %s for connection %s", eventType, c.ID())
	}
}
