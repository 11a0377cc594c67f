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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efrelay/backend/models"
)

// RoomSeparator joins the two identities of a room id. Identities may not
// contain it, so every valid pair maps to its own id.
const RoomSeparator = "-"

// RoomID derives the room for a pair of identities. Both orders give the
// same id.
func RoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + RoomSeparator + b
}

// ValidIdentity reports whether identity can take part in a room.
func ValidIdentity(identity string) bool {
	return identity != "" &&
		identity == strings.TrimSpace(identity) &&
		!strings.Contains(identity, RoomSeparator)
}

// Room is the conversation of one approved pair. Its log only grows.
type Room struct {
	mu       sync.Mutex
	id       string
	members  map[string]struct{}
	messages []models.Message
	index    map[string]int // message id -> position in messages
	approved bool
}

func (r *Room) isMember(identity string) bool {
	_, ok := r.members[identity]
	return ok
}

func (r *Room) memberList() []string {
	out := make([]string, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (r *Room) history(from int) []models.Message {
	out := make([]models.Message, len(r.messages)-from)
	copy(out, r.messages[from:])
	return out
}

// RoomTable owns every room. The table lock only guards the map; each room
// serialises its own log.
type RoomTable struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	now   func() time.Time
}

func NewRoomTable(now func() time.Time) *RoomTable {
	if now == nil {
		now = time.Now
	}
	return &RoomTable{rooms: make(map[string]*Room), now: now}
}

func (t *RoomTable) get(roomID string) (*Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rooms[roomID]
	return r, ok
}

// EnsureRoom returns the room for roomID, creating it if needed, with both
// members added and the room approved. The returned slice is a copy of the
// log at that point. A room never takes members beyond its original pair.
func (t *RoomTable) EnsureRoom(roomID, memberA, memberB string) ([]models.Message, error) {
	t.mu.Lock()
	r, ok := t.rooms[roomID]
	if !ok {
		r = &Room{
			id:      roomID,
			members: make(map[string]struct{}, 2),
			index:   make(map[string]int),
		}
		t.rooms[roomID] = r
	}
	t.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 && !(r.isMember(memberA) && r.isMember(memberB)) {
		return nil, newError(ErrNotAuthorized, "Chat room belongs to another pair.")
	}
	r.members[memberA] = struct{}{}
	r.members[memberB] = struct{}{}
	r.approved = true
	return r.history(0), nil
}

// AppendMessage adds a message to the log and returns it together with the
// members it should be pushed to. A blank message returns a nil message and
// no error.
func (t *RoomTable) AppendMessage(roomID, sender, payload string, encrypted bool) (*models.Message, []string, error) {
	r, ok := t.get(roomID)
	if !ok {
		return nil, nil, newError(ErrRoomNotFound, "Chat room not found. Please start the chat again.")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.approved {
		return nil, nil, newError(ErrRoomNotFound, "Chat room not found. Please start the chat again.")
	}
	if !r.isMember(sender) {
		return nil, nil, newError(ErrNotAMember, "You are not part of this chat.")
	}

	if !encrypted {
		payload = strings.TrimSpace(payload)
	}
	if strings.TrimSpace(payload) == "" {
		return nil, nil, nil
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Sender:    sender,
		Payload:   payload,
		Encrypted: encrypted,
		Timestamp: t.now().UTC(),
		Seq:       uint64(len(r.messages) + 1),
	}
	r.index[msg.ID] = len(r.messages)
	r.messages = append(r.messages, msg)
	return &msg, r.memberList(), nil
}

// MessagesSince returns the log after lastMessageID. An empty or unknown id
// returns the whole log.
func (t *RoomTable) MessagesSince(roomID, requester, lastMessageID string) ([]models.Message, error) {
	r, ok := t.get(roomID)
	if !ok {
		return nil, newError(ErrRoomNotFound, "Chat room not found. Please start the chat again.")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isMember(requester) {
		return nil, newError(ErrNotAMember, "You are not part of this chat.")
	}
	if pos, ok := r.index[lastMessageID]; ok && lastMessageID != "" {
		return r.history(pos + 1), nil
	}
	return r.history(0), nil
}

// Members returns the members of roomID, or false if there is no such room.
func (t *RoomTable) Members(roomID string) ([]string, bool) {
	r, ok := t.get(roomID)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberList(), true
}

// AreMembers reports whether every identity belongs to roomID.
func (t *RoomTable) AreMembers(roomID string, identities ...string) bool {
	r, ok := t.get(roomID)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, identity := range identities {
		if !r.isMember(identity) {
			return false
		}
	}
	return true
}

// Len returns the number of messages in roomID.
func (t *RoomTable) Len(roomID string) int {
	r, ok := t.get(roomID)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
