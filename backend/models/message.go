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

import "time"

// Message is one entry of a room's log. It is never modified after it has
// been appended. When Encrypted is set the payload is an opaque blob produced
// by the client and the server does not look at it.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Payload   string    `json:"message"`
	Encrypted bool      `json:"encrypted"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// OnlineUser is one row of the presence listing.
type OnlineUser struct {
	UserCode string `json:"userCode"`
}
