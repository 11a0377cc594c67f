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
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrBlocked         = errors.New("blocked")
	ErrRequestNotFound = errors.New("request not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("not a member")
	ErrNotJoined       = errors.New("not joined")
	ErrInvalidTarget   = errors.New("invalid target")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrPeerUnavailable, "PeerUnavailable"},
	{ErrBlocked, "Blocked"},
	{ErrRequestNotFound, "RequestNotFound"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrNotAMember, "NotAMember"},
	{ErrNotJoined, "NotJoined"},
	{ErrInvalidTarget, "InvalidTarget"},
}

// Code returns the wire code for err. Errors outside the relay taxonomy map
// to "Internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// Message returns the client facing text of err, without the sentinel
// suffix.
func Message(err error) string {
	var re *relayError
	if errors.As(err, &re) {
		return re.detail
	}
	return err.Error()
}

// relayError keeps a client facing message next to the sentinel so that
// handlers can show the original wording while callers still use errors.Is.
type relayError struct {
	kind   error
	detail string
}

func (e *relayError) Error() string { return e.detail + ": " + e.kind.Error() }
func (e *relayError) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...interface{}) error {
	return &relayError{kind: kind, detail: fmt.Sprintf(format, args...)}
}
