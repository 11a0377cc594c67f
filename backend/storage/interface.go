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

package storage

import (
	"context"
)

// IdentityStore is the account side of relay identities. Accounts are
// created elsewhere; the relay records identities it sees and asks whether
// one exists.
type IdentityStore interface {
	Register(ctx context.Context, identity string) error
	Exists(ctx context.Context, identity string) (bool, error)
	Ping(ctx context.Context) error
}

// Gate is the per-client request budget checked before any request is
// served.
type Gate interface {
	Allow(ctx context.Context, key string) (bool, error)
}
