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

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/efchatnet/efrelay/backend/storage"
)

type Store struct {
	db *sql.DB
}

var _ storage.IdentityStore = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register records identity, refreshing last_seen_at when it already exists.
func (s *Store) Register(ctx context.Context, identity string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_identities (user_code, first_seen_at, last_seen_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_code) DO UPDATE
		SET last_seen_at = $2`,
		identity, now)
	if err != nil {
		return errors.WithMessagef(err, "failed to register identity %s", identity)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM relay_identities WHERE user_code = $1)`,
		identity).Scan(&exists)
	if err != nil {
		return false, errors.WithMessagef(err, "failed to look up identity %s", identity)
	}
	return exists, nil
}

// LastSeen returns when identity last joined.
func (s *Store) LastSeen(ctx context.Context, identity string) (time.Time, error) {
	var seen time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_seen_at FROM relay_identities WHERE user_code = $1`,
		identity).Scan(&seen)
	if err == sql.ErrNoRows {
		return time.Time{}, errors.Errorf("identity %s not found", identity)
	}
	if err != nil {
		return time.Time{}, errors.WithMessage(err, "failed to read last_seen_at")
	}
	return seen, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
