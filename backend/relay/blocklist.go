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
	"sync"
)

// Blocklist stores, per identity, the identities it has blocked. Each side
// only records its own blocks.
type Blocklist struct {
	mu      sync.RWMutex
	blocked map[string]map[string]struct{}
}

func NewBlocklist() *Blocklist {
	return &Blocklist{blocked: make(map[string]map[string]struct{})}
}

func (b *Blocklist) Block(identity, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.blocked[identity]
	if !ok {
		set = make(map[string]struct{})
		b.blocked[identity] = set
	}
	set[target] = struct{}{}
}

func (b *Blocklist) Unblock(identity, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.blocked[identity]; ok {
		delete(set, target)
	}
}

// Blocks reports whether identity has blocked target.
func (b *Blocklist) Blocks(identity, target string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[identity][target]
	return ok
}

func (b *Blocklist) IsBlockedEitherDirection(a, c string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.blocked[a][c]; ok {
		return true
	}
	_, ok := b.blocked[c][a]
	return ok
}

// Blocked lists the identities blocked by identity.
func (b *Blocklist) Blocked(identity string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.blocked[identity]))
	for target := range b.blocked[identity] {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}
