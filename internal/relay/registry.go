package relay

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// Peer is the part of a connected session the relay routes to.
// Send is a blocking write of one text frame.
type Peer interface {
	ID() string
	Send(raw []byte) error
}

// RoomStats is a read-only view of one room
type RoomStats struct {
	Room     string `json:"room"`
	Sessions int    `json:"sessions"`
}

// Membership is what the registry knows about a bound session
type Membership struct {
	Room    string
	Relayed int64
}

type member struct {
	peer    Peer
	room    string
	relayed atomic.Int64
}

// Registry tracks room -> sessions and session -> room.
//
// A session is bound at most once; the first Bind wins for its whole life.
// Rooms exist only while they have members.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*member // room -> session id -> member
	sessions map[string]*member            // session id -> member
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]*member),
		sessions: make(map[string]*member),
	}
}

// Bind places the peer in room unless it is already bound, and returns the
// room the peer is actually bound to. first is true only for the call that
// performed the binding.
func (r *Registry) Bind(p Peer, room string) (bound string, first bool) {
	r.mu.RLock()
	m, ok := r.sessions[p.ID()]
	r.mu.RUnlock()
	if ok {
		return m.room, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: two frames from one session never race,
	// but Remove can.
	if m, ok := r.sessions[p.ID()]; ok {
		return m.room, false
	}

	m = &member{peer: p, room: room}
	r.sessions[p.ID()] = m
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*member)
	}
	r.rooms[room][p.ID()] = m

	return room, true
}

// RoomOf returns the room a session is bound to
func (r *Registry) RoomOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return m.room, true
}

// MarkRelayed counts one message relayed on behalf of a session
func (r *Registry) MarkRelayed(sessionID string) {
	r.mu.RLock()
	m, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		m.relayed.Add(1)
	}
}

// Members returns a snapshot of the peers in a room, ordered by session id,
// excluding the given session id. Callers iterate it without holding the lock.
func (r *Registry) Members(room, except string) []Peer {
	r.mu.RLock()
	set := r.rooms[room]
	peers := make([]Peer, 0, len(set))
	for id, m := range set {
		if id != except {
			peers = append(peers, m.peer)
		}
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}

// Remove drops a session and prunes its room when it becomes empty
func (r *Registry) Remove(sessionID string) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[sessionID]
	if !ok {
		return Membership{}, false
	}
	delete(r.sessions, sessionID)

	if set, ok := r.rooms[m.room]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.rooms, m.room)
		}
	}

	return Membership{Room: m.room, Relayed: m.relayed.Load()}, true
}

// Size returns the number of sessions in a room
func (r *Registry) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomCount returns the number of non-empty rooms
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SessionCount returns the number of bound sessions
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Rooms lists every room with its session count, sorted by name
func (r *Registry) Rooms() []RoomStats {
	r.mu.RLock()
	stats := lo.MapToSlice(r.rooms, func(room string, set map[string]*member) RoomStats {
		return RoomStats{Room: room, Sessions: len(set)}
	})
	r.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Room < stats[j].Room })
	return stats
}
