package main

import (
	"crypto/rand"
	"sync"
	"time"
)

// Registry maps room ids to live rooms. Creation is lazy and idempotent;
// rooms are removed on game over or by the idle reaper. The mutex only
// guards the map itself: room internals are owned by the engine goroutine.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// getOrCreate returns the room for id, initializing one on first use.
// Existing rooms are returned unchanged.
func (reg *Registry) getOrCreate(roomID string, maxRounds int) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rm, ok := reg.rooms[roomID]; ok {
		return rm
	}

	rm := newRoom(roomID, maxRounds)
	reg.rooms[roomID] = rm

	return rm
}

// get returns the room for id, or nil if none exists.
func (reg *Registry) get(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[roomID]
}

func (reg *Registry) delete(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.rooms, roomID)
}

// all returns a snapshot of the current rooms, for iteration that may
// delete entries along the way.
func (reg *Registry) all() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}

	return rooms
}

func (reg *Registry) count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.rooms)
}

// newRoomID generates a crypto-random room id and ensures it doesn't
// collide with any live room.
func (reg *Registry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		reg.mu.Lock()
		_, exists := reg.rooms[id]
		reg.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// Room holds the state for one ongoing two-player game.
type Room struct {
	id        string
	clients   []*Client // join order, at most 2; order determines role parity
	target    string    // "" until the director picks
	round     int
	scores    map[string]int
	maxRounds int
	logs      []RoundLogEntry

	lastActive time.Time
	timer      *time.Timer // pending round timeout, nil when disarmed
}

func newRoom(roomID string, maxRounds int) *Room {
	return &Room{
		id:         roomID,
		round:      1,
		scores:     make(map[string]int),
		maxRounds:  maxRounds,
		lastActive: time.Now(),
	}
}

func (rm *Room) touch() {
	rm.lastActive = time.Now()
}

func (rm *Room) hasClient(playerID string) bool {
	for _, c := range rm.clients {
		if c.playerID == playerID {
			return true
		}
	}

	return false
}

// rebindClient reseats playerID onto connection c, returning the
// superseded connection. Nil when the player isn't seated or c already
// holds the seat.
func (rm *Room) rebindClient(c *Client) *Client {
	for i, old := range rm.clients {
		if old.playerID == c.playerID && old != c {
			rm.clients[i] = c
			return old
		}
	}

	return nil
}

// removeClient drops exactly the connection c, along with its score
// entry. Removal is by connection identity, so a stale socket's
// disconnect cannot unseat a player who has since rebound to a new
// connection. Reports whether anything was removed.
func (rm *Room) removeClient(c *Client) bool {
	dst := rm.clients[:0]
	changed := false

	for _, cur := range rm.clients {
		if cur == c {
			changed = true
			continue
		}
		dst = append(dst, cur)
	}
	rm.clients = dst

	if changed {
		delete(rm.scores, c.playerID)
	}

	return changed
}

// roles computes the current round's roles from join order and round
// parity. Both are nil unless exactly two players are present.
func (rm *Room) roles() (director, guesser *Client) {
	if len(rm.clients) != 2 {
		return nil, nil
	}

	if rm.round%2 == 1 {
		return rm.clients[0], rm.clients[1]
	}

	return rm.clients[1], rm.clients[0]
}

// scoreSnapshot copies the score table, so emitted messages are not
// affected by later mutation while they sit in send buffers.
func (rm *Room) scoreSnapshot() map[string]int {
	scores := make(map[string]int, len(rm.scores))
	for id, tally := range rm.scores {
		scores[id] = tally
	}

	return scores
}

func (rm *Room) logSnapshot() []RoundLogEntry {
	logs := make([]RoundLogEntry, len(rm.logs))
	copy(logs, rm.logs)

	return logs
}
