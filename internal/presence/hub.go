// Package presence tracks ephemeral online and typing state. All state
// lives in one goroutine's memory and is mutated only through the Hub API;
// it is lost on restart, which is fine because clients resubscribe and
// resend heartbeats.
package presence

import (
	"time"
)

const (
	sweepInterval = time.Second
	typingTTL     = 5 * time.Second
)

// Broadcaster receives presence deltas to fan out to connected clients.
type Broadcaster interface {
	PresenceChanged(userID int64, online bool)
	TypingChanged(roomID, userID int64, typing bool)
}

type typingKey struct {
	roomID int64
	userID int64
}

type command func(*state)

type state struct {
	online map[int64]int           // userID -> connection count
	typing map[typingKey]time.Time // expiry instant
}

// Hub owns online/typing state. Start it with Run; all methods are safe for
// concurrent use and never block on I/O.
type Hub struct {
	broadcaster Broadcaster
	commands    chan command
	done        chan struct{}
	ttl         time.Duration
	tick        time.Duration
	now         func() time.Time
}

// NewHub constructs a presence hub broadcasting deltas through b.
func NewHub(b Broadcaster) *Hub {
	return &Hub{
		broadcaster: b,
		commands:    make(chan command, 64),
		done:        make(chan struct{}),
		ttl:         typingTTL,
		tick:        sweepInterval,
		now:         time.Now,
	}
}

// Run owns the state maps until Stop is called. Meant to run in its own
// goroutine.
func (h *Hub) Run() {
	st := &state{
		online: make(map[int64]int),
		typing: make(map[typingKey]time.Time),
	}
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.commands:
			cmd(st)
		case <-ticker.C:
			h.sweep(st)
		case <-h.done:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) sweep(st *state) {
	now := h.now()
	for key, expiry := range st.typing {
		if now.After(expiry) {
			delete(st.typing, key)
			h.broadcaster.TypingChanged(key.roomID, key.userID, false)
		}
	}
}

// SetOnline registers one live connection for the user. The first
// connection broadcasts an online delta; further devices are counted
// silently.
func (h *Hub) SetOnline(userID int64) {
	h.commands <- func(st *state) {
		st.online[userID]++
		if st.online[userID] == 1 {
			h.broadcaster.PresenceChanged(userID, true)
		}
	}
}

// SetOffline drops one live connection; the user goes offline when the last
// one is gone. Any typing entries for the user are cleared eagerly.
func (h *Hub) SetOffline(userID int64) {
	h.commands <- func(st *state) {
		if st.online[userID] > 0 {
			st.online[userID]--
		}
		if st.online[userID] > 0 {
			return
		}
		delete(st.online, userID)
		h.broadcaster.PresenceChanged(userID, false)
		for key := range st.typing {
			if key.userID == userID {
				delete(st.typing, key)
				h.broadcaster.TypingChanged(key.roomID, key.userID, false)
			}
		}
	}
}

// SetTyping records or clears a typing indicator. A true flag refreshes the
// TTL; a false flag clears eagerly without waiting for the sweep.
func (h *Hub) SetTyping(userID, roomID int64, typing bool) {
	h.commands <- func(st *state) {
		key := typingKey{roomID: roomID, userID: userID}
		if typing {
			_, known := st.typing[key]
			st.typing[key] = h.now().Add(h.ttl)
			if !known {
				h.broadcaster.TypingChanged(roomID, userID, true)
			}
			return
		}
		if _, known := st.typing[key]; known {
			delete(st.typing, key)
			h.broadcaster.TypingChanged(roomID, userID, false)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID int64) bool {
	reply := make(chan bool, 1)
	h.commands <- func(st *state) {
		reply <- st.online[userID] > 0
	}
	return <-reply
}

// IsTyping reports whether the user is typing in any room.
func (h *Hub) IsTyping(userID int64) bool {
	reply := make(chan bool, 1)
	h.commands <- func(st *state) {
		for key := range st.typing {
			if key.userID == userID {
				reply <- true
				return
			}
		}
		reply <- false
	}
	return <-reply
}
