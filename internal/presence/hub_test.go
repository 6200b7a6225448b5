package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceDelta struct {
	userID int64
	online bool
}

type typingDelta struct {
	roomID int64
	userID int64
	typing bool
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	presence []presenceDelta
	typing   []typingDelta
}

func (r *recordingBroadcaster) PresenceChanged(userID int64, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, presenceDelta{userID: userID, online: online})
}

func (r *recordingBroadcaster) TypingChanged(roomID, userID int64, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, typingDelta{roomID: roomID, userID: userID, typing: typing})
}

func (r *recordingBroadcaster) presenceDeltas() []presenceDelta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presenceDelta(nil), r.presence...)
}

func (r *recordingBroadcaster) typingDeltas() []typingDelta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]typingDelta(nil), r.typing...)
}

func startHub(t *testing.T, b Broadcaster) *Hub {
	t.Helper()
	hub := NewHub(b)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestOnlineBroadcastOncePerUser(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetOnline(7)
	hub.SetOnline(7) // second device
	require.True(t, hub.IsOnline(7))

	deltas := rec.presenceDeltas()
	require.Len(t, deltas, 1)
	assert.Equal(t, presenceDelta{userID: 7, online: true}, deltas[0])
}

func TestOfflineOnlyAfterLastConnection(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetOnline(7)
	hub.SetOnline(7)
	hub.SetOffline(7)
	require.True(t, hub.IsOnline(7))

	hub.SetOffline(7)
	require.False(t, hub.IsOnline(7))

	deltas := rec.presenceDeltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, presenceDelta{userID: 7, online: false}, deltas[1])
}

func TestTypingRefreshDoesNotRebroadcast(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetTyping(7, 3, true)
	hub.SetTyping(7, 3, true)
	require.True(t, hub.IsTyping(7))

	deltas := rec.typingDeltas()
	require.Len(t, deltas, 1)
	assert.Equal(t, typingDelta{roomID: 3, userID: 7, typing: true}, deltas[0])
}

func TestTypingStopClearsEagerly(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetTyping(7, 3, true)
	hub.SetTyping(7, 3, false)
	require.False(t, hub.IsTyping(7))

	deltas := rec.typingDeltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, typingDelta{roomID: 3, userID: 7, typing: false}, deltas[1])
}

func TestTypingStopWithoutStartIsSilent(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetTyping(7, 3, false)
	require.False(t, hub.IsTyping(7))
	assert.Empty(t, rec.typingDeltas())
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := NewHub(rec)
	hub.ttl = 20 * time.Millisecond
	hub.tick = 5 * time.Millisecond
	go hub.Run()
	t.Cleanup(hub.Stop)

	hub.SetTyping(7, 3, true)
	require.True(t, hub.IsTyping(7))

	require.Eventually(t, func() bool {
		return !hub.IsTyping(7)
	}, time.Second, 5*time.Millisecond)

	deltas := rec.typingDeltas()
	require.Len(t, deltas, 2)
	assert.False(t, deltas[1].typing)
}

func TestOfflineClearsTyping(t *testing.T) {
	rec := &recordingBroadcaster{}
	hub := startHub(t, rec)

	hub.SetOnline(7)
	hub.SetTyping(7, 3, true)
	hub.SetOffline(7)

	require.False(t, hub.IsTyping(7))
	deltas := rec.typingDeltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, typingDelta{roomID: 3, userID: 7, typing: false}, deltas[1])
}
