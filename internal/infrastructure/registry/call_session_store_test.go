package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"carelink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(callID string, caller, target domain.UserID) *domain.CallSession {
	return &domain.CallSession{
		CallID:      domain.CallID(callID),
		ChannelName: domain.ChannelName(caller, target),
		CallerID:    caller,
		TargetID:    target,
		CallType:    "video",
		Status:      domain.CallStatusRinging,
		StartTime:   time.Now(),
	}
}

func TestCallSessionStore_FindByEitherKey(t *testing.T) {
	store := NewCallSessionStore()
	session := newSession("uuid-1", 2, 1)
	require.NoError(t, store.Create(session))

	byID, ok := store.Find("uuid-1")
	require.True(t, ok)
	assert.Same(t, session, byID)

	byChannel, ok := store.Find("call_1_2")
	require.True(t, ok)
	assert.Same(t, session, byChannel)

	_, ok = store.Find("call_3_4")
	assert.False(t, ok)
}

func TestCallSessionStore_ChannelNameIsSymmetric(t *testing.T) {
	assert.Equal(t, domain.ChannelName(7, 3), domain.ChannelName(3, 7))
	assert.Equal(t, "call_3_7", domain.ChannelName(7, 3))
}

func TestCallSessionStore_DuplicateChannelRejected(t *testing.T) {
	store := NewCallSessionStore()
	require.NoError(t, store.Create(newSession("uuid-1", 1, 2)))

	err := store.Create(newSession("uuid-2", 2, 1))
	assert.ErrorIs(t, err, domain.ErrCallExists)
	assert.Equal(t, 1, store.Len())
}

func TestCallSessionStore_RemoveDeletesBothKeys(t *testing.T) {
	store := NewCallSessionStore()
	session := newSession("uuid-1", 1, 2)
	require.NoError(t, store.Create(session))

	removed, ok := store.Remove("call_1_2")
	require.True(t, ok)
	assert.Same(t, session, removed)

	_, ok = store.Find("uuid-1")
	assert.False(t, ok, "call id entry must be gone after remove")
	_, ok = store.Find("call_1_2")
	assert.False(t, ok, "channel entry must be gone after remove")

	// A second remove is a no-op, not an error.
	_, ok = store.Remove("call_1_2")
	assert.False(t, ok)
}

func TestCallSessionStore_Accept(t *testing.T) {
	store := NewCallSessionStore()
	session := newSession("uuid-1", 1, 2)
	require.NoError(t, store.Create(session))

	accepted, ok := store.Accept("call_1_2")
	require.True(t, ok)
	assert.Equal(t, domain.CallStatusAccepted, accepted.Status)

	_, ok = store.Accept("unknown")
	assert.False(t, ok)
}

func TestCallSessionStore_FindAllInvolving(t *testing.T) {
	store := NewCallSessionStore()
	require.NoError(t, store.Create(newSession("uuid-1", 1, 2)))
	require.NoError(t, store.Create(newSession("uuid-2", 3, 1)))
	require.NoError(t, store.Create(newSession("uuid-3", 4, 5)))

	involved := store.FindAllInvolving(1)
	assert.Len(t, involved, 2)
	assert.Empty(t, store.FindAllInvolving(9))
}

func TestCallSessionStore_TakeExpired(t *testing.T) {
	store := NewCallSessionStore()

	stale := newSession("uuid-stale", 1, 2)
	stale.StartTime = time.Now().Add(-2 * time.Minute)
	require.NoError(t, store.Create(stale))

	fresh := newSession("uuid-fresh", 3, 4)
	require.NoError(t, store.Create(fresh))

	answered := newSession("uuid-answered", 5, 6)
	answered.StartTime = time.Now().Add(-2 * time.Minute)
	require.NoError(t, store.Create(answered))
	_, ok := store.Accept("uuid-answered")
	require.True(t, ok)

	expired := store.TakeExpired(time.Now().Add(-time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, domain.CallID("uuid-stale"), expired[0].CallID)

	// Accepted and fresh sessions survive the sweep.
	assert.Equal(t, 2, store.Len())
	_, ok = store.Find("uuid-stale")
	assert.False(t, ok)
}

func TestCallSessionStore_ConcurrentCreateRemove(t *testing.T) {
	store := NewCallSessionStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := domain.UserID(i * 2)
			target := domain.UserID(i*2 + 1)
			session := newSession(fmt.Sprintf("uuid-%d", i), caller, target)
			if err := store.Create(session); err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			if _, ok := store.Find(session.ChannelName); !ok {
				t.Errorf("session %s not findable by channel right after create", session.ChannelName)
			}
			store.RemoveSession(session)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, store.Len())
}
