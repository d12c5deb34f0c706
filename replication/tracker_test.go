package replication_test

import (
	"math"
	"testing"

	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerResendUnion(t *testing.T) {
	tracker := replication.NewTracker()
	h := ecs.NewHandle(1, 0)

	assert.False(t, tracker.MarkResend(h, 1, 0b1), "untracked state")

	tracker.Track(h, 1)
	assert.True(t, tracker.MarkResend(h, 1, 0b0101))
	assert.True(t, tracker.MarkResend(h, 1, 0b0011))
	state, ok := tracker.Sync(h, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(0b0111), state.ResendMask)

	tracker.MarkSent(h, 1, "value", 0b0001)
	assert.Equal(t, uint32(0b0110), state.ResendMask)
	assert.True(t, state.HasBeenSerialized)
	assert.Equal(t, "value", state.LastSent)
}

func TestTrackerPriority(t *testing.T) {
	tracker := replication.NewTracker()
	a, b := ecs.NewHandle(1, 0), ecs.NewHandle(1, 1)

	tracker.Track(a, 1)
	tracker.Track(b, 1).Importance = 5
	tracker.Accumulate()
	tracker.Accumulate()

	pending := tracker.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, b, pending[0].Handle)
	assert.Equal(t, uint32(10), pending[0].Priority)
	assert.Equal(t, uint32(2), pending[1].Priority)

	tracker.MarkSent(b, 1, nil, 0)
	pending = tracker.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].Handle)

	// serialized states without resend bits do not accumulate
	tracker.Accumulate()
	state, _ := tracker.Sync(b, 1)
	assert.Zero(t, state.AccumulatedPriority)
}

func TestTrackerPrioritySaturates(t *testing.T) {
	tracker := replication.NewTracker()
	h := ecs.NewHandle(1, 0)
	state := tracker.Track(h, 1)
	state.Importance = math.MaxUint32 - 1

	tracker.Accumulate()
	tracker.Accumulate()
	assert.Equal(t, uint32(math.MaxUint32), state.AccumulatedPriority)
}

func TestTrackerComponentDeletion(t *testing.T) {
	tracker := replication.NewTracker()
	h := ecs.NewHandle(1, 0)
	tracker.Track(h, 1)
	tracker.MarkSent(h, 1, nil, 0)
	assert.Empty(t, tracker.Pending())

	assert.False(t, tracker.MarkDeleteSerialized(h, 1), "not deleted yet")
	require.True(t, tracker.MarkComponentDeleted(h, 1, 30))
	pending := tracker.Pending()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Deleted)

	assert.True(t, tracker.MarkDeleteSerialized(h, 1))
	_, ok := tracker.Sync(h, 1)
	assert.False(t, ok)
	assert.Zero(t, tracker.Len())
}

func TestTrackerForget(t *testing.T) {
	tracker := replication.NewTracker()
	h := ecs.NewHandle(1, 0)
	tracker.Track(h, 1)
	tracker.Track(h, 2)
	tracker.Track(ecs.NewHandle(1, 1), 1)
	assert.Equal(t, 3, tracker.Len())

	assert.True(t, tracker.Forget(h, 1))
	assert.False(t, tracker.Forget(h, 1))
	assert.Equal(t, 1, tracker.ForgetEntity(h))
	assert.Equal(t, 1, tracker.Len())
}

func TestDestroyedRecords(t *testing.T) {
	tracker := replication.NewTracker()
	a, b := ecs.NewHandle(1, 0), ecs.NewHandle(1, 1)
	tracker.Track(a, 1)

	tracker.MarkDestroyed(a, 20)
	tracker.MarkDestroyed(a, 20)
	tracker.MarkDestroyed(b, 10)
	assert.Equal(t, 2, tracker.DestroyedLen())
	assert.Zero(t, tracker.Len(), "destroyed entities stop syncing")

	pending := tracker.PendingDestroyed()
	require.Len(t, pending, 2)
	assert.Equal(t, b, pending[0].Handle)

	assert.True(t, tracker.MarkDestroySerialized(b))
	assert.Len(t, tracker.PendingDestroyed(), 1)
	rec, ok := tracker.DestroyedRecord(b)
	require.True(t, ok)
	assert.True(t, rec.Serialized)
	assert.True(t, tracker.IsDestroyed(b))

	assert.True(t, tracker.ForgetDestroyed(b))
	assert.False(t, tracker.ForgetDestroyed(b))
	assert.False(t, tracker.MarkDestroySerialized(b))
}

func TestMapper(t *testing.T) {
	m := replication.NewMapper()
	a, b := ecs.NewHandle(1, 0), ecs.NewHandle(1, 1)

	m.Add(7, a)
	m.Add(7, b)
	assert.Equal(t, 1, m.Len())
	h, ok := m.Local(7)
	require.True(t, ok)
	assert.Equal(t, b, h)
	_, ok = m.Remote(a)
	assert.False(t, ok, "replaced handle is unmapped")

	m.Add(8, b)
	_, ok = m.Local(7)
	assert.False(t, ok, "a handle maps to one id")
	id, ok := m.Remote(b)
	require.True(t, ok)
	assert.Equal(t, replication.EntityID(8), id)

	removed, ok := m.Remove(8)
	require.True(t, ok)
	assert.Equal(t, b, removed)
	_, ok = m.Remove(8)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestSamplesKeepNewest(t *testing.T) {
	var s replication.Samples[int]
	_, ok := s.Latest()
	assert.False(t, ok)

	for frame := range uint64(replication.SampleCapacity + 3) {
		s.Push(frame, int(frame)*10)
	}
	require.Len(t, s.Items, replication.SampleCapacity)
	assert.Equal(t, uint64(3), s.Items[0].Frame, "oldest samples are dropped")

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, replication.Sample[int]{Frame: 10, Value: 100}, latest)
}
