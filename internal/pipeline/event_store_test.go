package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertFirstSeenWins(t *testing.T) {
	s := NewEventStore()
	first := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	assert.True(t, s.Upsert(trackedAt("ACME", first)))
	assert.False(t, s.Upsert(trackedAt("ACME", first.Add(time.Hour))))

	ev, ok := s.Take("ACME")
	require.True(t, ok)
	assert.Equal(t, first, ev.ReleaseAt)
}

func TestRemove(t *testing.T) {
	s := NewEventStore()
	s.Upsert(trackedAt("ACME", time.Now()))

	assert.True(t, s.Remove("ACME"))
	assert.False(t, s.Remove("ACME"))
	assert.Zero(t, s.Len())
}

func TestTakeAtMostOnceUnderContention(t *testing.T) {
	s := NewEventStore()
	s.Upsert(trackedAt("ACME", time.Now()))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take("ACME"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestSnapshotIsStableUnderMutation(t *testing.T) {
	s := NewEventStore()
	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s.Upsert(trackedAt("CCC", base.Add(3*time.Hour)))
	s.Upsert(trackedAt("AAA", base.Add(1*time.Hour)))
	s.Upsert(trackedAt("BBB", base.Add(2*time.Hour)))

	seq := s.Snapshot()
	var ids []string
	for ev := range seq {
		ids = append(ids, ev.ID)
		s.Remove(ev.ID)
		s.Upsert(trackedAt(ev.ID+"-new", base))
	}
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, ids)

	// the same sequence can be ranged again
	var again int
	for range seq {
		again++
	}
	assert.Equal(t, 3, again)
	assert.Equal(t, 3, s.Len())
}

func TestSnapshotEarlyBreak(t *testing.T) {
	s := NewEventStore()
	s.Upsert(trackedAt("AAA", time.Now()))
	s.Upsert(trackedAt("BBB", time.Now().Add(time.Hour)))

	n := 0
	for range s.Snapshot() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestPruneRemovesMissedWindows(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute
	s := NewEventStore()
	s.Upsert(trackedAt("LATE", now.Add(-10*time.Minute)))
	s.Upsert(trackedAt("LIVE", now.Add(-3*time.Minute)))
	s.Upsert(trackedAt("NEXT", now.Add(time.Hour)))

	stale := s.Prune(now, window)

	require.Len(t, stale, 1)
	assert.Equal(t, "LATE", stale[0].ID)
	assert.True(t, s.Has("LIVE"))
	assert.True(t, s.Has("NEXT"))
}
