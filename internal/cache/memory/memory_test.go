package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewEventBus()
	a, err := bus.Subscribe(ctx, "pipeline")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "pipeline")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "pipeline", []byte("hello")))

	assert.Equal(t, []byte("hello"), <-a)
	assert.Equal(t, []byte("hello"), <-b)
	select {
	case msg := <-other:
		t.Fatalf("unexpected message on other channel: %s", msg)
	default:
	}
}

func TestEventBusClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewEventBus()
	ch, err := bus.Subscribe(ctx, "pipeline")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	// Publishing with no subscribers is a no-op.
	require.NoError(t, bus.Publish(context.Background(), "pipeline", []byte("x")))
}

func TestEventBusDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewEventBus()
	ch, err := bus.Subscribe(ctx, "pipeline")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(ctx, "pipeline", []byte("x")))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestRateLimiterBurstThenRefill(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "ip", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "ip", 2, time.Second)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "other-ip", 2, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(600 * time.Millisecond)
	ok, _ = rl.Allow(ctx, "ip", 2, time.Second)
	assert.True(t, ok)
}
