package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// testClient connects to AFTERMATH_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("AFTERMATH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AFTERMATH_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{
		Addr:   addr,
		Prefix: "aftermath-test:" + uuid.NewString()[:8] + ":",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: defaultPrefix}
	assert.Equal(t, "aftermath:lock:trigger:ACME", c.key("lock", "trigger:ACME"))
}

func TestLockExclusive(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "trigger:ACME", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "trigger:ACME", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "trigger:ACME", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestEventBusRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewEventBus(c)
	channel := "aftermath-test:" + uuid.NewString()
	ch, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, channel, []byte(`{"kind":"event_tracked"}`)))

	select {
	case got := <-ch:
		assert.JSONEq(t, `{"kind":"event_tracked"}`, string(got))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
