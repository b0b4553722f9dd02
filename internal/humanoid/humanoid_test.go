package humanoid

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures requested durations without blocking.
type recordingSleep struct {
	calls []time.Duration
	err   error
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return r.err
}

func TestBetween(t *testing.T) {
	p := New(rand.New(rand.NewSource(7)), nil)

	t.Run("should stay inside the range", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			d := p.Between(2*time.Second, 5*time.Second)
			require.GreaterOrEqual(t, d, 2*time.Second)
			require.LessOrEqual(t, d, 5*time.Second)
		}
	})

	t.Run("should collapse a degenerate range to its lower bound", func(t *testing.T) {
		assert.Equal(t, time.Second, p.Between(time.Second, time.Second))
		assert.Equal(t, time.Second, p.Between(time.Second, 0))
	})
}

func TestPause(t *testing.T) {
	rec := &recordingSleep{}
	p := New(rand.New(rand.NewSource(1)), rec.sleep)

	require.NoError(t, p.Pause(context.Background(), 100*time.Millisecond, 50*time.Millisecond))
	require.Len(t, rec.calls, 1)
	assert.GreaterOrEqual(t, rec.calls[0], 100*time.Millisecond)
	assert.LessOrEqual(t, rec.calls[0], 150*time.Millisecond)

	require.NoError(t, p.Wait(context.Background(), 3*time.Second))
	assert.Equal(t, 3*time.Second, rec.calls[1])
}

func TestSleep(t *testing.T) {
	t.Run("should return early on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		err := Sleep(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("should not block on zero", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), 0))
	})
}

func TestKeyDelay(t *testing.T) {
	p := New(rand.New(rand.NewSource(3)), nil)
	runes := []rune("the password")

	for i := range runes {
		d := p.KeyDelay(60*time.Millisecond, 200*time.Millisecond, runes, i)
		assert.GreaterOrEqual(t, d, 30*time.Millisecond, "delay must respect the floor")
	}
}

func TestType(t *testing.T) {
	t.Run("should press every rune in order and pause between them", func(t *testing.T) {
		rec := &recordingSleep{}
		p := New(rand.New(rand.NewSource(9)), rec.sleep)
		var pressed []string

		err := p.Type(context.Background(), "pä$s", 40*time.Millisecond, 10*time.Millisecond, func(_ context.Context, key string) error {
			pressed = append(pressed, key)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"p", "ä", "$", "s"}, pressed)
		assert.Len(t, rec.calls, 3)
	})

	t.Run("should skip pauses when mean is zero", func(t *testing.T) {
		rec := &recordingSleep{}
		p := New(nil, rec.sleep)
		require.NoError(t, p.Type(context.Background(), "abc", 0, 0, func(context.Context, string) error { return nil }))
		assert.Empty(t, rec.calls)
	})

	t.Run("should stop on the first press error", func(t *testing.T) {
		p := New(nil, (&recordingSleep{}).sleep)
		boom := errors.New("detached")
		count := 0
		err := p.Type(context.Background(), "abc", time.Millisecond, 0, func(context.Context, string) error {
			count++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count)
	})
}
