package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int
}

func (c *countingClient) Name() string { return "test/counting" }

func (c *countingClient) Complete(_ context.Context, _, userPrompt string) (string, error) {
	c.calls++
	return "response to " + userPrompt, nil
}

func TestCachingClientDeduplicatesIdenticalPrompts(t *testing.T) {
	inner := &countingClient{}
	client := NewCachingClient(inner, time.Minute)
	ctx := context.Background()

	first, err := client.Complete(ctx, "sys", "classify 比亚迪")
	require.NoError(t, err)
	second, err := client.Complete(ctx, "sys", "classify 比亚迪")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	// Different prompt misses the cache.
	_, err = client.Complete(ctx, "sys", "classify Tesla")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingClientDisabledWithZeroTTL(t *testing.T) {
	inner := &countingClient{}
	client := NewCachingClient(inner, 0)
	assert.Same(t, Client(inner), client)
}

func TestRateLimiterAcquire(t *testing.T) {
	rl := newRateLimiter(600)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, rl.wait(ctx))
	}
}

func TestRateLimiterHonorsCancellation(t *testing.T) {
	rl := newRateLimiter(1)
	rl.tokens = 0

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.wait(ctx)
	assert.Error(t, err)
}
