package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cachingClient wraps a Client with an in-memory completion cache. The
// verifier re-asks identical batch questions across runs of the same
// vertical, so short-lived caching saves real API spend.
type cachingClient struct {
	inner Client
	cache *gocache.Cache
}

// NewCachingClient wraps client with a TTL cache. A zero TTL disables
// wrapping and returns client unchanged.
func NewCachingClient(client Client, ttl time.Duration) Client {
	if ttl == 0 {
		return client
	}
	return &cachingClient{
		inner: client,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *cachingClient) Name() string {
	return c.inner.Name()
}

func (c *cachingClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := cacheKey(c.inner.Name(), systemPrompt, userPrompt)
	if cached, found := c.cache.Get(key); found {
		if text, ok := cached.(string); ok {
			return text, nil
		}
	}

	text, err := c.inner.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, text)
	return text, nil
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
