package lookup

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Cache stores lookup results between runs.
type Cache interface {
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Cached wraps a Provider and remembers positive results. Cache failures are
// logged and never surface to the caller.
type Cached struct {
	next  Provider
	cache Cache
	ttl   time.Duration
}

// NewCached returns a caching decorator around next.
func NewCached(next Provider, cache Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

// NameKey returns the cache key for a company name search. Names differing
// only in case, width, or spacing share a key.
func NameKey(name string) string {
	folded := cases.Fold().String(norm.NFKC.String(strings.TrimSpace(name)))
	return "profile:" + strings.Join(strings.Fields(folded), " ")
}

// DetailsKey returns the cache key for a profile's details.
func DetailsKey(profileURL string) string {
	return "details:" + NormalizeProfileURL(profileURL)
}

func (c *Cached) FindProfile(ctx context.Context, name string) (string, error) {
	key := NameKey(name)
	if url, ok := c.getString(ctx, key); ok {
		return url, nil
	}
	url, err := c.next.FindProfile(ctx, name)
	if err == nil && url != "" {
		c.put(ctx, key, url)
	}
	return url, err
}

// FindProfileFallback shares the name cache with FindProfile so a name found
// by either strategy is not searched again.
func (c *Cached) FindProfileFallback(ctx context.Context, name string) (string, error) {
	key := NameKey(name)
	if url, ok := c.getString(ctx, key); ok {
		return url, nil
	}
	url, err := c.next.FindProfileFallback(ctx, name)
	if err == nil && url != "" {
		c.put(ctx, key, url)
	}
	return url, err
}

func (c *Cached) FetchDetails(ctx context.Context, profileURL string) (Details, error) {
	key := DetailsKey(profileURL)
	if data, ok := c.get(ctx, key); ok {
		var d Details
		if err := json.Unmarshal(data, &d); err == nil {
			return d, nil
		}
	}
	d, err := c.next.FetchDetails(ctx, profileURL)
	if err == nil && d.Size != "" && d.Industry != "" {
		c.put(ctx, key, d)
	}
	return d, err
}

func (c *Cached) Close() error {
	return c.next.Close()
}

func (c *Cached) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.cache.GetCachedLookup(ctx, key)
	if err != nil {
		zap.L().Warn("lookup: cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	zap.L().Debug("lookup: cache hit", zap.String("key", key))
	return data, true
}

func (c *Cached) getString(ctx context.Context, key string) (string, bool) {
	data, ok := c.get(ctx, key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func (c *Cached) put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.SetCachedLookup(ctx, key, data, c.ttl); err != nil {
		zap.L().Warn("lookup: cache write failed", zap.String("key", key), zap.Error(err))
	}
}
