package lookup_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/lookup/mocks"
)

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) GetCachedLookup(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.data[key], nil
}

func (c *memCache) SetCachedLookup(_ context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.ttls[key] = ttl
	return nil
}

func TestNormalizeProfileURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"https://linkedin.com/company/acme/?trk=abc/", "https://linkedin.com/company/acme"},
		{"https://www.linkedin.com/company/acme/", "https://www.linkedin.com/company/acme"},
		{"https://www.linkedin.com/company/acme//", "https://www.linkedin.com/company/acme"},
		{"  https://www.linkedin.com/company/acme  ", "https://www.linkedin.com/company/acme"},
		{"https://www.linkedin.com/company/acme", "https://www.linkedin.com/company/acme"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lookup.NormalizeProfileURL(tt.in), tt.in)
	}
}

func TestNameKey_Folds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lookup.NameKey("ACME  Corp"), lookup.NameKey(" acme corp "))
	assert.Equal(t, lookup.NameKey("Ｆｏｏ"), lookup.NameKey("foo"))
	assert.NotEqual(t, lookup.NameKey("acme"), lookup.NameKey("acme corp"))
}

func TestCached_FindProfile_MissThenHit(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	cache := newMemCache()
	c := lookup.NewCached(next, cache, 48*time.Hour)

	next.On("FindProfile", mock.Anything, "Acme").Return("https://www.linkedin.com/company/acme", nil).Once()

	url, err := c.FindProfile(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/company/acme", url)

	// Second call is served from cache; the mock would fail on a second call.
	url, err = c.FindProfile(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/company/acme", url)
	assert.Equal(t, 48*time.Hour, cache.ttls[lookup.NameKey("Acme")])
}

func TestCached_FallbackSharesNameCache(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	c := lookup.NewCached(next, newMemCache(), time.Hour)

	next.On("FindProfileFallback", mock.Anything, "Globex").Return("https://www.linkedin.com/company/globex", nil).Once()

	url, err := c.FindProfileFallback(ctx, "Globex")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	url, err = c.FindProfile(ctx, "Globex")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/company/globex", url)
}

func TestCached_NegativeResultsNotCached(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	c := lookup.NewCached(next, newMemCache(), time.Hour)

	next.On("FindProfile", mock.Anything, "Nobody").Return("", nil).Twice()

	for range 2 {
		url, err := c.FindProfile(ctx, "Nobody")
		require.NoError(t, err)
		assert.Empty(t, url)
	}
}

func TestCached_FetchDetails(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	c := lookup.NewCached(next, newMemCache(), time.Hour)

	want := lookup.Details{Size: "51-200", Industry: "Software Development"}
	next.On("FetchDetails", mock.Anything, "https://www.linkedin.com/company/acme").Return(want, nil).Once()

	d, err := c.FetchDetails(ctx, "https://www.linkedin.com/company/acme")
	require.NoError(t, err)
	assert.Equal(t, want, d)

	d, err = c.FetchDetails(ctx, "https://www.linkedin.com/company/acme/")
	require.NoError(t, err)
	assert.Equal(t, want, d)
}

func TestCached_PartialDetailsNotCached(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	c := lookup.NewCached(next, newMemCache(), time.Hour)

	next.On("FetchDetails", mock.Anything, "u").Return(lookup.Details{Size: "2-10"}, nil).Twice()

	for range 2 {
		d, err := c.FetchDetails(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "2-10", d.Size)
	}
}

func TestCached_CacheErrorFallsThrough(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	cache := newMemCache()
	cache.readErr = errors.New("db locked")
	c := lookup.NewCached(next, cache, time.Hour)

	next.On("FindProfile", mock.Anything, "Acme").Return("u", nil).Once()

	url, err := c.FindProfile(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "u", url)
}

func TestCached_ProviderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	next := mocks.NewMockProvider(t)
	c := lookup.NewCached(next, newMemCache(), time.Hour)

	next.On("FindProfile", mock.Anything, "Acme").Return("", lookup.ErrUnavailable).Once()

	_, err := c.FindProfile(ctx, "Acme")
	assert.ErrorIs(t, err, lookup.ErrUnavailable)
}

func TestCached_Close(t *testing.T) {
	next := mocks.NewMockProvider(t)
	next.On("Close").Return(nil).Once()

	assert.NoError(t, lookup.NewCached(next, newMemCache(), time.Hour).Close())
}
