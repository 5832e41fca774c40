package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheet-enricher/internal/linkedin"
	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/resilience"
	"github.com/sells-group/sheet-enricher/internal/scrape"
)

type fakePage struct {
	mu sync.Mutex
	// respond returns where url lands and its successive renders; the last
	// render repeats.
	respond func(url string, authed bool) (string, []string)

	authed      bool
	loc         string
	renders     []string
	navigations []string
	cookiesSet  [][]*network.CookieParam
	logins      int
	loginErr    error
	jar         []*network.Cookie
	closed      bool
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.loc, f.renders = f.respond(url, f.authed)
	return nil
}

func (f *fakePage) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc, nil
}

func (f *fakePage) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch len(f.renders) {
	case 0:
		return "", nil
	case 1:
		return f.renders[0], nil
	}
	h := f.renders[0]
	f.renders = f.renders[1:]
	return h, nil
}

func (f *fakePage) Cookies(context.Context) ([]*network.Cookie, error) {
	return f.jar, nil
}

func (f *fakePage) SetCookies(_ context.Context, cookies []*network.CookieParam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookiesSet = append(f.cookiesSet, cookies)
	f.authed = true
	return nil
}

func (f *fakePage) Login(_ context.Context, loginURL, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return f.loginErr
	}
	if loginURL != linkedin.LoginURL(linkedin.DefaultBaseURL) || username == "" || password == "" {
		return errors.New("unexpected login call")
	}
	f.authed = true
	return nil
}

func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

const (
	searchHTML = `<html><body><ul><li class="reusable-search__result-container"><div class="entity-result__title-text">
<a href="https://www.linkedin.com/company/acme/?trk=x">Acme</a></div></li></ul></body></html>`
	emptySearchHTML = `<html><body><div class="search-results-container"></div></body></html>`
	googleHTML      = `<html><body><div id="search"><a href="https://www.linkedin.com/company/globex"><h3>Globex</h3></a><cite>linkedin.com</cite></div></body></html>`
	sorryHTML       = `<html><body>Our systems have detected unusual traffic from your computer network.</body></html>`
	aboutHTML       = `<html><body><dl><dt>Industry</dt><dd>Retail</dd><dt>Company size</dt><dd>11-50 employees</dd></dl></body></html>`
	aboutPartial    = `<html><body><dl><dt>Industry</dt><dd>Retail</dd></dl></body></html>`
	authwallLoc     = "https://www.linkedin.com/authwall?trk=gf"
)

func testConfig() ProviderConfig {
	return ProviderConfig{
		Username: "user@example.com",
		Password: "secret",
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			ShouldRetry:    resilience.RetryUnlessPermanent,
		},
		Fallback: resilience.NewCircuitConfig("web_search", 3, time.Hour),
	}
}

func static(html string) func(string, bool) (string, []string) {
	return func(url string, _ bool) (string, []string) { return url, []string{html} }
}

func TestFindProfile(t *testing.T) {
	page := &fakePage{respond: static(searchHTML)}
	p := NewProvider(page, nil, testConfig())

	href, err := p.FindProfile(context.Background(), "Acme & Sons")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/company/acme/?trk=x", href)
	assert.Equal(t, []string{linkedin.SearchURL(linkedin.DefaultBaseURL, "Acme & Sons")}, page.navigations)
}

func TestFindProfile_LateRender(t *testing.T) {
	page := &fakePage{respond: func(url string, _ bool) (string, []string) {
		return url, []string{emptySearchHTML, emptySearchHTML, searchHTML}
	}}
	p := NewProvider(page, nil, testConfig())

	href, err := p.FindProfile(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Contains(t, href, "/company/acme")
	assert.Len(t, page.navigations, 1)
}

func TestFindProfile_NoResult(t *testing.T) {
	p := NewProvider(&fakePage{respond: static(emptySearchHTML)}, nil, testConfig())

	href, err := p.FindProfile(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Empty(t, href)
}

func TestFindProfile_SavedCookiesClearAuthwall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	expiry := strconv.FormatInt(time.Now().Add(24*time.Hour).Unix(), 10)
	legacy := `[{"name": "li_at", "value": "tok", "domain": ".www.linkedin.com", "path": "/", "expiry": ` + expiry + `}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	page := &fakePage{respond: func(url string, authed bool) (string, []string) {
		if !authed {
			return authwallLoc, []string{"<html></html>"}
		}
		return url, []string{searchHTML}
	}}
	p := NewProvider(page, NewCookieFile(path), testConfig())

	href, err := p.FindProfile(context.Background(), "Acme")
	require.NoError(t, err)
	assert.NotEmpty(t, href)
	require.Len(t, page.cookiesSet, 1)
	assert.Equal(t, "li_at", page.cookiesSet[0][0].Name)
	assert.Equal(t, "www.linkedin.com", page.cookiesSet[0][0].Domain)
	assert.Zero(t, page.logins)
	assert.Len(t, page.navigations, 2)
}

func TestFindProfile_LoginSavesCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	page := &fakePage{
		respond: func(url string, authed bool) (string, []string) {
			if !authed {
				return "https://www.linkedin.com/signup/cold-join?session_redirect=x", []string{"<html></html>"}
			}
			return url, []string{searchHTML}
		},
		jar: []*network.Cookie{{Name: "li_at", Value: "fresh", Domain: ".linkedin.com", Path: "/", Expires: 4102444800}},
	}
	p := NewProvider(page, NewCookieFile(path), testConfig())

	_, err := p.FindProfile(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, page.logins)

	saved, err := NewCookieFile(path).Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "fresh", saved[0].Value)
}

func TestFindProfile_AuthwallPersists(t *testing.T) {
	page := &fakePage{respond: func(string, bool) (string, []string) {
		return authwallLoc, []string{"<html></html>"}
	}}
	p := NewProvider(page, nil, testConfig())

	_, err := p.FindProfile(context.Background(), "Acme")
	var be *BlockedError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, scrape.BlockAuthwall, be.Kind)
	assert.Equal(t, 3, page.logins)
	assert.Len(t, page.navigations, 4)
}

func TestFindProfile_LoginFailure(t *testing.T) {
	page := &fakePage{
		respond:  func(string, bool) (string, []string) { return authwallLoc, nil },
		loginErr: errors.New("#username not visible"),
	}
	p := NewProvider(page, nil, testConfig())

	_, err := p.FindProfile(context.Background(), "Acme")
	assert.ErrorContains(t, err, "#username not visible")
}

func TestFindProfileFallback(t *testing.T) {
	page := &fakePage{respond: static(googleHTML)}
	p := NewProvider(page, nil, testConfig())

	href, err := p.FindProfileFallback(context.Background(), "Globex")
	require.NoError(t, err)
	assert.Equal(t, "https://www.linkedin.com/company/globex", href)
	assert.Equal(t, []string{linkedin.WebSearchURL(linkedin.DefaultSearchEngineURL, "Globex")}, page.navigations)
}

func TestFindProfileFallback_BreakerOpensOnBlocks(t *testing.T) {
	page := &fakePage{respond: func(string, bool) (string, []string) {
		return "https://www.google.com/search?q=x", []string{sorryHTML}
	}}
	p := NewProvider(page, nil, testConfig())

	for range 3 {
		_, err := p.FindProfileFallback(context.Background(), "Globex")
		var be *BlockedError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, scrape.BlockRateLimit, be.Kind)
	}
	assert.Zero(t, page.logins)

	href, err := p.FindProfileFallback(context.Background(), "Globex")
	require.NoError(t, err)
	assert.Empty(t, href)
	assert.Len(t, page.navigations, 3)
}

func TestFindProfileFallback_NotRendered(t *testing.T) {
	p := NewProvider(&fakePage{respond: static(`<html><body>Sign in</body></html>`)}, nil, testConfig())

	href, err := p.FindProfileFallback(context.Background(), "Globex")
	require.NoError(t, err)
	assert.Empty(t, href)
}

func TestFetchDetails(t *testing.T) {
	page := &fakePage{respond: static(aboutHTML)}
	p := NewProvider(page, nil, testConfig())

	d, err := p.FetchDetails(context.Background(), "https://www.linkedin.com/company/acme")
	require.NoError(t, err)
	assert.Equal(t, lookup.Details{Size: "11-50", Industry: "Retail"}, d)
	assert.Equal(t, []string{"https://www.linkedin.com/company/acme/about/"}, page.navigations)
}

func TestFetchDetails_PartialAfterRetries(t *testing.T) {
	p := NewProvider(&fakePage{respond: static(aboutPartial)}, nil, testConfig())

	d, err := p.FetchDetails(context.Background(), "https://www.linkedin.com/company/acme")
	require.NoError(t, err)
	assert.Equal(t, lookup.Details{Industry: "Retail"}, d)
}

func TestProvider_Close(t *testing.T) {
	page := &fakePage{respond: static("")}
	require.NoError(t, NewProvider(page, nil, testConfig()).Close())
	assert.True(t, page.closed)
}
