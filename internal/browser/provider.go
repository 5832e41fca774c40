package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/linkedin"
	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/resilience"
	"github.com/sells-group/sheet-enricher/internal/scrape"
)

// BlockedError reports a page the browser could not get past.
type BlockedError struct {
	Kind     scrape.BlockType
	Location string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("browser: blocked by %s at %s", e.Kind, e.Location)
}

// errNotRendered means the expected element never appeared; after the last
// attempt it is treated as "no result".
var errNotRendered = eris.New("browser: result not rendered")

// ProviderConfig configures lookups.
type ProviderConfig struct {
	BaseURL         string
	SearchEngineURL string
	Username        string
	Password        string
	// MaxAuthAttempts bounds cookie and login attempts per page.
	MaxAuthAttempts int
	// Retry paces re-reads of a page whose results have not rendered yet.
	Retry resilience.RetryConfig
	// Fallback guards the web search engine.
	Fallback resilience.CircuitBreakerConfig
}

// Provider implements lookup.Provider on a browser Page.
type Provider struct {
	page    Page
	cookies *CookieFile
	cfg     ProviderConfig
	breaker *resilience.CircuitBreaker
	now     func() time.Time
}

var _ lookup.Provider = (*Provider)(nil)

// NewProvider returns a provider that drives page and reuses the session in
// cookies.
func NewProvider(page Page, cookies *CookieFile, cfg ProviderConfig) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = linkedin.DefaultBaseURL
	}
	if cfg.SearchEngineURL == "" {
		cfg.SearchEngineURL = linkedin.DefaultSearchEngineURL
	}
	if cfg.MaxAuthAttempts <= 0 {
		cfg.MaxAuthAttempts = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.PageRetryConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = resilience.RetryUnlessPermanent
	}
	if cfg.Fallback.Name == "" {
		cfg.Fallback = resilience.DefaultCircuitBreakerConfig()
		cfg.Fallback.Name = "web_search"
	}
	cfg.Fallback.ShouldTrip = isBlocked

	return &Provider{
		page:    page,
		cookies: cookies,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(cfg.Fallback),
		now:     time.Now,
	}
}

func isBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// FindProfile returns the first company result of the profile site's search.
func (p *Provider) FindProfile(ctx context.Context, name string) (string, error) {
	log := zap.L().With(zap.String("name", name))
	log.Info("browser: company search")

	if err := p.open(ctx, linkedin.SearchURL(p.cfg.BaseURL, name), true); err != nil {
		return "", err
	}
	href, err := resilience.DoVal(ctx, p.cfg.Retry, func(ctx context.Context) (string, error) {
		html, err := p.page.HTML(ctx)
		if err != nil {
			return "", err
		}
		href, err := linkedin.ParseCompanySearch(p.cfg.BaseURL, html)
		if err != nil {
			return "", resilience.Permanent(err)
		}
		if href == "" {
			return "", errNotRendered
		}
		return href, nil
	})
	if errors.Is(err, errNotRendered) {
		log.Info("browser: no company search result")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	log.Info("browser: company search result", zap.String("profile_url", href))
	return href, nil
}

// FindProfileFallback queries the web search engine. Repeated blocks open the
// circuit; while it is open the fallback reports no result.
func (p *Provider) FindProfileFallback(ctx context.Context, name string) (string, error) {
	log := zap.L().With(zap.String("name", name))
	log.Info("browser: web search fallback")

	href, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (string, error) {
		if err := p.open(ctx, linkedin.WebSearchURL(p.cfg.SearchEngineURL, name), false); err != nil {
			return "", err
		}
		return resilience.DoVal(ctx, p.cfg.Retry, func(ctx context.Context) (string, error) {
			html, err := p.page.HTML(ctx)
			if err != nil {
				return "", err
			}
			href, rendered, err := linkedin.ParseWebSearch(p.cfg.SearchEngineURL, html)
			if err != nil {
				return "", resilience.Permanent(err)
			}
			if !rendered {
				return "", errNotRendered
			}
			return href, nil
		})
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		log.Warn("browser: web search paused after repeated blocks")
		return "", nil
	case errors.Is(err, errNotRendered):
		log.Info("browser: web search results not rendered")
		return "", nil
	case err != nil:
		return "", err
	}
	log.Info("browser: web search result", zap.String("profile_url", href))
	return href, nil
}

// FetchDetails reads size and industry from the profile's about page. The
// page is re-read until both fields appear or attempts run out; whatever was
// found by then is returned.
func (p *Provider) FetchDetails(ctx context.Context, profileURL string) (lookup.Details, error) {
	log := zap.L().With(zap.String("profile_url", profileURL))

	if err := p.open(ctx, linkedin.AboutURL(profileURL), true); err != nil {
		return lookup.Details{}, err
	}

	var best lookup.Details
	_, err := resilience.DoVal(ctx, p.cfg.Retry, func(ctx context.Context) (lookup.Details, error) {
		html, err := p.page.HTML(ctx)
		if err != nil {
			return lookup.Details{}, err
		}
		d, err := linkedin.ParseAboutDetails(html)
		if err != nil {
			return lookup.Details{}, resilience.Permanent(err)
		}
		if d.Size != "" {
			best.Size = d.Size
		}
		if d.Industry != "" {
			best.Industry = d.Industry
		}
		if best.Size == "" || best.Industry == "" {
			return best, errNotRendered
		}
		return best, nil
	})
	if err != nil && !errors.Is(err, errNotRendered) {
		return best, err
	}
	log.Info("browser: company details", zap.String("size", best.Size), zap.String("industry", best.Industry))
	return best, nil
}

// Close quits the browser.
func (p *Provider) Close() error {
	return p.page.Close()
}

// open navigates to target and clears sign-in interstitials when auth is
// set: first by installing saved cookies, then by signing in. Blocks that
// cannot be cleared are returned as permanent BlockedErrors.
func (p *Provider) open(ctx context.Context, target string, auth bool) error {
	for attempt := 0; ; attempt++ {
		if err := p.page.Navigate(ctx, target); err != nil {
			return err
		}
		loc, err := p.page.Location(ctx)
		if err != nil {
			return err
		}
		html, err := p.page.HTML(ctx)
		if err != nil {
			return err
		}

		blocked, kind := scrape.DetectPageBlock(loc, html)
		if !blocked {
			return nil
		}
		zap.L().Warn("browser: page blocked", zap.String("url", target), zap.String("location", loc), zap.String("block", string(kind)), zap.Int("attempt", attempt))

		if !auth || kind != scrape.BlockAuthwall || attempt >= p.cfg.MaxAuthAttempts {
			return resilience.Permanent(&BlockedError{Kind: kind, Location: loc})
		}
		if err := p.authenticate(ctx, attempt); err != nil {
			return err
		}
	}
}

// authenticate installs saved cookies on the first attempt when there are
// any, and signs in otherwise. A fresh sign-in saves the new cookies.
func (p *Provider) authenticate(ctx context.Context, attempt int) error {
	if attempt == 0 {
		saved, err := p.cookies.Load()
		if err != nil {
			zap.L().Warn("browser: saved cookies unusable", zap.Error(err))
		}
		if params := CookieParams(saved, p.now()); len(params) > 0 {
			zap.L().Info("browser: installing saved cookies", zap.Int("count", len(params)))
			return p.page.SetCookies(ctx, params)
		}
	}

	if err := p.page.Login(ctx, linkedin.LoginURL(p.cfg.BaseURL), p.cfg.Username, p.cfg.Password); err != nil {
		return err
	}
	cookies, err := p.page.Cookies(ctx)
	if err != nil {
		zap.L().Warn("browser: read cookies after sign in", zap.Error(err))
		return nil
	}
	if err := p.cookies.Save(cookies); err != nil {
		zap.L().Warn("browser: save cookies", zap.Error(err))
	} else if p.cookies != nil {
		zap.L().Info("browser: cookies saved", zap.String("path", p.cookies.Path()), zap.Int("count", len(cookies)))
	}
	return nil
}
