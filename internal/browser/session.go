// Package browser drives a headless Chrome session through chromedp and
// implements company lookups on top of it.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sheet-enricher/internal/lookup"
)

// DefaultUserAgent is sent by the browser unless configured otherwise.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is the browser surface the lookup provider needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	SetCookies(ctx context.Context, cookies []*network.CookieParam) error
	Login(ctx context.Context, loginURL, username, password string) error
	Close() error
}

// Config controls the Chrome process and navigation pacing.
type Config struct {
	ChromePath string
	Headless   bool
	UserAgent  string
	// NavRPS caps navigations per second; zero disables pacing.
	NavRPS float64
	// Settle is how long to wait after the document is ready, so client-side
	// rendering can finish.
	Settle time.Duration
	// NavTimeout bounds a single navigation.
	NavTimeout time.Duration
}

// Session owns one Chrome process with a single tab. Calls are serialized.
type Session struct {
	cfg     Config
	limiter *rate.Limiter

	mu          sync.Mutex
	ctx         context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// NewSession returns an unstarted session.
func NewSession(cfg Config) *Session {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.NavRPS > 0 {
		limit = rate.Limit(cfg.NavRPS)
	}
	return &Session{cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	if s.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ChromePath))
	}
	return opts
}

// Start launches Chrome. The browser outlives ctx; only Close stops it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}

	zap.L().Info("browser: starting chrome", zap.Bool("headless", s.cfg.Headless), zap.String("chrome_path", s.cfg.ChromePath))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), s.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must be the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return eris.Wrap(err, "browser: start chrome")
	}

	startCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(startCtx, network.Enable(), chromedp.Navigate("about:blank")); err != nil {
		_ = chromedp.Cancel(tabCtx)
		tabCancel()
		allocCancel()
		return eris.Wrap(err, "browser: open tab")
	}
	s.ctx, s.allocCancel, s.tabCancel = tabCtx, allocCancel, tabCancel
	return nil
}

// Close quits Chrome. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	zap.L().Info("browser: quitting chrome")
	err := chromedp.Cancel(s.ctx)
	s.tabCancel()
	s.allocCancel()
	s.ctx = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return eris.Wrap(err, "browser: quit chrome")
	}
	return nil
}

// run executes actions on the tab, bound to the caller's ctx and capped by
// NavTimeout. A dead browser is reported as lookup.ErrUnavailable.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.ctx.Err() != nil {
		return eris.Wrap(lookup.ErrUnavailable, "browser: session not running")
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case s.ctx.Err() != nil:
		return eris.Wrap(lookup.ErrUnavailable, err.Error())
	default:
		return err
	}
}

// Navigate loads url and waits for the document body plus the settle delay.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	zap.L().Debug("browser: navigate", zap.String("url", url))
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
	)
	return eris.Wrapf(err, "browser: navigate %s", url)
}

// Location returns the tab's current URL after redirects.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, eris.Wrap(err, "browser: location")
}

// HTML returns the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, eris.Wrap(err, "browser: read page")
}

// Cookies returns every cookie the browser holds.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	return cookies, eris.Wrap(err, "browser: get cookies")
}

// SetCookies installs cookies in the browser.
func (s *Session) SetCookies(ctx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	err := s.run(ctx, network.SetCookies(cookies))
	return eris.Wrap(err, "browser: set cookies")
}
