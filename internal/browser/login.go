package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	usernameSelector = `#username`
	passwordSelector = `#password, input[name="session_password"]`
	submitSelector   = `button[data-litms-control-urn="login-submit"], button[type="submit"]`
)

// Login signs in through the profile site's login form and waits for the
// redirect that follows.
func (s *Session) Login(ctx context.Context, loginURL, username, password string) error {
	if username == "" || password == "" {
		return eris.New("browser: login credentials not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	zap.L().Info("browser: signing in", zap.String("url", loginURL))
	err := s.run(ctx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SetValue(usernameSelector, username, chromedp.ByQuery),
		chromedp.SetValue(passwordSelector, password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return eris.Wrap(err, "browser: sign in")
	}
	zap.L().Info("browser: sign in submitted")
	return nil
}
