package browser

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
)

// Cookie is the on-disk cookie format. It reads both the browser's own
// "expires" field and the "expiry" field written by WebDriver tools, so an
// existing session file can be reused.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

func (c Cookie) expiresAt() float64 {
	if c.Expires > 0 {
		return c.Expires
	}
	return c.Expiry
}

// CookieFile persists a browser session's cookies as JSON.
type CookieFile struct {
	path string
}

// NewCookieFile returns a cookie file at path.
func NewCookieFile(path string) *CookieFile {
	return &CookieFile{path: path}
}

// Path returns the file location.
func (f *CookieFile) Path() string {
	return f.path
}

// Load reads the cookies. A missing or empty file yields no cookies.
func (f *CookieFile) Load() ([]Cookie, error) {
	if f == nil || f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "browser: read cookie file %s", f.path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, eris.Wrapf(err, "browser: parse cookie file %s", f.path)
	}
	return cookies, nil
}

// Save writes cookies, replacing the file atomically.
func (f *CookieFile) Save(cookies []*network.Cookie) error {
	if f == nil || f.path == "" {
		return nil
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return eris.Wrap(err, "browser: encode cookies")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "browser: create cookie file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "browser: write cookie file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "browser: write cookie file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), f.path), "browser: replace cookie file")
}

// CookieParams converts stored cookies into browser parameters, dropping
// cookies that have expired.
func CookieParams(cookies []Cookie, now time.Time) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if exp := c.expiresAt(); exp > 0 {
			t := time.Unix(int64(exp), 0)
			if !t.After(now) {
				continue
			}
			ts := cdp.TimeSinceEpoch(t)
			p.Expires = &ts
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}
