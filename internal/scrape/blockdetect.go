// Package scrape recognizes pages that stand between the browser and the
// content it asked for.
package scrape

import (
	"net/url"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone BlockType = ""
	// BlockAuthwall is a sign-up or login interstitial; a session can clear it.
	BlockAuthwall BlockType = "authwall"
	// BlockCaptcha is a challenge no retry will pass.
	BlockCaptcha BlockType = "captcha"
	// BlockRateLimit is a search engine's "unusual traffic" page.
	BlockRateLimit BlockType = "rate_limit"
)

// authPaths are the paths the profile site redirects anonymous or expired
// sessions to.
var authPaths = []string{
	"/signup/cold-join",
	"/signup",
	"/login",
	"/authwall",
	"/uas/login",
	"/checkpoint/challenge",
}

// IsAuthPath reports whether location points at a sign-in interstitial.
func IsAuthPath(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	for _, p := range authPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// DetectPageBlock inspects the browser's current location and rendered HTML.
func DetectPageBlock(location, html string) (bool, BlockType) {
	if IsAuthPath(location) {
		if strings.HasPrefix(strings.TrimRight(pathOf(location), "/"), "/checkpoint") {
			return true, BlockCaptcha
		}
		return true, BlockAuthwall
	}

	if strings.HasPrefix(pathOf(location), "/sorry/") {
		return true, BlockRateLimit
	}

	lower := strings.ToLower(html)

	if strings.Contains(lower, "our systems have detected unusual traffic") ||
		strings.Contains(lower, "unusual traffic from your computer network") {
		return true, BlockRateLimit
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "captcha-internal") {
		return true, BlockCaptcha
	}

	if strings.Contains(lower, "join now to see") ||
		(strings.Contains(lower, "sign in to see") && strings.Contains(lower, "authwall")) {
		return true, BlockAuthwall
	}

	return false, BlockNone
}

func pathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Path
}
