// Package linkedin builds the profile-site and web-search URLs used for
// company lookups and parses the pages they return.
package linkedin

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the profile site root.
	DefaultBaseURL = "https://www.linkedin.com"
	// DefaultSearchEngineURL is the web search fallback root.
	DefaultSearchEngineURL = "https://www.google.com"
)

// SearchURL returns the company search page for name.
func SearchURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/search/results/companies/?keywords=" + url.QueryEscape(name)
}

// WebSearchURL returns a search engine query restricted to company profiles.
func WebSearchURL(base, name string) string {
	q := fmt.Sprintf(`site:linkedin.com/company/ AND "%s"`, name)
	return strings.TrimRight(base, "/") + "/search?q=" + url.QueryEscape(q)
}

// AboutURL returns the about page of a normalized profile URL.
func AboutURL(profileURL string) string {
	return strings.TrimRight(profileURL, "/") + "/about/"
}

// LoginURL returns the sign-in page.
func LoginURL(base string) string {
	return strings.TrimRight(base, "/") + "/uas/login"
}

// IsCompanyProfile reports whether href points at a company profile.
func IsCompanyProfile(href string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}
	return strings.HasPrefix(u.Path, "/company/") && len(strings.Trim(u.Path, "/")) > len("company/")
}

// resolve makes href absolute against base.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
