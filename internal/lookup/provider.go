// Package lookup defines the capability that resolves a company name to its
// LinkedIn profile and profile details.
package lookup

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnavailable means the provider can no longer serve any lookup (for
// example the browser session died). Callers abort the cycle on it.
var ErrUnavailable = eris.New("lookup: provider unavailable")

// Details are the fields scraped from a company profile. Empty fields were
// not found.
type Details struct {
	Size     string `json:"size,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// Provider resolves companies. An empty string or empty Details means no
// result, which is not an error.
type Provider interface {
	// FindProfile searches the profile site directly.
	FindProfile(ctx context.Context, name string) (string, error)
	// FindProfileFallback searches a general web search engine.
	FindProfileFallback(ctx context.Context, name string) (string, error)
	// FetchDetails reads size and industry from a normalized profile URL.
	FetchDetails(ctx context.Context, profileURL string) (Details, error)
	// Close releases the provider's session.
	Close() error
}

// NormalizeProfileURL drops the query string and trailing slashes.
func NormalizeProfileURL(raw string) string {
	u := strings.TrimSpace(raw)
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}
