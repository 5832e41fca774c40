package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope grants read and write access to spreadsheets.
const Scope = "https://www.googleapis.com/auth/spreadsheets"

// ErrNoToken is returned when no stored token exists yet.
var ErrNoToken = eris.New("sheets: no stored token; run the auth command first")

// LoadOAuthConfig reads an OAuth client secrets file downloaded from the
// cloud console.
func LoadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read credentials %s", credentialsPath)
	}
	cfg, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: parse credentials %s", credentialsPath)
	}
	return cfg, nil
}

// TokenFile stores an OAuth token as JSON.
type TokenFile struct {
	path string
}

// NewTokenFile returns a token file at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Path returns the file location.
func (f *TokenFile) Path() string { return f.path }

// Load reads the token, returning ErrNoToken when the file does not exist.
func (f *TokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read token %s", f.path)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, eris.Wrapf(err, "sheets: parse token %s", f.path)
	}
	return &tok, nil
}

// Save writes the token with owner-only permissions.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return eris.Wrap(err, "sheets: encode token")
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return eris.Wrapf(err, "sheets: create token dir %s", dir)
		}
	}
	return eris.Wrapf(os.WriteFile(f.path, data, 0o600), "sheets: write token %s", f.path)
}

// savingSource writes every refreshed token back to the token file.
type savingSource struct {
	src  oauth2.TokenSource
	file *TokenFile

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, eris.Wrap(err, "sheets: refresh token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.file.Save(tok); err != nil {
			zap.L().Warn("sheets: save refreshed token", zap.Error(err))
		} else {
			zap.L().Debug("sheets: token refreshed", zap.Time("expiry", tok.Expiry))
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// HTTPClient returns an HTTP client authorized with the stored token. The
// token is refreshed as needed and the refreshed token is saved.
func HTTPClient(ctx context.Context, cfg *oauth2.Config, file *TokenFile) (*http.Client, error) {
	tok, err := file.Load()
	if err != nil {
		return nil, err
	}
	src := &savingSource{src: cfg.TokenSource(ctx, tok), file: file, last: tok.AccessToken}
	return oauth2.NewClient(ctx, src), nil
}

// Authorize runs the installed-app consent flow: it serves a loopback
// redirect endpoint, prints the consent URL to out, and exchanges the code
// the browser delivers for a token.
func Authorize(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, eris.Wrap(err, "sheets: listen for redirect")
	}

	flow := *cfg
	flow.RedirectURL = "http://" + ln.Addr().String() + "/callback"
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	codes := make(chan string, 1)
	denied := make(chan error, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied: "+e, http.StatusForbidden)
			select {
			case denied <- eris.Errorf("sheets: authorization denied: %s", e):
			default:
			}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.") //nolint:errcheck
		select {
		case codes <- q.Get("code"):
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close() //nolint:errcheck

	authURL := flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if _, err := fmt.Fprintf(out, "Open this URL in a browser to authorize spreadsheet access:\n\n%s\n\n", authURL); err != nil {
		return nil, eris.Wrap(err, "sheets: print consent url")
	}

	select {
	case code := <-codes:
		tok, err := flow.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, eris.Wrap(err, "sheets: exchange code")
		}
		return tok, nil
	case err := <-denied:
		return nil, err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "sheets: waiting for authorization")
	}
}
