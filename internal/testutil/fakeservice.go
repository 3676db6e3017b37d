// Package testutil provides an in-process fake of the remote service for
// tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fragmede/streakkeeper/internal/auth"
)

const SessionCookie = "SESSION"

// Service is a configurable fake of the remote web application. Zero
// values of the status overrides mean "behave normally".
type Service struct {
	Contract auth.Contract

	// LoginToken is set as the token cookie by the login page.
	LoginToken string
	// HTMLToken is rendered into the login page as a hidden input.
	HTMLToken string
	// RefreshedToken replaces the token cookie when the home page is
	// visited with an authenticated session.
	RefreshedToken string

	Identity string
	Password string

	UserID    any
	UserDoc   map[string]any
	StatsDoc  map[string]any
	PageBody  string
	PagePaths []string

	LoginPageStatus int
	SignInStatus    int
	StatsStatus     int

	mu       sync.Mutex
	requests []Request
}

// Request is a recorded request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// NewService returns a service speaking contract with sensible defaults.
func NewService(contract auth.Contract) *Service {
	return &Service{
		Contract:       contract,
		LoginToken:     "pre-login-token",
		RefreshedToken: "post-login-token",
		Identity:       "a@example.com",
		Password:       "x",
		UserID:         31337,
		StatsDoc:       map[string]any{contract.CurrentStreakKey: 5},
		PageBody:       "<html><body>editor</body></html>",
	}
}

// Start serves s on a test server closed at the end of the test.
func (s *Service) Start(t testing.TB) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

// Requests returns a copy of the recorded requests.
func (s *Service) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Paths returns the recorded request paths in order.
func (s *Service) Paths() []string {
	var paths []string
	for _, r := range s.Requests() {
		paths = append(paths, r.Path)
	}
	return paths
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()

	c := s.Contract
	switch {
	case r.URL.Path == c.LoginPagePath:
		s.loginPage(w)
	case r.URL.Path == c.SignInPath:
		s.signIn(w, r, rec.Body)
	case r.URL.Path == c.HomePath:
		s.home(w, r)
	case c.CurrentUserPath != "" && r.URL.Path == c.CurrentUserPath:
		if !s.authorized(w, r) {
			return
		}
		doc := s.UserDoc
		if doc == nil {
			doc = map[string]any{"id": s.UserID, "userName": "ada"}
		}
		writeJSON(w, http.StatusOK, doc)
	case r.URL.Path == c.StatsPath:
		if !s.authorized(w, r) {
			return
		}
		if s.StatsStatus != 0 {
			writeJSON(w, s.StatsStatus, map[string]any{"error": "stats unavailable"})
			return
		}
		if c.ChainStats {
			got := fmt.Sprint(rec.Body["userId"])
			if r.Method == http.MethodGet {
				got = r.URL.Query().Get("userId")
			}
			if got != fmt.Sprint(s.UserID) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown user " + got})
				return
			}
		}
		writeJSON(w, http.StatusOK, s.StatsDoc)
	case s.isPage(r.URL.Path):
		if _, ok := s.cookie(r, SessionCookie); !ok {
			http.Redirect(w, r, c.LoginPagePath, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, s.PageBody)
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) loginPage(w http.ResponseWriter) {
	if s.LoginToken != "" {
		http.SetCookie(w, &http.Cookie{Name: s.Contract.TokenCookie, Value: s.LoginToken, Path: "/"})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.LoginPageStatus != 0 {
		w.WriteHeader(s.LoginPageStatus)
	}
	var sb strings.Builder
	sb.WriteString("<html><body><form method=\"post\">")
	if s.HTMLToken != "" {
		fmt.Fprintf(&sb, `<input type="hidden" name="%s" value="%s">`, s.Contract.TokenField, s.HTMLToken)
	}
	sb.WriteString(`<input type="text" name="email"></form></body></html>`)
	fmt.Fprint(w, sb.String())
}

func (s *Service) signIn(w http.ResponseWriter, r *http.Request, body map[string]any) {
	if s.SignInStatus != 0 {
		writeJSON(w, s.SignInStatus, map[string]any{"errors": []string{"sign-in rejected"}})
		return
	}
	want := s.LoginToken
	if want == "" {
		want = s.HTMLToken
	}
	if r.Header.Get(s.Contract.TokenHeader) != want {
		writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"bad xsrf token"}})
		return
	}
	if fmt.Sprint(body[s.Contract.IdentityField]) != s.Identity || fmt.Sprint(body["password"]) != s.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": []string{"invalid credentials"}})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "authenticated", Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Service) home(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.cookie(r, SessionCookie); ok && s.RefreshedToken != "" {
		http.SetCookie(w, &http.Cookie{Name: s.Contract.TokenCookie, Value: s.RefreshedToken, Path: "/"})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body>home</body></html>")
}

// authorized requires the session cookie and a token header matching the
// current token cookie.
func (s *Service) authorized(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := s.cookie(r, SessionCookie); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "not signed in"})
		return false
	}
	tok, _ := s.cookie(r, s.Contract.TokenCookie)
	if tok == "" {
		tok = s.HTMLToken
	}
	if r.Header.Get(s.Contract.TokenHeader) != tok {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "bad xsrf token"})
		return false
	}
	return true
}

func (s *Service) isPage(path string) bool {
	for _, p := range s.PagePaths {
		if p == path {
			return true
		}
	}
	return false
}

func (s *Service) cookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
