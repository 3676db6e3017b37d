package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fragmede/streakkeeper/internal/auth"
	"github.com/fragmede/streakkeeper/internal/testutil"
)

func newSession(t *testing.T, baseURL string, contract auth.Contract, policy auth.StatusPolicy) *auth.Session {
	t.Helper()
	s, err := auth.NewSession(auth.Options{
		BaseURL:  baseURL,
		Contract: contract,
		Policy:   policy,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAcquireToken_PrefersCookie(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.LoginToken = "cookie-token"
	svc.HTMLToken = "html-token"
	ts := svc.Start(t)

	s := newSession(t, ts.URL, auth.ContractInternal, auth.StatusStrict)
	got, err := s.AcquireToken(testContext(t))
	if err != nil {
		t.Fatalf("AcquireToken() error = %v", err)
	}
	if got != "cookie-token" {
		t.Fatalf("AcquireToken() = %q, want %q", got, "cookie-token")
	}
	if s.Token() != got {
		t.Fatalf("Token() = %q, want %q", s.Token(), got)
	}
}

func TestAcquireToken_FallsBackToHiddenInput(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.LoginToken = ""
	svc.HTMLToken = "abc123"
	ts := svc.Start(t)

	s := newSession(t, ts.URL, auth.ContractInternal, auth.StatusStrict)
	got, err := s.AcquireToken(testContext(t))
	if err != nil {
		t.Fatalf("AcquireToken() error = %v", err)
	}
	if got != "abc123" {
		t.Fatalf("AcquireToken() = %q, want %q", got, "abc123")
	}
}

func TestAcquireToken_NotFound(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.LoginToken = ""
	svc.HTMLToken = ""
	ts := svc.Start(t)

	s := newSession(t, ts.URL, auth.ContractInternal, auth.StatusStrict)
	_, err := s.AcquireToken(testContext(t))
	if !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("AcquireToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestAcquireToken_StatusPolicy(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.LoginPageStatus = http.StatusServiceUnavailable
	ts := svc.Start(t)

	strict := newSession(t, ts.URL, auth.ContractInternal, auth.StatusStrict)
	_, err := strict.AcquireToken(testContext(t))
	var te *auth.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("strict AcquireToken() error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable || te.Step != auth.StepAcquireToken {
		t.Fatalf("TransportError = %+v, want status 503 at %s", te, auth.StepAcquireToken)
	}
	if !errors.Is(err, auth.ErrTransport) {
		t.Fatalf("errors.Is(err, ErrTransport) = false")
	}

	lenient := newSession(t, ts.URL, auth.ContractInternal, auth.StatusLenient)
	got, err := lenient.AcquireToken(testContext(t))
	if err != nil {
		t.Fatalf("lenient AcquireToken() error = %v", err)
	}
	if got != svc.LoginToken {
		t.Fatalf("lenient AcquireToken() = %q, want %q", got, svc.LoginToken)
	}
}

func TestAcquireToken_NetworkFailure(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	ts := svc.Start(t)
	url := ts.URL
	ts.Close()

	s := newSession(t, url, auth.ContractInternal, auth.StatusStrict)
	_, err := s.AcquireToken(testContext(t))
	var te *auth.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("AcquireToken() error = %v, want *TransportError", err)
	}
	if te.StatusCode != 0 || te.Err == nil {
		t.Fatalf("TransportError = %+v, want network failure", te)
	}
}

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	ts := svc.Start(t)

	s := newSession(t, ts.URL, auth.ContractInternal, auth.StatusStrict)
	ctx := testContext(t)
	tok, err := s.AcquireToken(ctx)
	if err != nil {
		t.Fatalf("AcquireToken() error = %v", err)
	}

	if _, ok := s.Cookie(testutil.SessionCookie); ok {
		t.Fatalf("session cookie present before sign-in")
	}
	err = s.Authenticate(ctx, tok, auth.Credentials{Identity: "a@example.com", Password: "x"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if v, ok := s.Cookie(testutil.SessionCookie); !ok || v != "authenticated" {
		t.Fatalf("session cookie = (%q, %v), want authenticated", v, ok)
	}

	reqs := svc.Requests()
	signIn := reqs[len(reqs)-1]
	if signIn.Method != http.MethodPost || signIn.Path != auth.ContractInternal.SignInPath {
		t.Fatalf("last request = %s %s, want POST sign-in", signIn.Method, signIn.Path)
	}
	if got := signIn.Header.Get("X-XSRF-TOKEN"); got != tok {
		t.Fatalf("X-XSRF-TOKEN = %q, want %q", got, tok)
	}
	if got := signIn.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", got)
	}
	if signIn.Body["email"] != "a@example.com" {
		t.Fatalf("body email = %v, want a@example.com", signIn.Body["email"])
	}
	if signIn.Body["keepMeSignedIn"] != false {
		t.Fatalf("body keepMeSignedIn = %v, want false", signIn.Body["keepMeSignedIn"])
	}
	if _, ok := signIn.Body["returnUrl"]; ok {
		t.Fatalf("returnUrl sent without being configured")
	}
}

func TestAuthenticate_Rejected(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.SignInStatus = http.StatusUnauthorized
	ts := svc.Start(t)

	for _, policy := range []auth.StatusPolicy{auth.StatusStrict, auth.StatusLenient} {
		s := newSession(t, ts.URL, auth.ContractInternal, policy)
		ctx := testContext(t)
		tok, err := s.AcquireToken(ctx)
		if err != nil {
			t.Fatalf("%s: AcquireToken() error = %v", policy, err)
		}
		err = s.Authenticate(ctx, tok, auth.Credentials{Identity: "a@example.com", Password: "x"})
		if !errors.Is(err, auth.ErrAuthenticationFailed) {
			t.Fatalf("%s: Authenticate() error = %v, want ErrAuthenticationFailed", policy, err)
		}
		var ae *auth.AuthenticationError
		if !errors.As(err, &ae) || ae.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: error = %#v, want AuthenticationError with 401", policy, err)
		}
		if !strings.Contains(ae.Body, "sign-in rejected") {
			t.Fatalf("%s: Body = %q, want diagnostic text", policy, ae.Body)
		}
		if _, ok := s.Cookie(testutil.SessionCookie); ok {
			t.Fatalf("%s: session cookie set after rejection", policy)
		}
	}
}

func TestAuthenticate_V1UsesUsernameField(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractV1)
	ts := svc.Start(t)

	s := newSession(t, ts.URL, auth.ContractV1, auth.StatusStrict)
	ctx := testContext(t)
	tok, err := s.AcquireToken(ctx)
	if err != nil {
		t.Fatalf("AcquireToken() error = %v", err)
	}
	if err := s.Authenticate(ctx, tok, auth.Credentials{Identity: "a@example.com", Password: "x", ReturnURL: "/ada"}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	reqs := svc.Requests()
	body := reqs[len(reqs)-1].Body
	if body["username"] != "a@example.com" {
		t.Fatalf("body username = %v, want a@example.com", body["username"])
	}
	if _, ok := body["email"]; ok {
		t.Fatalf("v1 payload carries email field")
	}
	if body["returnUrl"] != "/ada" {
		t.Fatalf("body returnUrl = %v, want /ada", body["returnUrl"])
	}
}

func signedIn(t *testing.T, svc *testutil.Service, contract auth.Contract) *auth.Session {
	t.Helper()
	ts := svc.Start(t)
	s := newSession(t, ts.URL, contract, auth.StatusStrict)
	ctx := testContext(t)
	tok, err := s.AcquireToken(ctx)
	if err != nil {
		t.Fatalf("AcquireToken() error = %v", err)
	}
	if err := s.Authenticate(ctx, tok, auth.Credentials{Identity: svc.Identity, Password: svc.Password}); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return s
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	s := signedIn(t, svc, auth.ContractInternal)

	got, err := s.RefreshToken(testContext(t))
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if got != "post-login-token" {
		t.Fatalf("RefreshToken() = %q, want %q", got, "post-login-token")
	}
}

func TestRefreshToken_NotFound(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.LoginToken = ""
	svc.HTMLToken = "html-only"
	svc.RefreshedToken = ""
	s := signedIn(t, svc, auth.ContractInternal)

	_, err := s.RefreshToken(testContext(t))
	if !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("RefreshToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestStats_ChainsThroughCurrentUser(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.StatsDoc = map[string]any{"currentDayStreak": 5}
	s := signedIn(t, svc, auth.ContractInternal)
	ctx := testContext(t)
	if _, err := s.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}

	doc, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	streak := doc.Streak(auth.ContractInternal.CurrentStreakKey, auth.ContractInternal.MaxStreakKey)
	if streak.Current != 5 || streak.Max != 0 {
		t.Fatalf("streak = %+v, want current=5 max=0", streak)
	}

	paths := svc.Paths()
	n := len(paths)
	if paths[n-2] != auth.ContractInternal.CurrentUserPath || paths[n-1] != auth.ContractInternal.StatsPath {
		t.Fatalf("paths = %v, want current user then stats", paths)
	}
	last := svc.Requests()[n-1]
	if got := last.Header.Get("X-XSRF-TOKEN"); got != "post-login-token" {
		t.Fatalf("stats X-XSRF-TOKEN = %q, want refreshed token", got)
	}
}

func TestStats_MissingUserID(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.UserDoc = map[string]any{"userName": "ada"}
	s := signedIn(t, svc, auth.ContractInternal)
	ctx := testContext(t)
	if _, err := s.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}

	if _, err := s.Stats(ctx); !errors.Is(err, auth.ErrUserIDMissing) {
		t.Fatalf("Stats() error = %v, want ErrUserIDMissing", err)
	}
}

func TestStats_V1Direct(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractV1)
	svc.StatsDoc = map[string]any{"currentStreak": 12}
	s := signedIn(t, svc, auth.ContractV1)
	ctx := testContext(t)
	if _, err := s.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}

	doc, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if got := doc.Int("currentStreak"); got != 12 {
		t.Fatalf("currentStreak = %d, want 12", got)
	}
	last := svc.Requests()[len(svc.Requests())-1]
	if last.Method != http.MethodGet || last.Path != auth.ContractV1.StatsPath {
		t.Fatalf("last request = %s %s, want GET stats", last.Method, last.Path)
	}
}

func TestStats_ErrorStatus(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.StatsStatus = http.StatusInternalServerError
	s := signedIn(t, svc, auth.ContractInternal)
	ctx := testContext(t)
	if _, err := s.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}

	_, err := s.Stats(ctx)
	var te *auth.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError || te.Step != auth.StepStats {
		t.Fatalf("Stats() error = %v, want stats TransportError with 500", err)
	}
}

func TestPage(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.PagePaths = []string{"/code/ada/notebook/edit"}
	svc.PageBody = "<html>editor</html>"
	s := signedIn(t, svc, auth.ContractInternal)

	page, err := s.Page(testContext(t), "/code/ada/notebook/edit")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.StatusCode != http.StatusOK || page.Body != "<html>editor</html>" {
		t.Fatalf("Page() = %+v, want 200 editor", page)
	}

	if _, err := s.Page(testContext(t), "/code/ada/missing/edit"); !errors.Is(err, auth.ErrTransport) {
		t.Fatalf("Page(missing) error = %v, want ErrTransport", err)
	}
}

func TestPage_TokenStaysOnServiceHost(t *testing.T) {
	t.Parallel()

	svc := testutil.NewService(auth.ContractInternal)
	svc.PagePaths = []string{"/settings"}
	s := signedIn(t, svc, auth.ContractInternal)

	var foreignHeader atomic.Value
	foreignHeader.Store("unset")
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHeader.Store(r.Header.Get(auth.ContractInternal.TokenHeader))
		w.Write([]byte("elsewhere"))
	}))
	t.Cleanup(other.Close)

	if _, err := s.Page(testContext(t), other.URL+"/page"); err != nil {
		t.Fatalf("Page(foreign) error = %v", err)
	}
	if got := foreignHeader.Load().(string); got != "" {
		t.Fatalf("foreign host received token header %q", got)
	}

	if _, err := s.Page(testContext(t), "/settings"); err != nil {
		t.Fatalf("Page(/settings) error = %v", err)
	}
	reqs := svc.Requests()
	last := reqs[len(reqs)-1]
	if last.Header.Get(auth.ContractInternal.TokenHeader) == "" {
		t.Fatalf("service host request is missing the token header")
	}
}

func TestNewSession_RejectsRelativeBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := auth.NewSession(auth.Options{BaseURL: "www.kaggle.com"}); err == nil {
		t.Fatalf("NewSession() expected error for relative base url")
	}
}
