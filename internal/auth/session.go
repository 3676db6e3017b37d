package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/fragmede/streakkeeper/internal/render"
)

const (
	DefaultBaseURL   = "https://www.kaggle.com"
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

	maxErrorBodyBytes = 8 << 10
)

// Step names one request of the login sequence.
type Step string

const (
	StepAcquireToken Step = "acquire-token"
	StepAuthenticate Step = "authenticate"
	StepRefreshToken Step = "refresh-token"
	StepCurrentUser  Step = "current-user"
	StepStats        Step = "stats"
	StepPage         Step = "page"
)

// Credentials identify the account. They are never logged or persisted.
type Credentials struct {
	Identity string
	Password string

	// ReturnURL is sent with the sign-in payload when set.
	ReturnURL string
}

func (c Credentials) String() string   { return "Credentials{<redacted>}" }
func (c Credentials) GoString() string { return c.String() }

// Options configures a Session.
type Options struct {
	BaseURL   string
	Contract  Contract
	Policy    StatusPolicy
	UserAgent string
	Timeout   time.Duration

	// HTTP, when set, supplies the transport and redirect policy. Its Jar
	// is replaced by the session's own.
	HTTP *http.Client
}

// Session carries the cookie jar and anti-forgery token of one login
// attempt. It is not safe for concurrent use.
type Session struct {
	client    *http.Client
	jar       *cookiejar.Jar
	base      *url.URL
	contract  Contract
	policy    StatusPolicy
	userAgent string
	token     string
}

// NewSession creates a session with an empty cookie jar.
func NewSession(opts Options) (*Session, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := &http.Client{}
	if opts.HTTP != nil {
		c := *opts.HTTP
		client = &c
	}
	client.Jar = jar
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}

	contract := opts.Contract
	if contract.Name == "" {
		contract = ContractInternal
	}
	policy := opts.Policy
	if policy == "" {
		policy = StatusStrict
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Session{
		client:    client,
		jar:       jar,
		base:      base,
		contract:  contract,
		policy:    policy,
		userAgent: ua,
	}, nil
}

// Contract returns the API contract the session speaks.
func (s *Session) Contract() Contract { return s.contract }

// Token returns the most recently acquired anti-forgery token.
func (s *Session) Token() string { return s.token }

// Cookie returns the value of a cookie the jar would send to the base URL.
func (s *Session) Cookie(name string) (string, bool) {
	return s.cookieValue(name, s.base)
}

// Authenticate signs in with creds, sending token as the anti-forgery
// header. Success is judged by status code alone; the body is only read
// for diagnostics on rejection.
func (s *Session) Authenticate(ctx context.Context, token string, creds Credentials) error {
	s.token = token

	payload := map[string]any{
		s.contract.IdentityField: creds.Identity,
		"password":               creds.Password,
		"keepMeSignedIn":         false,
	}
	if creds.ReturnURL != "" {
		payload["returnUrl"] = creds.ReturnURL
	}

	resp, err := s.send(ctx, StepAuthenticate, http.MethodPost, s.contract.SignInPath, payload)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// send issues one request and applies the status policy. On success the
// caller owns resp.Body.
func (s *Session) send(ctx context.Context, step Step, method, target string, payload any) (*http.Response, error) {
	u, err := s.resolve(target)
	if err != nil {
		return nil, &TransportError{Step: step, URL: target, Err: err}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", step, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Step: step, URL: u.String(), Err: err}
	}
	s.setHeaders(req, step, payload != nil)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Step: step, URL: u.String(), Err: err}
	}

	if s.policy.Accepts(step, resp.StatusCode) {
		return resp, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	msg := render.Excerpt(resp.Header.Get("Content-Type"), string(snippet), render.DefaultExcerptLen)
	if step == StepAuthenticate {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: msg}
	}
	if msg == "" {
		msg = resp.Status
	}
	return nil, &TransportError{Step: step, URL: u.String(), StatusCode: resp.StatusCode, Body: msg}
}

func (s *Session) setHeaders(req *http.Request, step Step, hasBody bool) {
	origin := s.base.Scheme + "://" + s.base.Host
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	switch step {
	case StepAcquireToken, StepRefreshToken, StepPage:
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	default:
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Origin", origin)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	if step == StepAuthenticate {
		req.Header.Set("Referer", origin+s.contract.LoginPagePath)
	} else if step != StepAcquireToken {
		req.Header.Set("Referer", origin+"/")
	}

	// The token is a secret bound to the session; never log it or send it
	// to another host.
	if s.token != "" && step != StepAcquireToken && step != StepRefreshToken && req.URL.Host == s.base.Host {
		req.Header.Set(s.contract.TokenHeader, s.token)
	}
}

// resolve turns a path or absolute URL into a URL on the service.
func (s *Session) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	basePath := strings.TrimRight(s.base.Path, "/")
	if strings.HasPrefix(ref.Path, "/") && basePath != "" {
		ref.Path = basePath + ref.Path
	}
	return s.base.ResolveReference(ref), nil
}

func (s *Session) cookieValue(name string, urls ...*url.URL) (string, bool) {
	for _, u := range urls {
		if u == nil {
			continue
		}
		for _, c := range s.jar.Cookies(u) {
			if c.Name == name && c.Value != "" {
				return c.Value, true
			}
		}
	}
	return "", false
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
}
