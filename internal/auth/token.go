package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	xhtml "golang.org/x/net/html"
)

const maxPageBytes = 4 << 20

// AcquireToken visits the login page and returns the anti-forgery token.
// The cookie is checked first; the page HTML is only parsed when the
// cookie is absent.
func (s *Session) AcquireToken(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, StepAcquireToken, http.MethodGet, s.contract.LoginPagePath, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if tok, ok := s.cookieValue(s.contract.TokenCookie, resp.Request.URL, s.base); ok {
		s.token = tok
		return tok, nil
	}

	if tok := hiddenInputValue(io.LimitReader(resp.Body, maxPageBytes), s.contract.TokenField); tok != "" {
		s.token = tok
		return tok, nil
	}
	return "", fmt.Errorf("%s: %w (no %s cookie or %s field)", StepAcquireToken, ErrTokenNotFound,
		s.contract.TokenCookie, s.contract.TokenField)
}

// RefreshToken visits the home page after sign-in and re-reads the token
// cookie, which the service rotates once the session is authenticated.
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, StepRefreshToken, http.MethodGet, s.contract.HomePath, nil)
	if err != nil {
		return "", err
	}
	reqURL := resp.Request.URL
	drain(resp)

	tok, ok := s.cookieValue(s.contract.TokenCookie, reqURL, s.base)
	if !ok {
		return "", fmt.Errorf("%s: %w (no %s cookie after sign-in)", StepRefreshToken, ErrTokenNotFound, s.contract.TokenCookie)
	}
	s.token = tok
	return tok, nil
}

// hiddenInputValue returns the value of the first <input> whose name
// attribute equals name. Attribute order and quoting do not matter.
func hiddenInputValue(r io.Reader, name string) string {
	z := xhtml.NewTokenizer(r)
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return ""
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			if string(tn) != "input" || !hasAttr {
				continue
			}
			var inputName, value string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "name":
					inputName = string(val)
				case "value":
					value = string(val)
				}
				if !more {
					break
				}
			}
			if inputName == name && strings.TrimSpace(value) != "" {
				return value
			}
		}
	}
}
