package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fragmede/streakkeeper/internal/stats"
)

// Page is the outcome of a plain page visit.
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// CurrentUser returns the signed-in user's record.
func (s *Session) CurrentUser(ctx context.Context) (stats.Stats, error) {
	if s.contract.CurrentUserPath == "" {
		return nil, fmt.Errorf("%s: api contract %q has no current-user endpoint", StepCurrentUser, s.contract.Name)
	}
	payload := map[string]any{
		"includeGroups":             false,
		"includeLogins":             false,
		"includeVerificationStatus": true,
	}
	return s.fetchJSON(ctx, StepCurrentUser, http.MethodPost, s.contract.CurrentUserPath, payload)
}

// HomePageStats returns the statistics document of userID.
func (s *Session) HomePageStats(ctx context.Context, userID any) (stats.Stats, error) {
	if s.contract.StatsMethod == http.MethodGet {
		q := url.Values{"userId": {fmt.Sprint(userID)}}
		return s.fetchJSON(ctx, StepStats, http.MethodGet, s.contract.StatsPath+"?"+q.Encode(), nil)
	}
	return s.fetchJSON(ctx, StepStats, s.contract.StatsMethod, s.contract.StatsPath, map[string]any{"userId": userID})
}

// Stats returns the statistics document of the signed-in user, resolving
// the user id first when the contract chains the calls.
func (s *Session) Stats(ctx context.Context) (stats.Stats, error) {
	if !s.contract.ChainStats {
		var payload any
		if s.contract.StatsMethod != http.MethodGet {
			payload = map[string]any{}
		}
		return s.fetchJSON(ctx, StepStats, s.contract.StatsMethod, s.contract.StatsPath, payload)
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := user.Value("id")
	if !ok {
		return nil, fmt.Errorf("%s: %w", StepCurrentUser, ErrUserIDMissing)
	}
	return s.HomePageStats(ctx, id)
}

// Page fetches target, a path on the service or an absolute URL, and
// returns its body as text.
func (s *Session) Page(ctx context.Context, target string) (Page, error) {
	resp, err := s.send(ctx, StepPage, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, &TransportError{Step: StepPage, URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Err: err}
	}
	return Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}

func (s *Session) fetchJSON(ctx context.Context, step Step, method, path string, payload any) (stats.Stats, error) {
	resp, err := s.send(ctx, step, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := stats.Decode(resp.Body)
	if err != nil {
		return nil, &TransportError{Step: step, URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Err: err}
	}
	return doc, nil
}
