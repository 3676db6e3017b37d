package auth

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Contract describes the endpoints and field names of one version of the
// service API. The deployed service has been observed with two
// incompatible versions, so nothing here is hard-coded at call sites.
type Contract struct {
	Name string

	LoginPagePath string
	HomePath      string
	SignInPath    string

	// IdentityField is the sign-in payload key for the account identity
	// ("email" or "username").
	IdentityField string

	// CurrentUserPath is empty when the version has no identity endpoint.
	CurrentUserPath string
	StatsPath       string
	StatsMethod     string

	// ChainStats makes the stats call take the user id resolved through
	// CurrentUserPath.
	ChainStats bool

	// RefreshAfterLogin re-reads the token cookie from the home page once
	// signed in.
	RefreshAfterLogin bool

	TokenCookie string
	TokenField  string
	TokenHeader string

	CurrentStreakKey string
	MaxStreakKey     string
}

var (
	// ContractInternal is the /api/i RPC-style surface used by the web app.
	ContractInternal = Contract{
		Name:              "internal",
		LoginPagePath:     "/account/login",
		HomePath:          "/",
		SignInPath:        "/api/i/users.LegacyUsersService/EmailSignIn",
		IdentityField:     "email",
		CurrentUserPath:   "/api/i/users.UsersService/GetCurrentUser",
		StatsPath:         "/api/i/users.HomePageService/GetHomePageStats",
		StatsMethod:       http.MethodPost,
		ChainStats:        true,
		RefreshAfterLogin: true,
		TokenCookie:       "XSRF-TOKEN",
		TokenField:        "X-XSRF-TOKEN",
		TokenHeader:       "X-XSRF-TOKEN",
		CurrentStreakKey:  "currentDayStreak",
		MaxStreakKey:      "maxDayStreak",
	}

	// ContractV1 is the /api/v1 REST-style surface.
	ContractV1 = Contract{
		Name:              "v1",
		LoginPagePath:     "/account/login",
		HomePath:          "/",
		SignInPath:        "/api/v1/users/LegacyUsersService/EmailSignIn",
		IdentityField:     "username",
		StatsPath:         "/api/v1/users/HomePageService/GetHomePageStats",
		StatsMethod:       http.MethodGet,
		RefreshAfterLogin: true,
		TokenCookie:       "XSRF-TOKEN",
		TokenField:        "X-XSRF-TOKEN",
		TokenHeader:       "X-XSRF-TOKEN",
		CurrentStreakKey:  "currentStreak",
		MaxStreakKey:      "maxStreak",
	}
)

var contracts = map[string]Contract{
	ContractInternal.Name: ContractInternal,
	ContractV1.Name:       ContractV1,
}

// LookupContract returns the built-in contract with the given name.
func LookupContract(name string) (Contract, error) {
	c, ok := contracts[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Contract{}, fmt.Errorf("unknown api contract %q (expected one of: %s)", name, strings.Join(ContractNames(), ", "))
	}
	return c, nil
}

// ContractNames lists the built-in contract names in sorted order.
func ContractNames() []string {
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusPolicy decides which HTTP status codes count as success.
type StatusPolicy string

const (
	// StatusStrict fails every step on a non-2xx status.
	StatusStrict StatusPolicy = "strict"

	// StatusLenient ignores the status of plain page visits made only to
	// collect cookies, and requires exactly 200 from API calls.
	StatusLenient StatusPolicy = "lenient"
)

// ParseStatusPolicy parses "strict" or "lenient". Empty means strict.
func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch StatusPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusStrict:
		return StatusStrict, nil
	case StatusLenient:
		return StatusLenient, nil
	default:
		return "", fmt.Errorf("unknown status policy %q (expected strict or lenient)", s)
	}
}

// Accepts reports whether code is a success for step under p.
func (p StatusPolicy) Accepts(step Step, code int) bool {
	if p == StatusLenient {
		switch step {
		case StepAcquireToken, StepRefreshToken:
			return true
		default:
			return code == http.StatusOK
		}
	}
	return code >= 200 && code < 300
}
