// Package runner drives one login run end to end: handshake, target fetch,
// history and metrics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fragmede/streakkeeper/internal/auth"
	"github.com/fragmede/streakkeeper/internal/cache"
	"github.com/fragmede/streakkeeper/internal/config"
	"github.com/fragmede/streakkeeper/internal/metrics"
	"github.com/fragmede/streakkeeper/internal/stats"
)

// StepSetup is reported when the session could not even be built.
const StepSetup auth.Step = "setup"

// Options describes one run.
type Options struct {
	BaseURL     string
	Contract    auth.Contract
	Policy      auth.StatusPolicy
	Credentials auth.Credentials

	Target   string
	PagePath string

	// Refresh re-reads the token after sign-in. It only applies when the
	// contract supports it.
	Refresh bool

	UserAgent string
	Timeout   time.Duration
}

// FromConfig builds run options from a validated config.
func FromConfig(cfg config.Config) (Options, error) {
	contract, err := auth.LookupContract(cfg.Contract)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	policy, err := auth.ParseStatusPolicy(cfg.StatusPolicy)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	if err := checkTarget(cfg.Target, contract); err != nil {
		return Options{}, err
	}
	opts := Options{
		BaseURL:  cfg.BaseURL,
		Contract: contract,
		Policy:   policy,
		Credentials: auth.Credentials{
			Identity:  cfg.Identity,
			Password:  cfg.Password,
			ReturnURL: cfg.ReturnURL(),
		},
		Target:    cfg.Target,
		Refresh:   cfg.Refresh,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
	}
	if cfg.Target == config.TargetPage {
		opts.PagePath = cfg.PagePath()
	}
	return opts, nil
}

// checkTarget rejects targets the contract has no endpoint for.
func checkTarget(target string, contract auth.Contract) error {
	if target == config.TargetIdentity && contract.CurrentUserPath == "" {
		return fmt.Errorf("%w: contract %q has no current-user endpoint, target %q is unavailable",
			config.ErrConfiguration, contract.Name, target)
	}
	return nil
}

// History records finished runs.
type History interface {
	PutRun(r cache.RunRecord) error
}

// Runner executes runs. History and Metrics are optional.
type Runner struct {
	Logger  *clog.Logger
	History History
	Metrics *metrics.Metrics

	// HTTP overrides the transport used by sessions.
	HTTP *http.Client

	now   func() time.Time
	newID func() string
}

// New returns a runner. logger must not be nil.
func New(logger *clog.Logger, history History, m *metrics.Metrics) *Runner {
	return &Runner{
		Logger:  logger,
		History: history,
		Metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Result is what a successful run read back.
type Result struct {
	RunID  string
	Target string

	Streak   stats.Streak
	Stats    stats.Stats
	Identity stats.Stats
	Page     *auth.Page
}

// Message is the human-readable success line.
func (r Result) Message() string {
	switch r.Target {
	case config.TargetPage:
		if r.Page == nil {
			return "Login successful."
		}
		return fmt.Sprintf("Login successful. Page accessed: %s (status %d)", r.Page.URL, r.Page.StatusCode)
	case config.TargetIdentity:
		name := r.Identity.String("userName")
		if name == "" {
			name = r.Identity.String("displayName")
		}
		if name == "" {
			name = "unknown user"
		}
		return fmt.Sprintf("Login successful! Signed in as %s (id %s)", name, r.Identity.String("id"))
	default:
		return fmt.Sprintf("Login successful! Current streak: %d, Max streak: %d", r.Streak.Current, r.Streak.Max)
	}
}

// StepError names the step a run failed at.
type StepError struct {
	Step auth.Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s failed: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Run performs acquireToken, authenticate, the optional refresh and the
// target fetch, strictly in that order. Nothing is retried: the first
// failure ends the run.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	id := r.newID()
	started := r.now()
	log := r.Logger.With("run", id)

	res, step, err := r.run(ctx, log, opts)
	res.RunID = id
	res.Target = opts.Target
	finished := r.now()

	rec := cache.RunRecord{
		ID:         id,
		StartedAt:  started,
		FinishedAt: finished,
		Contract:   opts.Contract.Name,
		Target:     opts.Target,
		Outcome:    cache.OutcomeOK,
	}
	if err != nil {
		kind := Kind(err)
		rec.Outcome = cache.OutcomeError
		rec.FailedStep = string(step)
		rec.ErrorKind = kind
		rec.ErrorText = err.Error()
		rec.StatusCode = StatusCode(err)
		r.Metrics.StepFailed(string(step), kind)
		log.Error("run failed", "step", step, "kind", kind, "status", rec.StatusCode, "err", err)
		err = &StepError{Step: step, Err: err}
	} else {
		rec.CurrentStreak = res.Streak.Current
		rec.MaxStreak = res.Streak.Max
		log.Info("run finished", "elapsed", finished.Sub(started).Round(time.Millisecond))
	}
	r.Metrics.RunFinished(rec.Outcome, rec.CurrentStreak, rec.MaxStreak, finished)

	if r.History != nil {
		if herr := r.History.PutRun(rec); herr != nil {
			log.Warn("recording run history", "err", herr)
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, log *clog.Logger, opts Options) (Result, auth.Step, error) {
	var res Result

	sess, err := auth.NewSession(auth.Options{
		BaseURL:   opts.BaseURL,
		Contract:  opts.Contract,
		Policy:    opts.Policy,
		UserAgent: opts.UserAgent,
		Timeout:   opts.Timeout,
		HTTP:      r.HTTP,
	})
	if err != nil {
		return res, StepSetup, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	contract := sess.Contract()
	if err := checkTarget(opts.Target, contract); err != nil {
		return res, StepSetup, err
	}

	var token string
	err = r.step(log, auth.StepAcquireToken, func() (err error) {
		token, err = sess.AcquireToken(ctx)
		return err
	})
	if err != nil {
		return res, auth.StepAcquireToken, err
	}

	err = r.step(log, auth.StepAuthenticate, func() error {
		return sess.Authenticate(ctx, token, opts.Credentials)
	})
	if err != nil {
		return res, auth.StepAuthenticate, err
	}

	if opts.Refresh && contract.RefreshAfterLogin {
		err = r.step(log, auth.StepRefreshToken, func() (err error) {
			_, err = sess.RefreshToken(ctx)
			return err
		})
		if err != nil {
			return res, auth.StepRefreshToken, err
		}
	}

	switch opts.Target {
	case config.TargetPage:
		err = r.step(log, auth.StepPage, func() error {
			page, err := sess.Page(ctx, opts.PagePath)
			if err == nil {
				res.Page = &page
			}
			return err
		})
		if err != nil {
			return res, auth.StepPage, err
		}

	case config.TargetIdentity:
		err = r.step(log, auth.StepCurrentUser, func() (err error) {
			res.Identity, err = sess.CurrentUser(ctx)
			return err
		})
		if err != nil {
			return res, auth.StepCurrentUser, err
		}

	default:
		err = r.step(log, auth.StepStats, func() (err error) {
			res.Stats, err = sess.Stats(ctx)
			return err
		})
		if err != nil {
			return res, failedFetchStep(err), err
		}
		res.Streak = res.Stats.Streak(contract.CurrentStreakKey, contract.MaxStreakKey)
		log.Info("streak", "current", res.Streak.Current, "max", res.Streak.Max)
	}
	return res, "", nil
}

func (r *Runner) step(log *clog.Logger, step auth.Step, fn func() error) error {
	log.Info("step", "name", step)
	start := r.now()
	err := fn()
	r.Metrics.ObserveStep(string(step), r.now().Sub(start))
	if err == nil {
		log.Debug("step done", "name", step, "elapsed", r.now().Sub(start).Round(time.Millisecond))
	}
	return err
}

// failedFetchStep picks the precise step of a chained stats fetch.
func failedFetchStep(err error) auth.Step {
	var te *auth.TransportError
	if errors.As(err, &te) {
		return te.Step
	}
	if errors.Is(err, auth.ErrUserIDMissing) {
		return auth.StepCurrentUser
	}
	return auth.StepStats
}

// Kind classifies err for history and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrConfiguration):
		return "configuration"
	case errors.Is(err, auth.ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, auth.ErrUserIDMissing):
		return "user_id_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, auth.ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *auth.TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	var ae *auth.AuthenticationError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
