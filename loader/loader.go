// Package loader resolves a visitor's authentication, subscription and usage
// into one snapshot for the dashboard pages.
//
// A run is a strict pipeline: access token, then subscription, then usage.
// Each step publishes a complete Snapshot; partial updates are never visible.
// Starting a run cancels the one before it, and a superseded run never
// publishes, so the last started run always wins.
package loader

import (
	"context"
	"errors"
	"sync"

	"apidash.run/fetch"
	"apidash.run/gateway"
	"apidash.run/metrics"
)

type State int

const (
	Idle State = iota
	ResolvingAuth
	FetchingSubscription
	FetchingUsage
	Ready
	NotSubscribed
	Failed
)

var stateNames = [...]string{
	Idle:                 "idle",
	ResolvingAuth:        "resolving_auth",
	FetchingSubscription: "fetching_subscription",
	FetchingUsage:        "fetching_usage",
	Ready:                "ready",
	NotSubscribed:        "not_subscribed",
	Failed:               "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether a run stops in s.
func (s State) Terminal() bool {
	return s == Ready || s == NotSubscribed || s == Failed
}

// Auth is the identity provider's view of the visitor.
type Auth struct {
	Loading       bool // authentication is still being resolved
	Authenticated bool
}

type Snapshot struct {
	State           State
	AccessToken     string
	IsAuthenticated bool
	IsLoading       bool
	IsSubscribed    bool
	Subscription    *gateway.Subscription
	Usage           *gateway.Usage
	ErrorMessage    string
}

// Tokens supplies access tokens. Getting one may involve a silent round trip
// to the identity provider.
type Tokens interface {
	AccessToken(ctx context.Context) (string, error)
}

type Gateway interface {
	Subscription(ctx context.Context, token string) (*gateway.Subscription, error)
	Usage(ctx context.Context, token string) (*gateway.Usage, error)
}

const (
	msgToken        = "Could not get an access token."
	msgSubscription = "Could not retrieve subscription."
	msgUsage        = "Could not retrieve usage."
)

type Loader struct {
	Tokens  Tokens
	Gateway Gateway

	Logf func(fmt string, args ...any)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	snap   Snapshot
}

func New(t Tokens, g Gateway) *Loader {
	return &Loader{
		Tokens:  t,
		Gateway: g,
		snap:    Snapshot{State: Idle, IsLoading: true},
	}
}

func (l *Loader) logf(fmt string, args ...any) {
	if l.Logf != nil {
		l.Logf(fmt, args...)
	}
}

// Snapshot returns the most recently published snapshot.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Load runs the pipeline for auth and returns the snapshot current when it
// finishes. If a later Load supersedes this one, the returned snapshot is
// whatever the later run has published so far.
func (l *Loader) Load(ctx context.Context, auth Auth) Snapshot {
	ctx, gen, done := l.begin(ctx)
	defer done()

	if auth.Loading {
		l.publish(gen, Snapshot{State: ResolvingAuth, IsLoading: true})
		return l.Snapshot()
	}
	if !auth.Authenticated {
		l.publish(gen, Snapshot{State: NotSubscribed})
		return l.Snapshot()
	}

	s := Snapshot{IsAuthenticated: true, IsLoading: true}

	s.State = FetchingSubscription
	if !l.publish(gen, s) {
		return l.Snapshot()
	}

	token, err := l.Tokens.AccessToken(ctx)
	if err != nil {
		l.logf("loader: access token: %v", err)
		l.fail(gen, s, msgToken, nil)
		return l.Snapshot()
	}
	s.AccessToken = token
	if !l.publish(gen, s) {
		return l.Snapshot()
	}

	sub, err := l.Gateway.Subscription(ctx, token)
	if errors.Is(err, gateway.ErrNoSubscription) {
		s.State = NotSubscribed
		s.IsLoading = false
		l.publish(gen, s)
		return l.Snapshot()
	}
	if err != nil {
		l.logf("loader: subscription: %v", err)
		l.fail(gen, s, msgSubscription, nil)
		return l.Snapshot()
	}
	s.State = FetchingUsage
	s.Subscription = sub
	s.IsSubscribed = true
	if !l.publish(gen, s) {
		return l.Snapshot()
	}

	usage, err := l.Gateway.Usage(ctx, token)
	if err != nil {
		l.logf("loader: usage: %v", err)
		l.fail(gen, s, msgUsage, err)
		return l.Snapshot()
	}
	s.State = Ready
	s.Usage = usage
	s.IsLoading = false
	l.publish(gen, s)
	return l.Snapshot()
}

// fail publishes s as Failed. The message is the gateway's response body
// when cause carries one, else msg.
func (l *Loader) fail(gen uint64, s Snapshot, msg string, cause error) {
	var se *fetch.StatusError
	if errors.As(cause, &se) && se.Body != "" {
		msg = se.Body
	}
	s.State = Failed
	s.IsLoading = false
	s.ErrorMessage = msg
	l.publish(gen, s)
}

func (l *Loader) begin(ctx context.Context) (context.Context, uint64, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	return ctx, gen, func() {
		l.mu.Lock()
		if l.gen == gen {
			l.cancel = nil
		}
		l.mu.Unlock()
		cancel()
	}
}

// publish replaces the snapshot if gen is still the current run. It reports
// whether the run may continue.
func (l *Loader) publish(gen uint64, s Snapshot) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return false
	}
	l.snap = s
	if s.State.Terminal() {
		metrics.LoaderResults.WithLabelValues(s.State.String()).Inc()
	}
	return true
}
