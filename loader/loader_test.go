package loader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"apidash.run/fetch"
	"apidash.run/gateway"
	"kr.dev/diff"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(ctx context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeGateway struct {
	mu sync.Mutex

	sub      *gateway.Subscription
	subErr   error
	usage    *gateway.Usage
	usageErr error

	// when set, Subscription signals entered and then waits for release
	// or cancellation
	entered chan struct{}
	release chan struct{}

	subCalls   int
	usageCalls int
}

func (f *fakeGateway) Subscription(ctx context.Context, token string) (*gateway.Subscription, error) {
	f.mu.Lock()
	f.subCalls++
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.sub, f.subErr
}

func (f *fakeGateway) Usage(ctx context.Context, token string) (*gateway.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageCalls++
	return f.usage, f.usageErr
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls + f.usageCalls
}

var testSub = &gateway.Subscription{}

func TestLoadAuthResolving(t *testing.T) {
	for _, authenticated := range []bool{false, true} {
		tok := &fakeTokens{token: "tok"}
		g := &fakeGateway{sub: testSub, usage: &gateway.Usage{TotalUsage: 3}}
		l := New(tok, g)

		got := l.Load(context.Background(), Auth{Loading: true, Authenticated: authenticated})
		diff.Test(t, t.Errorf, got, Snapshot{State: ResolvingAuth, IsLoading: true})
		diff.Test(t, t.Errorf, tok.calls+g.calls(), 0)
	}
}

func TestLoadNotAuthenticated(t *testing.T) {
	tok := &fakeTokens{token: "tok"}
	g := &fakeGateway{sub: testSub}
	l := New(tok, g)

	got := l.Load(context.Background(), Auth{})
	diff.Test(t, t.Errorf, got, Snapshot{State: NotSubscribed})
	diff.Test(t, t.Errorf, tok.calls+g.calls(), 0)
}

func TestLoadNoSubscription(t *testing.T) {
	g := &fakeGateway{subErr: gateway.ErrNoSubscription}
	l := New(&fakeTokens{token: "tok"}, g)

	got := l.Load(context.Background(), Auth{Authenticated: true})
	diff.Test(t, t.Errorf, got, Snapshot{
		State:           NotSubscribed,
		AccessToken:     "tok",
		IsAuthenticated: true,
	})
	diff.Test(t, t.Errorf, g.usageCalls, 0)
}

func TestLoadUsageFails(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"network", errors.New("connection refused"), "Could not retrieve usage."},
		{"status", &fetch.StatusError{Status: http.StatusInternalServerError, Body: "metering unavailable"}, "metering unavailable"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{sub: testSub, usageErr: tt.err}
			l := New(&fakeTokens{token: "tok"}, g)

			got := l.Load(context.Background(), Auth{Authenticated: true})
			diff.Test(t, t.Errorf, got, Snapshot{
				State:           Failed,
				AccessToken:     "tok",
				IsAuthenticated: true,
				IsSubscribed:    true,
				Subscription:    testSub,
				ErrorMessage:    tt.wantMsg,
			})
		})
	}
}

func TestLoadReady(t *testing.T) {
	usage := &gateway.Usage{TotalUsage: 42}
	g := &fakeGateway{sub: testSub, usage: usage}
	l := New(&fakeTokens{token: "tok"}, g)
	l.Logf = t.Logf

	got := l.Load(context.Background(), Auth{Authenticated: true})
	diff.Test(t, t.Errorf, got, Snapshot{
		State:           Ready,
		AccessToken:     "tok",
		IsAuthenticated: true,
		IsSubscribed:    true,
		Subscription:    testSub,
		Usage:           usage,
	})
	diff.Test(t, t.Errorf, l.Snapshot(), got)
}

func TestLoadHardFailures(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		g := &fakeGateway{sub: testSub}
		l := New(&fakeTokens{err: errors.New("login_required")}, g)
		got := l.Load(context.Background(), Auth{Authenticated: true})
		diff.Test(t, t.Errorf, got.State, Failed)
		diff.Test(t, t.Errorf, got.ErrorMessage, "Could not get an access token.")
		diff.Test(t, t.Errorf, got.IsLoading, false)
		diff.Test(t, t.Errorf, g.calls(), 0)
	})
	t.Run("subscription", func(t *testing.T) {
		g := &fakeGateway{subErr: &fetch.StatusError{Status: 502, Body: "bad gateway"}}
		l := New(&fakeTokens{token: "tok"}, g)
		got := l.Load(context.Background(), Auth{Authenticated: true})
		diff.Test(t, t.Errorf, got.State, Failed)
		diff.Test(t, t.Errorf, got.ErrorMessage, "Could not retrieve subscription.")
		diff.Test(t, t.Errorf, got.IsSubscribed, false)
		diff.Test(t, t.Errorf, g.usageCalls, 0)
	})
}

func TestLoadSupersededRunDoesNotPublish(t *testing.T) {
	g := &fakeGateway{
		sub:     testSub,
		usage:   &gateway.Usage{TotalUsage: 1},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := New(&fakeTokens{token: "tok"}, g)

	done := make(chan Snapshot)
	go func() {
		done <- l.Load(context.Background(), Auth{Authenticated: true})
	}()
	<-g.entered

	// the visitor logs out while the first run waits on the gateway
	loggedOut := l.Load(context.Background(), Auth{})
	diff.Test(t, t.Errorf, loggedOut, Snapshot{State: NotSubscribed})

	stale := <-done
	diff.Test(t, t.Errorf, stale, Snapshot{State: NotSubscribed})
	diff.Test(t, t.Errorf, l.Snapshot(), Snapshot{State: NotSubscribed})
	diff.Test(t, t.Errorf, g.usageCalls, 0)
}

func TestStateString(t *testing.T) {
	diff.Test(t, t.Errorf, FetchingUsage.String(), "fetching_usage")
	diff.Test(t, t.Errorf, State(99).String(), "unknown")
	diff.Test(t, t.Errorf, Ready.Terminal(), true)
	diff.Test(t, t.Errorf, FetchingSubscription.Terminal(), false)
}
