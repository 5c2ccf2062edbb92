package websession

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"apidash.run/gateway"
	"apidash.run/identity"
	"apidash.run/loader"
	"golang.org/x/oauth2"
	"kr.dev/diff"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return refreshSource{f}
}

type refreshSource struct{ f *fakeRefresher }

func (s refreshSource) Token() (*oauth2.Token, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.calls++
	if s.f.err != nil {
		return nil, s.f.err
	}
	return &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil
}

type fakeGateway struct{}

func (fakeGateway) Subscription(ctx context.Context, token string) (*gateway.Subscription, error) {
	return nil, gateway.ErrNoSubscription
}

func (fakeGateway) Usage(ctx context.Context, token string) (*gateway.Usage, error) {
	return nil, errors.New("unexpected usage call")
}

func newTestStore(t *testing.T, max int) (*Store, *fakeRefresher) {
	rf := &fakeRefresher{}
	return &Store{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Max:       max,
		Refresher: rf,
		Gateway:   fakeGateway{},
		Logf:      t.Logf,
	}, rf
}

// visit makes a request carrying cookies and returns the session and any
// cookie the store set.
func visit(s *Store, cookies ...*http.Cookie) (*Record, []*http.Cookie) {
	r := httptest.NewRequest("GET", "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	rec := s.Get(w, r)
	return rec, w.Result().Cookies()
}

func TestGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, cookies := visit(s)
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies; want 1", len(cookies))
	}
	c := cookies[0]
	diff.Test(t, t.Errorf, c.Name, CookieName)
	diff.Test(t, t.Errorf, c.HttpOnly, true)

	again, set := visit(s, c)
	if again != rec {
		t.Error("second visit got a different session")
	}
	diff.Test(t, t.Errorf, len(set), 0)
}

func TestGetRejectsTamperedCookie(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, cookies := visit(s)

	forged := *cookies[0]
	forged.Value = rec.ID + ".AAAA"
	other, _ := visit(s, &forged)
	if other == rec {
		t.Error("forged cookie resolved to the original session")
	}

	// signed with another secret
	s2, _ := newTestStore(t, 10)
	s2.Secret = []byte("another secret, also thirty-two!")
	if _, ok := s2.verify(cookies[0].Value); ok {
		t.Error("cookie verified under a different secret")
	}
}

func TestEviction(t *testing.T) {
	s, _ := newTestStore(t, 2)
	_, c1 := visit(s)
	visit(s)
	visit(s)
	diff.Test(t, t.Errorf, s.Len(), 2)

	// the oldest session is gone, so its cookie starts a new one
	_, set := visit(s, c1[0])
	diff.Test(t, t.Errorf, len(set), 1)
}

func TestLookupDoesNotStore(t *testing.T) {
	s, _ := newTestStore(t, 2)
	rec, cookies := visit(s)
	rec.FinishExchange(&oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, &identity.User{Subject: "u1"})

	for i := 0; i < 5; i++ {
		anon := s.Lookup(httptest.NewRequest("GET", "/", nil))
		if anon == rec {
			t.Fatal("anonymous request got a signed-in session")
		}
		diff.Test(t, t.Errorf, anon.Auth(), loader.Auth{})
	}
	diff.Test(t, t.Errorf, s.Len(), 1)

	r := httptest.NewRequest("GET", "/dashboard", nil)
	r.AddCookie(cookies[0])
	if s.Lookup(r) != rec {
		t.Error("signed-in session lost to anonymous traffic")
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, _ := visit(s)
	w := httptest.NewRecorder()
	s.Delete(w, rec)
	diff.Test(t, t.Errorf, s.Len(), 0)
	cs := w.Result().Cookies()
	if len(cs) != 1 || cs[0].MaxAge >= 0 {
		t.Errorf("cookies = %v; want one expired cookie", cs)
	}
}

func TestLoginFlow(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, _ := visit(s)
	diff.Test(t, t.Errorf, rec.Auth(), loader.Auth{})

	state := rec.BeginLogin()
	if rec.StartExchange("forged") {
		t.Error("forged state accepted")
	}
	// a failed check consumes the pending state
	if rec.StartExchange(state) {
		t.Error("state reused after a failed check")
	}

	state = rec.BeginLogin()
	if !rec.StartExchange(state) {
		t.Fatal("valid state rejected")
	}
	diff.Test(t, t.Errorf, rec.Auth(), loader.Auth{Loading: true})
	diff.Test(t, t.Errorf, rec.Load(context.Background()).State, loader.ResolvingAuth)

	rec.FinishExchange(&oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}, &identity.User{Subject: "u1"})
	diff.Test(t, t.Errorf, rec.Auth(), loader.Auth{Authenticated: true})
	diff.Test(t, t.Errorf, rec.User().Subject, "u1")

	snap := rec.Load(context.Background())
	diff.Test(t, t.Errorf, snap.State, loader.NotSubscribed)
	diff.Test(t, t.Errorf, snap.AccessToken, "at")
}

func TestAccessTokenRefresh(t *testing.T) {
	ctx := context.Background()
	s, rf := newTestStore(t, 10)
	rec, _ := visit(s)

	if _, err := rec.AccessToken(ctx); !errors.Is(err, ErrSignedOut) {
		t.Errorf("err = %v; want ErrSignedOut", err)
	}

	rec.FinishExchange(&oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}, nil)
	for i := 0; i < 3; i++ {
		got, err := rec.AccessToken(ctx)
		if err != nil {
			t.Fatal(err)
		}
		diff.Test(t, t.Errorf, got, "fresh")
	}
	diff.Test(t, t.Errorf, rf.calls, 1)
}

func TestAccessTokenRefreshFails(t *testing.T) {
	s, rf := newTestStore(t, 10)
	rf.err = errors.New("invalid_grant")
	rec, _ := visit(s)
	rec.FinishExchange(&oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)}, nil)
	if _, err := rec.AccessToken(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
}

func TestKeysCardPerToken(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, _ := visit(s)
	a := rec.Keys("t1")
	if rec.Keys("t1") != a {
		t.Error("same token built a new card")
	}
	if rec.Keys("t2") == a {
		t.Error("new token reused the old card")
	}
}

func TestToggleTheme(t *testing.T) {
	s, _ := newTestStore(t, 10)
	rec, _ := visit(s)
	diff.Test(t, t.Errorf, rec.Theme(), "")
	diff.Test(t, t.Errorf, rec.ToggleTheme(), "dark")
	diff.Test(t, t.Errorf, rec.ToggleTheme(), "light")
}
