package websession

import (
	"context"
	"sync"

	"apidash.run/action"
	"apidash.run/identity"
	"apidash.run/keys"
	"apidash.run/loader"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Refresher turns a stored token into one that refreshes itself.
type Refresher interface {
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// Record is one visitor's session. Its methods are safe for concurrent
// use.
type Record struct {
	ID string

	// Loader resolves the visitor's subscription and usage.
	Loader *loader.Loader

	// Portal tracks the last attempt to open the billing portal.
	Portal action.Action

	store *Store

	mu         sync.Mutex
	state      string
	exchanging bool
	token      *oauth2.Token
	user       *identity.User
	theme      string
	keys       *keys.Card
}

// BeginLogin returns a fresh OAuth state value and remembers it for the
// callback.
func (r *Record) BeginLogin() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = uuid.NewString()
	return r.state
}

// StartExchange checks state against the pending login and, if it matches,
// marks the session as resolving authentication. The state is single use.
func (r *Record) StartExchange(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.state != "" && r.state == state
	r.state = ""
	if ok {
		r.exchanging = true
	}
	return ok
}

// FinishExchange ends the pending exchange. A nil tok leaves the session
// signed out.
func (r *Record) FinishExchange(tok *oauth2.Token, u *identity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanging = false
	if tok != nil {
		r.token = tok
		r.user = u
		r.keys = nil
	}
}

// Auth reports the identity state the loader runs against.
func (r *Record) Auth() loader.Auth {
	r.mu.Lock()
	defer r.mu.Unlock()
	return loader.Auth{
		Loading:       r.exchanging,
		Authenticated: r.token != nil,
	}
}

// Load runs the session's loader against its current identity state.
func (r *Record) Load(ctx context.Context) loader.Snapshot {
	return r.Loader.Load(ctx, r.Auth())
}

func (r *Record) User() *identity.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// AccessToken returns a valid access token, refreshing it with the
// identity provider when it has expired. Concurrent refreshes for one
// session share a single round trip.
func (r *Record) AccessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	tok := r.token
	r.mu.Unlock()
	if tok == nil {
		return "", ErrSignedOut
	}
	if tok.Valid() {
		return tok.AccessToken, nil
	}

	v, err := r.store.group.Do(r.ID, func() (any, error) {
		r.mu.Lock()
		cur := r.token
		r.mu.Unlock()
		if cur == nil {
			return nil, ErrSignedOut
		}
		if cur.Valid() {
			return cur, nil
		}
		nt, err := r.store.Refresher.TokenSource(ctx, cur).Token()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.token == cur {
			r.token = nt
		}
		r.mu.Unlock()
		return nt, nil
	})
	if err != nil {
		r.store.logf("websession: refresh %s: %v", r.ID, err)
		return "", err
	}
	return v.(*oauth2.Token).AccessToken, nil
}

// Keys returns the key manager card for token, building a new one when the
// token changed since the last call.
func (r *Record) Keys(token string) *keys.Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys != nil {
		if p, ok := r.keys.Manager.(*keys.Provider); ok && p.Token() == token {
			return r.keys
		}
	}
	r.keys = &keys.Card{
		Manager: keys.NewProvider(r.store.Consumers, token),
		Logf:    r.store.Logf,
	}
	return r.keys
}

// Theme returns "light", "dark" or "" for the system preference.
func (r *Record) Theme() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.theme
}

// ToggleTheme switches between light and dark and returns the new theme.
func (r *Record) ToggleTheme() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.theme == "dark" {
		r.theme = "light"
	} else {
		r.theme = "dark"
	}
	return r.theme
}
