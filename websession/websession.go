// Package websession keeps per-visitor state on the server. A visitor is
// identified by a random id carried in a signed cookie; everything else
// (tokens, the loaded subscription, pending actions) stays in memory.
package websession

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"apidash.run/keys"
	"apidash.run/loader"
	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"github.com/google/uuid"
)

const CookieName = "apidash_session"

const cookieMaxAge = 7 * 24 * time.Hour

// Store holds the sessions of recent visitors. The least recently used
// session is dropped once Max is reached.
type Store struct {
	Secret    []byte
	Max       int
	Secure    bool // mark cookies Secure
	Refresher Refresher
	Gateway   loader.Gateway
	Consumers keys.ConsumerAPI

	Logf func(fmt string, args ...any)

	mu    sync.Mutex
	lru   *lru.Cache
	group singleflight.Group
}

func (s *Store) logf(fmt string, args ...any) {
	if s.Logf != nil {
		s.Logf(fmt, args...)
	}
}

// Get returns the session of the visitor making r, starting a new one and
// setting its cookie on w if r carries none or an invalid one. Only
// requests that must remember something for the visitor (a pending login,
// a theme) should start sessions.
func (s *Store) Get(w http.ResponseWriter, r *http.Request) *Record {
	if rec := s.find(r); rec != nil {
		return rec
	}
	rec := s.newRecord(uuid.NewString())
	s.add(rec)
	http.SetCookie(w, s.cookie(rec.ID, int(cookieMaxAge/time.Second)))
	return rec
}

// Lookup returns the session of the visitor making r. A visitor without a
// live session gets a signed-out record that is neither stored nor
// given a cookie, so anonymous traffic never evicts real sessions.
func (s *Store) Lookup(r *http.Request) *Record {
	if rec := s.find(r); rec != nil {
		return rec
	}
	return s.newRecord(uuid.NewString())
}

func (s *Store) find(r *http.Request) *Record {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	id, ok := s.verify(c.Value)
	if !ok {
		return nil
	}
	return s.lookup(id)
}

// Delete forgets rec and expires its cookie.
func (s *Store) Delete(w http.ResponseWriter, rec *Record) {
	s.mu.Lock()
	if s.lru != nil {
		s.lru.Remove(rec.ID)
	}
	s.mu.Unlock()
	http.SetCookie(w, s.cookie("", -1))
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru == nil {
		return 0
	}
	return s.lru.Len()
}

func (s *Store) newRecord(id string) *Record {
	rec := &Record{ID: id, store: s}
	rec.Loader = loader.New(rec, s.Gateway)
	rec.Loader.Logf = s.Logf
	rec.Portal.Logf = s.Logf
	return rec
}

func (s *Store) lookup(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru == nil {
		return nil
	}
	v, ok := s.lru.Get(id)
	if !ok {
		return nil
	}
	return v.(*Record)
}

func (s *Store) add(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru == nil {
		n := s.Max
		if n <= 0 {
			n = 1000
		}
		s.lru = lru.New(n)
	}
	s.lru.Add(rec.ID, rec)
}

func (s *Store) cookie(value string, maxAge int) *http.Cookie {
	if value != "" {
		value = s.sign(value)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Store) mac(id string) string {
	m := hmac.New(sha256.New, s.Secret)
	m.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func (s *Store) sign(id string) string {
	return id + "." + s.mac(id)
}

func (s *Store) verify(v string) (string, bool) {
	id, sig, ok := strings.Cut(v, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(id))) {
		return "", false
	}
	return id, true
}

// ErrSignedOut is returned by AccessToken when the session holds no token.
var ErrSignedOut = errors.New("websession: not signed in")
