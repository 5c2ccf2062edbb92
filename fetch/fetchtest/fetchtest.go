// Package fetchtest provides HTTP clients wired to in-process test servers.
package fetchtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// NewServer starts an httptest server for h and returns a client that sends
// every request to it, whatever scheme and host the request URL names. The
// server is closed when the test ends.
func NewServer(t testing.TB, h http.Handler) *http.Client {
	t.Helper()
	return client(t, httptest.NewServer(h))
}

// NewTLSServer is like NewServer but serves over TLS.
func NewTLSServer(t testing.TB, h http.Handler) *http.Client {
	t.Helper()
	return client(t, httptest.NewTLSServer(h))
}

func client(t testing.TB, s *httptest.Server) *http.Client {
	t.Cleanup(s.Close)
	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatal(err)
	}
	c := s.Client()
	c.Transport = &rewriteTransport{base: c.Transport, target: u}
	return c
}

type rewriteTransport struct {
	base   http.RoundTripper
	target *url.URL
}

func (tr *rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context()) // per RoundTrip contract
	r.URL.Scheme = tr.target.Scheme
	r.URL.Host = tr.target.Host
	r.Host = tr.target.Host
	return tr.base.RoundTrip(r)
}
