// Package web serves the dashboard's pages.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"apidash.run/config"
	"apidash.run/gateway"
	"apidash.run/identity"
	"apidash.run/metrics"
	"apidash.run/snippet"
	"apidash.run/trweb"
	"apidash.run/websession"
	"golang.org/x/oauth2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"upper":  strings.ToUpper,
	"amount": formatAmount,
}).ParseFS(templateFS, "templates/*.html"))

// Identity signs visitors in and out.
type Identity interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, *identity.User, error)
	LogoutURL(returnTo string) string
}

// Billing is the part of the gateway the pricing and plan pages use.
type Billing interface {
	Products(ctx context.Context, token string) ([]gateway.Product, error)
	CheckoutURL(ctx context.Context, token, priceID, redirectURL string) (string, error)
	PortalURL(ctx context.Context, token, returnURL string) (string, error)
}

type Server struct {
	Logf func(format string, args ...any)

	site     config.Site
	apiURL   string
	siteURL  string
	identity Identity
	billing  Billing
	sessions *websession.Store
}

func New(cfg *config.Config, id Identity, b Billing, ss *websession.Store) *Server {
	return &Server{
		site:     cfg.Site,
		apiURL:   cfg.APIURL,
		siteURL:  cfg.SiteURL,
		identity: id,
		billing:  b,
		sessions: ss,
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		metrics.HTTPRequests.WithLabelValues(r.Method, route(r.URL.Path), strconv.Itoa(sw.status)).Inc()
	}()

	err := s.serve(sw, r)
	if err != nil {
		s.logf("error: %s %s: %v", r.Method, r.URL.Path, err)
		// continue processing error below
	}

	if trweb.WriteError(sw, err) {
		return
	}
	if err != nil {
		trweb.WriteError(sw, trweb.InternalError)
		return
	}
}

var routes = map[string]bool{
	"/":             true,
	"/checkout":     true,
	"/portal":       true,
	"/dashboard":    true,
	"/keys":         true,
	"/keys/delete":  true,
	"/keys/dismiss": true,
	"/login":        true,
	"/callback":     true,
	"/logout":       true,
	"/theme":        true,
	"/healthz":      true,
	"/metrics":      true,
}

func route(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) error {
	switch r.URL.Path {
	case "/":
		return s.serveHome(w, r)
	case "/checkout":
		return s.serveCheckout(w, r)
	case "/portal":
		return s.servePortal(w, r)
	case "/dashboard":
		return s.serveDashboard(w, r)
	case "/keys":
		return s.serveKeyCreate(w, r)
	case "/keys/delete":
		return s.serveKeyDelete(w, r)
	case "/keys/dismiss":
		return s.serveKeyDismiss(w, r)
	case "/login":
		return s.serveLogin(w, r)
	case "/callback":
		return s.serveCallback(w, r)
	case "/logout":
		return s.serveLogout(w, r)
	case "/theme":
		return s.serveTheme(w, r)
	case "/healthz":
		_, err := w.Write([]byte("ok\n"))
		return err
	case "/metrics":
		metrics.Handler().ServeHTTP(w, r)
		return nil
	default:
		return trweb.NotFound
	}
}

func (s *Server) serveLogin(w http.ResponseWriter, r *http.Request) error {
	rec := s.sessions.Get(w, r)
	http.Redirect(w, r, s.identity.AuthCodeURL(rec.BeginLogin()), http.StatusFound)
	return nil
}

func (s *Server) serveCallback(w http.ResponseWriter, r *http.Request) error {
	rec := s.sessions.Lookup(r)
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.logf("web: login failed: %s: %s", e, q.Get("error_description"))
		return s.render(w, http.StatusUnauthorized, "error", s.page(r, rec, page{
			Message: "Could not sign in: " + q.Get("error_description"),
		}))
	}
	if !rec.StartExchange(q.Get("state")) {
		return trweb.Invalid("invalid login state")
	}
	tok, u, err := s.identity.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		rec.FinishExchange(nil, nil)
		s.logf("web: %v", err)
		return s.render(w, http.StatusUnauthorized, "error", s.page(r, rec, page{
			Message: "Could not sign in.",
		}))
	}
	rec.FinishExchange(tok, u)
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (s *Server) serveLogout(w http.ResponseWriter, r *http.Request) error {
	rec := s.sessions.Lookup(r)
	s.sessions.Delete(w, rec)
	http.Redirect(w, r, s.identity.LogoutURL(s.siteURL), http.StatusFound)
	return nil
}

func (s *Server) serveTheme(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	rec := s.sessions.Get(w, r)
	rec.ToggleTheme()
	back := r.FormValue("return")
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") {
		back = "/"
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
	return nil
}

func (s *Server) page(r *http.Request, rec *websession.Record, p page) page {
	p.Site = s.site
	p.Theme = rec.Theme()
	p.User = rec.User()
	p.Return = returnPath(r)
	return p
}

// returnPath is where the theme toggle sends the visitor back to: the
// current page when it can be fetched again, else home.
func returnPath(r *http.Request) string {
	if r.Method != "GET" && r.Method != "HEAD" {
		return "/"
	}
	if r.URL.Path == "/dashboard" {
		return "/dashboard"
	}
	return "/"
}

func (s *Server) tryView() tryView {
	return tryView{
		Command:      snippet.TryCommand(s.apiURL, s.site.TryPath),
		DocsURL:      s.apiURL + s.site.DocsPath,
		AnalyticsURL: s.apiURL + s.site.AnalyticsPath,
		CopyDelayMS:  snippet.DefaultDelay.Milliseconds(),
	}
}

// render executes the named template into a buffer first so a template
// failure never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, p page) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, p); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func httpJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
