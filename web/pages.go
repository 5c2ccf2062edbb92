package web

import (
	"context"
	"errors"
	"net/http"

	"apidash.run/action"
	"apidash.run/gateway"
	"apidash.run/trweb"
	"apidash.run/websession"
)

func (s *Server) serveHome(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "GET", "HEAD"); err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	snap := rec.Load(r.Context())

	switch {
	case snap.IsLoading:
		return s.render(w, http.StatusOK, "loading", s.page(r, rec, page{Refresh: true}))
	case !snap.IsAuthenticated:
		return s.render(w, http.StatusOK, "home", s.page(r, rec, page{}))
	case snap.IsSubscribed:
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return nil
	case snap.ErrorMessage != "":
		return s.render(w, http.StatusOK, "error", s.page(r, rec, page{Message: snap.ErrorMessage}))
	}

	products, err := s.billing.Products(r.Context(), snap.AccessToken)
	switch {
	case errors.Is(err, gateway.ErrNoProducts):
		return s.render(w, http.StatusOK, "error", s.page(r, rec, page{Message: "No products found."}))
	case err != nil:
		s.logf("web: %v", err)
		return s.render(w, http.StatusOK, "error", s.page(r, rec, page{
			Message: "Error fetching products: " + responseText(err),
		}))
	}
	return s.render(w, http.StatusOK, "pricing", s.page(r, rec, page{Products: products}))
}

// serveCheckout starts a checkout for the posted price and sends the
// browser to the billing provider. On failure the error is shown in place
// and the browser stays on this site.
func (s *Server) serveCheckout(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	priceID, err := trweb.FormValue(r, "priceId")
	if err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	token, ok := s.token(w, r, rec)
	if !ok {
		return nil
	}
	u, err := s.billing.CheckoutURL(r.Context(), token, priceID, s.siteURL)
	if err != nil {
		s.logf("web: %v", err)
		return s.render(w, http.StatusBadGateway, "error", s.page(r, rec, page{
			Message: "Error creating checkout session: " + responseText(err),
		}))
	}
	// 303 so the checkout page replaces the form post in history
	http.Redirect(w, r, u, http.StatusSeeOther)
	return nil
}

// servePortal sends the browser to the billing portal. A failure is kept on
// the session and shown in the plan card.
func (s *Server) servePortal(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	token, ok := s.token(w, r, rec)
	if !ok {
		return nil
	}
	var portalURL string
	err := rec.Portal.Run(r.Context(), func(ctx context.Context) error {
		u, err := s.billing.PortalURL(ctx, token, s.siteURL)
		if err != nil {
			return action.UserError(err, "Error creating customer portal session: "+responseText(err))
		}
		portalURL = u
		return nil
	})
	if err != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return nil
	}
	http.Redirect(w, r, portalURL, http.StatusSeeOther)
	return nil
}

func (s *Server) serveDashboard(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "GET", "HEAD"); err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	snap := rec.Load(r.Context())

	switch decide(snap) {
	case showLoading:
		return s.render(w, http.StatusOK, "loading", s.page(r, rec, page{Refresh: true}))
	case redirectHome:
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	case showError:
		msg := snap.ErrorMessage
		if msg == "" {
			msg = "Something went wrong"
		}
		return s.render(w, http.StatusOK, "error", s.page(r, rec, page{Message: msg}))
	}

	card := rec.Keys(snap.AccessToken)
	consumers, err := card.List(r.Context())
	if err != nil {
		s.logf("web: %v", err)
	}
	kv := keysView{
		Consumers: consumers,
		Error:     card.Err(),
		ListError: card.ListErr(),
		Creating:  card.Creating(),
		Deleting:  card.Deleting(),
	}

	d := &dashboardView{
		Keys:        kv,
		Try:         s.tryView(),
		Plan:        newPlanView(snap.Subscription, snap.Usage),
		PortalError: rec.Portal.Err(),
	}
	// shown once
	rec.Portal.Clear()
	return s.render(w, http.StatusOK, "dashboard", s.page(r, rec, page{Dashboard: d}))
}

type keyRequest struct {
	Description string `json:"description"`
	Name        string `json:"name"`
}

type keyResponse struct {
	Consumers []gateway.Consumer `json:"consumers"`
	Error     string             `json:"error,omitempty"`
	ListError string             `json:"listError,omitempty"`
}

func (s *Server) serveKeyCreate(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	in, err := readKeyRequest(r, "description")
	if err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	token, ok := s.token(w, r, rec)
	if !ok {
		return nil
	}
	card := rec.Keys(token)
	card.Create(r.Context(), in.Description) // nolint: errcheck
	return s.keysDone(w, r, rec, token)
}

func (s *Server) serveKeyDelete(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	in, err := readKeyRequest(r, "name")
	if err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	token, ok := s.token(w, r, rec)
	if !ok {
		return nil
	}
	card := rec.Keys(token)
	card.Delete(r.Context(), in.Name) // nolint: errcheck
	return s.keysDone(w, r, rec, token)
}

func (s *Server) serveKeyDismiss(w http.ResponseWriter, r *http.Request) error {
	if err := trweb.Method(r, "POST"); err != nil {
		return err
	}
	rec := s.sessions.Lookup(r)
	token, ok := s.token(w, r, rec)
	if !ok {
		return nil
	}
	rec.Keys(token).Dismiss()
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	return nil
}

// keysDone answers a key mutation: JSON callers get the fresh listing and
// the banner message, form posts go back to the dashboard.
func (s *Server) keysDone(w http.ResponseWriter, r *http.Request, rec *websession.Record, token string) error {
	if !trweb.IsJSON(r) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return nil
	}
	card := rec.Keys(token)
	cs, err := card.List(r.Context())
	if err != nil {
		s.logf("web: %v", err)
	}
	return httpJSON(w, keyResponse{
		Consumers: cs,
		Error:     card.Err(),
		ListError: card.ListErr(),
	})
}

// readKeyRequest reads a JSON or form body and requires field to be set.
func readKeyRequest(r *http.Request, field string) (keyRequest, error) {
	var in keyRequest
	if trweb.IsJSON(r) {
		if err := trweb.DecodeStrict(r, &in); err != nil {
			return in, err
		}
		v := in.Description
		if field == "name" {
			v = in.Name
		}
		if v == "" {
			return in, trweb.Invalid(`missing "` + field + `"`)
		}
		return in, nil
	}
	v, err := trweb.FormValue(r, field)
	if err != nil {
		return in, err
	}
	if field == "name" {
		in.Name = v
	} else {
		in.Description = v
	}
	return in, nil
}

// token returns the session's access token. A signed-out visitor is sent
// home, or told Unauthorized when calling with JSON, and ok is false.
func (s *Server) token(w http.ResponseWriter, r *http.Request, rec *websession.Record) (_ string, ok bool) {
	token, err := rec.AccessToken(r.Context())
	if err != nil {
		if !errors.Is(err, websession.ErrSignedOut) {
			s.logf("web: %v", err)
		}
		if trweb.IsJSON(r) {
			trweb.WriteError(w, trweb.Unauthorized)
		} else {
			http.Redirect(w, r, "/", http.StatusSeeOther)
		}
		return "", false
	}
	return token, true
}
