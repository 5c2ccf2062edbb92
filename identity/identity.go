// Package identity signs users in with an Auth0-compatible OpenID Connect
// provider and keeps their access tokens fresh.
package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"kr.dev/errorfmt"
)

// User is the signed-in person as described by their ID token.
type User struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Avatar returns the user's picture, or a generated one derived from their
// email when the provider has none.
func (u *User) Avatar() string {
	if u.Picture != "" {
		return u.Picture
	}
	return "https://avatars.dicebear.com/api/micah/" + url.PathEscape(u.Email) + ".svg"
}

type Config struct {
	Domain       string // e.g. example.us.auth0.com, with or without scheme
	ClientID     string
	ClientSecret string
	Audience     string // the gateway API identifier access tokens are minted for
	RedirectURL  string // this site's callback URL

	JWKSURL string // optional override, for tests
}

type Provider struct {
	oauth    *oauth2.Config
	base     string
	clientID string
	audience string
	verifier *Verifier
}

// New returns a Provider for cfg. It fetches the provider's signing keys in
// the background.
func New(cfg Config) (*Provider, error) {
	base := domainURL(cfg.Domain)
	if base == "" || cfg.ClientID == "" {
		return nil, errors.New("identity: domain and client id are required")
	}
	v, err := NewVerifier(base+"/", cfg.ClientID, cfg.JWKSURL)
	if err != nil {
		return nil, err
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email", "offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		base:     base,
		clientID: cfg.ClientID,
		audience: cfg.Audience,
		verifier: v,
	}, nil
}

// AuthCodeURL returns the URL that starts a login carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("audience", p.audience))
}

// Exchange trades an authorization code for tokens and verifies the ID
// token that comes with them.
func (p *Provider) Exchange(ctx context.Context, code string) (_ *oauth2.Token, _ *User, err error) {
	defer errorfmt.Handlef("identity: Exchange: %w", &err)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, nil, errors.New("no id_token in token response")
	}
	u, err := p.verifier.Verify(raw)
	if err != nil {
		return nil, nil, err
	}
	return tok, u, nil
}

// TokenSource returns a source that yields tok until it expires and then
// refreshes it silently with the provider.
func (p *Provider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return p.oauth.TokenSource(ctx, tok)
}

// LogoutURL ends the provider session and sends the user to returnTo.
func (p *Provider) LogoutURL(returnTo string) string {
	q := url.Values{
		"client_id": {p.clientID},
		"returnTo":  {returnTo},
	}
	return p.base + "/v2/logout?" + q.Encode()
}

func domainURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain
}
