// Package gateway is the client for the backend gateway that fronts the
// billing provider, usage metering and API-key management.
//
// Every call takes the caller's access token; the client holds no
// per-user state.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"apidash.run/fetch"
	"apidash.run/metrics"
	"kr.dev/errorfmt"
)

var (
	// ErrNoSubscription reports that the user has no active subscription.
	// It is an expected outcome, not a failure.
	ErrNoSubscription = errors.New("no active subscription")

	// ErrNoProducts reports an empty product catalog.
	ErrNoProducts = errors.New("No products found.")
)

type Client struct {
	BaseURL    string // the gateway base URL, without a trailing slash
	HTTPClient *http.Client

	Logf func(fmt string, args ...any)
}

func (c *Client) logf(fmt string, args ...any) {
	if c.Logf != nil {
		c.Logf(fmt, args...)
	}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// Subscription fetches the user's current subscription. It reports
// ErrNoSubscription when the gateway answers 404 or with an error body.
func (c *Client) Subscription(ctx context.Context, token string) (_ *Subscription, err error) {
	defer errorfmt.Handlef("gateway: Subscription: %w", &err)

	data, err := fetchOK[[]byte](ctx, c, "subscription", token, "GET", "/v1/subscription", nil)
	var se *fetch.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}

	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if len(probe.Error) > 0 && string(probe.Error) != "null" {
		c.logf("gateway: no subscription: %s", probe.Error)
		return nil, ErrNoSubscription
	}

	s := new(Subscription)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) Usage(ctx context.Context, token string) (_ *Usage, err error) {
	defer errorfmt.Handlef("gateway: Usage: %w", &err)
	u, err := fetchOK[Usage](ctx, c, "usage", token, "GET", "/v1/subscription/usage", nil)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Products lists the products available for subscription. An empty catalog
// is reported as ErrNoProducts.
func (c *Client) Products(ctx context.Context, token string) (_ []Product, err error) {
	defer errorfmt.Handlef("gateway: Products: %w", &err)
	ps, err := fetchOK[[]Product](ctx, c, "products", token, "GET", "/v1/subscription/products", nil)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNoProducts
	}
	return ps, nil
}

// CheckoutURL creates a checkout session for priceID and returns the URL to
// send the user to. The billing provider returns the user to redirectURL.
func (c *Client) CheckoutURL(ctx context.Context, token, priceID, redirectURL string) (_ string, err error) {
	defer errorfmt.Handlef("gateway: CheckoutURL: %w", &err)
	q := url.Values{
		"priceId":     {priceID},
		"redirectUrl": {redirectURL},
	}
	r, err := fetchOK[checkoutResponse](ctx, c, "checkout", token, "GET", "/v1/subscription/create-checkout?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if r.URL == "" {
		return "", errors.New("empty checkout url")
	}
	return r.URL, nil
}

// PortalURL creates a customer portal session and returns the URL to send
// the user to. The portal links back to returnURL.
func (c *Client) PortalURL(ctx context.Context, token, returnURL string) (_ string, err error) {
	defer errorfmt.Handlef("gateway: PortalURL: %w", &err)
	q := url.Values{"returnUrl": {returnURL}}
	r, err := fetchOK[portalResponse](ctx, c, "portal", token, "GET", "/v1/subscription/create-customer-portal-session?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if r.RedirectURL == "" {
		return "", errors.New("empty portal url")
	}
	return r.RedirectURL, nil
}

// ListConsumers lists the caller's consumers with masked keys.
func (c *Client) ListConsumers(ctx context.Context, token string) (_ []Consumer, err error) {
	defer errorfmt.Handlef("gateway: ListConsumers: %w", &err)
	r, err := fetchOK[consumersResponse](ctx, c, "list_consumers", token, "GET", "/v1/consumers/my?include-api-keys=true&key-format=masked", nil)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

// CreateConsumer creates a consumer, and with it a new API key, labelled
// with description. Any status other than 200 is an error.
func (c *Client) CreateConsumer(ctx context.Context, token, description string) (err error) {
	defer errorfmt.Handlef("gateway: CreateConsumer: %w", &err)
	res, err := fetch.Do[*http.Response](ctx, c.client(), "POST", c.BaseURL+"/v1/consumers/my", createConsumerRequest{description}, fetch.Bearer(token))
	if err != nil {
		count("create_consumer", err)
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		err = &fetch.StatusError{Status: res.StatusCode, Body: string(body)}
	}
	count("create_consumer", err)
	return err
}

func (c *Client) DeleteConsumer(ctx context.Context, token, name string) (err error) {
	defer errorfmt.Handlef("gateway: DeleteConsumer(%s): %w", name, &err)
	_, err = fetchOK[struct{}](ctx, c, "delete_consumer", token, "DELETE", "/v1/consumers/my/"+url.PathEscape(name), nil)
	return err
}

func fetchOK[T any](ctx context.Context, c *Client, op, token, method, path string, body any) (T, error) {
	v, err := fetch.OK[T](ctx, c.client(), method, c.BaseURL+path, body, fetch.Bearer(token))
	count(op, err)
	return v, err
}

func count(op string, err error) {
	outcome := "ok"
	var se *fetch.StatusError
	switch {
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.GatewayCalls.WithLabelValues(op, outcome).Inc()
}
