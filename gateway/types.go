package gateway

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v72"
)

// Subscription is the billing provider's subscription record as relayed by
// the gateway, which also attaches the subscribed product.
type Subscription struct {
	stripe.Subscription
	Product *stripe.Product `json:"product"`
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &s.Subscription); err != nil {
		return err
	}
	var v struct {
		Product *stripe.Product `json:"product"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.Product = v.Product
	return nil
}

// ProductName reports the name of the subscribed product, falling back to
// the plan's product when the gateway did not attach one.
func (s *Subscription) ProductName() string {
	if s.Product != nil && s.Product.Name != "" {
		return s.Product.Name
	}
	if s.Plan != nil && s.Plan.Product != nil {
		return s.Plan.Product.Name
	}
	return ""
}

// Metered reports whether the plan bills per request.
func (s *Subscription) Metered() bool {
	return s.Plan != nil && s.Plan.UsageType == stripe.PlanUsageTypeMetered
}

func (s *Subscription) PeriodEnd() time.Time {
	return time.Unix(s.CurrentPeriodEnd, 0).UTC()
}

type Usage struct {
	TotalUsage int64 `json:"total_usage"`
}

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	PriceID     string  `json:"priceId"`
	Currency    string  `json:"currency"`
}

// A Consumer is a named API-key holder managed by the gateway.
type Consumer struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedOn   time.Time `json:"createdOn"`
	UpdatedOn   time.Time `json:"updatedOn"`
	APIKeys     []APIKey  `json:"apiKeys"`
}

type APIKey struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"` // masked unless requested otherwise
	CreatedOn time.Time  `json:"createdOn"`
	ExpiresOn *time.Time `json:"expiresOn"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type portalResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type consumersResponse struct {
	Data []Consumer `json:"data"`
}

type createConsumerRequest struct {
	Description string `json:"description"`
}
