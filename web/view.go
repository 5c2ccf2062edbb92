package web

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"apidash.run/config"
	"apidash.run/fetch"
	"apidash.run/gateway"
	"apidash.run/identity"
	"apidash.run/loader"
	"github.com/stripe/stripe-go/v72"
)

type decision int

const (
	showLoading decision = iota
	redirectHome
	showError
	showDashboard
)

// decide picks what /dashboard shows for s. The first matching rule wins.
func decide(s loader.Snapshot) decision {
	switch {
	case s.IsLoading:
		return showLoading
	case s.State == loader.Failed && !s.IsSubscribed:
		// the subscription was never determined
		return showError
	case !s.IsSubscribed:
		return redirectHome
	case s.Subscription == nil || s.Usage == nil || s.AccessToken == "":
		return showError
	}
	return showDashboard
}

// page is the data every template receives.
type page struct {
	Site    config.Site
	Theme   string
	User    *identity.User
	Refresh bool
	Return  string // path the theme toggle returns to

	Message   string // full-screen error
	Products  []gateway.Product
	Dashboard *dashboardView
}

type dashboardView struct {
	Keys        keysView
	Try         tryView
	Plan        planView
	PortalError string
}

type keysView struct {
	Consumers []gateway.Consumer
	Error     string
	ListError string
	Creating  bool
	Deleting  bool
}

type tryView struct {
	Command      string
	DocsURL      string
	AnalyticsURL string
	CopyDelayMS  int64
}

type planView struct {
	BillingCycle     string
	Plan             string
	Price            string
	NextPayment      string
	SubscriptionType string
	Usage            string
}

func newPlanView(sub *gateway.Subscription, u *gateway.Usage) planView {
	plan := sub.Plan
	if plan == nil {
		plan = &stripe.Plan{}
	}
	metered := sub.Metered()

	v := planView{
		BillingCycle:     "Annually",
		Plan:             sub.ProductName(),
		Price:            strings.ToUpper(string(plan.Currency)) + " " + formatAmount(float64(plan.Amount)/100),
		NextPayment:      sub.PeriodEnd().Format("January 2, 2006"),
		SubscriptionType: "Unlimited",
		Usage:            "Unlimited",
	}
	if plan.Interval == stripe.PlanIntervalMonth {
		v.BillingCycle = "Monthly"
	}
	if metered {
		v.Price += "/request"
		v.SubscriptionType = "Metered requests"
		v.Usage = fmt.Sprintf("%d requests", u.TotalUsage)
	} else {
		v.Price += "/month"
	}
	return v
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// responseText returns the gateway's response body carried by err, or a
// short description of err when the gateway never answered.
func responseText(err error) string {
	var se *fetch.StatusError
	if errors.As(err, &se) {
		return se.Body
	}
	return "the gateway could not be reached"
}
