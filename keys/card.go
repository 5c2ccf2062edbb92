package keys

import (
	"context"
	"errors"
	"sync"

	"apidash.run/action"
	"apidash.run/fetch"
	"apidash.run/gateway"
)

const (
	msgCreate = "An error occurred while creating the API key. Check the console for more details."
	msgDelete = "An error occurred while deleting the API key. Check the console for more details."
	msgList   = "Could not load your API keys."
)

// Card is the key manager shown on the dashboard. It owns the create and
// delete actions and a single error banner shared by both.
type Card struct {
	Manager Manager

	Logf func(fmt string, args ...any)

	once     sync.Once
	creating action.Action
	deleting action.Action

	mu      sync.Mutex
	listErr string
}

func (c *Card) init() {
	c.once.Do(func() {
		c.creating.Message = msgCreate
		c.creating.Logf = c.Logf
		c.deleting.Message = msgDelete
		c.deleting.Logf = c.Logf
	})
}

// Create creates a key labelled description. A gateway rejection is shown
// to the user as the gateway's own response text. If the key was created
// but the listing could not be reloaded, the create succeeds and the
// failure is reported by ListErr.
func (c *Card) Create(ctx context.Context, description string) error {
	c.init()
	c.deleting.Clear()
	return c.creating.Run(ctx, func(ctx context.Context) error {
		err := c.refreshed(c.Manager.Create(ctx, description))
		var se *fetch.StatusError
		if errors.As(err, &se) {
			return action.UserError(err, se.Body)
		}
		return err
	})
}

func (c *Card) Delete(ctx context.Context, name string) error {
	c.init()
	c.creating.Clear()
	return c.deleting.Run(ctx, func(ctx context.Context) error {
		return c.refreshed(c.Manager.Delete(ctx, name))
	})
}

// refreshed moves a reload failure out of a mutation's error into the
// list error.
func (c *Card) refreshed(err error) error {
	var re *RefreshError
	if !errors.As(err, &re) {
		return err
	}
	if c.Logf != nil {
		c.Logf("keys: %v", err)
	}
	c.setListErr(msgList)
	return nil
}

// List returns the keys. A failure also sets ListErr; a success clears it.
func (c *Card) List(ctx context.Context) ([]gateway.Consumer, error) {
	cs, err := c.Manager.List(ctx)
	if err != nil {
		c.setListErr(msgList)
		return nil, err
	}
	c.setListErr("")
	return cs, nil
}

// ListErr returns the message for the last failed listing, or "".
func (c *Card) ListErr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listErr
}

func (c *Card) setListErr(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = msg
}

// Creating reports whether a create is in flight.
func (c *Card) Creating() bool { return c.creating.InFlight() }

// Deleting reports whether a delete is in flight.
func (c *Card) Deleting() bool { return c.deleting.InFlight() }

// Err returns the banner message, or "".
func (c *Card) Err() string {
	if m := c.creating.Err(); m != "" {
		return m
	}
	return c.deleting.Err()
}

// Dismiss clears the banner.
func (c *Card) Dismiss() {
	c.creating.Clear()
	c.deleting.Clear()
}
