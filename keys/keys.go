// Package keys manages a user's API keys through the gateway's consumer
// API.
//
// The listing is cached per Provider and only reloaded on Refresh. Every
// mutation goes through the Manager and refreshes the listing afterwards,
// so the Manager is the single source of key state for a page.
package keys

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"apidash.run/gateway"
	"github.com/golang/groupcache/singleflight"
	"kr.dev/errorfmt"
)

// A Manager lists, creates and deletes the API keys of one user.
type Manager interface {
	List(ctx context.Context) ([]gateway.Consumer, error)
	Create(ctx context.Context, description string) error
	Delete(ctx context.Context, name string) error
	Refresh(ctx context.Context) error
}

// ConsumerAPI is the subset of the gateway client a Provider uses.
type ConsumerAPI interface {
	ListConsumers(ctx context.Context, token string) ([]gateway.Consumer, error)
	CreateConsumer(ctx context.Context, token, description string) error
	DeleteConsumer(ctx context.Context, token, name string) error
}

// Provider is a Manager bound to one access token.
type Provider struct {
	api   ConsumerAPI
	token string

	group singleflight.Group

	mu     sync.Mutex
	gen    uint64 // bumped by every Refresh
	cached []gateway.Consumer
	valid  bool
}

var _ Manager = (*Provider)(nil)

// A RefreshError reports that a mutation went through but reloading the
// listing afterwards failed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return "refreshing keys: " + e.Err.Error() }
func (e *RefreshError) Unwrap() error { return e.Err }

// NewProvider returns a Provider for the user holding token. A new
// Provider must be built whenever the token changes.
func NewProvider(api ConsumerAPI, token string) *Provider {
	return &Provider{api: api, token: token}
}

// Token reports the access token p was built for.
func (p *Provider) Token() string { return p.token }

// List returns the consumers, newest first. The listing is loaded once and
// cached; concurrent callers share one gateway call.
func (p *Provider) List(ctx context.Context) (_ []gateway.Consumer, err error) {
	defer errorfmt.Handlef("keys: List: %w", &err)
	p.mu.Lock()
	cs, ok, gen := p.cached, p.valid, p.gen
	p.mu.Unlock()
	if ok {
		return cs, nil
	}
	return p.load(ctx, gen)
}

// load lists the consumers for generation gen. Callers of one generation
// share a gateway call; a call never joins one started before the last
// Refresh, and its result is only cached while gen is current.
func (p *Provider) load(ctx context.Context, gen uint64) ([]gateway.Consumer, error) {
	v, err := p.group.Do("list-"+strconv.FormatUint(gen, 10), func() (any, error) {
		cs, err := p.api.ListConsumers(ctx, p.token)
		if err != nil {
			return nil, err
		}
		sort.Slice(cs, func(i, j int) bool {
			return cs[i].CreatedOn.After(cs[j].CreatedOn)
		})
		p.store(gen, cs)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]gateway.Consumer), nil
}

// Create creates a consumer labelled description and reloads the listing,
// whether or not the gateway accepted it. A failed reload after a
// successful create is reported as a *RefreshError.
func (p *Provider) Create(ctx context.Context, description string) (err error) {
	defer errorfmt.Handlef("keys: Create: %w", &err)
	return p.refreshAfter(ctx, p.api.CreateConsumer(ctx, p.token, description))
}

func (p *Provider) Delete(ctx context.Context, name string) (err error) {
	defer errorfmt.Handlef("keys: Delete(%s): %w", name, &err)
	return p.refreshAfter(ctx, p.api.DeleteConsumer(ctx, p.token, name))
}

func (p *Provider) refreshAfter(ctx context.Context, mutErr error) error {
	rerr := p.Refresh(ctx)
	if mutErr != nil {
		return mutErr
	}
	if rerr != nil {
		return &RefreshError{rerr}
	}
	return nil
}

// Refresh drops the cached listing and loads it again with a new gateway
// call.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.cached, p.valid = nil, false
	p.mu.Unlock()
	_, err := p.load(ctx, gen)
	return err
}

func (p *Provider) store(gen uint64, cs []gateway.Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen {
		p.cached, p.valid = cs, true
	}
}
