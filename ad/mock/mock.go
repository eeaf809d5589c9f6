// Package mock provides a configurable fake AdProvider for testing.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pdfsmarttools/featuregate"
)

// Provider is a mock rewarded-ad provider.
type Provider struct {
	reward    bool
	latency   time.Duration
	loadErr   error
	showErr   error
	failAfter int
	showFunc  func(ctx context.Context, showNum int64) (bool, error)

	ready     atomic.Bool
	loadCount atomic.Int64
	showCount atomic.Int64
}

var _ featuregate.AdProvider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
// By default an ad is ready and every view earns the reward.
func New(opts ...Option) *Provider {
	p := &Provider{reward: true}
	p.ready.Store(true)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithReward sets whether views earn the reward.
func WithReward(earned bool) Option {
	return func(p *Provider) { p.reward = earned }
}

// WithLatency adds simulated latency to Load and Show.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithLoadError makes Load always return this error.
func WithLoadError(err error) Option {
	return func(p *Provider) { p.loadErr = err }
}

// WithShowError makes Show always return this error.
func WithShowError(err error) Option {
	return func(p *Provider) { p.showErr = err }
}

// WithFailAfter stops rewarding after N successful views.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithNotReady starts the provider with no ad loaded.
func WithNotReady() Option {
	return func(p *Provider) { p.ready.Store(false) }
}

// WithShowFunc sets a custom show function. showNum is 1-based.
func WithShowFunc(fn func(ctx context.Context, showNum int64) (bool, error)) Option {
	return func(p *Provider) { p.showFunc = fn }
}

func (p *Provider) sleep(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fetches an ad.
func (p *Provider) Load(ctx context.Context) error {
	p.loadCount.Add(1)
	if err := p.sleep(ctx); err != nil {
		return err
	}
	if p.loadErr != nil {
		return p.loadErr
	}
	p.ready.Store(true)
	return nil
}

// IsReady reports whether an ad is loaded.
func (p *Provider) IsReady() bool {
	return p.ready.Load()
}

// Show displays the ad and reports whether the reward was earned.
func (p *Provider) Show(ctx context.Context) (bool, error) {
	count := p.showCount.Add(1)

	if p.showFunc != nil {
		return p.showFunc(ctx, count)
	}

	if err := p.sleep(ctx); err != nil {
		return false, err
	}
	if p.showErr != nil {
		return false, p.showErr
	}
	if p.failAfter > 0 && int(count) > p.failAfter {
		return false, nil
	}
	return p.reward, nil
}

// LoadCount returns the number of Load calls.
func (p *Provider) LoadCount() int64 { return p.loadCount.Load() }

// ShowCount returns the number of Show calls.
func (p *Provider) ShowCount() int64 { return p.showCount.Load() }
