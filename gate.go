package featuregate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultAdTimeout = 2 * time.Minute

// PromptFunc presents the "watch an ad to continue" gate to the user.
// It is invoked exactly once per offered gate and must not block; the
// UI eventually drives req.WatchAd or req.Cancel from its own callbacks.
type PromptFunc func(req *GateRequest)

// Coordinator is the single admission point for gated features.
// Pro users bypass it, free users under quota pass, and free users
// over quota are routed through a rewarded-ad gate. At most one gate
// is open at a time; concurrent over-quota checks queue behind it.
type Coordinator struct {
	ledger *Ledger
	ads    AdProvider
	meter  Meter

	adTimeout   time.Duration
	loadLimiter *rate.Limiter

	mu     sync.Mutex
	prompt PromptFunc

	slot chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(c *Coordinator) { c.meter = m }
}

// WithAdTimeout bounds how long a single ad view may block a pending
// gate. Zero disables the bound.
func WithAdTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.adTimeout = d }
}

// WithLoadLimit caps how often EnsureAdLoaded may hit the ad SDK.
// Nil removes the throttle.
func WithLoadLimit(l *rate.Limiter) Option {
	return func(c *Coordinator) { c.loadLimiter = l }
}

// NewCoordinator creates a Coordinator over the given ledger and ad
// provider. A NoopMeter, a 2 minute ad timeout and a 30 second ad-load
// throttle are used unless overridden via options.
func NewCoordinator(ledger *Ledger, ads AdProvider, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:      ledger,
		ads:         ads,
		adTimeout:   defaultAdTimeout,
		loadLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		slot:        make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.meter == nil {
		c.meter = &noopMeter{}
	}

	return c
}

// RegisterPrompt mounts the UI layer's gate presenter. Passing nil
// unmounts it; over-quota checks arriving while no prompt is mounted
// are denied rather than left waiting.
func (c *Coordinator) RegisterPrompt(fn PromptFunc) {
	c.mu.Lock()
	c.prompt = fn
	c.mu.Unlock()
}

func (c *Coordinator) currentPrompt() PromptFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// CanProceed decides whether a gated action may run. It resolves only
// at a terminal state: Pro and under-quota callers are admitted
// immediately, an earned reward admits, a cancel or an unmounted
// prompt rejects, and context cancellation rejects. A failed or
// unrewarded ad view keeps the gate open so the user can retry.
//
// CanProceed never consumes quota; callers invoke ConsumeUse after
// their gated operation actually succeeded.
func (c *Coordinator) CanProceed(ctx context.Context, feature FeatureKey, pro bool) bool {
	start := time.Now()

	if pro {
		c.meter.OnGate(GateEvent{
			Feature: feature, Pro: true,
			Decision: DecisionAdmitted, Reason: ReasonPro,
			Duration: time.Since(start),
		})
		return true
	}

	if c.ledger.CanUse(ctx, feature, false) {
		c.meter.OnGate(GateEvent{
			Feature:  feature,
			Decision: DecisionAdmitted, Reason: ReasonUnderQuota,
			Duration: time.Since(start),
		})
		return true
	}

	prompt := c.currentPrompt()
	if prompt == nil {
		// Fail closed: deny rather than wait on UI that is not mounted.
		c.meter.OnGate(GateEvent{
			Feature:  feature,
			Decision: DecisionRejected, Reason: ReasonNoPrompt,
			Duration: time.Since(start),
			Err:      ErrNoPrompt,
		})
		return false
	}

	// One open gate at a time; later checks queue here until the
	// earlier request resolves or their context is cancelled.
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		c.meter.OnGate(GateEvent{
			Feature:  feature,
			Decision: DecisionRejected, Reason: ReasonCtxDone,
			Duration: time.Since(start),
			Err:      ctx.Err(),
		})
		return false
	}
	defer func() { <-c.slot }()

	req := &GateRequest{
		ID:        uuid.New().String(),
		Feature:   feature,
		ads:       c.ads,
		adTimeout: c.adTimeout,
		result:    make(chan gateResult, 1),
	}

	prompt(req)

	select {
	case res := <-req.result:
		decision := DecisionRejected
		if res.admitted {
			decision = DecisionAdmitted
		}
		c.meter.OnGate(GateEvent{
			Feature:    feature,
			Decision:   decision,
			Reason:     res.reason,
			AdAttempts: res.attempts,
			Duration:   time.Since(start),
			Err:        res.err,
		})
		return res.admitted
	case <-ctx.Done():
		req.expire()
		c.meter.OnGate(GateEvent{
			Feature:    feature,
			Decision:   DecisionRejected,
			Reason:     ReasonCtxDone,
			AdAttempts: req.adAttempts(),
			Duration:   time.Since(start),
			Err:        &GateError{Err: ctx.Err(), Feature: feature, Request: req.ID},
		})
		return false
	}
}

// ConsumeUse records one successful use of feature. Callers invoke it
// after the gated operation completed, never speculatively; the
// coordinator adds no policy of its own here.
func (c *Coordinator) ConsumeUse(ctx context.Context, feature FeatureKey, pro bool) {
	c.ledger.Consume(ctx, feature, pro)
	if pro {
		return
	}
	c.meter.OnUsage(UsageEvent{
		Feature:   feature,
		Limit:     c.ledger.DailyLimit(feature),
		Remaining: c.ledger.Remaining(ctx, feature, false),
	})
}

// AdReady reports whether a rewarded ad is loaded. Advisory only, for
// UI affordances; the admission check always relies on the live show
// attempt, never on this flag.
func (c *Coordinator) AdReady() bool {
	return c.ads.IsReady()
}

// EnsureAdLoaded asks the provider to fetch an ad when none is ready.
// Best effort and throttled, so prompt churn cannot hammer the SDK.
func (c *Coordinator) EnsureAdLoaded(ctx context.Context) {
	if c.ads.IsReady() {
		return
	}
	if c.loadLimiter != nil && !c.loadLimiter.Allow() {
		return
	}
	_ = c.ads.Load(ctx)
}

// GateRequest is one pending over-quota admission, handed to the
// prompt layer. It resolves at most once; WatchAd and Cancel after
// resolution are no-ops. Never persisted.
type GateRequest struct {
	ID      string
	Feature FeatureKey

	ads       AdProvider
	adTimeout time.Duration

	mu       sync.Mutex
	resolved bool
	attempts int
	lastErr  error

	result chan gateResult
}

type gateResult struct {
	admitted bool
	reason   Reason
	attempts int
	err      error
}

// WatchAd plays a rewarded ad and, if the reward is earned, admits the
// pending request. Returns whether the reward was earned; on false the
// gate stays open so the prompt can offer a retry. Ad errors and
// timeouts are treated as "reward not earned", never propagated.
func (g *GateRequest) WatchAd(ctx context.Context) bool {
	g.mu.Lock()
	if g.resolved {
		g.mu.Unlock()
		return false
	}
	g.attempts++
	g.mu.Unlock()

	adCtx := ctx
	if g.adTimeout > 0 {
		var cancel context.CancelFunc
		adCtx, cancel = context.WithTimeout(ctx, g.adTimeout)
		defer cancel()
	}

	earned, err := g.ads.Show(adCtx)
	if err != nil {
		if adCtx.Err() != nil && ctx.Err() == nil {
			err = ErrAdTimeout
		}
		g.noteError(&GateError{Err: err, Feature: g.Feature, Request: g.ID})
		return false
	}
	if !earned {
		return false
	}

	g.resolve(true, ReasonRewardEarned)
	return true
}

// Cancel rejects the pending request. Safe to call more than once.
func (g *GateRequest) Cancel() {
	g.resolve(false, ReasonCancelled)
}

func (g *GateRequest) resolve(admitted bool, reason Reason) {
	g.mu.Lock()
	if g.resolved {
		g.mu.Unlock()
		return
	}
	g.resolved = true
	res := gateResult{
		admitted: admitted,
		reason:   reason,
		attempts: g.attempts,
		err:      g.lastErr,
	}
	g.mu.Unlock()

	g.result <- res
}

// expire marks the request resolved without sending a result, so late
// prompt callbacks become no-ops once the coordinator stops listening.
func (g *GateRequest) expire() {
	g.mu.Lock()
	g.resolved = true
	g.mu.Unlock()
}

func (g *GateRequest) noteError(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

func (g *GateRequest) adAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// noopMeter is an inline meter to avoid import cycles with meter/.
type noopMeter struct{}

func (m *noopMeter) OnGate(GateEvent)   {}
func (m *noopMeter) OnUsage(UsageEvent) {}
