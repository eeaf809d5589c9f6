package featuregate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Unlimited is the remaining count reported for Pro users.
const Unlimited = math.MaxInt

// DefaultLimits is the stock free-tier daily allowance per feature.
var DefaultLimits = map[FeatureKey]int{
	FeatureImageToPDF:  3,
	FeaturePDFCompress: 2,
	FeaturePDFMerge:    2,
	FeatureOCRExtract:  1,
	FeaturePDFSign:     1,
	FeaturePDFSplit:    2,
	FeaturePDFToWord:   1,
	FeaturePDFToImage:  2,
	FeatureWordToPDF:   2,
	FeatureProtectPDF:  1,
	FeatureUnlockPDF:   1,
}

// Ledger tracks per-feature daily usage, persisted as a single blob
// that rolls over on the local calendar day.
//
// Durability is best effort: a failed read degrades to a fresh record
// and a failed write is logged and dropped. Losing a count hands the
// user at most one extra free use, never fewer.
type Ledger struct {
	store  Store
	limits map[FeatureKey]int
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLimits replaces the default daily limits table.
func WithLimits(limits map[FeatureKey]int) LedgerOption {
	return func(l *Ledger) { l.limits = limits }
}

// WithLogger sets the logger for swallowed storage failures.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock sets the time source. Tests use this to pin the day.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithStorageKey overrides the storage key the record persists under.
func WithStorageKey(key string) LedgerOption {
	return func(l *Ledger) { l.key = key }
}

// NewLedger creates a Ledger backed by the given store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		limits: DefaultLimits,
		key:    UsageKey,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() string {
	return l.now().Format(DateLayout)
}

// load returns today's record. A missing, stale, unreadable or corrupt
// record degrades to a fresh one; the stale record is not deleted, only
// superseded on the next write.
func (l *Ledger) load(ctx context.Context) UsageRecord {
	fresh := UsageRecord{Date: l.today(), Counts: make(map[FeatureKey]int)}

	data, err := l.store.Get(ctx, l.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger.Warn("usage read failed, starting fresh", "key", l.key, "error", err)
		}
		return fresh
	}

	var rec UsageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn("usage record corrupt, starting fresh", "key", l.key, "error", err)
		return fresh
	}

	if rec.Date != fresh.Date {
		return fresh
	}
	if rec.Counts == nil {
		rec.Counts = make(map[FeatureKey]int)
	}
	return rec
}

// DailyLimit returns the free-tier daily allowance for a feature.
// Unknown keys have no allowance.
func (l *Ledger) DailyLimit(feature FeatureKey) int {
	return l.limits[feature]
}

// CanUse reports whether one more free use of feature is allowed today.
// Pro users are always allowed and never touch storage.
func (l *Ledger) CanUse(ctx context.Context, feature FeatureKey, pro bool) bool {
	if pro {
		return true
	}
	rec := l.load(ctx)
	return rec.Counts[feature] < l.DailyLimit(feature)
}

// Consume records exactly one use of feature. No-op for Pro users.
// The count is not clamped at the limit; consuming past it means the
// admission check was bypassed or raced, and the ledger just records it.
func (l *Ledger) Consume(ctx context.Context, feature FeatureKey, pro bool) {
	if pro {
		return
	}

	rec := l.load(ctx)
	rec.Counts[feature]++

	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn("usage record encode failed", "key", l.key, "error", err)
		return
	}
	if err := l.store.Set(ctx, l.key, data); err != nil {
		l.logger.Warn("usage write failed, count dropped", "key", l.key, "feature", string(feature), "error", err)
	}
}

// Remaining returns how many free uses of feature are left today,
// never negative. Pro users get Unlimited.
func (l *Ledger) Remaining(ctx context.Context, feature FeatureKey, pro bool) int {
	if pro {
		return Unlimited
	}
	rec := l.load(ctx)
	left := l.DailyLimit(feature) - rec.Counts[feature]
	if left < 0 {
		return 0
	}
	return left
}

// Reset deletes the persisted record outright. Support/testing flow.
func (l *Ledger) Reset(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
