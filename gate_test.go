package featuregate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fg "github.com/pdfsmarttools/featuregate"
	"github.com/pdfsmarttools/featuregate/ad/mock"
	"github.com/pdfsmarttools/featuregate/meter"
	"github.com/pdfsmarttools/featuregate/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestCoordinator(t *testing.T, ads fg.AdProvider, opts ...fg.Option) (*fg.Coordinator, *fg.Ledger) {
	t.Helper()
	ledger := fg.NewLedger(store.NewMemoryStore())
	opts = append([]fg.Option{fg.WithMeter(&meter.NoopMeter{})}, opts...)
	return fg.NewCoordinator(ledger, ads, opts...), ledger
}

func exhaust(t *testing.T, ledger *fg.Ledger, feature fg.FeatureKey) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < ledger.DailyLimit(feature); i++ {
		ledger.Consume(ctx, feature, false)
	}
	require.False(t, ledger.CanUse(ctx, feature, false))
}

// Test 1: Pro is admitted without a prompt or an ad
func TestProAdmitted_NoPromptNeeded(t *testing.T) {
	ads := mock.New()
	coord, _ := newTestCoordinator(t, ads)

	assert.True(t, coord.CanProceed(context.Background(), fg.FeatureOCRExtract, true))
	assert.Zero(t, ads.ShowCount())
}

// Test 2: Under quota is admitted without a prompt or an ad
func TestUnderQuota_AdmittedFast(t *testing.T) {
	ads := mock.New()
	coord, _ := newTestCoordinator(t, ads)

	assert.True(t, coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false))
	assert.Zero(t, ads.ShowCount())
}

// Test 3: Over quota with no prompt mounted denies, never hangs
func TestNoPrompt_OverQuota_Denied(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	done := make(chan bool, 1)
	go func() {
		done <- coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false)
	}()

	select {
	case admitted := <-done:
		assert.False(t, admitted)
	case <-time.After(2 * time.Second):
		t.Fatal("CanProceed hung with no prompt registered")
	}
}

// Test 4: Cancel rejects the pending request
func TestCancel_Rejects(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeaturePDFMerge)

	coord.RegisterPrompt(func(req *fg.GateRequest) {
		go req.Cancel()
	})

	assert.False(t, coord.CanProceed(context.Background(), fg.FeaturePDFMerge, false))
	assert.Zero(t, ads.ShowCount())
}

// Test 5: An earned reward admits the pending request
func TestRewardEarned_Admits(t *testing.T) {
	ads := mock.New(mock.WithReward(true))
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeaturePDFCompress)

	coord.RegisterPrompt(func(req *fg.GateRequest) {
		go func() {
			assert.True(t, req.WatchAd(context.Background()))
		}()
	})

	assert.True(t, coord.CanProceed(context.Background(), fg.FeaturePDFCompress, false))
	assert.Equal(t, int64(1), ads.ShowCount())
}

// Test 6: An unrewarded view keeps the gate open for a retry
func TestAdNotEarned_GateStaysOpenForRetry(t *testing.T) {
	ads := mock.New(mock.WithShowFunc(func(_ context.Context, showNum int64) (bool, error) {
		return showNum > 1, nil // first view unrewarded, second rewarded
	}))
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	coord.RegisterPrompt(func(req *fg.GateRequest) {
		go func() {
			assert.False(t, req.WatchAd(context.Background()))
			// Modal stays open; the user tries again.
			assert.True(t, req.WatchAd(context.Background()))
		}()
	})

	assert.True(t, coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false))
	assert.Equal(t, int64(2), ads.ShowCount())
}

// Test 7: Ad errors are treated as "reward not earned", never a crash
func TestAdError_TreatedAsNotEarned(t *testing.T) {
	ads := mock.New(mock.WithShowError(errors.New("no fill")))
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	coord.RegisterPrompt(func(req *fg.GateRequest) {
		go func() {
			assert.False(t, req.WatchAd(context.Background()))
			req.Cancel()
		}()
	})

	assert.False(t, coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false))
}

// Test 8: A hanging ad view times out and the gate stays open
func TestAdTimeout_WatchAdReturnsFalse(t *testing.T) {
	ads := mock.New(mock.WithShowFunc(func(ctx context.Context, _ int64) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}))
	coord, ledger := newTestCoordinator(t, ads, fg.WithAdTimeout(30*time.Millisecond))
	exhaust(t, ledger, fg.FeatureImageToPDF)

	coord.RegisterPrompt(func(req *fg.GateRequest) {
		go func() {
			assert.False(t, req.WatchAd(context.Background()))
			req.Cancel()
		}()
	})

	assert.False(t, coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false))
}

// Test 9: Context cancellation resolves the admission as denied
func TestContextCancel_Denies(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	// A prompt that never resolves, like a modal the user ignores.
	coord.RegisterPrompt(func(*fg.GateRequest) {})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.False(t, coord.CanProceed(ctx, fg.FeatureImageToPDF, false))
}

// Test 10: Late callbacks on a resolved request are no-ops
func TestLateCallbacks_AreNoOps(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	var captured *fg.GateRequest
	var mu sync.Mutex
	coord.RegisterPrompt(func(req *fg.GateRequest) {
		mu.Lock()
		captured = req
		mu.Unlock()
		go req.Cancel()
	})

	assert.False(t, coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false))

	mu.Lock()
	req := captured
	mu.Unlock()
	require.NotNil(t, req)

	// Already resolved: neither call may block, panic, or show an ad.
	req.Cancel()
	assert.False(t, req.WatchAd(context.Background()))
	assert.Zero(t, ads.ShowCount())
}

// Test 11: Concurrent over-quota checks are serialized, none orphaned
func TestConcurrentGates_SerializedNotDropped(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	exhaust(t, ledger, fg.FeatureImageToPDF)

	var open, maxOpen, offers atomic.Int32
	coord.RegisterPrompt(func(req *fg.GateRequest) {
		offers.Add(1)
		n := open.Add(1)
		for {
			m := maxOpen.Load()
			if n <= m || maxOpen.CompareAndSwap(m, n) {
				break
			}
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			open.Add(-1)
			req.Cancel()
		}()
	})

	const callers = 4
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = coord.CanProceed(context.Background(), fg.FeatureImageToPDF, false)
		}(i)
	}
	wg.Wait()

	// Every caller got a terminal answer and every request was offered.
	assert.Equal(t, int32(callers), offers.Load())
	assert.Equal(t, int32(1), maxOpen.Load())
	for _, admitted := range results {
		assert.False(t, admitted)
	}
}

// Test 12: ConsumeUse passes through to the ledger
func TestConsumeUse_PassesThrough(t *testing.T) {
	ads := mock.New()
	coord, ledger := newTestCoordinator(t, ads)
	ctx := context.Background()

	require.True(t, coord.CanProceed(ctx, fg.FeaturePDFSign, false))
	coord.ConsumeUse(ctx, fg.FeaturePDFSign, false)

	assert.Equal(t, 0, ledger.Remaining(ctx, fg.FeaturePDFSign, false))
	assert.False(t, coord.CanProceed(ctx, fg.FeaturePDFSign, false)) // no prompt mounted

	// Pro consumption stays a no-op.
	coord.ConsumeUse(ctx, fg.FeaturePDFSign, true)
	assert.Equal(t, 0, ledger.Remaining(ctx, fg.FeaturePDFSign, false))
}

// Test 13: Ad readiness is advisory and load calls are throttled
func TestAdReady_AdvisoryAndThrottledLoad(t *testing.T) {
	ads := mock.New(mock.WithNotReady())
	coord, _ := newTestCoordinator(t, ads,
		fg.WithLoadLimit(rate.NewLimiter(rate.Every(time.Hour), 1)))
	ctx := context.Background()

	assert.False(t, coord.AdReady())

	// Readiness never gates admission for users under quota.
	assert.True(t, coord.CanProceed(ctx, fg.FeatureImageToPDF, false))

	coord.EnsureAdLoaded(ctx)
	assert.True(t, coord.AdReady())
	assert.Equal(t, int64(1), ads.LoadCount())

	// Ready: no further load. Not ready again: throttle blocks the retry.
	coord.EnsureAdLoaded(ctx)
	assert.Equal(t, int64(1), ads.LoadCount())
}

// Test 14: The meter observes every terminal state
func TestGate_MeterSeesTerminalStates(t *testing.T) {
	ads := mock.New()
	ledger := fg.NewLedger(store.NewMemoryStore())

	var events []fg.GateEvent
	var mu sync.Mutex
	rec := recordingMeter{onGate: func(e fg.GateEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}}

	coord := fg.NewCoordinator(ledger, ads, fg.WithMeter(&rec))
	ctx := context.Background()

	coord.CanProceed(ctx, fg.FeatureImageToPDF, true)
	coord.CanProceed(ctx, fg.FeatureImageToPDF, false)
	exhaust(t, ledger, fg.FeatureImageToPDF)
	coord.CanProceed(ctx, fg.FeatureImageToPDF, false) // no prompt → rejected

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, fg.ReasonPro, events[0].Reason)
	assert.Equal(t, fg.ReasonUnderQuota, events[1].Reason)
	assert.Equal(t, fg.ReasonNoPrompt, events[2].Reason)
	assert.Equal(t, fg.DecisionRejected, events[2].Decision)
	assert.ErrorIs(t, events[2].Err, fg.ErrNoPrompt)
}

type recordingMeter struct {
	onGate  func(fg.GateEvent)
	onUsage func(fg.UsageEvent)
}

func (m *recordingMeter) OnGate(e fg.GateEvent) {
	if m.onGate != nil {
		m.onGate(e)
	}
}

func (m *recordingMeter) OnUsage(e fg.UsageEvent) {
	if m.onUsage != nil {
		m.onUsage(e)
	}
}
