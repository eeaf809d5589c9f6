package featuregate

import "time"

// Meter observes gating and usage events for monitoring/logging.
type Meter interface {
	// OnGate is called when an admission check reaches a terminal state.
	OnGate(event GateEvent)

	// OnUsage is called when a use is consumed against the ledger.
	OnUsage(event UsageEvent)
}

// Decision is the terminal outcome of an admission check.
type Decision string

const (
	DecisionAdmitted Decision = "admitted"
	DecisionRejected Decision = "rejected"
)

// Reason explains how a decision was reached.
type Reason string

const (
	ReasonPro          Reason = "pro"
	ReasonUnderQuota   Reason = "under_quota"
	ReasonRewardEarned Reason = "reward_earned"
	ReasonCancelled    Reason = "cancelled"
	ReasonNoPrompt     Reason = "no_prompt"
	ReasonCtxDone      Reason = "context_done"
)

// GateEvent describes a resolved admission check.
type GateEvent struct {
	Feature    FeatureKey
	Pro        bool
	Decision   Decision
	Reason     Reason
	AdAttempts int
	Duration   time.Duration
	Err        error
}

// UsageEvent describes one consumed use.
type UsageEvent struct {
	Feature   FeatureKey
	Limit     int
	Remaining int
}
