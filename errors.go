package featuregate

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNotFound  = errors.New("featuregate: key not found")
	ErrNoPrompt  = errors.New("featuregate: no gate prompt registered")
	ErrAdTimeout = errors.New("featuregate: ad view timed out")
)

// GateError carries the feature context of a failed gate interaction.
// It is reported through the Meter, never returned to admission callers,
// who only ever see a boolean decision.
type GateError struct {
	Err     error
	Feature FeatureKey
	Request string // GateRequest ID
}

func (e *GateError) Error() string {
	return fmt.Sprintf("featuregate: feature=%s request=%s: %v", e.Feature, e.Request, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means an absent storage key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
