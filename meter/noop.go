package meter

import "github.com/pdfsmarttools/featuregate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ featuregate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnGate(featuregate.GateEvent)   {}
func (m *NoopMeter) OnUsage(featuregate.UsageEvent) {}
