package meter

import (
	"log/slog"

	"github.com/pdfsmarttools/featuregate"
)

// LogMeter logs gating events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ featuregate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnGate(e featuregate.GateEvent) {
	if e.Decision == featuregate.DecisionAdmitted {
		m.Logger.Info("gate",
			"feature", string(e.Feature),
			"pro", e.Pro,
			"decision", string(e.Decision),
			"reason", string(e.Reason),
			"ad_attempts", e.AdAttempts,
			"duration_ms", e.Duration.Milliseconds(),
		)
		return
	}

	if e.Err != nil {
		m.Logger.Warn("gate_rejected",
			"feature", string(e.Feature),
			"reason", string(e.Reason),
			"ad_attempts", e.AdAttempts,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return
	}

	m.Logger.Info("gate_rejected",
		"feature", string(e.Feature),
		"reason", string(e.Reason),
		"ad_attempts", e.AdAttempts,
		"duration_ms", e.Duration.Milliseconds(),
	)
}

func (m *LogMeter) OnUsage(e featuregate.UsageEvent) {
	m.Logger.Info("usage",
		"feature", string(e.Feature),
		"limit", e.Limit,
		"remaining", e.Remaining,
	)
}
