package services

import (
	"time"

	"attendify-backend/internal/config"
)

// Settings are the tunable knobs of the verification pipeline.
type Settings struct {
	DefaultDurationMinutes int
	MaxSemanticCalls       int
	RetryLimit             int
	ConfidenceThreshold    float64
	// StalePendingAfter is how long a submission may sit in Pending before an
	// instructor can settle it by hand.
	StalePendingAfter time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultDurationMinutes: 10,
		MaxSemanticCalls:       80,
		RetryLimit:             3,
		ConfidenceThreshold:    0.8,
		StalePendingAfter:      2 * time.Minute,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DefaultDurationMinutes: cfg.DefaultSessionMinutes,
		MaxSemanticCalls:       cfg.SessionCallCap,
		RetryLimit:             cfg.RetryLimit,
		ConfidenceThreshold:    cfg.ConfidenceMin,
		StalePendingAfter:      cfg.VerifyTimeout + time.Minute,
	}
}
