package config

import "time"

const (
	// Typing indicators
	TypingExpiry        = 5 * time.Second
	TypingSweepInterval = 2 * time.Second

	// Message history
	DefaultPageSize = 50
	MaxPageSize     = 100

	// Reputation
	InitialReputation      = 1000
	MinReputation          = 0
	ConfirmedReportBonus   = 50
	BanThresholdReputation = 500

	// Ban
	BanThresholdFrequency = 5
	BanFrequencyWindow    = 24 * time.Hour
	DefaultBanDuration    = 24 * time.Hour
)

// ReportWeights maps a report severity to the reputation penalty it carries.
var ReportWeights = map[string]int{
	"Low":      5,
	"Medium":   50,
	"Critical": 250,
}
