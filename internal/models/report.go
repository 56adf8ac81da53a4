package models

import "gorm.io/gorm"

// Report statuses.
const (
	ReportStatusNew       = "new"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// Report is a user complaint about another user, filed from a conversation.
type Report struct {
	gorm.Model

	ReporterID     string `gorm:"index;not null"`
	ReportedUserID string `gorm:"index;not null"`
	ConversationID string `gorm:"index"`
	Reason         string `gorm:"type:text"`
	// Severity is one of the config.ReportWeights keys: "Low", "Medium",
	// "Critical". Unknown severities carry no reputation penalty.
	Severity string
	Status   string
}
