package moderation

import (
	"log"
	"time"

	"resonate/backend/internal/apperr"
	"resonate/backend/internal/config"
	"resonate/backend/internal/models"
)

// Store is the slice of the storage layer moderation needs.
type Store interface {
	GetUserByID(userID string) (*models.User, error)
	FindConversation(id string) (*models.Conversation, error)
	SaveReport(report *models.Report) error
	GetReportByID(id uint) (*models.Report, error)
	UpdateReport(report *models.Report) error
	CountRecentReports(userID string, since time.Time) (int64, error)
	UpdateUserReputation(userID string, delta int) error
	BanUser(userID string, duration time.Duration) error
	UnbanUser(userID string) error
}

// Notifier pushes a filed report to the moderation channel.
type Notifier interface {
	NotifyReport(report *models.Report, reported *models.User) error
}

// Service files reports, applies reputation penalties, and bans users who
// cross either the reputation floor or the report-frequency threshold.
type Service struct {
	store    Store
	notifier Notifier

	// OnBan, when set, is called after a ban lands so the caller can cut
	// the banned user's live connection.
	OnBan func(userID string)
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// ReportInput is a report as filed by a user.
type ReportInput struct {
	ReporterID     string `json:"-"`
	ReportedUserID string `json:"reportedUserId" binding:"required"`
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason" binding:"required"`
	Severity       string `json:"severity" binding:"required"`
}

// HandleReport validates and persists a report, applies the severity's
// reputation penalty, and bans the reported user if the penalty drags them
// under the reputation floor or this is one report too many inside the
// frequency window.
func (s *Service) HandleReport(in *ReportInput) (*models.Report, error) {
	if in.ReporterID == in.ReportedUserID {
		return nil, apperr.ErrInvalid.WithMessage("cannot report yourself")
	}
	penalty, known := config.ReportWeights[in.Severity]
	if !known {
		return nil, apperr.ErrInvalid.WithMessage("unknown severity: " + in.Severity)
	}

	reported, err := s.store.GetUserByID(in.ReportedUserID)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to load reported user").Wrap(err)
	}
	if reported == nil {
		return nil, apperr.ErrNotFound.WithMessage("reported user not found")
	}

	if in.ConversationID != "" {
		conv, err := s.store.FindConversation(in.ConversationID)
		if err != nil {
			return nil, apperr.ErrUpstream.WithMessage("failed to load conversation").Wrap(err)
		}
		if conv == nil {
			return nil, apperr.ErrNotFound.WithMessage("conversation not found")
		}
		if !conv.HasParticipant(in.ReporterID) || !conv.HasParticipant(in.ReportedUserID) {
			return nil, apperr.ErrForbidden.WithMessage("report must come from a shared conversation")
		}
	}

	report := &models.Report{
		ReporterID:     in.ReporterID,
		ReportedUserID: in.ReportedUserID,
		ConversationID: in.ConversationID,
		Reason:         in.Reason,
		Severity:       in.Severity,
		Status:         models.ReportStatusNew,
	}
	if err := s.store.SaveReport(report); err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to save report").Wrap(err)
	}

	// Clamp so the penalty never pushes the score below the floor.
	if reported.ReputationScore-penalty < config.MinReputation {
		penalty = reported.ReputationScore - config.MinReputation
	}
	if penalty > 0 {
		if err := s.store.UpdateUserReputation(in.ReportedUserID, -penalty); err != nil {
			log.Printf("ERROR: Failed to apply reputation penalty to user %s: %v", in.ReportedUserID, err)
		}
	}

	if s.shouldBan(reported, penalty) {
		if err := s.store.BanUser(in.ReportedUserID, config.DefaultBanDuration); err != nil {
			log.Printf("ERROR: Failed to ban user %s: %v", in.ReportedUserID, err)
		} else {
			log.Printf("User %s banned for %s", in.ReportedUserID, config.DefaultBanDuration)
			if s.OnBan != nil {
				s.OnBan(in.ReportedUserID)
			}
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyReport(report, reported); err != nil {
			log.Printf("WARNING: Failed to notify moderators about report %d: %v", report.ID, err)
		}
	}
	return report, nil
}

func (s *Service) shouldBan(reported *models.User, penalty int) bool {
	if reported.ReputationScore-penalty < config.BanThresholdReputation {
		return true
	}
	count, err := s.store.CountRecentReports(reported.ID, time.Now().Add(-config.BanFrequencyWindow))
	if err != nil {
		log.Printf("ERROR: Failed to count recent reports for user %s: %v", reported.ID, err)
		return false
	}
	return count >= config.BanThresholdFrequency
}

// ResolveReport closes a report. A confirmed report rewards the reporter;
// a dismissed one refunds the reported user's penalty.
func (s *Service) ResolveReport(reportID uint, confirmed bool) (*models.Report, error) {
	report, err := s.store.GetReportByID(reportID)
	if err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to load report").Wrap(err)
	}
	if report == nil {
		return nil, apperr.ErrNotFound.WithMessage("report not found")
	}
	if report.Status != models.ReportStatusNew {
		return nil, apperr.ErrInvalid.WithMessage("report already handled")
	}

	if confirmed {
		report.Status = models.ReportStatusResolved
		if err := s.store.UpdateUserReputation(report.ReporterID, config.ConfirmedReportBonus); err != nil {
			log.Printf("ERROR: Failed to reward reporter %s: %v", report.ReporterID, err)
		}
	} else {
		report.Status = models.ReportStatusDismissed
		if refund := config.ReportWeights[report.Severity]; refund > 0 {
			if err := s.store.UpdateUserReputation(report.ReportedUserID, refund); err != nil {
				log.Printf("ERROR: Failed to refund reputation to user %s: %v", report.ReportedUserID, err)
			}
		}
	}

	if err := s.store.UpdateReport(report); err != nil {
		return nil, apperr.ErrUpstream.WithMessage("failed to update report").Wrap(err)
	}
	return report, nil
}

// Unban lifts a ban ahead of its expiry.
func (s *Service) Unban(userID string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return apperr.ErrUpstream.WithMessage("failed to load user").Wrap(err)
	}
	if user == nil {
		return apperr.ErrNotFound.WithMessage("user not found")
	}
	if err := s.store.UnbanUser(userID); err != nil {
		return apperr.ErrUpstream.WithMessage("failed to unban user").Wrap(err)
	}
	return nil
}
