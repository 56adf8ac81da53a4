package storage

import (
	"errors"
	"log"
	"time"

	"resonate/backend/internal/models"

	"gorm.io/gorm"
)

// Moderation methods: reports, reputation, bans.

func (s *Service) SaveReport(report *models.Report) error {
	if report.Status == "" {
		report.Status = models.ReportStatusNew
	}
	if err := s.DB.Create(report).Error; err != nil {
		log.Printf("ERROR: Failed to save report against user %s: %v", report.ReportedUserID, err)
		return err
	}
	return nil
}

func (s *Service) GetReportByID(id uint) (*models.Report, error) {
	var report models.Report
	err := s.DB.First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) UpdateReport(report *models.Report) error {
	return s.DB.Save(report).Error
}

// CountRecentReports counts reports filed against the user since the given
// time, for the frequency-based ban threshold.
func (s *Service) CountRecentReports(userID string, since time.Time) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Report{}).
		Where("reported_user_id = ? AND created_at > ?", userID, since).
		Count(&count).Error
	return count, err
}

// UpdateUserReputation applies delta to the user's reputation, clamped at
// the configured floor by the caller's policy (the column itself is not
// clamped here).
func (s *Service) UpdateUserReputation(userID string, delta int) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("reputation_score", gorm.Expr("reputation_score + ?", delta)).Error
}

// BanUser sets the durable ban flag and a Redis ban key whose TTL carries
// the ban duration. A zero duration means an indefinite ban.
func (s *Service) BanUser(userID string, duration time.Duration) error {
	expiresAt := int64(0)
	if duration > 0 {
		expiresAt = time.Now().Add(duration).Unix()
	}
	err := s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_banned":      true,
			"ban_expires_at": expiresAt,
		}).Error
	if err != nil {
		return err
	}

	if err := s.Redis.Set(s.Ctx, "ban:"+userID, "active", duration).Err(); err != nil {
		log.Printf("WARNING: Failed to set ban key for user %s: %v", userID, err)
	}
	return nil
}

func (s *Service) UnbanUser(userID string) error {
	err := s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_banned":      false,
			"ban_expires_at": 0,
		}).Error
	if err != nil {
		return err
	}

	if err := s.Redis.Del(s.Ctx, "ban:"+userID).Err(); err != nil {
		log.Printf("WARNING: Failed to delete ban key for user %s: %v", userID, err)
	}
	return nil
}
