package storage

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"resonate/backend/internal/models"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the narrow interface the realtime hub and the HTTP handlers
// depend on. It covers four collaborators: the chat store, the social graph,
// the user store, and moderation. The hub never reaches past it.
type Storage interface {
	// Chat store
	FindConversation(id string) (*models.Conversation, error)
	FindActiveConversationsForUser(userID string) ([]models.Conversation, error)
	CreateConversation(participantIDs []string, matchID string) (*models.Conversation, bool, error)
	CreateMessage(msg *models.Message) error
	SetDelivered(messageID string) error
	SetRead(messageID string) error
	FindMessageByID(messageID string) (*models.Message, error)
	FindMessages(conversationID string, page, limit int) ([]models.Message, error)

	// Social graph
	CanChat(userA, userB string) (bool, error)

	// User store
	GetUserByID(userID string) (*models.User, error)
	SetOnline(userID string, online bool) error
	SetLastSeen(userID string, t time.Time) error
	OnlineUsers() ([]string, error)
	IsUserBanned(userID string) (bool, error)

	// Moderation
	SaveReport(report *models.Report) error
	GetReportByID(id uint) (*models.Report, error)
	UpdateReport(report *models.Report) error
	CountRecentReports(userID string, since time.Time) (int64, error)
	UpdateUserReputation(userID string, delta int) error
	BanUser(userID string, duration time.Duration) error
	UnbanUser(userID string) error
}

// Service implements Storage over PostgreSQL (durable data) and Redis
// (ban keys and the online-user mirror).
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

const onlineUsersKey = "online_users"

// --- Chat store ---

// FindConversation returns the conversation regardless of its active flag,
// so callers can tell an absent conversation (nil, nil) from a soft-deleted
// one. The IsActive check is the caller's policy.
func (s *Service) FindConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to load conversation %s: %v", id, err)
		return nil, err
	}
	return &conv, nil
}

// FindActiveConversationsForUser returns every active conversation the user
// participates in, most recently active first.
func (s *Service) FindActiveConversationsForUser(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.DB.
		Where("is_active = ? AND participants @> ?", true, pq.Array([]string{userID})).
		Order("last_activity desc").
		Find(&convs).Error
	if err != nil {
		log.Printf("ERROR: Failed to load conversations for user %s: %v", userID, err)
		return nil, err
	}
	return convs, nil
}

// CreateConversation returns the active conversation for exactly this
// participant set, creating it if none exists. The second return value is
// true when a new conversation was created.
func (s *Service) CreateConversation(participantIDs []string, matchID string) (*models.Conversation, bool, error) {
	ids := append([]string(nil), participantIDs...)
	sort.Strings(ids)

	var existing models.Conversation
	err := s.DB.
		Where("is_active = ? AND participants @> ? AND participants <@ ?",
			true, pq.Array(ids), pq.Array(ids)).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ERROR: Failed to look up conversation for %v: %v", ids, err)
		return nil, false, err
	}

	conv := models.Conversation{
		MatchID:      matchID,
		Participants: ids,
		IsActive:     true,
		LastActivity: time.Now(),
	}
	if err := s.DB.Create(&conv).Error; err != nil {
		log.Printf("ERROR: Failed to create conversation for %v: %v", ids, err)
		return nil, false, err
	}
	return &conv, true, nil
}

// CreateMessage persists the message and bumps the conversation's
// LastActivity. The message ID and SentAt are assigned by the create hook.
func (s *Service) CreateMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for conversation %s: %v", msg.ConversationID, err)
		return err
	}

	if err := s.DB.Model(&models.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("last_activity", msg.SentAt).Error; err != nil {
		// The message itself is committed; a stale LastActivity only
		// affects conversation list ordering.
		log.Printf("WARNING: Failed to bump last_activity for conversation %s: %v", msg.ConversationID, err)
	}
	return nil
}

// SetDelivered marks the message delivered. The guard keeps the transition
// monotonic: an already-delivered message is left untouched, so repeated
// calls cannot move DeliveredAt.
func (s *Service) SetDelivered(messageID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ? AND is_delivered = ?", messageID, false).
		Updates(map[string]interface{}{
			"is_delivered": true,
			"delivered_at": gorm.Expr("NOW()"),
		}).Error
}

// SetRead marks the message read. Read implies delivered: DeliveredAt is
// backfilled for a message that skipped the delivered transition (recipient
// was offline at send time).
func (s *Service) SetRead(messageID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ? AND is_read = ?", messageID, false).
		Updates(map[string]interface{}{
			"is_read":      true,
			"read_at":      gorm.Expr("NOW()"),
			"is_delivered": true,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, NOW())"),
		}).Error
}

// FindMessageByID returns (nil, nil) when the message does not exist.
func (s *Service) FindMessageByID(messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindMessages pages through a conversation's history. The query walks
// backwards from the newest message; the page is re-sorted ascending so the
// client can render it top to bottom.
func (s *Service) FindMessages(conversationID string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	var msgs []models.Message
	err := s.DB.
		Where("conversation_id = ?", conversationID).
		Order("sent_at desc").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&msgs).Error
	if err != nil {
		log.Printf("ERROR: Failed to load messages for conversation %s: %v", conversationID, err)
		return nil, err
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	return msgs, nil
}

// --- Social graph ---

// CanChat reports whether two users may exchange messages: they are mutual
// friends, or an accepted match exists between them in either direction.
func (s *Service) CanChat(userA, userB string) (bool, error) {
	var mutual int64
	err := s.DB.Model(&models.User{}).
		Where("(id = ? AND friends @> ?) OR (id = ? AND friends @> ?)",
			userA, pq.Array([]string{userB}),
			userB, pq.Array([]string{userA})).
		Count(&mutual).Error
	if err != nil {
		return false, err
	}
	if mutual == 2 {
		return true, nil
	}

	var matches int64
	err = s.DB.Model(&models.Match{}).
		Where("status = ?", models.MatchStatusAccepted).
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)",
			userA, userB, userB, userA).
		Count(&matches).Error
	if err != nil {
		return false, err
	}
	return matches > 0, nil
}

// --- User store ---

func (s *Service) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetOnline flips the durable online flag, touches LastSeen, and mirrors the
// change into the Redis online set consumed by the REST surface.
func (s *Service) SetOnline(userID string, online bool) error {
	err := s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_seen": gorm.Expr("NOW()"),
		}).Error
	if err != nil {
		return err
	}

	if online {
		err = s.Redis.SAdd(s.Ctx, onlineUsersKey, userID).Err()
	} else {
		err = s.Redis.SRem(s.Ctx, onlineUsersKey, userID).Err()
	}
	if err != nil {
		// The registry remains the source of truth for live presence.
		log.Printf("WARNING: Failed to update online set for user %s: %v", userID, err)
	}
	return nil
}

func (s *Service) SetLastSeen(userID string, t time.Time) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen", t).Error
}

// OnlineUsers returns the Redis mirror of currently-online user IDs.
func (s *Service) OnlineUsers() ([]string, error) {
	return s.Redis.SMembers(s.Ctx, onlineUsersKey).Result()
}

// Ping verifies both backing stores are reachable. Used by the health
// endpoint; not part of the Storage interface.
func (s *Service) Ping() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		return err
	}
	return s.Redis.Ping(s.Ctx).Err()
}

// IsUserBanned checks the Redis ban key first (fast path, carries the ban
// TTL), then falls back to the durable flag.
func (s *Service) IsUserBanned(userID string) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, "ban:"+userID).Result()
	if err == nil {
		return status != "", nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, err
	}

	var banned bool
	err = s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Pluck("is_banned", &banned).Error
	if err != nil {
		return false, err
	}
	return banned, nil
}
