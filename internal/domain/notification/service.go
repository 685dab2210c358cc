// internal/domain/notification/service.go
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dispatcher fans notifications out to recipients
type Dispatcher interface {
	Dispatch(ctx context.Context, notice Notice) error
}

// Service stores notifications and publishes them on Redis
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	channel     string
	logger      logrus.FieldLogger
}

// NewService creates a new notification service. redisClient may be nil,
// in which case notifications are only stored.
func NewService(db *gorm.DB, redisClient *redis.Client, channel string, logger logrus.FieldLogger) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		channel:     channel,
		logger:      logger,
	}
}

// Dispatch stores the notification and publishes it to subscribers
func (s *Service) Dispatch(ctx context.Context, notice Notice) error {
	if notice.Recipient == "" {
		return fmt.Errorf("notification recipient is required")
	}

	n := &Notification{
		Recipient:     notice.Recipient,
		Type:          notice.Type,
		ReferenceType: notice.ReferenceType,
		ReferenceID:   notice.ReferenceID,
		Message:       notice.Message,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if s.redisClient == nil {
		return nil
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	// Subscribers that miss the publish still find the stored row
	if err := s.redisClient.Publish(ctx, s.ChannelFor(notice.Recipient), payload).Err(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"recipient": notice.Recipient,
			"type":      notice.Type,
		}).WithError(err).Warn("Failed to publish notification")
	}
	return nil
}

// ChannelFor returns the pub/sub channel of a recipient
func (s *Service) ChannelFor(recipient string) string {
	return fmt.Sprintf("%s:%s", s.channel, recipient)
}

// ListUnread returns unread notifications of a recipient, newest first
func (s *Service) ListUnread(ctx context.Context, recipient string) ([]Notification, error) {
	var notifications []Notification
	if err := s.db.WithContext(ctx).
		Where("recipient = ? AND is_read = ?", recipient, false).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve notifications: %w", err)
	}
	return notifications, nil
}
