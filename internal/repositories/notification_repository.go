package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/social/internal/models"
	"gorm.io/gorm"
)

// GroupedNotifications buckets a recipient's notifications by age.
type GroupedNotifications struct {
	Today     []models.Notification
	Yesterday []models.Notification
	ThisWeek  []models.Notification
	Older     []models.Notification
}

// NotificationRepository is the Notification Store: it persists in-app notification
// records independently of push delivery and serves the read API.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
	GetByRecipientID(ctx context.Context, recipientID uint, page, limit int) ([]models.Notification, int64, error)
	GetGrouped(ctx context.Context, recipientID uint, now time.Time) (*GroupedNotifications, error)
	GetUnreadCount(ctx context.Context, recipientID uint) (int64, error)
	MarkAsRead(ctx context.Context, recipientID, notificationID uint) error
	MarkAllAsRead(ctx context.Context, recipientID uint) error
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *postgresNotificationRepository) GetByRecipientID(ctx context.Context, recipientID uint, page, limit int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := db.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error

	return notifications, total, err
}

func (r *postgresNotificationRepository) GetGrouped(ctx context.Context, recipientID uint, now time.Time) (*GroupedNotifications, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	db := r.db.WithContext(ctx)
	g := &GroupedNotifications{}

	if err := db.Where("recipient_id = ? AND created_at >= ?", recipientID, todayStart).
		Order("created_at DESC").Find(&g.Today).Error; err != nil {
		return nil, err
	}

	if err := db.Where("recipient_id = ? AND created_at >= ? AND created_at < ?", recipientID, yesterdayStart, todayStart).
		Order("created_at DESC").Find(&g.Yesterday).Error; err != nil {
		return nil, err
	}

	// This week, excluding today and yesterday
	if err := db.Where("recipient_id = ? AND created_at >= ? AND created_at < ?", recipientID, weekStart, yesterdayStart).
		Order("created_at DESC").Find(&g.ThisWeek).Error; err != nil {
		return nil, err
	}

	if err := db.Where("recipient_id = ? AND created_at < ?", recipientID, weekStart).
		Order("created_at DESC").Limit(50).Find(&g.Older).Error; err != nil {
		return nil, err
	}

	return g, nil
}

func (r *postgresNotificationRepository) GetUnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkAsRead flips IsRead on one of the recipient's notifications. Another user's
// notification is reported as not found.
func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, recipientID, notificationID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID uint) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}
