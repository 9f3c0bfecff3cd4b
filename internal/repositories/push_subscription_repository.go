package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/social/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertResult reports what a registration did to the endpoint's row.
type UpsertResult struct {
	ID      uint
	Created bool
	// PreviousUserID is set when the endpoint moved from another user.
	PreviousUserID uint
}

// Reassigned reports whether ownership of the endpoint changed hands.
func (r UpsertResult) Reassigned() bool {
	return r.PreviousUserID != 0
}

// PushSubscriptionRepository is the Subscription Registry. Endpoint is the identity of a
// subscription; the unique index on it is what serializes concurrent registrations.
type PushSubscriptionRepository interface {
	Upsert(ctx context.Context, userID uint, endpoint string, keys models.PushKeys) (UpsertResult, error)
	ListFor(ctx context.Context, userID uint) ([]models.PushSubscription, error)
	Remove(ctx context.Context, id uint) error
	RemoveByEndpoint(ctx context.Context, userID uint, endpoint string) error
}

// PostgresPushSubscriptionRepository implements PushSubscriptionRepository for PostgreSQL
type PostgresPushSubscriptionRepository struct {
	db *gorm.DB
}

// NewPostgresPushSubscriptionRepository creates a new PostgresPushSubscriptionRepository
func NewPostgresPushSubscriptionRepository(db *gorm.DB) *PostgresPushSubscriptionRepository {
	return &PostgresPushSubscriptionRepository{db: db}
}

// Upsert registers endpoint for userID. An unknown endpoint creates a row; an endpoint
// owned by someone else is reassigned to userID; re-registering the same endpoint for
// the same user with the same keys changes nothing.
func (r *PostgresPushSubscriptionRepository) Upsert(ctx context.Context, userID uint, endpoint string, keys models.PushKeys) (UpsertResult, error) {
	db := r.db.WithContext(ctx)
	var res UpsertResult

	var existing models.PushSubscription
	err := db.Where("endpoint = ?", endpoint).Take(&existing).Error
	switch {
	case err == nil:
		if existing.UserID == userID && existing.P256dh == keys.P256dh && existing.Auth == keys.Auth {
			return UpsertResult{ID: existing.ID}, nil
		}
		if existing.UserID != userID {
			res.PreviousUserID = existing.UserID
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		res.Created = true
	default:
		return res, err
	}

	sub := models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   keys.P256dh,
		Auth:     keys.Auth,
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		return res, err
	}

	var stored models.PushSubscription
	if err := db.Where("endpoint = ?", endpoint).Take(&stored).Error; err != nil {
		return res, err
	}
	res.ID = stored.ID
	return res, nil
}

func (r *PostgresPushSubscriptionRepository) ListFor(ctx context.Context, userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// Remove deletes a subscription by ID. Removing an already removed subscription is not an error.
func (r *PostgresPushSubscriptionRepository) Remove(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.PushSubscription{}, id).Error
}

// RemoveByEndpoint deletes the user's own subscription for endpoint.
func (r *PostgresPushSubscriptionRepository) RemoveByEndpoint(ctx context.Context, userID uint, endpoint string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&models.PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
