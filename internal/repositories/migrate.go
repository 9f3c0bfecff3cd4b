package repositories

import (
	"github.com/anonto42/nano-midea/social/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the PostgreSQL schema for every relational model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Comment{},
		&models.Like{},
		&models.Notification{},
		&models.PushSubscription{},
	)
}
