package models

import "time"

// PushSubscription is one push-capable device endpoint. Endpoint is globally unique;
// the owning user may change when a shared device re-registers under another account.
type PushSubscription struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Endpoint  string    `json:"endpoint" gorm:"uniqueIndex;size:2048;not null"`
	P256dh    string    `json:"-" gorm:"not null"` // client public key for payload encryption
	Auth      string    `json:"-" gorm:"not null"` // client auth secret
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PushKeys are the per-subscription encryption keys sent by the browser.
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// SubscribePushRequest mirrors the browser's PushSubscription.toJSON().
type SubscribePushRequest struct {
	Endpoint string   `json:"endpoint" validate:"required,url"`
	Keys     PushKeys `json:"keys" validate:"required"`
}

type UnsubscribePushRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

// NotificationPayload is the JSON body encrypted into each push message. It is built per
// event and never persisted.
type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
}
