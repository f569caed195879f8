package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationFriend = "friend"
)

// Notification is a pending social event queued for its owner, created
// when another user sends a request and popped when the owner accepts,
// rejects or blocks in response.
type Notification struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID        int64          `gorm:"index:idx_notification_owner;not null" json:"owner_id"`
	Type           string         `gorm:"size:16;not null" json:"type"`
	SourceUserID   int64          `gorm:"not null" json:"source_user_id"`
	SourceUser     *User          `gorm:"foreignKey:SourceUserID" json:"source_user,omitempty"`
	AdditionalInfo datatypes.JSON `json:"additional_info,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
