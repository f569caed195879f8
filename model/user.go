package model

import "time"

// User represents a platform member, created on first OAuth sign-in or
// local registration.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string `gorm:"uniqueIndex;size:200;not null" json:"email"`
	Nick      string `gorm:"uniqueIndex;size:50;not null" json:"nick"`
	FirstName string `gorm:"size:50" json:"first_name"`
	FullName  string `gorm:"size:200" json:"full_name"`
	AvatarURL string `gorm:"size:255;default:'userDefault.png'" json:"avatar_url"`

	// TokenHash is the bcrypt hash of the provider access token (OAuth
	// accounts) or the local credential. Never serialized.
	TokenHash string `gorm:"size:64;not null" json:"-"`

	// Match counters kept as strings, mirroring how the provider reports
	// them and how the SPA consumes them.
	Matches string `gorm:"size:16;default:'0'" json:"matches"`
	Wins    string `gorm:"size:16;default:'0'" json:"wins"`
	Losses  string `gorm:"size:16;default:'0'" json:"losses"`

	TFAEnabled   bool   `gorm:"default:false" json:"tfa_enabled"`
	TFAValidated bool   `gorm:"default:false" json:"tfa_validated"`
	TFAEmail     string `gorm:"size:200" json:"tfa_email,omitempty"`
	TFACodeHash  string `gorm:"size:64" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Owned collections. Loaded eagerly by the social directory; relation
	// and notification rows die with their owner.
	Relations     []Relation     `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"relations,omitempty"`
	Notifications []Notification `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"notifications,omitempty"`

	Chats []*Chat `gorm:"many2many:chat_members;joinForeignKey:UserID;joinReferences:ChatID" json:"chats,omitempty"`
}
