package model

import "time"

// Chat types.
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
)

// Chat member roles.
const (
	ChatRoleOwner  = "owner"
	ChatRoleAdmin  = "admin"
	ChatRoleMember = "member"
)

// Chat is a direct or group conversation.
type Chat struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"size:16;not null;index" json:"type"` // direct | group
	Name      string    `gorm:"size:50" json:"name"`                // empty for directs
	OwnerID   int64     `json:"owner_id"`                           // zero for directs
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Members []*User `gorm:"many2many:chat_members;joinForeignKey:ChatID;joinReferences:UserID" json:"members,omitempty"`
}

// ChatMember is the chat↔user join row, carrying the moderation state a
// plain many2many table could not hold.
type ChatMember struct {
	ChatID   int64     `gorm:"primaryKey" json:"chat_id"`
	UserID   int64     `gorm:"primaryKey;index:idx_chat_member_user" json:"user_id"`
	Role     string    `gorm:"size:16;default:'member'" json:"role"`
	Muted    bool      `gorm:"default:false" json:"muted"`
	Banned   bool      `gorm:"default:false" json:"banned"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// ChatMessage is one message within a chat.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    int64     `gorm:"index:idx_chat_message;not null" json:"chat_id"`
	SenderID  int64     `gorm:"not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
