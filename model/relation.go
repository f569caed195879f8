package model

import "time"

// Relation types.
const (
	RelationFriend  = "friend"
	RelationBlocked = "blocked"
)

// Relation is a directed edge from its owner to a passive user.
// A friend relation exists as a symmetric pair of rows (one per owner);
// a blocked relation is one-directional. No uniqueness constraint is
// placed on (owner, passive, type): deduplication happens at the service
// layer before insertion.
type Relation struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID       int64     `gorm:"index:idx_relation_owner;not null" json:"owner_id"`
	Type          string    `gorm:"size:16;not null" json:"type"` // friend | blocked
	PassiveUserID int64     `gorm:"not null" json:"passive_user_id"`
	PassiveUser   *User     `gorm:"foreignKey:PassiveUserID" json:"passive_user,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
