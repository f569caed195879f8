package model

import "gorm.io/gorm"

// allModels lists every model to be auto-migrated.
var allModels = []interface{}{
	&User{},
	&Relation{},
	&Notification{},
	&Chat{},
	&ChatMember{},
	&ChatMessage{},
	&Match{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
// ChatMember is registered as the chats↔users join table so the
// moderation columns (role, muted, banned) live on the join rows.
func AutoMigrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&User{}, "Chats", &ChatMember{}); err != nil {
		return err
	}
	if err := db.SetupJoinTable(&Chat{}, "Members", &ChatMember{}); err != nil {
		return err
	}
	return db.AutoMigrate(allModels...)
}
