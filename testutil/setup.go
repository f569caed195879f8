package testutil

import (
	"testing"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	dbadapter "github.com/ft-transcendence/server/db"
	"github.com/ft-transcendence/server/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeSQLiteMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateUser inserts a user with sane defaults and returns it.
func CreateUser(t *testing.T, db *gorm.DB, nick string) *model.User {
	t.Helper()
	u := &model.User{
		Email:     nick + "@student.42.fr",
		Nick:      nick,
		FirstName: nick,
		FullName:  nick + " " + nick,
		AvatarURL: "userDefault.png",
		Matches:   "0",
		Wins:      "0",
		Losses:    "0",
	}
	require.NoError(t, db.Create(u).Error, "CreateUser: %s", nick)
	return u
}
