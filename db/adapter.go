package db

import (
	"fmt"
	"sync/atomic"

	"github.com/ft-transcendence/server/config"
	dbmysql "github.com/ft-transcendence/server/db/mysql"
	dbsqlite "github.com/ft-transcendence/server/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// memSeq numbers the in-memory databases so each Open gets its own.
var memSeq atomic.Int64

// Open returns a *gorm.DB for the configured database mode.
// sqlite_memory is a per-Open in-memory database, used by tests.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeSQLiteMemory:
		// cache=shared so every pooled connection sees the same
		// database, a single connection so the database survives the
		// pool and transactions never race a second connection.
		dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memSeq.Add(1))
		gdb, err := dbsqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return gdb, nil
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
