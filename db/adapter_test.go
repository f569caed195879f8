package db

import (
	"testing"

	"github.com/ft-transcendence/server/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memWidget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory})
	require.NoError(t, err)
	return gdb
}

func TestOpenMemory_SchemaVisibleInsideTransaction(t *testing.T) {
	gdb := openMemory(t)
	require.NoError(t, gdb.AutoMigrate(&memWidget{}))

	// The migration ran on a pool connection; the transaction must see it.
	err := gdb.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&memWidget{Name: "a"}).Error
	})
	require.NoError(t, err)

	var n int64
	require.NoError(t, gdb.Model(&memWidget{}).Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestOpenMemory_IsolatedPerOpen(t *testing.T) {
	first := openMemory(t)
	require.NoError(t, first.AutoMigrate(&memWidget{}))
	require.NoError(t, first.Create(&memWidget{Name: "a"}).Error)

	second := openMemory(t)
	var n int64
	require.Error(t, second.Model(&memWidget{}).Count(&n).Error,
		"a fresh in-memory database must not share tables with an earlier one")
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "bogus"})
	require.Error(t, err)
}
