package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sda-calculator/core/temporal"
	"sda-calculator/db"
)

const (
	apartment = "Apartment, 1 bedroom, 1 resident"
	legacy6   = "Legacy Stock, 6 residents"
	sydney    = "NSW - Sydney - Inner City"
	hobart    = "TAS - Hobart"
)

func setupStore(t *testing.T) *db.GormStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := db.NewGormStore(gdb, nil)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(s string) time.Time {
	d, err := temporal.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
