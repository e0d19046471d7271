package testdb

import (
	"testing"

	"p2p-lending-engine/internal/domain/event"
	"p2p-lending-engine/internal/domain/installment"
	"p2p-lending-engine/internal/domain/loan"
	"p2p-lending-engine/internal/domain/risk"
	"p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/internal/domain/trust"
	dbinfra "p2p-lending-engine/internal/infrastructure/db"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every persisted entity.
var Models = []any{
	&loan.Loan{},
	&installment.Installment{},
	&installment.RetryLog{},
	&transfer.Transfer{},
	&risk.Borrower{},
	&risk.Block{},
	&trust.Score{},
	&trust.Vouch{},
	&event.Outbox{},
	&event.Delivery{},
}

// Open creates an in-memory sqlite DB with the full schema. A single
// connection keeps every transaction on the same memory database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := dbinfra.Config()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}
