// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"embed"
	"fmt"
	"log"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// Models lists every persisted model in dependency order
func Models() []interface{} {
	return []interface{}{
		// Stock ledger
		&asset.Asset{},
		&asset.StockMovement{},

		// Request lifecycle
		&request.Request{},
		&request.RequestItem{},
		&request.ItemRegistration{},

		// Side effects
		&activity.Log{},
		&notification.Notification{},

		// Counters
		&Sequence{},
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	for _, model := range Models() {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// RunSQLMigrations applies the embedded goose migrations: partial indexes
// and check constraints gorm tags cannot express.
func (m *Migration) RunSQLMigrations() error {
	log.Println("🔄 Applying SQL migrations...")

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply SQL migrations: %w", err)
	}

	log.Println("✅ SQL migrations applied successfully")
	return nil
}

// SeedInitialData inserts sample stock for development
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	var count int64
	if err := m.db.Model(&asset.Asset{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count assets: %w", err)
	}
	if count > 0 {
		log.Println("⏭️ Stock already seeded")
		return nil
	}

	measured := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	counted := func(n int) *int { return &n }

	lots := []asset.Asset{
		// Fragmented counted stock
		{ID: "AST-2000-0001", Name: "Splitter 1:8", Brand: "ZTE", Category: "Passive", Quantity: counted(50), Unit: "pcs", Location: "WH-JKT"},
		{ID: "AST-2000-0002", Name: "Splitter 1:8", Brand: "ZTE", Category: "Passive", Quantity: counted(30), Unit: "pcs", Location: "WH-BDG"},
		// Measured cable lots
		{ID: "AST-2000-0003", Name: "Fiber Cable 24C", Brand: "Fujikura", Category: "Cable", InitialBalance: measured(30), CurrentBalance: measured(30), Unit: "m", Location: "WH-JKT"},
		{ID: "AST-2000-0004", Name: "Fiber Cable 24C", Brand: "Fujikura", Category: "Cable", InitialBalance: measured(100), CurrentBalance: measured(100), Unit: "m", Location: "WH-JKT"},
		{ID: "AST-2000-0005", Name: "Fiber Cable 24C", Brand: "Fujikura", Category: "Cable", InitialBalance: measured(20), CurrentBalance: measured(20), Unit: "m", Location: "WH-BDG"},
		// Individual devices
		{ID: "AST-2000-0006", Name: "ONT HG8245", Brand: "Huawei", Category: "CPE", SerialNumber: "HW-0001", Unit: "unit", Location: "WH-JKT"},
		{ID: "AST-2000-0007", Name: "ONT HG8245", Brand: "Huawei", Category: "CPE", SerialNumber: "HW-0002", Unit: "unit", Location: "WH-JKT"},
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		for i := range lots {
			lots[i].Status = asset.StatusInStorage
			lots[i].RegisteredBy = "seed"
			if err := tx.Create(&lots[i]).Error; err != nil {
				return fmt.Errorf("failed to seed lot %s: %w", lots[i].ID, err)
			}
			if lots[i].CurrentBalance == nil {
				log.Printf("✅ Seeded lot: %s %s", lots[i].ID, lots[i].Name)
				continue
			}

			zero := decimal.Zero
			if err := tx.Create(&asset.StockMovement{
				AssetID:         lots[i].ID,
				MovementType:    asset.MovementReceived,
				Quantity:        *lots[i].CurrentBalance,
				Unit:            lots[i].Unit,
				PreviousBalance: &zero,
				NewBalance:      lots[i].CurrentBalance,
				ReferenceType:   "seed",
				PerformedBy:     "seed",
			}).Error; err != nil {
				return fmt.Errorf("failed to seed movement for %s: %w", lots[i].ID, err)
			}
			log.Printf("✅ Seeded lot: %s %s (%s %s)", lots[i].ID, lots[i].Name, lots[i].CurrentBalance.String(), lots[i].Unit)
		}
		return nil
	})
}

// GetTableInfo logs row counts of the public tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	counts, totalRecords, failed := m.countRecords(tables)
	for _, table := range tables {
		count, ok := counts[table]
		if !ok {
			continue
		}

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-28s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	if len(failed) > 0 {
		return fmt.Errorf("failed to count records of %d tables: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// countRecords counts rows per table. Tables whose count fails are logged
// and returned separately.
func (m *Migration) countRecords(tables []string) (map[string]int64, int64, []string) {
	counts := make(map[string]int64, len(tables))
	var (
		total  int64
		failed []string
	)
	for _, table := range tables {
		var count int64
		if err := m.db.Table(table).Count(&count).Error; err != nil {
			log.Printf("⚠️ %-28s | failed to count records: %v", table, err)
			failed = append(failed, table)
			continue
		}
		counts[table] = count
		total += count
	}
	return counts, total, failed
}
