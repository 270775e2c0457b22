package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agrimarket-backend/internal/models"
)

// Migration is a named, run-once schema or data change
type Migration struct {
	Name string
	Run  func(tx *sql.Tx) error
}

// MigrationStatus describes an executed migration
type MigrationStatus struct {
	Name       string    `json:"migration"`
	ExecutedAt time.Time `json:"executedAt"`
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{
		db: db,
		migrations: []Migration{
			{Name: "create_marketplace_tables", Run: execAll(marketplaceTables)},
			{Name: "create_marketplace_indexes", Run: execAll(marketplaceIndexes)},
			{Name: "seed_crop_catalog", Run: seedCropCatalog},
		},
	}
}

// RunMigrations executes all pending migrations
func (m *MigrationManager) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range m.migrations {
		if err := m.runMigration(migration); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migration.Name, err)
		}
	}

	zap.L().Info("database migrations completed")
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (m *MigrationManager) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			migration VARCHAR(255) NOT NULL UNIQUE,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// runMigration executes a migration and records it in the same transaction
func (m *MigrationManager) runMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow("SELECT COUNT(*) FROM migrations WHERE migration = ?", migration.Name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		zap.L().Debug("migration already executed", zap.String("migration", migration.Name))
		return nil
	}

	zap.L().Info("running migration", zap.String("migration", migration.Name))
	if err := migration.Run(tx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (migration, executed_at) VALUES (?, ?)", migration.Name, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

// GetMigrationStatus returns the executed migrations in order
func (m *MigrationManager) GetMigrationStatus() ([]MigrationStatus, error) {
	rows, err := m.db.Query("SELECT migration, executed_at FROM migrations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var status []MigrationStatus
	for rows.Next() {
		var s MigrationStatus
		if err := rows.Scan(&s.Name, &s.ExecutedAt); err != nil {
			return nil, err
		}
		status = append(status, s)
	}
	return status, rows.Err()
}

// Pending returns the names of migrations not yet executed
func (m *MigrationManager) Pending() ([]string, error) {
	executed, err := m.GetMigrationStatus()
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(executed))
	for _, s := range executed {
		done[s.Name] = true
	}

	var pending []string
	for _, migration := range m.migrations {
		if !done[migration.Name] {
			pending = append(pending, migration.Name)
		}
	}
	return pending, nil
}

func execAll(statements []string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	}
}

// seedCropCatalog inserts catalog crops that are missing
func seedCropCatalog(tx *sql.Tx) error {
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO crops (name) VALUES (?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, name := range models.CatalogCrops {
		if _, err := stmt.Exec(name); err != nil {
			return fmt.Errorf("failed to seed crop %s: %w", name, err)
		}
	}
	return nil
}

// marketplaceTableNames are the tables VerifyIntegrity expects
var marketplaceTableNames = []string{
	"users", "farmers", "buyers", "land", "crops",
	"planted_crops", "crop_growth", "transactions", "buyer_purchases",
}

// VerifyIntegrity checks that every marketplace table exists, that the crop
// catalog is seeded and that no buyer's running total has drifted from the
// sum of their purchases
func VerifyIntegrity(db *sql.DB) error {
	for _, table := range marketplaceTableNames {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}

	var crops int
	if err := db.QueryRow("SELECT COUNT(*) FROM crops").Scan(&crops); err != nil {
		return fmt.Errorf("failed to count crops: %w", err)
	}
	if crops < len(models.CatalogCrops) {
		return fmt.Errorf("crop catalog has %d entries, expected at least %d", crops, len(models.CatalogCrops))
	}

	var drifted int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM buyers b
		WHERE b.total_purchased <> (
			SELECT COALESCE(SUM(p.sold_price), 0) FROM buyer_purchases p WHERE p.buyer_id = b.user_id
		)`).Scan(&drifted)
	if err != nil {
		return fmt.Errorf("failed to check buyer totals: %w", err)
	}
	if drifted > 0 {
		return fmt.Errorf("%d buyer(s) have a running total that differs from their purchases", drifted)
	}

	zap.L().Info("database integrity verified", zap.Int("crops", crops))
	return nil
}
