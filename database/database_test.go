package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrimarket-backend/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_foreign_keys=1&_txlock=immediate", DSN(":memory:"))
	assert.Equal(t, "market.db?"+sqliteParams, DSN("market.db"))
	assert.Equal(t, "market.db?mode=ro", DSN("market.db?mode=ro"))
	assert.Contains(t, DSN("market.db"), "_txlock=immediate")
}

func TestMigrationsCreateTablesAndSeedCatalog(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range marketplaceTableNames {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	var crops int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM crops").Scan(&crops))
	assert.Equal(t, len(models.CatalogCrops), crops)

	require.NoError(t, VerifyIntegrity(db))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var crops int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM crops").Scan(&crops))
	assert.Equal(t, len(models.CatalogCrops), crops)

	manager := NewMigrationManager(db)
	status, err := manager.GetMigrationStatus()
	require.NoError(t, err)
	require.Len(t, status, 3)
	assert.Equal(t, "create_marketplace_tables", status[0].Name)
	assert.False(t, status[0].ExecutedAt.IsZero())

	pending, err := manager.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingBeforeMigration(t *testing.T) {
	db, err := Initialize(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	manager := NewMigrationManager(db)
	require.NoError(t, manager.createMigrationsTable())

	pending, err := manager.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"create_marketplace_tables", "create_marketplace_indexes", "seed_crop_catalog"}, pending)

	assert.Error(t, VerifyIntegrity(db))
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := Initialize(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, VerifyIntegrity(db))
}

func insertUser(t *testing.T, q Queryer, username, role string) int64 {
	t.Helper()

	result, err := q.ExecContext(context.Background(),
		"INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, 'x', ?)",
		username, username+"@example.com", role,
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	err := store.WithTx(ctx, func(q Queryer) error {
		insertUser(t, q, "committed", "farmer")
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(q Queryer) error {
		insertUser(t, q, "rolledback", "buyer")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		store.WithTx(ctx, func(q Queryer) error {
			insertUser(t, q, "panicked", "buyer")
			panic("unexpected")
		})
	})

	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConstraintHelpers(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	insertUser(t, store.Q(), "farmer1", "farmer")

	_, err := store.Q().ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES ('farmer1', 'other@example.com', 'x', 'farmer')")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsConstraintViolation(err))

	_, err = store.Q().ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES ('admin', 'admin@example.com', 'x', 'admin')")
	require.Error(t, err)
	assert.False(t, IsUniqueViolation(err))
	assert.True(t, IsConstraintViolation(err))

	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsConstraintViolation(nil))
}

func TestTransactionTableConstraints(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	q := store.Q()

	farmerID := insertUser(t, q, "farmer1", "farmer")
	buyerID := insertUser(t, q, "buyer1", "buyer")
	_, err := q.ExecContext(ctx, "INSERT INTO buyers (user_id) VALUES (?)", buyerID)
	require.NoError(t, err)

	result, err := q.ExecContext(ctx, "INSERT INTO land (location, soil, size, owner_id) VALUES ('Nakuru', 'loam', 1, ?)", farmerID)
	require.NoError(t, err)
	landID, _ := result.LastInsertId()

	result, err = q.ExecContext(ctx, "INSERT INTO planted_crops (crop_id, land_id, planting_date) VALUES (1, ?, '2026-03-01')", landID)
	require.NoError(t, err)
	plantedCropID, _ := result.LastInsertId()

	_, err = q.ExecContext(ctx, "INSERT INTO planted_crops (crop_id, land_id, planting_date) VALUES (999, ?, '2026-03-01')", landID)
	assert.True(t, IsConstraintViolation(err), "unknown crop must violate the foreign key")

	_, err = q.ExecContext(ctx, "INSERT INTO transactions (planted_crop_id, status) VALUES (?, 'awaiting_price')", plantedCropID)
	require.NoError(t, err)

	_, err = q.ExecContext(ctx, "INSERT INTO transactions (planted_crop_id, status) VALUES (?, 'awaiting_price')", plantedCropID)
	assert.True(t, IsUniqueViolation(err), "one transaction per planted crop")

	_, err = q.ExecContext(ctx, "UPDATE transactions SET status = 'settled' WHERE planted_crop_id = ?", plantedCropID)
	assert.True(t, IsConstraintViolation(err), "settled flag and status must agree")

	_, err = q.ExecContext(ctx, "UPDATE transactions SET status = 'offered' WHERE planted_crop_id = ?", plantedCropID)
	assert.True(t, IsConstraintViolation(err), "an offer needs a buyer")

	_, err = q.ExecContext(ctx, "UPDATE buyers SET total_purchased = -1 WHERE user_id = ?", buyerID)
	assert.True(t, IsConstraintViolation(err))
}

func TestVerifyIntegrityDetectsDriftedTotal(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	buyerID := insertUser(t, store.Q(), "buyer1", "buyer")
	_, err := store.Q().ExecContext(ctx, "INSERT INTO buyers (user_id, total_purchased) VALUES (?, 100)", buyerID)
	require.NoError(t, err)

	err = VerifyIntegrity(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running total")
}
