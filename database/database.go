package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const memoryDatabase = ":memory:"

// sqliteParams are appended to a bare database path. _txlock=immediate makes
// every BEGIN take the write lock up front, so read-then-write units of work
// serialize instead of failing with SQLITE_BUSY on lock upgrade.
const sqliteParams = "_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1&_txlock=immediate"

// DSN expands a database path into a go-sqlite3 connection string
func DSN(databaseURL string) string {
	if databaseURL == memoryDatabase {
		return "file::memory:?_foreign_keys=1&_txlock=immediate"
	}
	if strings.Contains(databaseURL, "?") {
		return databaseURL
	}
	return databaseURL + "?" + sqliteParams
}

// Initialize creates and returns a database connection
func Initialize(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if databaseURL == memoryDatabase {
		// every pooled connection to :memory: would be a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			zap.L().Warn("failed to set pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	zap.L().Info("database connection established", zap.String("database", databaseURL))
	return db, nil
}

// Migrate runs all pending schema migrations and seeds reference data
func Migrate(db *sql.DB) error {
	return NewMigrationManager(db).RunMigrations()
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('farmer', 'buyer')),
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createFarmersTable = `
CREATE TABLE IF NOT EXISTS farmers (
	user_id INTEGER PRIMARY KEY REFERENCES users(id),
	age INTEGER,
	national_id TEXT UNIQUE,
	location TEXT
)`

const createBuyersTable = `
CREATE TABLE IF NOT EXISTS buyers (
	user_id INTEGER PRIMARY KEY REFERENCES users(id),
	location TEXT,
	total_purchased INTEGER NOT NULL DEFAULT 0 CHECK (total_purchased >= 0)
)`

const createLandTable = `
CREATE TABLE IF NOT EXISTS land (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	location TEXT NOT NULL,
	soil TEXT NOT NULL,
	size REAL NOT NULL CHECK (size > 0),
	owner_id INTEGER NOT NULL REFERENCES users(id),
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createCropsTable = `
CREATE TABLE IF NOT EXISTS crops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
)`

const createPlantedCropsTable = `
CREATE TABLE IF NOT EXISTS planted_crops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crop_id INTEGER NOT NULL REFERENCES crops(id),
	land_id INTEGER NOT NULL REFERENCES land(id),
	quantity INTEGER NOT NULL DEFAULT 0,
	planting_date TEXT NOT NULL,
	harvest_date TEXT
)`

const createCropGrowthTable = `
CREATE TABLE IF NOT EXISTS crop_growth (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	planted_crop_id INTEGER NOT NULL REFERENCES planted_crops(id),
	growth_stage TEXT NOT NULL,
	date_recorded TEXT NOT NULL
)`

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	planted_crop_id INTEGER NOT NULL UNIQUE REFERENCES planted_crops(id),
	buyer_id INTEGER REFERENCES buyers(user_id),
	selling_price INTEGER NOT NULL DEFAULT 0,
	purchase_price INTEGER NOT NULL DEFAULT 0,
	settled BOOLEAN NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'awaiting_price'
		CHECK (status IN ('awaiting_price', 'priced', 'offered', 'settled')),
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	settled_at DATETIME,
	CHECK ((status = 'settled') = (settled = 1)),
	CHECK (status IN ('awaiting_price', 'priced') OR buyer_id IS NOT NULL)
)`

const createBuyerPurchasesTable = `
CREATE TABLE IF NOT EXISTS buyer_purchases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	buyer_id INTEGER NOT NULL REFERENCES buyers(user_id),
	transaction_id INTEGER NOT NULL UNIQUE REFERENCES transactions(id),
	planted_crop_id INTEGER NOT NULL REFERENCES planted_crops(id),
	sold_price INTEGER NOT NULL CHECK (sold_price > 0),
	purchased_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

var marketplaceTables = []string{
	createUsersTable,
	createFarmersTable,
	createBuyersTable,
	createLandTable,
	createCropsTable,
	createPlantedCropsTable,
	createCropGrowthTable,
	createTransactionsTable,
	createBuyerPurchasesTable,
}

var marketplaceIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_land_owner ON land(owner_id)",
	"CREATE INDEX IF NOT EXISTS idx_planted_crops_land ON planted_crops(land_id)",
	"CREATE INDEX IF NOT EXISTS idx_planted_crops_harvest_date ON planted_crops(harvest_date)",
	"CREATE INDEX IF NOT EXISTS idx_crop_growth_planted_crop ON crop_growth(planted_crop_id)",
	"CREATE INDEX IF NOT EXISTS idx_transactions_settled ON transactions(settled)",
	"CREATE INDEX IF NOT EXISTS idx_buyer_purchases_buyer ON buyer_purchases(buyer_id)",
}
