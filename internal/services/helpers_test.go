package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"agrimarket-backend/database"
	"agrimarket-backend/internal/models"
)

var (
	testNow   = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	testToday = models.NewDate(testNow)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.MarketEvent
}

func (p *recordingPublisher) Publish(event models.MarketEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []models.MarketEventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]models.MarketEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type testEnv struct {
	store  *database.Store
	users  *UserService
	auth   *AuthService
	crops  *CropService
	txs    *TransactionService
	events *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "agrimarket_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	store := database.NewStore(db)
	events := &recordingPublisher{}

	users := NewUserService(store, nil)
	users.SetPasswordCost(bcrypt.MinCost)

	crops := NewCropService(store, events, time.UTC, nil)
	crops.SetClock(func() time.Time { return testNow })

	return &testEnv{
		store:  store,
		users:  users,
		auth:   NewAuthService("test-secret-key-for-sessions", 1800, users, nil, nil),
		crops:  crops,
		txs:    NewTransactionService(store, events, nil),
		events: events,
	}
}

func (e *testEnv) register(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()

	user, err := e.users.Register(context.Background(), &models.UserRegistration{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "password123",
		Role:     string(role),
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) registerLand(t *testing.T, farmer *models.User, cropIDs []int64, harvest *models.Date) *models.Land {
	t.Helper()

	land, err := e.crops.RegisterLand(context.Background(), farmer, &models.LandRegistration{
		Location:    "Nakuru",
		Soil:        "loam",
		Size:        2.5,
		CropIDs:     cropIDs,
		HarvestDate: harvest,
	})
	require.NoError(t, err)
	return land
}

// listCrop registers one crop harvesting today and sweeps it into a listing
func (e *testEnv) listCrop(t *testing.T, farmer *models.User) *models.Transaction {
	t.Helper()

	harvest := testToday
	land := e.registerLand(t, farmer, []int64{1}, &harvest)
	require.Len(t, land.PlantedCrops, 1)

	_, err := e.crops.SweepHarvestReady(context.Background(), testToday)
	require.NoError(t, err)

	tx, err := e.txs.GetTransaction(context.Background(), land.PlantedCrops[0].ID)
	require.NoError(t, err)
	return tx
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()

	var n int
	require.NoError(t, e.store.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// failWrites installs a trigger that aborts the given statement on table
func (e *testEnv) failWrites(t *testing.T, event, table string) {
	t.Helper()

	_, err := e.store.DB().Exec(fmt.Sprintf(
		"CREATE TRIGGER fail_%s_%s BEFORE %s ON %s BEGIN SELECT RAISE(ABORT, 'boom'); END",
		table, event, event, table,
	))
	require.NoError(t, err)
}
