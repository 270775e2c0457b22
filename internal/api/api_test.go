package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"agrimarket-backend/database"
	"agrimarket-backend/internal/middleware"
	"agrimarket-backend/internal/services"
)

const testSecret = "test-secret-key-for-sessions"

var testNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	store  *database.Store
	users  *services.UserService
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Initialize(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	store := database.NewStore(db)
	users := services.NewUserService(store, nil)
	users.SetPasswordCost(bcrypt.MinCost)

	crops := services.NewCropService(store, nil, time.UTC, nil)
	crops.SetClock(func() time.Time { return testNow })

	security := middleware.DefaultSecurityConfig()
	security.RateLimitRequests = 10000

	router := SetupRouter(Dependencies{
		Users:        users,
		Auth:         services.NewAuthService(testSecret, 1800, users, nil, nil),
		Crops:        crops,
		Transactions: services.NewTransactionService(store, nil, nil),
		Security:     security,
	})

	return &testServer{router: router, store: store, users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, env envelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

// signup registers a user and returns its id and a bearer token
func (s *testServer) signup(t *testing.T, username, role string) (int64, string) {
	t.Helper()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	var user struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &user)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/token", "", gin.H{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status, env.Error)

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, env, &token)
	require.Equal(t, "bearer", token.TokenType)
	return user.ID, token.AccessToken
}

type transactionBody struct {
	PlantedCropID int64  `json:"plantedCropId"`
	BuyerID       *int64 `json:"buyerId"`
	SellingPrice  int64  `json:"sellingPrice"`
	PurchasePrice int64  `json:"purchasePrice"`
	Settled       bool   `json:"settled"`
	State         string `json:"state"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestMarketplaceScenario(t *testing.T) {
	s := newTestServer(t)

	farmerID, farmerToken := s.signup(t, "farmer1", "farmer")
	buyerID, buyerToken := s.signup(t, "buyer1", "buyer")

	status, env := s.do(t, http.MethodGet, "/api/v1/crops", "", nil)
	require.Equal(t, http.StatusOK, status)
	var catalog []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	decode(t, env, &catalog)
	require.NotEmpty(t, catalog)

	status, env = s.do(t, http.MethodPost, "/api/v1/lands", farmerToken, gin.H{
		"location":    "Nakuru",
		"soil":        "loam",
		"size":        2.5,
		"cropIds":     []int64{1, 3},
		"harvestDate": "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var land struct {
		ID           int64 `json:"id"`
		OwnerID      int64 `json:"ownerId"`
		PlantedCrops []struct {
			ID           int64  `json:"id"`
			Quantity     int    `json:"quantity"`
			PlantingDate string `json:"plantingDate"`
			HarvestDate  string `json:"harvestDate"`
		} `json:"plantedCrops"`
	}
	decode(t, env, &land)
	assert.Equal(t, farmerID, land.OwnerID)
	require.Len(t, land.PlantedCrops, 2)
	assert.Equal(t, 0, land.PlantedCrops[0].Quantity)
	assert.Equal(t, "2026-03-01", land.PlantedCrops[0].PlantingDate)
	plantedCropID := land.PlantedCrops[0].ID

	status, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/planted-crops/%d/growth", plantedCropID), farmerToken, gin.H{
		"growthStage": "tasseling",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = s.do(t, http.MethodPost, "/api/v1/harvest-ready", farmerToken, nil)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var sweep struct {
		Date         string            `json:"date"`
		Transactions []transactionBody `json:"transactions"`
	}
	decode(t, env, &sweep)
	assert.Equal(t, "2026-03-01", sweep.Date)
	require.Len(t, sweep.Transactions, 2)
	assert.Equal(t, "awaiting_price", sweep.Transactions[0].State)

	txPath := fmt.Sprintf("/api/v1/transactions/%d", plantedCropID)

	status, env = s.do(t, http.MethodPut, txPath+"/selling-price", farmerToken, gin.H{"sellingPrice": 500})
	require.Equal(t, http.StatusOK, status, env.Error)
	var tx transactionBody
	decode(t, env, &tx)
	assert.Equal(t, "priced", tx.State)
	assert.Equal(t, int64(500), tx.SellingPrice)

	status, env = s.do(t, http.MethodPut, txPath+"/offer", buyerToken, gin.H{"buyerId": buyerID, "purchasePrice": 420})
	require.Equal(t, http.StatusOK, status, env.Error)
	decode(t, env, &tx)
	assert.Equal(t, "offered", tx.State)
	require.NotNil(t, tx.BuyerID)
	assert.Equal(t, buyerID, *tx.BuyerID)

	status, env = s.do(t, http.MethodPut, txPath+"/accept", farmerToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var settlement struct {
		Transaction transactionBody `json:"transaction"`
		BuyerTotal  int64           `json:"buyerTotal"`
	}
	decode(t, env, &settlement)
	assert.True(t, settlement.Transaction.Settled)
	assert.Equal(t, "settled", settlement.Transaction.State)
	assert.Equal(t, int64(420), settlement.BuyerTotal)

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/buyers/%d/purchases", buyerID), buyerToken, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var summary struct {
		TotalPurchased int64 `json:"totalPurchased"`
		PurchasesSum   int64 `json:"purchasesSum"`
		Purchases      []struct {
			SoldPrice int64 `json:"soldPrice"`
		} `json:"purchases"`
	}
	decode(t, env, &summary)
	assert.Equal(t, int64(420), summary.TotalPurchased)
	assert.Equal(t, summary.TotalPurchased, summary.PurchasesSum)
	require.Len(t, summary.Purchases, 1)

	status, env = s.do(t, http.MethodPut, txPath+"/accept", farmerToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_settled", env.Code)

	status, env = s.do(t, http.MethodGet, "/api/v1/transactions", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	var active []transactionBody
	decode(t, env, &active)
	require.Len(t, active, 1)
	assert.Equal(t, land.PlantedCrops[1].ID, active[0].PlantedCropID)
}

func TestErrorStatusCodes(t *testing.T) {
	s := newTestServer(t)

	_, farmerToken := s.signup(t, "farmer1", "farmer")
	_, otherToken := s.signup(t, "farmer2", "farmer")
	buyerID, buyerToken := s.signup(t, "buyer1", "buyer")

	status, env := s.do(t, http.MethodPost, "/api/v1/lands", farmerToken, gin.H{
		"location": "Nakuru", "soil": "loam", "size": 1, "cropIds": []int64{1}, "harvestDate": "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var land struct {
		PlantedCrops []struct {
			ID int64 `json:"id"`
		} `json:"plantedCrops"`
	}
	decode(t, env, &land)
	txPath := fmt.Sprintf("/api/v1/transactions/%d", land.PlantedCrops[0].ID)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		code   string
	}{
		{"UnknownCropInBatch", http.MethodPost, "/api/v1/lands", farmerToken, gin.H{"location": "A", "soil": "B", "size": 1, "cropIds": []int64{1, 999}}, http.StatusBadRequest, "unknown_crop"},
		{"EmptyHarvestDate", http.MethodPost, "/api/v1/lands", farmerToken, gin.H{"location": "A", "soil": "B", "size": 1, "cropIds": []int64{1}, "harvestDate": ""}, http.StatusBadRequest, "invalid_request"},
		{"BuyerRegistersLand", http.MethodPost, "/api/v1/lands", buyerToken, gin.H{"location": "A", "soil": "B", "size": 1}, http.StatusForbidden, "role_required"},
		{"NoToken", http.MethodGet, "/api/v1/transactions", "", nil, http.StatusUnauthorized, "invalid_session"},
		{"TransactionMissing", http.MethodGet, "/api/v1/transactions/999", buyerToken, nil, http.StatusNotFound, "transaction_not_found"},
		{"BadID", http.MethodGet, "/api/v1/transactions/abc", buyerToken, nil, http.StatusBadRequest, "invalid_id"},
		{"PriceBeforeListing", http.MethodPut, txPath + "/selling-price", farmerToken, gin.H{"sellingPrice": 10}, http.StatusNotFound, "transaction_not_found"},
		{"MalformedBody", http.MethodPut, txPath + "/selling-price", farmerToken, "not-an-object", http.StatusBadRequest, "invalid_request"},
		{"OtherBuyersPurchases", http.MethodGet, fmt.Sprintf("/api/v1/buyers/%d/purchases", buyerID+100), buyerToken, nil, http.StatusForbidden, "not_self"},
		{"DuplicateRegistration", http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "farmer1", "email": "x@example.com", "password": "password123", "role": "buyer"}, http.StatusConflict, "duplicate_user"},
		{"WrongPassword", http.MethodPost, "/api/v1/auth/token", "", gin.H{"username": "farmer1", "password": "nope-nope"}, http.StatusUnauthorized, "invalid_credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, status, env.Error)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
		})
	}

	status, env = s.do(t, http.MethodPost, "/api/v1/harvest-ready", farmerToken, nil)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = s.do(t, http.MethodPut, txPath+"/offer", buyerToken, gin.H{"purchasePrice": 10})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "price_not_set", env.Code)

	status, env = s.do(t, http.MethodPut, txPath+"/selling-price", otherToken, gin.H{"sellingPrice": 10})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_owner", env.Code)

	status, env = s.do(t, http.MethodPut, txPath+"/accept", farmerToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "no_offer_present", env.Code)
}

func TestExpiredSessionMutatesNothing(t *testing.T) {
	s := newTestServer(t)

	_, farmerToken := s.signup(t, "farmer1", "farmer")
	status, env := s.do(t, http.MethodPost, "/api/v1/lands", farmerToken, gin.H{
		"location": "Nakuru", "soil": "loam", "size": 1, "cropIds": []int64{1}, "harvestDate": "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	status, _ = s.do(t, http.MethodPost, "/api/v1/harvest-ready", farmerToken, nil)
	require.Equal(t, http.StatusCreated, status)

	// same secret, already expired on issue
	expiredAuth := services.NewAuthService(testSecret, -60, s.users, nil, nil)
	session, err := expiredAuth.IssueSession("farmer1", "farmer")
	require.NoError(t, err)

	status, env = s.do(t, http.MethodPut, "/api/v1/transactions/1/selling-price", session.AccessToken, gin.H{"sellingPrice": 500})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "expired_session", env.Code)

	status, env = s.do(t, http.MethodGet, "/api/v1/transactions/1", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	var tx transactionBody
	decode(t, env, &tx)
	assert.Equal(t, "awaiting_price", tx.State)
	assert.Zero(t, tx.SellingPrice)
}

func TestLogoutRevokesSession(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup(t, "buyer1", "buyer")

	status, _ := s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_session", env.Code)
}

func TestTokenAcceptsPasswordForm(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "farmer1", "farmer")

	form := url.Values{"username": {"farmer1"}, "password": {"password123"}, "grant_type": {"password"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
}

func TestUpdateProfiles(t *testing.T) {
	s := newTestServer(t)
	farmerID, farmerToken := s.signup(t, "farmer1", "farmer")
	buyerID, buyerToken := s.signup(t, "buyer1", "buyer")

	status, env := s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/farmers/%d", farmerID), farmerToken, gin.H{
		"age": 40, "nationalId": "KE-0001", "location": "Eldoret",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Contains(t, string(env.Data), "KE-0001")

	status, env = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/buyers/%d", buyerID), buyerToken, gin.H{"location": "Mombasa"})
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Contains(t, string(env.Data), "Mombasa")

	status, env = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/buyers/%d", buyerID), farmerToken, gin.H{"location": "Mombasa"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "role_required", env.Code)
}
