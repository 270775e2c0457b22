package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"agrimarket-backend/database"
	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/utils"
)

// UserService handles registration, credentials and profiles
type UserService struct {
	store        *database.Store
	logger       *zap.Logger
	passwordCost int
}

// NewUserService creates a new user service
func NewUserService(store *database.Store, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, logger: logger, passwordCost: bcrypt.DefaultCost}
}

// SetPasswordCost overrides the bcrypt cost for new password hashes
func (s *UserService) SetPasswordCost(cost int) {
	s.passwordCost = cost
}

// Register creates a user together with its role profile in one unit of work
func (s *UserService) Register(ctx context.Context, registration *models.UserRegistration) (*models.User, error) {
	registration.Username = utils.SanitizeString(registration.Username)
	registration.Email = utils.NormalizeEmail(registration.Email)

	if err := utils.ValidateStruct(registration); err != nil {
		return nil, validationError(err)
	}

	role, err := models.ParseRole(registration.Role)
	if err != nil {
		return nil, ErrInvalidRole
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(registration.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var userID int64
	err = s.store.WithTx(ctx, func(q database.Queryer) error {
		result, err := q.ExecContext(ctx,
			"INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)",
			registration.Username, registration.Email, string(hashedPassword), role,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateUser
			}
			return storeError("create user", err)
		}

		userID, err = result.LastInsertId()
		if err != nil {
			return storeError("create user", err)
		}

		profileQuery := "INSERT INTO farmers (user_id) VALUES (?)"
		if role == models.RoleBuyer {
			profileQuery = "INSERT INTO buyers (user_id, total_purchased) VALUES (?, 0)"
		}
		if _, err := q.ExecContext(ctx, profileQuery, userID); err != nil {
			return storeError("create profile", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.Int64("user_id", userID),
		zap.String("username", registration.Username),
		zap.String("role", string(role)),
	)

	return s.GetUser(ctx, userID)
}

// Authenticate verifies a username and password. Unknown users and wrong
// passwords fail the same way.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, utils.SanitizeString(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns a user with its profile
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.findUser(ctx, s.store.Q(), "id = ?", userID)
}

// GetUserByUsername returns a user with its profile
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, s.store.Q(), "username = ?", username)
}

func (s *UserService) findUser(ctx context.Context, q database.Queryer, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := q.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, role, created_at FROM users WHERE "+where, arg,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}

	profile, err := loadProfile(ctx, q, user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	user.Profile = profile
	return user, nil
}

func loadProfile(ctx context.Context, q database.Queryer, userID int64, role models.Role) (models.Profile, error) {
	switch role {
	case models.RoleFarmer:
		p := &models.FarmerProfile{}
		err := q.QueryRowContext(ctx,
			"SELECT user_id, age, national_id, location FROM farmers WHERE user_id = ?", userID,
		).Scan(&p.UserID, &p.Age, &p.NationalID, &p.Location)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrUserNotFound
			}
			return nil, storeError("get farmer profile", err)
		}
		return p, nil
	case models.RoleBuyer:
		p := &models.BuyerProfile{}
		err := q.QueryRowContext(ctx,
			"SELECT user_id, location, total_purchased FROM buyers WHERE user_id = ?", userID,
		).Scan(&p.UserID, &p.Location, &p.TotalPurchased)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrUserNotFound
			}
			return nil, storeError("get buyer profile", err)
		}
		return p, nil
	}
	return nil, ErrInvalidRole
}

// UpdateFarmerProfile changes the caller's own farmer profile. Nil fields are
// left untouched.
func (s *UserService) UpdateFarmerProfile(ctx context.Context, caller *models.User, userID int64, update *models.FarmerProfileUpdate) (*models.User, error) {
	if caller == nil || caller.ID != userID {
		return nil, ErrNotSelf
	}
	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}
	if err := utils.ValidateStruct(update); err != nil {
		return nil, validationError(err)
	}
	if update.Location != nil {
		location := utils.SanitizeString(*update.Location)
		update.Location = &location
	}

	result, err := s.store.Q().ExecContext(ctx,
		`UPDATE farmers SET
			age = COALESCE(?, age),
			national_id = COALESCE(?, national_id),
			location = COALESCE(?, location)
		WHERE user_id = ?`,
		update.Age, update.NationalID, update.Location, userID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateNationalID
		}
		return nil, storeError("update farmer profile", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrUserNotFound
	}

	return s.GetUser(ctx, userID)
}

// UpdateBuyerProfile changes the caller's own buyer profile. The running
// purchase total is not client-writable.
func (s *UserService) UpdateBuyerProfile(ctx context.Context, caller *models.User, userID int64, update *models.BuyerProfileUpdate) (*models.User, error) {
	if caller == nil || caller.ID != userID {
		return nil, ErrNotSelf
	}
	if !caller.IsBuyer() {
		return nil, ErrRoleRequired
	}
	if err := utils.ValidateStruct(update); err != nil {
		return nil, validationError(err)
	}
	if update.Location != nil {
		location := utils.SanitizeString(*update.Location)
		update.Location = &location
	}

	result, err := s.store.Q().ExecContext(ctx,
		"UPDATE buyers SET location = COALESCE(?, location) WHERE user_id = ?",
		update.Location, userID,
	)
	if err != nil {
		return nil, storeError("update buyer profile", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrUserNotFound
	}

	return s.GetUser(ctx, userID)
}
