package models

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the marketplace side a user acts on
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
)

// ParseRole converts a raw role string into a Role
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleFarmer:
		return RoleFarmer, nil
	case RoleBuyer:
		return RoleBuyer, nil
	}
	return "", fmt.Errorf("invalid role %q", raw)
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleBuyer
}

// Profile is the role-specific half of a user. Only *FarmerProfile and
// *BuyerProfile implement it.
type Profile interface {
	Role() Role
	isProfile()
}

// FarmerProfile extends a user with role=farmer
type FarmerProfile struct {
	UserID     int64   `json:"userId" db:"user_id"`
	Age        *int    `json:"age,omitempty" db:"age"`
	NationalID *string `json:"nationalId,omitempty" db:"national_id"`
	Location   *string `json:"location,omitempty" db:"location"`
}

func (*FarmerProfile) Role() Role { return RoleFarmer }
func (*FarmerProfile) isProfile() {}

// BuyerProfile extends a user with role=buyer
type BuyerProfile struct {
	UserID         int64   `json:"userId" db:"user_id"`
	Location       *string `json:"location,omitempty" db:"location"`
	TotalPurchased int64   `json:"totalPurchased" db:"total_purchased"`
}

func (*BuyerProfile) Role() Role { return RoleBuyer }
func (*BuyerProfile) isProfile() {}

// User represents a registered marketplace participant
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Profile      Profile   `json:"profile,omitempty"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Farmer returns the farmer profile when the user is a farmer
func (u *User) Farmer() (*FarmerProfile, bool) {
	p, ok := u.Profile.(*FarmerProfile)
	return p, ok
}

// Buyer returns the buyer profile when the user is a buyer
func (u *User) Buyer() (*BuyerProfile, bool) {
	p, ok := u.Profile.(*BuyerProfile)
	return p, ok
}

// IsFarmer checks the user's role
func (u *User) IsFarmer() bool { return u != nil && u.Role == RoleFarmer }

// IsBuyer checks the user's role
func (u *User) IsBuyer() bool { return u != nil && u.Role == RoleBuyer }

// UserRegistration represents user registration data
type UserRegistration struct {
	Username string `json:"username" form:"username" validate:"required,min=3,max=50,alphanumunicode"`
	Email    string `json:"email" form:"email" validate:"required,email,max=100"`
	Password string `json:"password" form:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" form:"role" validate:"required"`
}

// UserLogin represents login credentials, accepted as JSON or as an
// OAuth2 password form
type UserLogin struct {
	Username string `json:"username" form:"username" validate:"required,max=50"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
}

// FarmerProfileUpdate represents farmer profile update data
type FarmerProfileUpdate struct {
	Age        *int    `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	NationalID *string `json:"nationalId,omitempty" validate:"omitempty,min=4,max=32"`
	Location   *string `json:"location,omitempty" validate:"omitempty,max=200"`
}

// BuyerProfileUpdate represents buyer profile update data
type BuyerProfileUpdate struct {
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
}
