package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can map it to a response
type ErrorKind int

const (
	KindStoreFailure ErrorKind = iota
	KindNotFound
	KindConflict
	KindInvalidState
	KindUnauthorized
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation_error"
	default:
		return "store_failure"
	}
}

// Error is a classified service failure
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code so a detailed copy still matches its sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Identity
var (
	ErrDuplicateUser       = newError(KindConflict, "duplicate_user", "user with this username or email already exists")
	ErrInvalidRole         = newError(KindValidation, "invalid_role", "role must be farmer or buyer")
	ErrInvalidCredentials  = newError(KindUnauthorized, "invalid_credentials", "invalid username or password")
	ErrExpiredSession      = newError(KindUnauthorized, "expired_session", "session has expired")
	ErrInvalidSession      = newError(KindUnauthorized, "invalid_session", "could not validate credentials")
	ErrUserNotFound        = newError(KindNotFound, "user_not_found", "user not found")
	ErrDuplicateNationalID = newError(KindConflict, "duplicate_national_id", "national id is already registered")
)

// Authorization
var (
	ErrRoleRequired = newError(KindUnauthorized, "role_required", "caller does not have the required role")
	ErrNotOwner     = newError(KindUnauthorized, "not_owner", "caller does not own this land")
	ErrNotSelf      = newError(KindUnauthorized, "not_self", "callers may only act on their own account")
)

// Crop lifecycle
var (
	ErrUnknownCrop        = newError(KindValidation, "unknown_crop", "one or more crop ids are invalid")
	ErrDuplicateCrop      = newError(KindValidation, "duplicate_crop", "crop ids must not repeat")
	ErrUnknownLand        = newError(KindNotFound, "unknown_land", "land not found")
	ErrUnknownPlantedCrop = newError(KindNotFound, "unknown_planted_crop", "planted crop not found")
	ErrAlreadyListed      = newError(KindInvalidState, "already_listed", "crop is already listed for sale")
)

// Transaction workflow
var (
	ErrTransactionNotFound = newError(KindNotFound, "transaction_not_found", "transaction not found for this crop")
	ErrAlreadySettled      = newError(KindInvalidState, "already_settled", "transaction is already settled")
	ErrUnknownBuyer        = newError(KindNotFound, "unknown_buyer", "buyer not found")
	ErrNoOfferPresent      = newError(KindInvalidState, "no_offer_present", "no buyer has placed an offer yet")
	ErrPriceNotSet         = newError(KindInvalidState, "price_not_set", "selling price has not been set")
	ErrInvalidPrice        = newError(KindValidation, "invalid_price", "price must be a positive amount")
)

// validationError wraps an input validation failure
func validationError(err error) error {
	return &Error{Kind: KindValidation, Code: "validation_error", Message: "validation error", Err: err}
}

// storeError wraps an underlying database failure
func storeError(op string, err error) error {
	return &Error{Kind: KindStoreFailure, Code: "store_failure", Message: "failed to " + op, Err: err}
}

// KindOf returns the kind of a classified error, or KindStoreFailure for
// anything unclassified
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindStoreFailure
}

// CodeOf returns the machine-readable code of a classified error
func CodeOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return "internal_error"
}

// IsAuthenticationError reports whether err concerns the caller's
// credentials or session rather than their permissions
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrExpiredSession) ||
		errors.Is(err, ErrInvalidSession)
}
