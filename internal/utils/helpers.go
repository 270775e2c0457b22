package utils

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"agrimarket-backend/internal/models"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// LoadLocation resolves a timezone name, falling back to UTC
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		zap.L().Warn("could not load timezone, using UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Today returns the calendar day of now in loc
func Today(now time.Time, loc *time.Location) models.Date {
	if loc == nil {
		loc = time.UTC
	}
	return models.NewDate(now.In(loc))
}

// ParseID parses a positive integer path parameter
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
