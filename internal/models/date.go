package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day wire and storage format
const DateLayout = "2006-01-02"

// Date is a calendar day without time-of-day. It accepts several input
// formats but always serializes as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in any of the accepted layouts
func ParseDate(str string) (Date, error) {
	formats := []string{
		DateLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, str); err == nil {
			return NewDate(t), nil
		}
	}

	return Date{}, fmt.Errorf("unable to parse date: %s", str)
}

// String returns the YYYY-MM-DD form
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Equal compares calendar days
func (d Date) Equal(other Date) bool {
	return d.String() == other.String()
}

// MarshalJSON writes the date as a YYYY-MM-DD string
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements flexible date parsing
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	str := strings.Trim(string(data), `"`)
	if str == "" {
		return fmt.Errorf("date must not be empty")
	}

	parsed, err := ParseDate(str)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as TEXT
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan reads a date stored as TEXT (or parsed by the driver into time.Time)
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}
