package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ClockTime is a local wall-clock time of day with minute precision.
// 24:00 is the end of the day and is only meaningful as a closing time.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds must be zero), from
// 00:00 through 24:00.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
		}
		nums[i] = n
	}
	if len(nums) == 3 && nums[2] != 0 {
		return ClockTime{}, fmt.Errorf("clock time %q has seconds", s)
	}
	c := ClockTime{Hour: nums[0], Minute: nums[1]}
	if !c.Valid() {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// MustClock is for tests and static tables.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Valid() bool {
	if c.IsEndOfDay() {
		return true
	}
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// IsEndOfDay reports whether c is 24:00.
func (c ClockTime) IsEndOfDay() bool {
	return c.Hour == 24 && c.Minute == 0
}

// Minutes since local midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer for TIME columns.
func (c ClockTime) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// Scan implements sql.Scanner for TIME columns.
func (c *ClockTime) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", value)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
