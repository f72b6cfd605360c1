package compliance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSettings = errors.New("compliance: invalid settings")
	ErrInvalidArgument = errors.New("compliance: invalid argument")
)

// Settings is the single active compliance configuration.
//
// Lifecycle: created with defaults, mutated only by administrator actions.
// The gate reads a fresh version on every decision (short TTL cache at most),
// so a settings change takes effect across all running campaigns within the TTL.
type Settings struct {
	Version int `json:"version" db:"version"`

	// Calling window in the contact's local time of day, "HH:MM".
	// Start > End denotes an overnight window wrapping midnight.
	CallingHoursStart string `json:"calling_hours_start" db:"calling_hours_start"`
	CallingHoursEnd   string `json:"calling_hours_end" db:"calling_hours_end"`

	// Per-contact attempt caps. 0 means unlimited.
	DailyAttemptsLimit  int `json:"daily_attempts_limit" db:"daily_attempts_limit"`
	WeeklyAttemptsLimit int `json:"weekly_attempts_limit" db:"weekly_attempts_limit"`
	TotalAttemptsLimit  int `json:"total_attempts_limit" db:"total_attempts_limit"`

	EnforceTCPA  bool `json:"enforce_tcpa" db:"enforce_tcpa"`
	EnforceFDCPA bool `json:"enforce_fdcpa" db:"enforce_fdcpa"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultSettings mirrors the defaults the compliance screen seeds:
// TCPA-safe 8am-9pm window and conservative attempt caps.
func DefaultSettings() Settings {
	return Settings{
		Version:             1,
		CallingHoursStart:   "08:00",
		CallingHoursEnd:     "21:00",
		DailyAttemptsLimit:  3,
		WeeklyAttemptsLimit: 7,
		TotalAttemptsLimit:  15,
		EnforceTCPA:         true,
		EnforceFDCPA:        true,
	}
}

func (s Settings) Validate() error {
	if _, err := parseClock(s.CallingHoursStart); err != nil {
		return fmt.Errorf("%w: calling_hours_start: %v", ErrInvalidSettings, err)
	}
	end, err := parseClock(s.CallingHoursEnd)
	if err != nil {
		return fmt.Errorf("%w: calling_hours_end: %v", ErrInvalidSettings, err)
	}
	start, _ := parseClock(s.CallingHoursStart)
	if start == end {
		return fmt.Errorf("%w: calling hours window is empty", ErrInvalidSettings)
	}
	if s.DailyAttemptsLimit < 0 || s.WeeklyAttemptsLimit < 0 || s.TotalAttemptsLimit < 0 {
		return fmt.Errorf("%w: attempt limits must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}

// withinWindow reports whether localMinutes falls in [start, end),
// honoring overnight windows where start > end.
func withinWindow(localMinutes, start, end int) bool {
	if start < end {
		return localMinutes >= start && localMinutes < end
	}
	// Overnight: e.g. 20:00-06:00.
	return localMinutes >= start || localMinutes < end
}

// Violation is an append-only record of a TCPA/FDCPA block.
// DNC blocks are their own attempt-log category, not violations.
type Violation struct {
	ID          string        `json:"id" db:"id"`
	Timestamp   time.Time     `json:"timestamp" db:"timestamp"`
	PhoneNumber string        `json:"phone_number" db:"phone_number"`
	Type        ViolationType `json:"type" db:"type"`
	Reason      string        `json:"reason" db:"reason"`
}

type ViolationType string

const (
	ViolationTCPA  ViolationType = "TCPA"
	ViolationFDCPA ViolationType = "FDCPA"
)
