package compliance

import (
	"context"
	"fmt"
	"time"

	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/contacts"
)

// AttemptCounter is the read-side slice of the attempt log the gate needs.
type AttemptCounter interface {
	CountContactAttemptsSince(ctx context.Context, contactID string, since time.Time) (int, error)
	CountContactAttempts(ctx context.Context, contactID string) (int, error)
}

// BlockCode identifies which check blocked a contact.
type BlockCode string

const (
	BlockDNC             BlockCode = "dnc"
	BlockOutsideHours    BlockCode = "outside_calling_hours"
	BlockInvalidTimeZone BlockCode = "invalid_time_zone"
	BlockDailyLimit      BlockCode = "daily_attempt_limit"
	BlockWeeklyLimit     BlockCode = "weekly_attempt_limit"
	BlockTotalLimit      BlockCode = "total_attempt_limit"
)

// Decision is the gate's verdict for one contact at one instant.
type Decision struct {
	Allow  bool
	Code   BlockCode
	Reason string
}

// IsDNC reports whether the block was a DNC hit, which the attempt log
// records separately from compliance blocks.
func (d Decision) IsDNC() bool { return d.Code == BlockDNC }

// Gate decides ALLOW / BLOCK for the next attempt at a contact.
//
// Checks run in a fixed order and the first failure wins:
//  1. DNC membership
//  2. Calling-hours window in the contact's own time zone
//  3. Daily attempt cap   (TCPA, when enforced and > 0)
//  4. Weekly attempt cap  (TCPA, when enforced and > 0)
//  5. Lifetime attempt cap (FDCPA, when enforced and > 0)
//
// The decision is deterministic for the same inputs at the same instant.
// Its only side effect is the violation record written on a TCPA/FDCPA
// block; blocked contacts are not retried within the same campaign run.
type Gate struct {
	dnc        contacts.DNCChecker
	counts     AttemptCounter
	violations ViolationRepository
}

func NewGate(dnc contacts.DNCChecker, counts AttemptCounter, violations ViolationRepository) *Gate {
	return &Gate{dnc: dnc, counts: counts, violations: violations}
}

func (g *Gate) Evaluate(ctx context.Context, ct contacts.Contact, cmp campaigns.Campaign, s Settings, now time.Time) (Decision, error) {
	if ct.PhoneNumber == "" {
		return Decision{}, ErrInvalidArgument
	}

	// 1. DNC
	onDNC, err := g.dnc.IsOnDNC(ctx, ct.PhoneNumber)
	if err != nil {
		return Decision{}, fmt.Errorf("compliance: dnc lookup: %w", err)
	}
	if onDNC {
		return Decision{Code: BlockDNC, Reason: "number is on the do-not-call list"}, nil
	}

	// 2. Calling hours, in the contact's own zone. A zone we cannot load
	// means we cannot prove the call is legal, so it blocks.
	loc, err := time.LoadLocation(ct.TimeZone)
	if err != nil {
		return Decision{
			Code:   BlockInvalidTimeZone,
			Reason: fmt.Sprintf("unrecognized time zone %q", ct.TimeZone),
		}, nil
	}
	local := now.In(loc)
	start, _ := parseClock(s.CallingHoursStart)
	end, _ := parseClock(s.CallingHoursEnd)
	if !withinWindow(local.Hour()*60+local.Minute(), start, end) {
		return Decision{
			Code: BlockOutsideHours,
			Reason: fmt.Sprintf("outside calling hours %s-%s (local time %s)",
				s.CallingHoursStart, s.CallingHoursEnd, local.Format("15:04")),
		}, nil
	}

	// 3 + 4. Frequency caps, evaluated on calendar boundaries in the
	// contact's zone, same zone as the hours check.
	if s.EnforceTCPA {
		if s.DailyAttemptsLimit > 0 {
			dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
			n, err := g.counts.CountContactAttemptsSince(ctx, ct.ContactID, dayStart)
			if err != nil {
				return Decision{}, fmt.Errorf("compliance: daily count: %w", err)
			}
			if n >= s.DailyAttemptsLimit {
				return g.block(ctx, ct, cmp, now, ViolationTCPA, BlockDailyLimit,
					fmt.Sprintf("daily attempt limit reached (%d/%d)", n, s.DailyAttemptsLimit))
			}
		}
		if s.WeeklyAttemptsLimit > 0 {
			weekStart := startOfWeek(local, loc)
			n, err := g.counts.CountContactAttemptsSince(ctx, ct.ContactID, weekStart)
			if err != nil {
				return Decision{}, fmt.Errorf("compliance: weekly count: %w", err)
			}
			if n >= s.WeeklyAttemptsLimit {
				return g.block(ctx, ct, cmp, now, ViolationTCPA, BlockWeeklyLimit,
					fmt.Sprintf("weekly attempt limit reached (%d/%d)", n, s.WeeklyAttemptsLimit))
			}
		}
	}

	// 5. Lifetime cap
	if s.EnforceFDCPA && s.TotalAttemptsLimit > 0 {
		n, err := g.counts.CountContactAttempts(ctx, ct.ContactID)
		if err != nil {
			return Decision{}, fmt.Errorf("compliance: total count: %w", err)
		}
		if n >= s.TotalAttemptsLimit {
			return g.block(ctx, ct, cmp, now, ViolationFDCPA, BlockTotalLimit,
				fmt.Sprintf("total attempt limit reached (%d/%d)", n, s.TotalAttemptsLimit))
		}
	}

	return Decision{Allow: true}, nil
}

func (g *Gate) block(ctx context.Context, ct contacts.Contact, cmp campaigns.Campaign, now time.Time, vt ViolationType, code BlockCode, reason string) (Decision, error) {
	if g.violations != nil {
		v := Violation{
			Timestamp:   now.UTC(),
			PhoneNumber: ct.PhoneNumber,
			Type:        vt,
			Reason:      fmt.Sprintf("%s (campaign %s)", reason, cmp.CampaignID),
		}
		if err := g.violations.Append(ctx, v); err != nil {
			return Decision{}, fmt.Errorf("compliance: record violation: %w", err)
		}
	}
	return Decision{Code: code, Reason: reason}, nil
}

// startOfWeek returns Monday 00:00 of t's week in loc.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7 // Sunday belongs to the week that started the previous Monday
	}
	return day.AddDate(0, 0, -(wd - 1))
}
