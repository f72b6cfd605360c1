package compliance

import (
	"context"
	"testing"
	"time"

	"dialer-engine/internal/attempts"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/contacts"
)

func permissiveSettings() Settings {
	s := DefaultSettings()
	s.CallingHoursStart = "00:00"
	s.CallingHoursEnd = "23:59"
	s.DailyAttemptsLimit = 0
	s.WeeklyAttemptsLimit = 0
	s.TotalAttemptsLimit = 0
	return s
}

// noonUTC is a fixed instant well inside any sane calling window.
var noonUTC = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestGate() (*Gate, *contacts.MemoryStore, *attempts.MemoryStore, *MemoryViolations) {
	cs := contacts.NewMemoryStore()
	as := attempts.NewMemoryStore()
	vs := NewMemoryViolations()
	return NewGate(cs, as, vs), cs, as, vs
}

func seedAttempts(t *testing.T, as *attempts.MemoryStore, contactID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		row, err := as.Begin(context.Background(), attempts.AttemptLog{
			CampaignID: "prior", ContactID: contactID, PhoneNumber: "+15550001000",
			RequestedAt: at, Outcome: attempts.OutcomeQueued,
		})
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := as.Finalize(context.Background(), row.ID, attempts.OutcomeNoAnswer, 0, "", at); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
	}
}

func TestGateAllowsCleanContact(t *testing.T) {
	g, _, _, _ := newTestGate()
	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, permissiveSettings(), noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("blocked: %+v", d)
	}
}

func TestGateBlocksDNCFirst(t *testing.T) {
	g, cs, as, vs := newTestGate()
	cs.AddToDNC("+15550001000")
	// Stack a cap violation behind the DNC hit; DNC must win.
	seedAttempts(t, as, "ct-1", 5, noonUTC.Add(-time.Hour))
	s := permissiveSettings()
	s.DailyAttemptsLimit = 1

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow || d.Code != BlockDNC || !d.IsDNC() {
		t.Fatalf("decision = %+v, want DNC block", d)
	}
	// DNC blocks are recorded in the log, not as violations.
	if n, _ := vs.CountSince(context.Background(), time.Time{}); n != 0 {
		t.Fatalf("violations = %d, want 0", n)
	}
}

func TestGateCallingHoursInContactZone(t *testing.T) {
	g, _, _, _ := newTestGate()
	s := permissiveSettings()
	s.CallingHoursStart = "08:00"
	s.CallingHoursEnd = "21:00"

	// 12:00 UTC in winter is 04:00 in Los Angeles and 13:00 in Berlin.
	winterNoon := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		zone  string
		allow bool
	}{
		{"UTC", true},
		{"America/Los_Angeles", false},
		{"Europe/Berlin", true},
	}
	for _, tc := range cases {
		ct := contacts.Contact{ContactID: "ct-" + tc.zone, PhoneNumber: "+15550001000", TimeZone: tc.zone}
		d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, winterNoon)
		if err != nil {
			t.Fatalf("%s: %v", tc.zone, err)
		}
		if d.Allow != tc.allow {
			t.Errorf("%s: allow = %v, want %v (%s)", tc.zone, d.Allow, tc.allow, d.Reason)
		}
		if !tc.allow && d.Code != BlockOutsideHours {
			t.Errorf("%s: code = %s, want outside_calling_hours", tc.zone, d.Code)
		}
	}

	// The window end is exclusive: 21:00 sharp is already outside.
	ct := contacts.Contact{ContactID: "ct-edge", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	atEnd := time.Date(2026, 1, 15, 21, 0, 0, 0, time.UTC)
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, atEnd)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow {
		t.Fatal("21:00 sharp allowed, window end must be exclusive")
	}
	beforeEnd := time.Date(2026, 1, 15, 20, 59, 0, 0, time.UTC)
	d, err = g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, beforeEnd)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("20:59 blocked: %+v", d)
	}
}

func TestGateOvernightWindow(t *testing.T) {
	g, _, _, _ := newTestGate()
	s := permissiveSettings()
	s.CallingHoursStart = "20:00"
	s.CallingHoursEnd = "06:00"

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	cases := []struct {
		hour  int
		allow bool
	}{
		{23, true},
		{3, true},
		{12, false},
		{19, false},
	}
	for _, tc := range cases {
		at := time.Date(2026, 3, 4, tc.hour, 0, 0, 0, time.UTC)
		d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, at)
		if err != nil {
			t.Fatalf("hour %d: %v", tc.hour, err)
		}
		if d.Allow != tc.allow {
			t.Errorf("hour %d: allow = %v, want %v", tc.hour, d.Allow, tc.allow)
		}
	}
}

func TestGateBlocksInvalidTimeZone(t *testing.T) {
	g, _, _, _ := newTestGate()
	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "Mars/Olympus_Mons"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, permissiveSettings(), noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow || d.Code != BlockInvalidTimeZone {
		t.Fatalf("decision = %+v, want invalid_time_zone block", d)
	}
}

func TestGateDailyCapWritesTCPAViolation(t *testing.T) {
	g, _, as, vs := newTestGate()
	s := permissiveSettings()
	s.DailyAttemptsLimit = 2
	seedAttempts(t, as, "ct-1", 2, noonUTC.Add(-2*time.Hour))

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow || d.Code != BlockDailyLimit {
		t.Fatalf("decision = %+v, want daily_attempt_limit block", d)
	}
	vlist, n, err := vs.ListRange(context.Background(), time.Time{}, time.Time{}, 1, 10)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if n != 1 || vlist[0].Type != ViolationTCPA {
		t.Fatalf("violations = %+v, want one TCPA", vlist)
	}
}

func TestGateYesterdayAttemptsDoNotCountToday(t *testing.T) {
	g, _, as, _ := newTestGate()
	s := permissiveSettings()
	s.DailyAttemptsLimit = 1
	seedAttempts(t, as, "ct-1", 3, noonUTC.Add(-36*time.Hour))

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("blocked by yesterday's attempts: %+v", d)
	}
}

func TestGateWeeklyCapOnlyUnderTCPA(t *testing.T) {
	g, _, as, _ := newTestGate()
	s := permissiveSettings()
	s.WeeklyAttemptsLimit = 2
	seedAttempts(t, as, "ct-1", 2, noonUTC.Add(-48*time.Hour))

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow || d.Code != BlockWeeklyLimit {
		t.Fatalf("decision = %+v, want weekly_attempt_limit block", d)
	}

	s.EnforceTCPA = false
	d, err = g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("weekly cap enforced with TCPA off: %+v", d)
	}
}

func TestGateLifetimeCapWritesFDCPAViolation(t *testing.T) {
	g, _, as, vs := newTestGate()
	s := permissiveSettings()
	s.TotalAttemptsLimit = 3
	// Spread far apart so only the lifetime cap can trip.
	seedAttempts(t, as, "ct-1", 1, noonUTC.Add(-40*24*time.Hour))
	seedAttempts(t, as, "ct-1", 1, noonUTC.Add(-20*24*time.Hour))
	seedAttempts(t, as, "ct-1", 1, noonUTC.Add(-10*24*time.Hour))

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allow || d.Code != BlockTotalLimit {
		t.Fatalf("decision = %+v, want total_attempt_limit block", d)
	}
	vlist, _, err := vs.ListRange(context.Background(), time.Time{}, time.Time{}, 1, 10)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(vlist) != 1 || vlist[0].Type != ViolationFDCPA {
		t.Fatalf("violations = %+v, want one FDCPA", vlist)
	}

	s.EnforceFDCPA = false
	d, err = g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("lifetime cap enforced with FDCPA off: %+v", d)
	}
}

func TestGateBlockedRowsDoNotConsumeAttempts(t *testing.T) {
	g, _, as, _ := newTestGate()
	s := permissiveSettings()
	s.DailyAttemptsLimit = 1

	// A blocked row earlier today must not count toward the daily cap.
	if _, err := as.RecordBlocked(context.Background(), attempts.AttemptLog{
		CampaignID: "prior", ContactID: "ct-1", PhoneNumber: "+15550001000",
		RequestedAt: noonUTC.Add(-time.Hour), Outcome: attempts.OutcomeComplianceBlocked,
	}); err != nil {
		t.Fatalf("RecordBlocked: %v", err)
	}

	ct := contacts.Contact{ContactID: "ct-1", PhoneNumber: "+15550001000", TimeZone: "UTC"}
	d, err := g.Evaluate(context.Background(), ct, campaigns.Campaign{CampaignID: "c1"}, s, noonUTC)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allow {
		t.Fatalf("blocked row consumed the daily budget: %+v", d)
	}
}
