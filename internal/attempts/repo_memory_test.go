package attempts

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_AttemptNumbersIncreasePerContact(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	for i := 1; i <= 3; i++ {
		a, err := s.Begin(context.Background(), AttemptLog{
			CampaignID:  "camp",
			ContactID:   "c1",
			PhoneNumber: "+15550001111",
			RequestedAt: now,
		})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if a.AttemptNumber != i {
			t.Fatalf("expected attempt %d, got %d", i, a.AttemptNumber)
		}
	}

	// Another contact starts its own sequence.
	a, err := s.Begin(context.Background(), AttemptLog{
		CampaignID:  "camp",
		ContactID:   "c2",
		PhoneNumber: "+15550002222",
		RequestedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a.AttemptNumber != 1 {
		t.Fatalf("expected attempt 1 for new contact, got %d", a.AttemptNumber)
	}
}

func TestMemoryStore_FinalizeIsWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()
	a, err := s.Begin(context.Background(), AttemptLog{
		CampaignID:  "camp",
		ContactID:   "c1",
		PhoneNumber: "+15550001111",
		RequestedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if err := s.MarkDialing(context.Background(), a.ID, now); err != nil {
		t.Fatalf("mark dialing: %v", err)
	}
	if err := s.Finalize(context.Background(), a.ID, OutcomeCompleted, 42, "", now.Add(time.Minute)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := s.Finalize(context.Background(), a.ID, OutcomeFailed, 0, "late callback", now.Add(2*time.Minute)); err != ErrAlreadyFinal {
		t.Fatalf("expected ErrAlreadyFinal, got %v", err)
	}

	rows, total, err := s.ListByCampaign(context.Background(), "camp", LogQuery{})
	if err != nil || total != 1 {
		t.Fatalf("list: total=%d err=%v", total, err)
	}
	if rows[0].Outcome != OutcomeCompleted || rows[0].CallDurationSeconds != 42 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestMemoryStore_BlockedRowsDoNotCountAsAttempts(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	if _, err := s.RecordBlocked(context.Background(), AttemptLog{
		CampaignID:  "camp",
		ContactID:   "c1",
		PhoneNumber: "+15550001111",
		RequestedAt: now,
		Outcome:     OutcomeDNCBlocked,
	}); err != nil {
		t.Fatalf("record blocked: %v", err)
	}
	if _, err := s.Begin(context.Background(), AttemptLog{
		CampaignID:  "camp",
		ContactID:   "c1",
		PhoneNumber: "+15550001111",
		RequestedAt: now,
	}); err != nil {
		t.Fatalf("begin: %v", err)
	}

	n, err := s.CountContactAttempts(context.Background(), "c1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 countable attempt, got %d", n)
	}
	total, err := s.CountContactAttemptsSince(context.Background(), "c1", now.Add(-time.Hour))
	if err != nil || total != 1 {
		t.Fatalf("expected 1 since-count, got %d err=%v", total, err)
	}
}

func TestMemoryStore_ListSearchAndPagination(t *testing.T) {
	s := NewMemoryStore()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 5; i++ {
		a, err := s.Begin(context.Background(), AttemptLog{
			CampaignID:  "camp",
			ContactID:   "c1",
			PhoneNumber: "+15550001111",
			RequestedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		outcome := OutcomeCompleted
		details := ""
		if i == 4 {
			outcome = OutcomeFailed
			details = "carrier timeout"
		}
		if err := s.Finalize(context.Background(), a.ID, outcome, 10, details, base.Add(time.Hour)); err != nil {
			t.Fatalf("finalize: %v", err)
		}
	}

	rows, total, err := s.ListByCampaign(context.Background(), "camp", LogQuery{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(rows) != 2 {
		t.Fatalf("expected total 5 page of 2, got total=%d len=%d", total, len(rows))
	}
	// Newest first.
	if !rows[0].RequestedAt.After(rows[1].RequestedAt) {
		t.Fatalf("expected newest-first ordering")
	}

	rows, total, err = s.ListByCampaign(context.Background(), "camp", LogQuery{Search: "timeout"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || rows[0].Outcome != OutcomeFailed {
		t.Fatalf("expected the failed row, got total=%d rows=%+v", total, rows)
	}
}
