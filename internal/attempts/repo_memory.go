package attempts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory attempt log used by tests and local runs.
// It enforces the same invariants as the Postgres store: per-contact
// attempt numbering and write-once terminal outcomes.
type MemoryStore struct {
	mu   sync.Mutex
	rows []*AttemptLog

	// counters tracks the last attempt number per campaign|contact.
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: map[string]int{}}
}

func counterKey(campaignID, contactID string) string {
	return campaignID + "|" + contactID
}

func (s *MemoryStore) Begin(ctx context.Context, a AttemptLog) (AttemptLog, error) {
	if err := validateNew(a); err != nil {
		return AttemptLog{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(a.CampaignID, a.ContactID)
	s.counters[key]++
	a.ID = uuid.NewString()
	a.AttemptNumber = s.counters[key]
	a.Outcome = OutcomeQueued
	a.ResolvedAt = nil

	row := a
	s.rows = append(s.rows, &row)
	return row, nil
}

func (s *MemoryStore) MarkDialing(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(id)
	if row == nil {
		return ErrNotFound
	}
	if row.Outcome.IsTerminal() {
		return ErrAlreadyFinal
	}
	row.Outcome = OutcomeDialing
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, id string, outcome Outcome, durationSeconds int, providerDetails string, at time.Time) error {
	if !outcome.IsTerminal() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.find(id)
	if row == nil {
		return ErrNotFound
	}
	if row.Outcome.IsTerminal() {
		return ErrAlreadyFinal
	}
	row.Outcome = outcome
	row.ProviderDetails = providerDetails
	if outcome == OutcomeAnswered || outcome == OutcomeCompleted {
		row.CallDurationSeconds = durationSeconds
	}
	t := at.UTC()
	row.ResolvedAt = &t
	return nil
}

func (s *MemoryStore) RecordBlocked(ctx context.Context, a AttemptLog) (AttemptLog, error) {
	if err := validateNew(a); err != nil {
		return AttemptLog{}, err
	}
	if !a.Outcome.IsBlocked() {
		return AttemptLog{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(a.CampaignID, a.ContactID)
	s.counters[key]++
	a.ID = uuid.NewString()
	a.AttemptNumber = s.counters[key]
	t := a.RequestedAt.UTC()
	a.ResolvedAt = &t

	row := a
	s.rows = append(s.rows, &row)
	return row, nil
}

func (s *MemoryStore) ListByCampaign(ctx context.Context, campaignID string, q LogQuery) ([]AttemptLog, int, error) {
	if campaignID == "" {
		return nil, 0, ErrInvalidArgument
	}
	q = q.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]AttemptLog, 0)
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	for _, r := range s.rows {
		if r.CampaignID != campaignID {
			continue
		}
		if needle != "" && !matchesSearch(*r, needle) {
			continue
		}
		matched = append(matched, *r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})

	total := len(matched)
	start := (q.Page - 1) * q.PerPage
	if start >= total {
		return []AttemptLog{}, total, nil
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesSearch(a AttemptLog, needle string) bool {
	return strings.Contains(strings.ToLower(a.PhoneNumber), needle) ||
		strings.Contains(strings.ToLower(string(a.Outcome)), needle) ||
		strings.Contains(strings.ToLower(a.ProviderDetails), needle)
}

func (s *MemoryStore) CountContactAttemptsSince(ctx context.Context, contactID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.ContactID == contactID && r.Outcome.CountsAsAttempt() && !r.RequestedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountContactAttempts(ctx context.Context, contactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.ContactID == contactID && r.Outcome.CountsAsAttempt() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if !r.Outcome.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountByOutcomeSince(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Outcome]int{}
	for _, r := range s.rows {
		if r.RequestedAt.Before(since) {
			continue
		}
		out[r.Outcome]++
	}
	return out, nil
}

func (s *MemoryStore) CountDialedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.Outcome.CountsAsAttempt() && !r.RequestedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AverageDurationSince(ctx context.Context, since time.Time) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, n := 0, 0
	for _, r := range s.rows {
		if r.Outcome != OutcomeAnswered && r.Outcome != OutcomeCompleted {
			continue
		}
		if r.ResolvedAt == nil || r.ResolvedAt.Before(since) {
			continue
		}
		sum += r.CallDurationSeconds
		n++
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

func (s *MemoryStore) find(id string) *AttemptLog {
	for _, r := range s.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}
