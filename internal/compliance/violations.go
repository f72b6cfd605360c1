package compliance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViolationRepository is the persistence contract for violations.
// Append-only: there are no update or delete operations.
type ViolationRepository interface {
	Append(ctx context.Context, v Violation) error
	ListRange(ctx context.Context, from, to time.Time, page, perPage int) ([]Violation, int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// MemoryViolations is the in-memory violation store for tests.
type MemoryViolations struct {
	mu   sync.Mutex
	rows []Violation
}

func NewMemoryViolations() *MemoryViolations { return &MemoryViolations{} }

func (r *MemoryViolations) Append(ctx context.Context, v Violation) error {
	if v.PhoneNumber == "" || v.Type == "" {
		return ErrInvalidArgument
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, v)
	return nil
}

func (r *MemoryViolations) ListRange(ctx context.Context, from, to time.Time, page, perPage int) ([]Violation, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]Violation, 0)
	for _, v := range r.rows {
		if !from.IsZero() && v.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !v.Timestamp.Before(to) {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []Violation{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryViolations) CountSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.rows {
		if !v.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}
