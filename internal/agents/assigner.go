package agents

import (
	"sync"
	"time"
)

// Assigner picks one agent from the currently available candidates.
// It is a strategy object: the dial worker depends only on this capability,
// so smarter load balancing can be swapped in without touching the worker.
type Assigner interface {
	Assign(candidates []string) (string, error)
}

// LeastRecentlyAssigned hands each call to the candidate that has gone
// longest without an assignment, which degrades to round-robin when the
// pool is stable.
type LeastRecentlyAssigned struct {
	clock func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewLeastRecentlyAssigned() *LeastRecentlyAssigned {
	return &LeastRecentlyAssigned{clock: time.Now, last: map[string]time.Time{}}
}

func (a *LeastRecentlyAssigned) Assign(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgentsAvailable
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	best := candidates[0]
	bestAt, bestSeen := a.last[best]
	for _, c := range candidates[1:] {
		at, seen := a.last[c]
		// Never-assigned candidates win outright; otherwise oldest wins.
		if bestSeen && (!seen || at.Before(bestAt)) {
			best = c
			bestAt, bestSeen = at, seen
		}
	}
	a.last[best] = a.clock()
	return best, nil
}
