package campaigns

import (
	"errors"
	"fmt"
)

// The campaign lifecycle:
//
//	queued -> running <-> paused
//	running -> completed (automatic, pool exhausted and no in-flight calls)
//	any non-terminal -> failed (unrecoverable error; manual relaunch only)
//
// All status mutations must go through Transition so the invariants hold
// everywhere, including the orchestrator's automatic transitions.

var ErrInvalidTransition = errors.New("campaigns: invalid status transition")

var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	StatusQueued:  {StatusRunning, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusFailed},
	// completed and failed: none.
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change on c.
// Entering running additionally requires a non-empty caller ID pool.
func Transition(c *Campaign, to CampaignStatus) error {
	if c == nil {
		return errors.New("campaigns: nil campaign")
	}
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if to == StatusRunning && len(c.CallerIDs) == 0 {
		return fmt.Errorf("%w: cannot run without caller IDs", ErrInvalidTransition)
	}
	c.Status = to
	return nil
}
