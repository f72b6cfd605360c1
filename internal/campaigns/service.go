package campaigns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer-engine/internal/audit"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("campaigns: not found")
	ErrInvalidArgument = errors.New("campaigns: invalid argument")
)

// Repository abstracts campaign persistence.
type Repository interface {
	Create(ctx context.Context, c Campaign) error
	Get(ctx context.Context, id string) (Campaign, error)
	List(ctx context.Context) ([]Campaign, error)
	Update(ctx context.Context, c Campaign) error
}

// Service owns campaign configuration and lifecycle.
//
// Status changes go through the state machine without exception; the
// orchestrator calls the same methods for its automatic transitions
// (Complete, Fail) as the API does for operator actions.
type Service struct {
	repo  Repository
	audit *audit.Service
	clock func() time.Time
}

func NewService(repo Repository, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, audit: auditSvc, clock: time.Now}
}

type CreateRequest struct {
	Name                 string   `json:"name"`
	ContactGroupID       string   `json:"contact_group_id"`
	CallerIDs            []string `json:"caller_ids"`
	AssignedAgentID      string   `json:"assigned_agent_id"`
	TargetCallsPerMinute int      `json:"target_calls_per_minute"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Campaign, error) {
	if req.Name == "" || req.ContactGroupID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	if len(req.CallerIDs) == 0 {
		return Campaign{}, fmt.Errorf("%w: at least one caller ID required", ErrInvalidArgument)
	}
	if req.TargetCallsPerMinute < 1 || req.TargetCallsPerMinute > 60 {
		return Campaign{}, fmt.Errorf("%w: target_calls_per_minute must be 1..60, got %d", ErrInvalidArgument, req.TargetCallsPerMinute)
	}

	now := s.clock().UTC()
	c := Campaign{
		CampaignID:           uuid.NewString(),
		Name:                 req.Name,
		Status:               StatusQueued,
		ContactGroupID:       req.ContactGroupID,
		CallerIDs:            append([]string(nil), req.CallerIDs...),
		AssignedAgentID:      req.AssignedAgentID,
		TargetCallsPerMinute: req.TargetCallsPerMinute,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Campaign, error) {
	return s.repo.List(ctx)
}

// Start moves queued -> running.
func (s *Service) Start(ctx context.Context, id string) (Campaign, error) {
	return s.transition(ctx, id, StatusRunning, "")
}

// Pause moves running -> paused. In-flight calls are not canceled; only
// new admissions stop.
func (s *Service) Pause(ctx context.Context, id string) (Campaign, error) {
	return s.transition(ctx, id, StatusPaused, "")
}

// Resume moves paused -> running.
func (s *Service) Resume(ctx context.Context, id string) (Campaign, error) {
	return s.transition(ctx, id, StatusRunning, "")
}

// Complete is the orchestrator's automatic transition when the contact
// pool is exhausted and no attempts remain in flight.
// UpdateRate changes the pacing target of a non-terminal campaign.
func (s *Service) UpdateRate(ctx context.Context, id string, ratePerMinute int) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	if ratePerMinute < 1 || ratePerMinute > 60 {
		return Campaign{}, fmt.Errorf("%w: target_calls_per_minute must be 1..60, got %d", ErrInvalidArgument, ratePerMinute)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status.IsTerminal() {
		return Campaign{}, fmt.Errorf("%w: %s campaign cannot be repaced", ErrInvalidTransition, c.Status)
	}
	c.TargetCallsPerMinute = ratePerMinute
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *Service) Complete(ctx context.Context, id string) (Campaign, error) {
	return s.transition(ctx, id, StatusCompleted, "")
}

// Fail marks the campaign terminally failed with a reason.
func (s *Service) Fail(ctx context.Context, id, reason string) (Campaign, error) {
	return s.transition(ctx, id, StatusFailed, reason)
}

func (s *Service) transition(ctx context.Context, id string, to CampaignStatus, reason string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	from := c.Status
	if err := Transition(&c, to); err != nil {
		return Campaign{}, err
	}
	if reason != "" {
		c.LastError = reason
	}
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Campaign{}, err
	}
	s.logTransition(ctx, c, from, reason)
	return c, nil
}

// logTransition is best-effort; lifecycle changes must not fail on audit.
func (s *Service) logTransition(ctx context.Context, c Campaign, from CampaignStatus, reason string) {
	if s.audit == nil {
		return
	}
	msg := fmt.Sprintf("campaign %s: %s -> %s", c.Name, from, c.Status)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	_ = s.audit.LogCampaignTransition(ctx, c.CampaignID, string(from), string(c.Status), msg)
}
