package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// Append-only: there are no update or delete operations.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal engine audit information.
//
// IMPORTANT:
//   - Audit is internal-only. Do not expose these records on the dashboard
//     API by default.
//   - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignTransition records a lifecycle move, operator-driven or automatic.
func (s *Service) LogCampaignTransition(ctx context.Context, campaignID, from, to, message string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeCampaignTransition,
		CampaignID: campaignID,
		FromStatus: from,
		ToStatus:   to,
		Message:    message,
	})
}

// LogSettingsUpdate records an administrator compliance settings change.
func (s *Service) LogSettingsUpdate(ctx context.Context, actorUserID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeSettingsUpdate,
		ActorUserID: actorUserID,
		Message:     message,
		Metadata:    metadata,
	})
}
