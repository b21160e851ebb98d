package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users by default.
// - Callers should treat audit logging as best-effort.

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

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminCredit records an admin-issued wallet adjustment.
func (s *Service) LogAdminCredit(ctx context.Context, actorUserID, actorRole, ip, targetUserID string, points int64, externalRef string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeAdminAction,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		IPAddress:    ip,
		TargetUserID: targetUserID,
		Message:      "wallet credit",
		Metadata:     fmt.Sprintf(`{"points":%d,"external_ref":%q}`, points, externalRef),
	})
}

// LogCallEnd records a call termination for internal traceability.
func (s *Service) LogCallEnd(ctx context.Context, callID, reason string, durationSeconds int, totalChargedPoints int64) error {
	return s.Append(ctx, Event{
		Type:     EventTypeCallEnd,
		CallID:   callID,
		Message:  "call ended: " + reason,
		Metadata: fmt.Sprintf(`{"duration_seconds":%d,"total_charged_points":%d}`, durationSeconds, totalChargedPoints),
	})
}
