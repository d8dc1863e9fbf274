package ports

import (
	"context"

	"github.com/extropian/motionsync/internal/domain"
)

// SessionSink persists an assembled session.
// The coordinator calls Persist at most once per session and never retries;
// implementations must tolerate a repeated call with the same payload ID.
type SessionSink interface {
	Persist(ctx context.Context, payload *domain.SessionPayload) error
}
