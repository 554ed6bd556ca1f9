package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gatherly/backend/internal/domain"
)

type EventRepository interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	CreateSeries(ctx context.Context, evs []domain.Event) ([]domain.Event, error)
	DeleteEvent(ctx context.Context, userID string, eventID uuid.UUID) error

	// ListCalendarEvents returns the user's commitments (owned plus
	// attending) overlapping the window.
	ListCalendarEvents(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Event, error)

	// ListFeedEvents returns events visible to the viewer (their own and
	// their friends') starting before windowEnd, past occurrences included
	// so series counts stay meaningful.
	ListFeedEvents(ctx context.Context, viewerID string, windowEnd time.Time) ([]domain.Event, error)

	JoinEvent(ctx context.Context, userID string, eventID uuid.UUID) error
	LeaveEvent(ctx context.Context, userID string, eventID uuid.UUID) error
}
