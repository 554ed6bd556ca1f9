package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Event is one concrete calendar occurrence. A zero StartTime means the
// source supplied no usable start; a nil EndTime means a point event.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID      string     `bun:"user_id,notnull"`
	Title       string     `bun:"title,notnull"`
	Description string     `bun:"description"`
	StartTime   time.Time  `bun:"start_time"`
	EndTime     *time.Time `bun:"end_time"`
	IsRecurring bool       `bun:"is_recurring,notnull"`
	SeriesKey   string     `bun:"series_key"`
	Capacity    *int       `bun:"capacity"`
	GoingCount  int        `bun:"going_count,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func (e *Event) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

type EventAttendee struct {
	bun.BaseModel `bun:"table:event_attendees"`

	EventID   uuid.UUID `bun:"event_id,pk,type:uuid"`
	UserID    string    `bun:"user_id,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (a *EventAttendee) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

type Friendship struct {
	bun.BaseModel `bun:"table:friendships"`

	UserID    string    `bun:"user_id,pk"`
	FriendID  string    `bun:"friend_id,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (f *Friendship) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return nil
}
