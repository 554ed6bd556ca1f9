package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"gatherly/backend/internal/domain"
	"gatherly/backend/internal/store"
)

type EventRepo struct {
	db *bun.DB
}

func NewEventRepo(db *bun.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	m := ev

	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Duplicate id: either an idempotent retry or a key reuse with
			// different payload.
			var existing domain.Event
			selectErr := r.db.NewSelect().
				Model(&existing).
				Where("id = ?", m.ID).
				Limit(1).
				Scan(ctx)
			if selectErr != nil {
				return domain.Event{}, err
			}
			if !sameEventPayload(existing, ev) {
				return domain.Event{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
		return domain.Event{}, err
	}

	ev.ID = m.ID
	ev.CreatedAt = m.CreatedAt
	ev.UpdatedAt = m.UpdatedAt
	return ev, nil
}

func (r *EventRepo) CreateSeries(ctx context.Context, evs []domain.Event) ([]domain.Event, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	rows := make([]domain.Event, len(evs))
	copy(rows, evs)

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepo) DeleteEvent(ctx context.Context, userID string, eventID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Event)(nil)).
		Where("user_id = ?", userID).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *EventRepo) ListCalendarEvents(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Event, error) {
	var owned []domain.Event
	err := r.db.NewSelect().
		Model(&owned).
		Where("user_id = ?", userID).
		Where("start_time < ?", windowEnd).
		Where("COALESCE(end_time, start_time + interval '1 minute') > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var attending []domain.Event
	err = r.db.NewSelect().
		Model(&attending).
		Join("JOIN event_attendees AS a ON a.event_id = event.id").
		Where("a.user_id = ?", userID).
		Where("start_time < ?", windowEnd).
		Where("COALESCE(end_time, start_time + interval '1 minute') > ?", windowStart).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return mergeEventLists(owned, attending), nil
}

func (r *EventRepo) ListFeedEvents(ctx context.Context, viewerID string, windowEnd time.Time) ([]domain.Event, error) {
	var friends []domain.Friendship
	err := r.db.NewSelect().
		Model(&friends).
		Where("user_id = ?", viewerID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(friends)+1)
	visible = append(visible, viewerID)
	for _, f := range friends {
		visible = append(visible, f.FriendID)
	}

	var rows []domain.Event
	err = r.db.NewSelect().
		Model(&rows).
		Where("user_id IN (?)", bun.In(visible)).
		Where("start_time < ?", windowEnd).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepo) JoinEvent(ctx context.Context, userID string, eventID uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}

		var ev domain.Event
		err := tx.NewSelect().
			Model(&ev).
			Where("id = ?", eventID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if !hasCapacity(ev) {
			return store.ErrCapacityFull
		}

		attendee := domain.EventAttendee{EventID: eventID, UserID: userID}
		res, err := tx.NewInsert().
			Model(&attendee).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Already attending; joining twice is a no-op.
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*domain.Event)(nil)).
			Set("going_count = going_count + 1").
			Where("id = ?", eventID).
			Exec(ctx)
		return err
	})
}

func (r *EventRepo) LeaveEvent(ctx context.Context, userID string, eventID uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*domain.EventAttendee)(nil)).
			Where("event_id = ?", eventID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}

		_, err = tx.NewUpdate().
			Model((*domain.Event)(nil)).
			Set("going_count = GREATEST(going_count - 1, 0)").
			Where("id = ?", eventID).
			Exec(ctx)
		return err
	})
}

// lockEvent serializes attendance changes for one event so capacity checks
// cannot race.
func lockEvent(ctx context.Context, tx bun.Tx, eventID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", eventID.String()).Exec(ctx)
	return err
}

func hasCapacity(ev domain.Event) bool {
	if ev.Capacity == nil {
		return true
	}
	return ev.GoingCount < *ev.Capacity
}

func sameEventPayload(a, b domain.Event) bool {
	endEqual := (a.EndTime == nil) == (b.EndTime == nil)
	if endEqual && a.EndTime != nil {
		endEqual = a.EndTime.Equal(*b.EndTime)
	}
	return a.UserID == b.UserID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.StartTime.Equal(b.StartTime) &&
		endEqual &&
		a.SeriesKey == b.SeriesKey
}

// mergeEventLists combines owned and attending rows, dropping duplicates
// (a user attending their own event), sorted by start time ascending.
func mergeEventLists(owned, attending []domain.Event) []domain.Event {
	out := make([]domain.Event, 0, len(owned)+len(attending))
	seen := make(map[uuid.UUID]struct{}, len(owned)+len(attending))

	for _, lists := range [][]domain.Event{owned, attending} {
		for _, e := range lists {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
