package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"gatherly/backend/internal/domain"
	"gatherly/backend/internal/store"
)

const testSchemaDDL = `
CREATE TABLE events (
	id uuid PRIMARY KEY,
	user_id text NOT NULL,
	title text NOT NULL,
	description text,
	start_time timestamptz,
	end_time timestamptz,
	is_recurring boolean NOT NULL DEFAULT false,
	series_key text,
	capacity integer,
	going_count integer NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL
);

CREATE TABLE event_attendees (
	event_id uuid NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	user_id text NOT NULL,
	created_at timestamptz NOT NULL,
	PRIMARY KEY (event_id, user_id)
);

CREATE TABLE friendships (
	user_id text NOT NULL,
	friend_id text NOT NULL,
	created_at timestamptz NOT NULL,
	PRIMARY KEY (user_id, friend_id)
);
`

func openIntegrationDB(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("GATHERLY_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("GATHERLY_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Single connection so SET search_path applies to every query.
	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "gatherly_test_" + randomHex(t, 8)
	setupCtx, setupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer setupCancel()

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(setupCtx); err != nil {
		t.Fatalf("create schema error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(setupCtx); err != nil {
		t.Fatalf("set search_path error: %v", err)
	}
	if _, err := db.NewRaw(testSchemaDDL).Exec(setupCtx); err != nil {
		t.Fatalf("apply schema error: %v", err)
	}

	return db
}

func randomHex(t *testing.T, n int) string {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(buf)
}

func TestPostgresIntegration_EventLifecycle(t *testing.T) {
	db := openIntegrationDB(t)
	repo := NewEventRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	created, err := repo.CreateEvent(ctx, domain.Event{
		UserID:    "owner",
		Title:     "picnic",
		StartTime: start,
		EndTime:   &end,
	})
	if err != nil {
		t.Fatalf("CreateEvent error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	rows, err := repo.ListCalendarEvents(ctx, "owner", start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListCalendarEvents error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("rows = %v, want the created event", rows)
	}

	if err := repo.DeleteEvent(ctx, "owner", created.ID); err != nil {
		t.Fatalf("DeleteEvent error: %v", err)
	}
	if err := repo.DeleteEvent(ctx, "owner", created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_JoinCapacityAndFeedVisibility(t *testing.T) {
	db := openIntegrationDB(t)
	repo := NewEventRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	capacity := 1

	ev, err := repo.CreateEvent(ctx, domain.Event{
		UserID:    "owner",
		Title:     "dinner",
		StartTime: start,
		EndTime:   &end,
		Capacity:  &capacity,
	})
	if err != nil {
		t.Fatalf("CreateEvent error: %v", err)
	}

	if err := repo.JoinEvent(ctx, "guest1", ev.ID); err != nil {
		t.Fatalf("JoinEvent error: %v", err)
	}
	// Joining twice is a no-op, not a second seat.
	if err := repo.JoinEvent(ctx, "guest1", ev.ID); err != nil {
		t.Fatalf("repeat JoinEvent error: %v", err)
	}
	if err := repo.JoinEvent(ctx, "guest2", ev.ID); !errors.Is(err, store.ErrCapacityFull) {
		t.Fatalf("JoinEvent err = %v, want %v", err, store.ErrCapacityFull)
	}

	// The attending guest sees the event on their calendar.
	rows, err := repo.ListCalendarEvents(ctx, "guest1", start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListCalendarEvents error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != ev.ID {
		t.Fatalf("guest calendar = %v, want the joined event", rows)
	}

	if err := repo.LeaveEvent(ctx, "guest1", ev.ID); err != nil {
		t.Fatalf("LeaveEvent error: %v", err)
	}
	if err := repo.LeaveEvent(ctx, "guest1", ev.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second leave err = %v, want %v", err, store.ErrNotFound)
	}

	// Feed visibility follows friendship edges.
	friend := domain.Friendship{UserID: "viewer", FriendID: "owner"}
	if _, err := db.NewInsert().Model(&friend).Exec(ctx); err != nil {
		t.Fatalf("insert friendship error: %v", err)
	}

	feed, err := repo.ListFeedEvents(ctx, "viewer", end.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListFeedEvents error: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != ev.ID {
		t.Fatalf("feed = %v, want the friend's event", feed)
	}

	stranger, err := repo.ListFeedEvents(ctx, "stranger", end.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListFeedEvents error: %v", err)
	}
	if len(stranger) != 0 {
		t.Fatalf("stranger feed = %v, want empty", stranger)
	}
}

func TestPostgresIntegration_CreateSeriesBatch(t *testing.T) {
	db := openIntegrationDB(t)
	repo := NewEventRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	key := "owner:" + uuid.NewString()

	evs := make([]domain.Event, 0, 3)
	for i := 0; i < 3; i++ {
		occStart := start.Add(time.Duration(i) * 7 * 24 * time.Hour)
		occEnd := occStart.Add(time.Hour)
		evs = append(evs, domain.Event{
			UserID:      "owner",
			Title:       "book club",
			StartTime:   occStart,
			EndTime:     &occEnd,
			IsRecurring: true,
			SeriesKey:   key,
		})
	}

	created, err := repo.CreateSeries(ctx, evs)
	if err != nil {
		t.Fatalf("CreateSeries error: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("len(created) = %d, want 3", len(created))
	}
	for _, ev := range created {
		if ev.ID == uuid.Nil {
			t.Fatalf("expected generated id")
		}
		if ev.SeriesKey != key {
			t.Fatalf("series_key = %q, want %q", ev.SeriesKey, key)
		}
	}
}
