package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatherly/backend/internal/domain"
	"gatherly/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// NewValidationError reports a rejected input. Callers match it with
// errors.As.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

const maxEventDuration = 24 * time.Hour

// Limits bounds recurrence expansion and feed horizon. Zero values fall
// back to package defaults.
type Limits struct {
	RecurrenceLookahead time.Duration
	MaxOccurrences      int
	FeedLookahead       time.Duration
}

const defaultFeedLookahead = 90 * 24 * time.Hour

type Service struct {
	repo   store.EventRepository
	limits Limits
}

func NewService(repo store.EventRepository, limits Limits) *Service {
	if limits.RecurrenceLookahead <= 0 {
		limits.RecurrenceLookahead = domain.DefaultRecurrenceLookahead
	}
	if limits.MaxOccurrences <= 0 {
		limits.MaxOccurrences = domain.DefaultMaxOccurrences
	}
	if limits.FeedLookahead <= 0 {
		limits.FeedLookahead = defaultFeedLookahead
	}
	return &Service{repo: repo, limits: limits}
}

type CreateInput struct {
	UserID         string
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        *time.Time
	Capacity       *int
	IdempotencyKey string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Event, error) {
	ev, err := buildEvent(in)
	if err != nil {
		return domain.Event{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Event{}, validationError("idempotency_key too long")
		}
		ev.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("gatherly:create_event:"+in.UserID+":"+key))
	}

	return s.repo.CreateEvent(ctx, ev)
}

type CreateRecurringInput struct {
	UserID      string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	Capacity    *int
	RRule       string
	TimeZone    string
}

// CreateRecurring expands the rule into concrete occurrence rows, all
// stamped with one freshly minted series key so the feed can collapse them
// later.
func (s *Service) CreateRecurring(ctx context.Context, in CreateRecurringInput) ([]domain.Event, error) {
	base, err := buildEvent(CreateInput{
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Capacity:    in.Capacity,
	})
	if err != nil {
		return nil, err
	}

	starts, err := domain.ExpandRecurrence(
		domain.RecurrenceRule{RRule: in.RRule, TimeZone: in.TimeZone},
		base.StartTime,
		domain.ExpandOptions{
			Lookahead:      s.limits.RecurrenceLookahead,
			MaxOccurrences: s.limits.MaxOccurrences,
		},
	)
	if err != nil {
		return nil, validationError(err.Error())
	}

	var duration time.Duration
	if base.EndTime != nil {
		duration = base.EndTime.Sub(base.StartTime)
	}

	seriesID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	seriesKey := in.UserID + ":" + seriesID.String()

	occurrences := make([]domain.Event, 0, len(starts))
	for _, start := range starts {
		occ := base
		occ.StartTime = start
		occ.EndTime = nil
		if duration > 0 {
			end := start.Add(duration)
			occ.EndTime = &end
		}
		occ.IsRecurring = true
		occ.SeriesKey = seriesKey
		occurrences = append(occurrences, occ)
	}

	return s.repo.CreateSeries(ctx, occurrences)
}

// FeedItem is one row of the rendered feed: a collapsed series plus the
// viewer's availability for its representative occurrence.
type FeedItem struct {
	Series       domain.EventSeries  `json:"series"`
	Availability domain.Availability `json:"availability"`
}

// Feed groups everything visible to the viewer into series and labels each
// with the viewer's availability. Items are ordered by the representative
// occurrence's start time.
func (s *Service) Feed(ctx context.Context, viewerID string, now time.Time) ([]FeedItem, error) {
	if viewerID == "" {
		return nil, validationError("user_id is required")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	horizon := now.Add(s.limits.FeedLookahead)

	visible, err := s.repo.ListFeedEvents(ctx, viewerID, horizon)
	if err != nil {
		return nil, err
	}

	// The calendar window stretches back one max event duration so an
	// ongoing commitment still counts as a conflict.
	calendar, err := s.repo.ListCalendarEvents(ctx, viewerID, now.Add(-maxEventDuration), horizon)
	if err != nil {
		return nil, err
	}

	series := domain.GroupEventsIntoSeries(now, visible)

	items := make([]FeedItem, 0, len(series))
	for _, sr := range series {
		items = append(items, FeedItem{
			Series:       sr,
			Availability: domain.ComputeSeriesAvailability(sr, calendar),
		})
	}
	return items, nil
}

func (s *Service) ListCalendar(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Event, error) {
	if userID == "" {
		return nil, validationError("user_id is required")
	}

	start := windowStart.UTC()
	end := windowEnd.UTC()
	if end.Equal(start) || end.Before(start) {
		return nil, validationError("window_end must be after window_start")
	}

	return s.repo.ListCalendarEvents(ctx, userID, start, end)
}

func (s *Service) Delete(ctx context.Context, userID string, eventID uuid.UUID) error {
	if userID == "" {
		return validationError("user_id is required")
	}
	if eventID == uuid.Nil {
		return validationError("event_id is required")
	}
	return s.repo.DeleteEvent(ctx, userID, eventID)
}

func (s *Service) Join(ctx context.Context, userID string, eventID uuid.UUID) error {
	if userID == "" {
		return validationError("user_id is required")
	}
	if eventID == uuid.Nil {
		return validationError("event_id is required")
	}
	return s.repo.JoinEvent(ctx, userID, eventID)
}

func (s *Service) Leave(ctx context.Context, userID string, eventID uuid.UUID) error {
	if userID == "" {
		return validationError("user_id is required")
	}
	if eventID == uuid.Nil {
		return validationError("event_id is required")
	}
	return s.repo.LeaveEvent(ctx, userID, eventID)
}

func buildEvent(in CreateInput) (domain.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Event{}, validationError("title is required")
	}
	if in.UserID == "" {
		return domain.Event{}, validationError("user_id is required")
	}
	if in.StartTime.IsZero() {
		return domain.Event{}, validationError("start_time is required")
	}

	start := in.StartTime.UTC()

	var end *time.Time
	if in.EndTime != nil {
		e := in.EndTime.UTC()
		if e.Equal(start) || e.Before(start) {
			return domain.Event{}, validationError("end_time must be after start_time")
		}
		if e.Sub(start) > maxEventDuration {
			return domain.Event{}, validationError("duration too long")
		}
		end = &e
	}

	if in.Capacity != nil && *in.Capacity < 1 {
		return domain.Event{}, validationError("capacity must be at least 1")
	}

	return domain.Event{
		UserID:      in.UserID,
		Title:       title,
		Description: in.Description,
		StartTime:   start,
		EndTime:     end,
		Capacity:    in.Capacity,
	}, nil
}
