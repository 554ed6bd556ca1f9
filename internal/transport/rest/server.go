// Package rest exposes the events service as a JSON API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatherly/backend/internal/domain"
	"gatherly/backend/internal/ics"
	"gatherly/backend/internal/metrics"
	"gatherly/backend/internal/service/events"
	"gatherly/backend/internal/store"
)

type eventsService interface {
	Create(ctx context.Context, in events.CreateInput) (domain.Event, error)
	CreateRecurring(ctx context.Context, in events.CreateRecurringInput) ([]domain.Event, error)
	Feed(ctx context.Context, viewerID string, now time.Time) ([]events.FeedItem, error)
	ListCalendar(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Event, error)
	Delete(ctx context.Context, userID string, eventID uuid.UUID) error
	Join(ctx context.Context, userID string, eventID uuid.UUID) error
	Leave(ctx context.Context, userID string, eventID uuid.UUID) error
}

type Server struct {
	svc eventsService
	log *slog.Logger
}

func NewServer(svc eventsService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc: svc,
		log: log.With(slog.String("component", "rest.events")),
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events", MetricsMiddleware(s.handleCreateEvent, "create_event"))
	mux.HandleFunc("POST /api/events/recurring", MetricsMiddleware(s.handleCreateRecurring, "create_recurring"))
	mux.HandleFunc("GET /api/events/feed", MetricsMiddleware(s.handleFeed, "feed"))
	mux.HandleFunc("GET /api/events/calendar", MetricsMiddleware(s.handleCalendar, "calendar"))
	mux.HandleFunc("GET /api/events/calendar.ics", MetricsMiddleware(s.handleCalendarICS, "calendar_ics"))
	mux.HandleFunc("POST /api/events/{id}/join", MetricsMiddleware(s.handleJoin, "join"))
	mux.HandleFunc("POST /api/events/{id}/leave", MetricsMiddleware(s.handleLeave, "leave"))
	mux.HandleFunc("DELETE /api/events/{id}", MetricsMiddleware(s.handleDelete, "delete_event"))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
}

type createEventRequest struct {
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StartTime   string  `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Capacity    *int    `json:"capacity"`
}

type createRecurringRequest struct {
	createEventRequest
	RRule    string `json:"rrule"`
	TimeZone string `json:"time_zone"`
}

type eventPayload struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	IsRecurring bool    `json:"is_recurring"`
	SeriesKey   string  `json:"series_key,omitempty"`
	Capacity    *int    `json:"capacity,omitempty"`
	GoingCount  int     `json:"going_count"`
}

type feedItemPayload struct {
	SeriesKey       string       `json:"series_key"`
	NextEvent       eventPayload `json:"next_event"`
	OccurrenceCount int          `json:"occurrence_count"`
	IsRecurring     bool         `json:"is_recurring"`
	Availability    string       `json:"availability"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "CreateEvent"))

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid_argument", errors.New("invalid JSON body"))
		return
	}

	in, err := createInputFromRequest(req)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("user_id", req.UserID))
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	ev, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, log, err, req.UserID)
		return
	}

	log.Info(
		"event created",
		slog.String("event_id", ev.ID.String()),
		slog.String("user_id", ev.UserID),
		slog.Time("start_time", ev.StartTime),
	)
	writeJSON(w, http.StatusCreated, toEventPayload(ev))
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "CreateRecurring"))

	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid_argument", errors.New("invalid JSON body"))
		return
	}

	base, err := createInputFromRequest(req.createEventRequest)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("user_id", req.UserID))
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	occs, err := s.svc.CreateRecurring(r.Context(), events.CreateRecurringInput{
		UserID:      base.UserID,
		Title:       base.Title,
		Description: base.Description,
		StartTime:   base.StartTime,
		EndTime:     base.EndTime,
		Capacity:    base.Capacity,
		RRule:       req.RRule,
		TimeZone:    req.TimeZone,
	})
	if err != nil {
		s.writeServiceError(w, log, err, req.UserID)
		return
	}

	seriesKey := ""
	if len(occs) > 0 {
		seriesKey = occs[0].SeriesKey
	}
	log.Info(
		"recurring series created",
		slog.String("series_key", seriesKey),
		slog.String("user_id", req.UserID),
		slog.Int("occurrences", len(occs)),
	)

	out := make([]eventPayload, 0, len(occs))
	for _, ev := range occs {
		out = append(out, toEventPayload(ev))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"series_key": seriesKey,
		"events":     out,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "Feed"))

	viewerID := r.URL.Query().Get("user_id")

	// A bad "now" falls back to the server clock instead of failing the
	// whole feed.
	now, _ := parseTimeParam(r, "now")

	started := time.Now()
	items, err := s.svc.Feed(r.Context(), viewerID, now)
	if err != nil {
		s.writeServiceError(w, log, err, viewerID)
		return
	}
	metrics.RecordFeedBuild(time.Since(started), len(items))

	out := make([]feedItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, feedItemPayload{
			SeriesKey:       it.Series.SeriesKey,
			NextEvent:       toEventPayload(it.Series.NextEvent),
			OccurrenceCount: it.Series.OccurrenceCount,
			IsRecurring:     it.Series.IsRecurring,
			Availability:    string(it.Availability),
		})
	}

	log.Debug("feed built", slog.String("user_id", viewerID), slog.Int("items", len(out)))
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "Calendar"))

	userID := r.URL.Query().Get("user_id")
	windowStart, windowEnd, err := calendarWindow(r)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("user_id", userID))
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	rows, err := s.svc.ListCalendar(r.Context(), userID, windowStart, windowEnd)
	if err != nil {
		s.writeServiceError(w, log, err, userID)
		return
	}

	out := make([]eventPayload, 0, len(rows))
	for _, ev := range rows {
		out = append(out, toEventPayload(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "CalendarICS"))

	userID := r.URL.Query().Get("user_id")
	windowStart, windowEnd, err := calendarWindow(r)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err), slog.String("user_id", userID))
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	rows, err := s.svc.ListCalendar(r.Context(), userID, windowStart, windowEnd)
	if err != nil {
		s.writeServiceError(w, log, err, userID)
		return
	}

	body := ics.Encode("gatherly", rows)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.handleAttendance(w, r, "Join", s.svc.Join)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.handleAttendance(w, r, "Leave", s.svc.Leave)
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context, userID string, eventID uuid.UUID) error) {
	log := s.log.With(slog.String("handler", name))

	userID := r.URL.Query().Get("user_id")
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("user_id", userID))
		writeError(w, http.StatusBadRequest, "invalid_argument", errors.New("event id must be a UUID"))
		return
	}

	if err := fn(r.Context(), userID, eventID); err != nil {
		s.writeServiceError(w, log, err, userID)
		return
	}

	log.Info("attendance changed",
		slog.String("action", strings.ToLower(name)),
		slog.String("event_id", eventID.String()),
		slog.String("user_id", userID),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "DeleteEvent"))

	userID := r.URL.Query().Get("user_id")
	eventID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("user_id", userID))
		writeError(w, http.StatusBadRequest, "invalid_argument", errors.New("event id must be a UUID"))
		return
	}

	if err := s.svc.Delete(r.Context(), userID, eventID); err != nil {
		s.writeServiceError(w, log, err, userID)
		return
	}

	log.Info("event deleted", slog.String("event_id", eventID.String()), slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeServiceError(w http.ResponseWriter, log *slog.Logger, err error, userID string) {
	var vErr *events.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err), slog.String("user_id", userID))
		writeError(w, http.StatusBadRequest, "invalid_argument", vErr)
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", slog.String("user_id", userID))
		writeError(w, http.StatusNotFound, "not_found", errors.New("event not found"))
	case errors.Is(err, store.ErrCapacityFull):
		log.Info("event full", slog.String("user_id", userID))
		writeError(w, http.StatusConflict, "capacity_full", errors.New("This event is already full."))
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", slog.String("user_id", userID))
		writeError(w, http.StatusConflict, "idempotency_conflict", errors.New("This request key was already used for a different event. Try again."))
	case errors.Is(err, store.ErrConflict):
		log.Info("conflict", slog.String("user_id", userID))
		writeError(w, http.StatusConflict, "conflict", errors.New("conflict"))
	default:
		log.Error("request failed", slog.Any("err", err), slog.String("user_id", userID))
		writeError(w, http.StatusInternalServerError, "internal", nil)
	}
}

func createInputFromRequest(req createEventRequest) (events.CreateInput, error) {
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return events.CreateInput{}, errors.New("start_time must be RFC3339")
	}

	var end *time.Time
	if req.EndTime != nil && strings.TrimSpace(*req.EndTime) != "" {
		e, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return events.CreateInput{}, errors.New("end_time must be RFC3339")
		}
		end = &e
	}

	return events.CreateInput{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Capacity:    req.Capacity,
	}, nil
}

// calendarWindow reads from/to query params, defaulting to the next 90
// days.
func calendarWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	windowStart := now
	if from, ok := r.URL.Query()["from"]; ok && len(from) > 0 {
		t, err := time.Parse(time.RFC3339, from[0])
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		windowStart = t
	}

	windowEnd := windowStart.Add(90 * 24 * time.Hour)
	if to, ok := r.URL.Query()["to"]; ok && len(to) > 0 {
		t, err := time.Parse(time.RFC3339, to[0])
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		windowEnd = t
	}

	return windowStart, windowEnd, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func toEventPayload(ev domain.Event) eventPayload {
	var start *string
	if !ev.StartTime.IsZero() {
		v := ev.StartTime.UTC().Format(time.RFC3339)
		start = &v
	}
	var end *string
	if ev.EndTime != nil {
		v := ev.EndTime.UTC().Format(time.RFC3339)
		end = &v
	}
	return eventPayload{
		ID:          ev.ID.String(),
		UserID:      ev.UserID,
		Title:       ev.Title,
		Description: ev.Description,
		StartTime:   start,
		EndTime:     end,
		IsRecurring: ev.IsRecurring,
		SeriesKey:   ev.SeriesKey,
		Capacity:    ev.Capacity,
		GoingCount:  ev.GoingCount,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
