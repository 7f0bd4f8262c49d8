package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/delivery/http/middleware"
	"potluck/internal/domain"
)

// watchKeepAlive is how often an idle watch stream sends a comment line.
var watchKeepAlive = 25 * time.Second

// requireIdentity returns the authenticated caller or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
	}
	return id, ok
}

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Title          string `json:"title"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	IsActive       *bool  `json:"is_active"`
	AllowUserItems *bool  `json:"allow_user_items"`
	UserItemLimit  *int   `json:"user_item_limit"`
}

// Validate implements Validator.
func (c CreateEventRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Title) == "" {
		errs = append(errs, "title is required")
	}
	if c.UserItemLimit != nil && *c.UserItemLimit < 0 {
		errs = append(errs, "user_item_limit cannot be negative")
	}
	return errs
}

func (c CreateEventRequest) details() domain.EventDetails {
	d := domain.EventDetails{
		Title:          c.Title,
		Date:           c.Date,
		Time:           c.Time,
		Location:       c.Location,
		Description:    c.Description,
		IsActive:       true,
		AllowUserItems: c.AllowUserItems,
		UserItemLimit:  c.UserItemLimit,
	}
	if c.IsActive != nil {
		d.IsActive = *c.IsActive
	}
	return d
}

// EventSuccessResponse is the success response envelope carrying one event.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListMyEventsResponse is the data payload for GET /events/mine.
type ListMyEventsResponse struct {
	Events     []*domain.Event        `json:"events"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListMyEventsSuccessResponse is the success response envelope for GET /events/mine (200).
type ListMyEventsSuccessResponse struct {
	Data  ListMyEventsResponse `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// ValidationSuccessResponse is the success response envelope for GET /events/{eventID}/validation (200).
type ValidationSuccessResponse struct {
	Data  *domain.ValidationReport `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// StatusResponse is a plain acknowledgement payload.
type StatusResponse struct {
	Status string `json:"status"`
}

type EventController struct {
	Logger    *slog.Logger
	Service   domain.EventService
	Validator domain.Validator
}

func NewEventController(logger *slog.Logger, svc domain.EventService, validator domain.Validator) *EventController {
	return &EventController{
		Logger:    logger,
		Service:   svc,
		Validator: validator,
	}
}

// CreateEvent godoc
// @Summary Create a new event
// @Description Creates a potluck event organized by the caller. Anonymous callers cannot organize events.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event details"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (anonymous caller)"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	event, err := c.Service.CreateEvent(r.Context(), caller, req.details())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// ListMyEvents godoc
// @Summary List my events
// @Description Returns the events organized by the caller, paginated.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.ListMyEventsSuccessResponse "data contains events and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/mine [get]
func (c *EventController) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	events, err := c.Service.ListEventsByOrganizer(r.Context(), caller.UserID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	p := helpers.ParsePagination(r)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListMyEventsResponse{
		Events:     helpers.Page(events, p),
		Pagination: helpers.NewPaginationMeta(p.Page, p.PageSize, len(events)),
	})
}

// GetEvent godoc
// @Summary Get an event by ID
// @Description Returns the full event with its menu items, assignments and participants.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	event, err := c.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// UpdateEventDetailsRequest is the request body for PATCH /events/{eventID}/details.
// All fields optional; omitted fields are unchanged.
type UpdateEventDetailsRequest struct {
	Title          *string `json:"title"`
	Date           *string `json:"date"`
	Time           *string `json:"time"`
	Location       *string `json:"location"`
	Description    *string `json:"description"`
	IsActive       *bool   `json:"is_active"`
	AllowUserItems *bool   `json:"allow_user_items"`
	UserItemLimit  *int    `json:"user_item_limit"`
}

// Validate implements Validator.
func (u UpdateEventDetailsRequest) Validate() []string {
	var errs []string
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		errs = append(errs, "title cannot be empty")
	}
	if u.UserItemLimit != nil && *u.UserItemLimit < 0 {
		errs = append(errs, "user_item_limit cannot be negative")
	}
	return errs
}

// UpdateEventDetails godoc
// @Summary Update event details
// @Description Updates the organizer-editable settings of an event. Only the organizer can update.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body UpdateEventDetailsRequest true "Fields to update (all optional)"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the updated event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/details [patch]
func (c *EventController) UpdateEventDetails(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req UpdateEventDetailsRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	event, err := c.Service.UpdateEventDetails(r.Context(), eventID, caller.UserID, domain.EventDetailsPatch(req))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event with all of its items, assignments and participants. Only the organizer can delete.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse "data.status: deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not organizer)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteEvent(r.Context(), eventID, caller.UserID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// ValidateEvent godoc
// @Summary Audit an event
// @Description Recomputes every item's assigned total from the assignments and reports drift. Read-only.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.ValidationSuccessResponse "data contains the validation report"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/{eventID}/validation [get]
func (c *EventController) ValidateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	report, err := c.Validator.ValidateEvent(r.Context(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, report)
}

// WatchEvent godoc
// @Summary Watch an event
// @Description Server-Sent Events stream. Each "event" message carries the full event as JSON; a "deleted" message is sent when the event is removed.
// @Tags events
// @Produce text/event-stream
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/{eventID}/watch [get]
func (c *EventController) WatchEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	ctx := r.Context()
	updates := make(chan *domain.Event, 1)
	deleted := &domain.Event{}
	stop, err := c.Service.WatchEvent(ctx, eventID, func(ev *domain.Event) {
		if ev == nil {
			ev = deleted
		}
		// Only the latest state matters; drop a pending one the client has not seen.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	defer stop()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	keepAlive := time.NewTicker(watchKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev := <-updates:
			if ev == deleted {
				_, _ = fmt.Fprintf(w, "event: deleted\ndata: {\"id\":%q}\n\n", eventID)
				_ = rc.Flush()
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				c.Logger.ErrorContext(ctx, "encode watched event", "event_id", eventID, "err", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: event\ndata: %s\n\n", payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
