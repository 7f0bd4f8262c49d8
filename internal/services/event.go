package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"potluck/internal/domain"
)

type eventService struct {
	store          domain.EventStore
	metrics        domain.MetricsRecorder
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewEventService returns the service for the events themselves.
func NewEventService(store domain.EventStore, metrics domain.MetricsRecorder, logger *slog.Logger, timeout time.Duration) domain.EventService {
	return &eventService{
		store:          store,
		metrics:        recorderOrNoop(metrics),
		logger:         logger,
		contextTimeout: timeout,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, organizer domain.Identity, details domain.EventDetails) (ev *domain.Event, err error) {
	defer observe(ctx, s.metrics, opCreateEvent, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if organizer.UserID == "" {
		return nil, fmt.Errorf("%w: event organizer is required", domain.ErrInvalidInput)
	}
	if organizer.IsAnonymous {
		return nil, fmt.Errorf("%w: anonymous users cannot organize events", domain.ErrPermissionDenied)
	}
	details.Title = strings.TrimSpace(details.Title)
	if details.Title == "" {
		return nil, fmt.Errorf("%w: event title is required", domain.ErrInvalidInput)
	}
	if details.UserItemLimit != nil && *details.UserItemLimit < 0 {
		return nil, fmt.Errorf("%w: user item limit cannot be negative", domain.ErrInvalidInput)
	}

	name, err := s.organizerName(ctx, organizer)
	if err != nil {
		return nil, err
	}

	ev = domain.NewEvent(organizer.UserID, name, details, now())
	ev.ID = newID()
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// organizerName prefers the identity's display name, then the stored
// profile. A missing profile is created so that the account purge has a
// record to remove.
func (s *eventService) organizerName(ctx context.Context, organizer domain.Identity) (string, error) {
	name := strings.TrimSpace(organizer.DisplayName)
	user, err := s.store.GetUser(ctx, organizer.UserID)
	switch {
	case err == nil:
		if name == "" {
			name = user.Name
		}
	case errors.Is(err, domain.ErrNotFound):
		if name == "" {
			name = DefaultOrganizerName
		}
		profile := &domain.User{ID: organizer.UserID, Name: name, CreatedAt: now()}
		if err := s.store.PutUser(ctx, profile); err != nil {
			return "", fmt.Errorf("create organizer profile: %w", err)
		}
	default:
		return "", fmt.Errorf("get organizer profile: %w", err)
	}
	if name == "" {
		name = DefaultOrganizerName
	}
	return name, nil
}

func (s *eventService) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *eventService) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]*domain.Event, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, err := s.store.ListEventsByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *eventService) UpdateEventDetails(ctx context.Context, eventID, actorID string, patch domain.EventDetailsPatch) (updated *domain.Event, err error) {
	defer observe(ctx, s.metrics, opUpdateEventDetails, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: event title cannot be empty", domain.ErrInvalidInput)
		}
		patch.Title = &title
	}
	if patch.UserItemLimit != nil && *patch.UserItemLimit < 0 {
		return nil, fmt.Errorf("%w: user item limit cannot be negative", domain.ErrInvalidInput)
	}

	err = s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		if ev.OrganizerID != actorID {
			return domain.ErrPermissionDenied
		}
		if ev.Details == nil {
			ev.Details = &domain.EventDetails{}
		}
		patch.Apply(ev.Details)
		at := now()
		ev.UpdatedAt = &at
		updated = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *eventService) DeleteEvent(ctx context.Context, eventID, actorID string) (err error) {
	defer observe(ctx, s.metrics, opDeleteEvent, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("get event: %w", err)
	}
	if ev.OrganizerID != actorID {
		return domain.ErrPermissionDenied
	}
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	s.logger.Info("event deleted", "event_id", eventID, "user_id", actorID)
	return nil
}

// WatchEvent is not bounded by the service timeout; it runs until ctx ends
// or the returned function is called.
func (s *eventService) WatchEvent(ctx context.Context, eventID string, onChange func(*domain.Event)) (func(), error) {
	return s.store.WatchEvent(ctx, eventID, onChange)
}
