package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"potluck/internal/domain"
)

type participantService struct {
	store          domain.EventStore
	metrics        domain.MetricsRecorder
	contextTimeout time.Duration
}

// NewParticipantService returns the participant record service.
func NewParticipantService(store domain.EventStore, metrics domain.MetricsRecorder, timeout time.Duration) domain.ParticipantService {
	return &participantService{
		store:          store,
		metrics:        recorderOrNoop(metrics),
		contextTimeout: timeout,
	}
}

func (s *participantService) JoinEvent(ctx context.Context, eventID, userID, name string) (err error) {
	defer observe(ctx, s.metrics, opJoinEvent, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("user id", userID); err != nil {
		return err
	}
	name = displayName(name)
	return updateEvent(ctx, s.store, eventID, func(ev *domain.Event) error {
		if p, ok := ev.Participants[userID]; ok {
			if p.Name == name {
				return errUnchanged
			}
			p.Name = name
			return nil
		}
		ev.EnsureParticipant(userID, name, now())
		return nil
	})
}

func (s *participantService) LeaveEvent(ctx context.Context, eventID, userID string) (err error) {
	defer observe(ctx, s.metrics, opLeaveEvent, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("user id", userID); err != nil {
		return err
	}
	return updateEvent(ctx, s.store, eventID, func(ev *domain.Event) error {
		if _, ok := ev.Participants[userID]; !ok {
			return errUnchanged
		}
		delete(ev.Participants, userID)
		return nil
	})
}

// RenameParticipant sets name on the participant record, the user's
// assignments and the items the user created, in one event transaction.
func (s *participantService) RenameParticipant(ctx context.Context, eventID, userID, name string) (err error) {
	defer observe(ctx, s.metrics, opRenameParticipant, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("user id", userID); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}
	return updateEvent(ctx, s.store, eventID, func(ev *domain.Event) error {
		changed := false
		if p, ok := ev.Participants[userID]; ok {
			if p.Name != name {
				p.Name = name
				changed = true
			}
		} else {
			changed = ev.EnsureParticipant(userID, name, now())
		}
		for _, a := range ev.Assignments {
			if a.UserID == userID && a.UserName != name {
				a.UserName = name
				changed = true
			}
		}
		for _, item := range ev.MenuItems {
			if item.CreatorID == userID && item.CreatorName != name {
				item.CreatorName = name
				changed = true
			}
			if item.LegacyAssignedTo != nil && *item.LegacyAssignedTo == userID &&
				(item.LegacyAssignedToName == nil || *item.LegacyAssignedToName != name) {
				n := name
				item.LegacyAssignedToName = &n
				changed = true
			}
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
}
