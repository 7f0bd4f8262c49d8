package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"potluck/internal/domain"
)

type reservationService struct {
	store          domain.EventStore
	participants   domain.ParticipantService
	metrics        domain.MetricsRecorder
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewReservationService returns the service that owns every change to a
// menu item's assigned total. participants is used for best-effort rename
// propagation after a claim update commits.
func NewReservationService(
	store domain.EventStore,
	participants domain.ParticipantService,
	metrics domain.MetricsRecorder,
	logger *slog.Logger,
	timeout time.Duration,
) domain.ReservationService {
	return &reservationService{
		store:          store,
		participants:   participants,
		metrics:        recorderOrNoop(metrics),
		logger:         logger,
		contextTimeout: timeout,
	}
}

func capacityError(item *domain.MenuItem, requested, available float64) error {
	if available < 0 {
		available = 0
	}
	return &domain.CapacityExceededError{
		ItemName:  item.Name,
		Requested: requested,
		Remaining: available,
		Unit:      item.UnitType,
	}
}

func (s *reservationService) CreateAssignment(ctx context.Context, eventID string, req domain.ClaimRequest) (id string, err error) {
	defer observe(ctx, s.metrics, opCreateAssignment, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("event id", eventID); err != nil {
		return "", err
	}
	if err := requireID("menu item id", req.MenuItemID); err != nil {
		return "", err
	}
	if err := requireID("user id", req.UserID); err != nil {
		return "", err
	}
	if !validQuantity(req.Quantity) {
		return "", fmt.Errorf("%w: quantity must be greater than zero", domain.ErrInvalidInput)
	}
	name := displayName(req.UserName)
	notes := strings.TrimSpace(req.Notes)
	assignmentID := newID()

	err = s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		item, ok := ev.MenuItems[req.MenuItemID]
		if !ok {
			return fmt.Errorf("%w: menu item %s is no longer available", domain.ErrNotFound, req.MenuItemID)
		}
		remaining := item.Remaining()
		if req.Quantity > remaining+quantityEpsilon {
			return capacityError(item, req.Quantity, remaining)
		}
		at := now()
		ev.Assignments[assignmentID] = &domain.Assignment{
			ID:         assignmentID,
			MenuItemID: req.MenuItemID,
			UserID:     req.UserID,
			UserName:   name,
			Quantity:   req.Quantity,
			Notes:      notes,
			Status:     domain.AssignmentConfirmed,
			AssignedAt: at,
		}
		item.TotalAssignedQuantity += req.Quantity
		ev.EnsureParticipant(req.UserID, name, at)
		return nil
	})
	if err != nil {
		return "", err
	}
	return assignmentID, nil
}

func (s *reservationService) UpdateAssignment(ctx context.Context, eventID, assignmentID, actorID string, upd domain.ClaimUpdate) (err error) {
	defer observe(ctx, s.metrics, opUpdateAssignment, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("assignment id", assignmentID); err != nil {
		return err
	}
	if err := requireID("actor id", actorID); err != nil {
		return err
	}
	if !validQuantity(upd.Quantity) {
		return fmt.Errorf("%w: quantity must be greater than zero", domain.ErrInvalidInput)
	}
	notes := strings.TrimSpace(upd.Notes)
	newName := strings.TrimSpace(upd.DisplayName)

	err = s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		a, ok := ev.Assignments[assignmentID]
		if !ok {
			return fmt.Errorf("%w: assignment %s", domain.ErrNotFound, assignmentID)
		}
		if err := requireClaimant(ev, a, actorID); err != nil {
			return err
		}
		if newName != "" && actorID != a.UserID {
			return fmt.Errorf("%w: only %s can change their display name", domain.ErrPermissionDenied, a.UserName)
		}
		item, ok := ev.MenuItems[a.MenuItemID]
		if !ok {
			return fmt.Errorf("%w: menu item %s is no longer available", domain.ErrNotFound, a.MenuItemID)
		}
		delta := upd.Quantity - a.Quantity
		if item.TotalAssignedQuantity+delta > item.QuantityRequired+quantityEpsilon {
			// What this claim could grow to: the free capacity plus what it already holds.
			return capacityError(item, upd.Quantity, item.Remaining()+a.Quantity)
		}
		at := now()
		a.Quantity = upd.Quantity
		a.Notes = notes
		a.UpdatedAt = &at
		item.TotalAssignedQuantity += delta
		if item.TotalAssignedQuantity < 0 {
			item.TotalAssignedQuantity = 0
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The claimant is the actor whenever a name was accepted above.
	if newName != "" && s.participants != nil {
		if rerr := s.participants.RenameParticipant(ctx, eventID, actorID, newName); rerr != nil {
			s.logger.Warn("rename after assignment update failed",
				"event_id", eventID, "user_id", actorID, "err", rerr)
		}
	}
	return nil
}

func (s *reservationService) CancelAssignment(ctx context.Context, eventID, assignmentID, menuItemID, actorID string) (err error) {
	defer observe(ctx, s.metrics, opCancelAssignment, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("actor id", actorID); err != nil {
		return err
	}
	return s.cancel(ctx, eventID, assignmentID, menuItemID, actorID)
}

func (s *reservationService) cancel(ctx context.Context, eventID, assignmentID, menuItemID, actorID string) error {
	if err := requireID("assignment id", assignmentID); err != nil {
		return err
	}
	err := updateEvent(ctx, s.store, eventID, func(ev *domain.Event) error {
		a, ok := ev.Assignments[assignmentID]
		if !ok {
			return errUnchanged
		}
		if err := requireClaimant(ev, a, actorID); err != nil {
			return err
		}
		if menuItemID != "" && a.MenuItemID != menuItemID {
			return fmt.Errorf("%w: assignment %s does not belong to menu item %s",
				domain.ErrInvalidInput, assignmentID, menuItemID)
		}
		delete(ev.Assignments, assignmentID)
		// An orphaned claim has no total to reverse.
		if item, ok := ev.MenuItems[a.MenuItemID]; ok {
			item.TotalAssignedQuantity -= a.Quantity
			if item.TotalAssignedQuantity < 0 {
				item.TotalAssignedQuantity = 0
			}
		}
		return nil
	})
	if err == nil || isNotFound(err) {
		return nil
	}
	return err
}

func (s *reservationService) CancelAssignmentsForItems(ctx context.Context, eventID, actorID string, itemIDs []string) (res *domain.BulkCancelResult, err error) {
	defer observe(ctx, s.metrics, opBulkCancel, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one menu item id is required", domain.ErrInvalidInput)
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := requireOrganizer(ev, actorID, "cancel every claim on an item"); err != nil {
		return nil, err
	}

	selected := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		selected[id] = struct{}{}
	}
	var targets []*domain.Assignment
	for _, a := range ev.Assignments {
		if _, ok := selected[a.MenuItemID]; ok {
			targets = append(targets, a)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	res = &domain.BulkCancelResult{Cancelled: []string{}, Failed: []domain.CancelFailure{}}
	for _, a := range targets {
		if cerr := s.cancel(ctx, eventID, a.ID, a.MenuItemID, actorID); cerr != nil {
			s.logger.Warn("bulk cancel: assignment not cancelled",
				"event_id", eventID, "assignment_id", a.ID, "err", cerr)
			res.Failed = append(res.Failed, domain.CancelFailure{
				AssignmentID: a.ID,
				MenuItemID:   a.MenuItemID,
				Error:        cerr.Error(),
			})
			continue
		}
		res.Cancelled = append(res.Cancelled, a.ID)
	}
	return res, nil
}

// requireClaimant allows the participant who made the claim and the organizer.
func requireClaimant(ev *domain.Event, a *domain.Assignment, actorID string) error {
	if actorID == a.UserID || actorID == ev.OrganizerID {
		return nil
	}
	return fmt.Errorf("%w: assignment %s belongs to another participant", domain.ErrPermissionDenied, a.ID)
}
