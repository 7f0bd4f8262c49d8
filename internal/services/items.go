package services

import (
	"context"
	"fmt"
	"time"

	"potluck/internal/domain"
)

type itemService struct {
	store            domain.EventStore
	metrics          domain.MetricsRecorder
	defaultItemLimit int
	contextTimeout   time.Duration
}

// NewItemService returns the menu item lifecycle service. defaultItemLimit
// applies to events that do not set their own per-user quota.
func NewItemService(store domain.EventStore, metrics domain.MetricsRecorder, defaultItemLimit int, timeout time.Duration) domain.ItemService {
	if defaultItemLimit <= 0 {
		defaultItemLimit = domain.DefaultUserItemLimit
	}
	return &itemService{
		store:            store,
		metrics:          recorderOrNoop(metrics),
		defaultItemLimit: defaultItemLimit,
		contextTimeout:   timeout,
	}
}

func (s *itemService) AddItem(ctx context.Context, eventID, actorID string, in domain.ItemInput) (id string, err error) {
	defer observe(ctx, s.metrics, opAddItem, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("actor id", actorID); err != nil {
		return "", err
	}
	if err := in.Validate(); err != nil {
		return "", err
	}
	itemID := newID()
	err = s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		// Participants add items through AddItemAndAssign, which enforces the quota.
		if err := requireOrganizer(ev, actorID, "add items without claiming them"); err != nil {
			return err
		}
		ev.MenuItems[itemID] = in.ToMenuItem(itemID, now())
		return nil
	})
	if err != nil {
		return "", err
	}
	return itemID, nil
}

func (s *itemService) AddItemAndAssign(ctx context.Context, eventID string, in domain.ItemInput, userID, userName string) (id string, err error) {
	defer observe(ctx, s.metrics, opAddItemAndAssign, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("user id", userID); err != nil {
		return "", err
	}
	if err := in.Validate(); err != nil {
		return "", err
	}
	name := displayName(userName)
	in.CreatorID = userID
	in.CreatorName = name
	itemID := newID()
	assignmentID := newID()

	err = s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		if ev.Details != nil && !ev.Details.UserItemsAllowed() {
			return fmt.Errorf("%w: the organizer does not allow participants to add items", domain.ErrPermissionDenied)
		}
		limit := ev.ItemLimit(s.defaultItemLimit)
		if count := ev.UserItemCounts[userID]; count >= limit {
			return &domain.QuotaExceededError{Count: count, Limit: limit}
		}

		at := now()
		item := in.ToMenuItem(itemID, at)
		item.TotalAssignedQuantity = in.QuantityRequired
		ev.MenuItems[itemID] = item
		ev.Assignments[assignmentID] = &domain.Assignment{
			ID:         assignmentID,
			MenuItemID: itemID,
			UserID:     userID,
			UserName:   name,
			Quantity:   in.QuantityRequired,
			Notes:      in.Notes,
			Status:     domain.AssignmentConfirmed,
			AssignedAt: at,
		}
		ev.UserItemCounts[userID]++
		ev.EnsureParticipant(userID, name, at)
		return nil
	})
	if err != nil {
		return "", err
	}
	return itemID, nil
}

func (s *itemService) UpdateItem(ctx context.Context, eventID, itemID, actorID string, patch domain.ItemPatch) (err error) {
	defer observe(ctx, s.metrics, opUpdateItem, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("actor id", actorID); err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	return s.store.UpdateEvent(ctx, eventID, func(ev *domain.Event) error {
		item, ok := ev.MenuItems[itemID]
		if !ok {
			return fmt.Errorf("%w: menu item %s", domain.ErrNotFound, itemID)
		}
		if err := requireItemEditor(ev, item, actorID); err != nil {
			return err
		}
		if patch.QuantityRequired != nil && *patch.QuantityRequired+quantityEpsilon < item.TotalAssignedQuantity {
			return fmt.Errorf("%w: required quantity %s is below the %s already claimed",
				domain.ErrInvalidInput, formatQuantity(*patch.QuantityRequired), formatQuantity(item.TotalAssignedQuantity))
		}
		patch.Apply(item)
		return nil
	})
}

func (s *itemService) DeleteItem(ctx context.Context, eventID, itemID, actorID string) (err error) {
	defer observe(ctx, s.metrics, opDeleteItem, time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := requireID("actor id", actorID); err != nil {
		return err
	}
	err = updateEvent(ctx, s.store, eventID, func(ev *domain.Event) error {
		item, ok := ev.MenuItems[itemID]
		if !ok {
			return errUnchanged
		}
		if err := requireItemEditor(ev, item, actorID); err != nil {
			return err
		}
		if item.CreatorID != "" {
			if n := ev.UserItemCounts[item.CreatorID] - 1; n > 0 {
				ev.UserItemCounts[item.CreatorID] = n
			} else {
				delete(ev.UserItemCounts, item.CreatorID)
			}
		}
		delete(ev.MenuItems, itemID)
		for id, a := range ev.Assignments {
			if a.MenuItemID == itemID {
				delete(ev.Assignments, id)
			}
		}
		return nil
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// requireItemEditor allows the organizer and the participant who created item.
func requireItemEditor(ev *domain.Event, item *domain.MenuItem, actorID string) error {
	if actorID == ev.OrganizerID || (item.CreatorID != "" && actorID == item.CreatorID) {
		return nil
	}
	return fmt.Errorf("%w: only the organizer or the item's creator can change %q", domain.ErrPermissionDenied, item.Name)
}
