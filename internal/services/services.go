// Package services implements the potluck core: reservations against menu
// item capacity, the item lifecycle, events and participants, the
// consistency validator and the account purge coordinator.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"potluck/internal/domain"
)

// DefaultDisplayName is used when a participant supplies no name.
const DefaultDisplayName = "Guest"

// DefaultOrganizerName is used when neither the identity nor the profile carries a name.
const DefaultOrganizerName = "Organizer"

// quantityEpsilon absorbs float rounding when comparing summed quantities.
const quantityEpsilon = 1e-9

// Operation names reported to the metrics recorder.
const (
	opCreateAssignment   = "create_assignment"
	opUpdateAssignment   = "update_assignment"
	opCancelAssignment   = "cancel_assignment"
	opBulkCancel         = "cancel_assignments_for_items"
	opAddItem            = "add_item"
	opAddItemAndAssign   = "add_item_and_assign"
	opUpdateItem         = "update_item"
	opDeleteItem         = "delete_item"
	opCreateEvent        = "create_event"
	opUpdateEventDetails = "update_event_details"
	opDeleteEvent        = "delete_event"
	opJoinEvent          = "join_event"
	opLeaveEvent         = "leave_event"
	opRenameParticipant  = "rename_participant"
	opValidateEvent      = "validate_event"
	opPurgeAccount       = "purge_account"
)

// errUnchanged aborts an UpdateEvent callback without writing.
var errUnchanged = errors.New("unchanged")

// newID returns a time-ordered identifier for new records.
var newID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

func now() time.Time {
	return time.Now().UTC()
}

// updateEvent runs fn through the store's transaction primitive, treating an
// errUnchanged abort as success.
func updateEvent(ctx context.Context, store domain.EventStore, eventID string, fn func(*domain.Event) error) error {
	err := store.UpdateEvent(ctx, eventID, fn)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

func validQuantity(q float64) bool {
	return q > 0 && !math.IsInf(q, 0) && !math.IsNaN(q)
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	return nil
}

type noopRecorder struct{}

func (noopRecorder) Observe(context.Context, string, error, time.Duration) {}

func recorderOrNoop(m domain.MetricsRecorder) domain.MetricsRecorder {
	if m == nil {
		return noopRecorder{}
	}
	return m
}

// observe reports the outcome of an operation. Use as
// defer observe(ctx, s.metrics, op, time.Now(), &err).
func observe(ctx context.Context, m domain.MetricsRecorder, op string, start time.Time, errp *error) {
	m.Observe(ctx, op, *errp, time.Since(start))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// requireOrganizer rejects an actor who does not organize ev.
func requireOrganizer(ev *domain.Event, actorID, action string) error {
	if ev.OrganizerID != actorID {
		return fmt.Errorf("%w: only the organizer can %s", domain.ErrPermissionDenied, action)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
