package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"potluck/internal/domain"
)

type validator struct {
	store   domain.EventStore
	metrics domain.MetricsRecorder
	logger  *slog.Logger
}

// NewValidator returns the read-only consistency auditor.
func NewValidator(store domain.EventStore, metrics domain.MetricsRecorder, logger *slog.Logger) domain.Validator {
	return &validator{store: store, metrics: recorderOrNoop(metrics), logger: logger}
}

func (v *validator) ValidateEvent(ctx context.Context, eventID string) (report *domain.ValidationReport, err error) {
	defer observe(ctx, v.metrics, opValidateEvent, time.Now(), &err)

	ev, err := v.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ValidationReport{EventID: eventID, Valid: false, Issues: []string{"event does not exist"}}, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	report = auditEvent(ev)
	if !report.Valid {
		v.logger.Warn("event drift detected", "event_id", eventID, "issues", len(report.Issues))
	}
	return report, nil
}

func (v *validator) ValidateAll(ctx context.Context) ([]*domain.ValidationReport, error) {
	events, err := v.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	reports := make([]*domain.ValidationReport, 0, len(events))
	for _, ev := range events {
		report := auditEvent(ev)
		if !report.Valid {
			v.logger.Warn("event drift detected", "event_id", ev.ID, "issues", len(report.Issues))
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// auditEvent recomputes every item's assigned total from the assignment
// records and reports where stored state disagrees. It never mutates ev.
func auditEvent(ev *domain.Event) *domain.ValidationReport {
	issues := []string{}
	if ev.Details == nil {
		issues = append(issues, "event details are missing")
	}
	if ev.OrganizerID == "" {
		issues = append(issues, "organizer id is missing")
	}
	if ev.OrganizerName == "" {
		issues = append(issues, "organizer name is missing")
	}

	sums := make(map[string]float64, len(ev.MenuItems))
	for _, id := range sortedKeys(ev.Assignments) {
		a := ev.Assignments[id]
		if _, ok := ev.MenuItems[a.MenuItemID]; !ok {
			issues = append(issues, fmt.Sprintf("assignment %s references missing menu item %s", id, a.MenuItemID))
			continue
		}
		if a.Quantity <= 0 {
			issues = append(issues, fmt.Sprintf("assignment %s has non-positive quantity %s", id, formatQuantity(a.Quantity)))
		}
		sums[a.MenuItemID] += a.Quantity
	}

	for _, id := range sortedKeys(ev.MenuItems) {
		item := ev.MenuItems[id]
		if math.Abs(item.TotalAssignedQuantity-sums[id]) > quantityEpsilon {
			issues = append(issues, fmt.Sprintf("menu item %s (%s) stores total %s but its assignments sum to %s",
				id, item.Name, formatQuantity(item.TotalAssignedQuantity), formatQuantity(sums[id])))
		}
		if item.TotalAssignedQuantity > item.QuantityRequired+quantityEpsilon {
			issues = append(issues, fmt.Sprintf("menu item %s (%s) is over-assigned: %s of %s %s",
				id, item.Name, formatQuantity(item.TotalAssignedQuantity), formatQuantity(item.QuantityRequired), item.UnitType))
		}
		if item.LegacyAssignedTo != nil && !hasClaim(ev, id, *item.LegacyAssignedTo) {
			issues = append(issues, fmt.Sprintf("menu item %s is marked as assigned to %s but has no matching assignment",
				id, *item.LegacyAssignedTo))
		}
	}

	return &domain.ValidationReport{EventID: ev.ID, Valid: len(issues) == 0, Issues: issues}
}

func hasClaim(ev *domain.Event, itemID, userID string) bool {
	for _, a := range ev.Assignments {
		if a.MenuItemID == itemID && a.UserID == userID {
			return true
		}
	}
	return false
}
