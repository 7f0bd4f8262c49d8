package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"potluck/internal/domain"
	"potluck/internal/store"
	"potluck/internal/store/memory"

	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

var discardLogger = slog.New(slog.DiscardHandler)

func newTestStore(t *testing.T) *store.EntityStore {
	t.Helper()
	return store.New(memory.NewBackend(store.Options{}), discardLogger)
}

// seedEvent stores an event organized by org-1 holding the given items and
// assignments. Item totals are taken as given so tests can seed drift.
func seedEvent(t *testing.T, s domain.EventStore, id string, items []*domain.MenuItem, assignments []*domain.Assignment) *domain.Event {
	t.Helper()
	ev := domain.NewEvent("org-1", "Organizer One", domain.EventDetails{Title: "Shabbat dinner", IsActive: true}, time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))
	ev.ID = id
	for _, item := range items {
		if item.UnitType == "" {
			item.UnitType = domain.UnitUnits
		}
		if item.Category == "" {
			item.Category = domain.CategoryMain
		}
		ev.MenuItems[item.ID] = item
	}
	for _, a := range assignments {
		if a.Status == "" {
			a.Status = domain.AssignmentConfirmed
		}
		ev.Assignments[a.ID] = a
	}
	require.NoError(t, s.CreateEvent(context.Background(), ev))
	return ev
}

func mustEvent(t *testing.T, s domain.EventStore, id string) *domain.Event {
	t.Helper()
	ev, err := s.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return ev
}

// requireConsistent asserts the capacity invariant and the sum property.
func requireConsistent(t *testing.T, s domain.EventStore, eventID string) {
	t.Helper()
	ev := mustEvent(t, s, eventID)
	report := auditEvent(ev)
	require.True(t, report.Valid, "issues: %v", report.Issues)
	for _, item := range ev.MenuItems {
		require.GreaterOrEqual(t, item.TotalAssignedQuantity, 0.0)
		require.LessOrEqual(t, item.TotalAssignedQuantity, item.QuantityRequired)
	}
}

type observation struct {
	op  string
	err error
}

// captureRecorder records every observation for assertions.
type captureRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (c *captureRecorder) Observe(_ context.Context, op string, err error, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, observation{op: op, err: err})
}

func (c *captureRecorder) last() observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.obs[len(c.obs)-1]
}
