package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"potluck/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	archived []string
	err      error
}

func (a *recordingArchiver) ArchiveEvent(_ context.Context, ev *domain.Event) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, ev.ID)
	return nil
}

// seedPurgeFixture stores one event organized by the doomed user and one
// foreign event where the user claimed, created and was legacy-assigned.
func seedPurgeFixture(t *testing.T, s domain.EventStore) {
	t.Helper()
	ctx := context.Background()

	own := domain.NewEvent("u-1", "Noa", domain.EventDetails{Title: "Noa's birthday"}, now())
	own.ID = "ev-own"
	require.NoError(t, s.CreateEvent(ctx, own))

	doomed := "u-1"
	doomedName := "Noa"
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedEvent(t, s, "ev-foreign",
		[]*domain.MenuItem{
			hummus(7),
			{ID: "m-2", Name: "Challah", QuantityRequired: 2, LegacyAssignedTo: &doomed, LegacyAssignedToName: &doomedName, LegacyAssignedAt: &at},
		},
		[]*domain.Assignment{
			{ID: "a-1", MenuItemID: "m-1", UserID: "u-1", Quantity: 4},
			{ID: "a-2", MenuItemID: "m-1", UserID: "u-2", Quantity: 3},
		})
	require.NoError(t, s.UpdateEvent(ctx, "ev-foreign", func(ev *domain.Event) error {
		ev.Participants["u-1"] = &domain.Participant{ID: "u-1", Name: "Noa", JoinedAt: at}
		ev.Participants["u-2"] = &domain.Participant{ID: "u-2", Name: "Tal", JoinedAt: at}
		ev.UserItemCounts["u-1"] = 1
		return nil
	}))
	require.NoError(t, s.PutUser(ctx, &domain.User{ID: "u-1", Name: "Noa"}))
}

func TestPurgeService_PurgeAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedPurgeFixture(t, s)
	archiver := &recordingArchiver{}
	rec := &captureRecorder{}
	svc := NewPurgeService(s, archiver, []string{"admin"}, rec, discardLogger)

	report, err := svc.PurgeAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, opPurgeAccount, rec.last().op)
	assert.Equal(t, "u-1", report.UserID)
	assert.Equal(t, []string{"ev-own"}, report.DeletedEvents)
	assert.Equal(t, 1, report.DeletedAssignments)
	assert.Equal(t, 1, report.DeletedParticipants)
	// assignment, total, three legacy fields, participant, counter, own event, profile
	assert.Equal(t, 9, report.Writes)
	assert.Equal(t, []string{"ev-own"}, archiver.archived)

	_, err = s.GetEvent(ctx, "ev-own")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetUser(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	ev := mustEvent(t, s, "ev-foreign")
	assert.NotContains(t, ev.Assignments, "a-1")
	assert.Contains(t, ev.Assignments, "a-2")
	assert.Equal(t, 3.0, ev.MenuItems["m-1"].TotalAssignedQuantity)
	assert.Nil(t, ev.MenuItems["m-2"].LegacyAssignedTo)
	assert.Nil(t, ev.MenuItems["m-2"].LegacyAssignedToName)
	assert.Nil(t, ev.MenuItems["m-2"].LegacyAssignedAt)
	assert.Equal(t, "Challah", ev.MenuItems["m-2"].Name)
	assert.NotContains(t, ev.Participants, "u-1")
	assert.Contains(t, ev.Participants, "u-2")
	assert.NotContains(t, ev.UserItemCounts, "u-1")
	requireConsistent(t, s, "ev-foreign")

	// A second purge finds nothing left but the profile delete.
	report, err = svc.PurgeAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, report.DeletedEvents)
	assert.Zero(t, report.DeletedAssignments)
	assert.Equal(t, 1, report.Writes)
}

func TestPurgeService_ProtectedIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedPurgeFixture(t, s)
	archiver := &recordingArchiver{}
	svc := NewPurgeService(s, archiver, []string{"", "u-1"}, nil, discardLogger)

	_, err := svc.PurgeAccount(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrProtectedIdentity)
	assert.Empty(t, archiver.archived)
	mustEvent(t, s, "ev-own")
	assert.Contains(t, mustEvent(t, s, "ev-foreign").Assignments, "a-1")

	_, err = svc.PurgeAccount(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPurgeService_ArchiveFailureAborts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedPurgeFixture(t, s)
	svc := NewPurgeService(s, &recordingArchiver{err: errors.New("bucket unreachable")}, nil, nil, discardLogger)

	_, err := svc.PurgeAccount(ctx, "u-1")
	require.ErrorContains(t, err, "archive event ev-own")

	mustEvent(t, s, "ev-own")
	ev := mustEvent(t, s, "ev-foreign")
	assert.Contains(t, ev.Assignments, "a-1")
	assert.Equal(t, 7.0, ev.MenuItems["m-1"].TotalAssignedQuantity)
	_, err = s.GetUser(ctx, "u-1")
	require.NoError(t, err)
}

func TestPurgeService_WithoutArchiver(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedPurgeFixture(t, s)
	svc := NewPurgeService(s, nil, nil, nil, discardLogger)

	report, err := svc.PurgeAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-own"}, report.DeletedEvents)
}

// scanRacingStore runs afterScan once, after ListEvents has taken its
// snapshot and before the caller acts on it.
type scanRacingStore struct {
	domain.EventStore
	afterScan func()
}

func (r *scanRacingStore) ListEvents(ctx context.Context) ([]*domain.Event, error) {
	events, err := r.EventStore.ListEvents(ctx)
	if r.afterScan != nil {
		f := r.afterScan
		r.afterScan = nil
		f()
	}
	return events, err
}

func TestPurgeService_ClaimsChangedAfterScan(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		race      func(t *testing.T, res domain.ReservationService)
		wantTotal float64
		wantLive  []string
	}{
		{
			name: "purged user cancels a claim",
			race: func(t *testing.T, res domain.ReservationService) {
				require.NoError(t, res.CancelAssignment(ctx, "ev-foreign", "a-1", "m-1", "u-1"))
			},
			wantTotal: 3,
			wantLive:  []string{"a-2"},
		},
		{
			name: "purged user shrinks a claim",
			race: func(t *testing.T, res domain.ReservationService) {
				require.NoError(t, res.UpdateAssignment(ctx, "ev-foreign", "a-1", "u-1", domain.ClaimUpdate{Quantity: 1}))
			},
			wantTotal: 3,
			wantLive:  []string{"a-2"},
		},
		{
			name: "purged user grows a claim",
			race: func(t *testing.T, res domain.ReservationService) {
				require.NoError(t, res.UpdateAssignment(ctx, "ev-foreign", "a-1", "u-1", domain.ClaimUpdate{Quantity: 7}))
			},
			wantTotal: 3,
			wantLive:  []string{"a-2"},
		},
		{
			name: "other participant cancels",
			race: func(t *testing.T, res domain.ReservationService) {
				require.NoError(t, res.CancelAssignment(ctx, "ev-foreign", "a-2", "m-1", "u-2"))
			},
			wantTotal: 0,
			wantLive:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newTestStore(t)
			seedPurgeFixture(t, base)
			res := NewReservationService(base, nil, nil, discardLogger, testTimeout)
			s := &scanRacingStore{EventStore: base, afterScan: func() { tt.race(t, res) }}
			svc := NewPurgeService(s, nil, nil, nil, discardLogger)

			report, err := svc.PurgeAccount(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"ev-own"}, report.DeletedEvents)

			ev := mustEvent(t, base, "ev-foreign")
			live := make([]string, 0, len(ev.Assignments))
			for id := range ev.Assignments {
				live = append(live, id)
			}
			assert.ElementsMatch(t, tt.wantLive, live)
			assert.Equal(t, tt.wantTotal, ev.MenuItems["m-1"].TotalAssignedQuantity)
			requireConsistent(t, base, "ev-foreign")

			// The reversed total still guards capacity for later claims.
			_, err = res.CreateAssignment(ctx, "ev-foreign", domain.ClaimRequest{
				MenuItemID: "m-1", UserID: "u-3", UserName: "Omer", Quantity: 10 - tt.wantTotal + 1,
			})
			require.ErrorIs(t, err, domain.ErrCapacityExceeded)
			_, err = res.CreateAssignment(ctx, "ev-foreign", domain.ClaimRequest{
				MenuItemID: "m-1", UserID: "u-3", UserName: "Omer", Quantity: 10 - tt.wantTotal,
			})
			require.NoError(t, err)
			requireConsistent(t, base, "ev-foreign")
		})
	}
}

func TestPurgeService_ForeignEventDeletedAfterScan(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	seedPurgeFixture(t, base)
	s := &scanRacingStore{EventStore: base, afterScan: func() {
		require.NoError(t, base.DeleteEvent(ctx, "ev-foreign"))
	}}
	svc := NewPurgeService(s, nil, nil, nil, discardLogger)

	report, err := svc.PurgeAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-own"}, report.DeletedEvents)
	assert.Zero(t, report.DeletedAssignments)
	assert.Equal(t, 2, report.Writes)
}

func TestPurgeService_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedPurgeFixture(t, s)
	res := NewReservationService(s, nil, nil, discardLogger, testTimeout)
	svc := NewPurgeService(s, nil, nil, nil, discardLogger)

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("guest-%d", i)
			_, _ = res.CreateAssignment(ctx, "ev-foreign", domain.ClaimRequest{MenuItemID: "m-1", UserID: user, UserName: user, Quantity: 1})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.PurgeAccount(ctx, "u-1")
		assert.NoError(t, err)
	}()
	wg.Wait()

	ev := mustEvent(t, s, "ev-foreign")
	assert.NotContains(t, ev.Assignments, "a-1")
	requireConsistent(t, s, "ev-foreign")
}
