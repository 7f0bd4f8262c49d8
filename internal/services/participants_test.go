package services

import (
	"context"
	"testing"
	"time"

	"potluck/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantService_JoinEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev-1", nil, nil)
	svc := NewParticipantService(s, nil, testTimeout)

	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-1", " Noa "))
	p := mustEvent(t, s, "ev-1").Participants["u-1"]
	require.NotNil(t, p)
	assert.Equal(t, "Noa", p.Name)
	joined := p.JoinedAt

	// Joining again keeps the original join time and only refreshes the name.
	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-1", "Noa B."))
	p = mustEvent(t, s, "ev-1").Participants["u-1"]
	assert.Equal(t, "Noa B.", p.Name)
	assert.True(t, joined.Equal(p.JoinedAt))
	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-1", "Noa B."))

	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-2", ""))
	assert.Equal(t, DefaultDisplayName, mustEvent(t, s, "ev-1").Participants["u-2"].Name)

	require.ErrorIs(t, svc.JoinEvent(ctx, "missing", "u-1", "Noa"), domain.ErrNotFound)
	require.ErrorIs(t, svc.JoinEvent(ctx, "ev-1", " ", "Noa"), domain.ErrInvalidInput)
}

func TestParticipantService_LeaveEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev-1",
		[]*domain.MenuItem{hummus(2)},
		[]*domain.Assignment{{ID: "a-1", MenuItemID: "m-1", UserID: "u-1", Quantity: 2}})
	svc := NewParticipantService(s, nil, testTimeout)
	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-1", "Noa"))

	require.NoError(t, svc.LeaveEvent(ctx, "ev-1", "u-1"))
	ev := mustEvent(t, s, "ev-1")
	assert.NotContains(t, ev.Participants, "u-1")
	// Claims are cancelled separately.
	assert.Contains(t, ev.Assignments, "a-1")

	require.NoError(t, svc.LeaveEvent(ctx, "ev-1", "u-1"))
	require.ErrorIs(t, svc.LeaveEvent(ctx, "missing", "u-1"), domain.ErrNotFound)
}

func TestParticipantService_RenameParticipant(t *testing.T) {
	ctx := context.Background()
	legacyOwner := "u-1"
	legacyName := "Old Name"
	created := hummus(5)
	created.CreatorID = "u-1"
	created.CreatorName = "Old Name"
	legacy := &domain.MenuItem{ID: "m-2", Name: "Challah", QuantityRequired: 2, LegacyAssignedTo: &legacyOwner, LegacyAssignedToName: &legacyName}
	others := &domain.MenuItem{ID: "m-3", Name: "Wine", QuantityRequired: 3, TotalAssignedQuantity: 1, CreatorID: "u-2", CreatorName: "Tal"}

	s := newTestStore(t)
	seedEvent(t, s, "ev-1",
		[]*domain.MenuItem{created, legacy, others},
		[]*domain.Assignment{
			{ID: "a-1", MenuItemID: "m-1", UserID: "u-1", UserName: "Old Name", Quantity: 5},
			{ID: "a-2", MenuItemID: "m-3", UserID: "u-2", UserName: "Tal", Quantity: 1},
		})
	svc := NewParticipantService(s, nil, testTimeout)

	require.NoError(t, svc.RenameParticipant(ctx, "ev-1", "u-1", " Noa "))

	ev := mustEvent(t, s, "ev-1")
	assert.Equal(t, "Noa", ev.Participants["u-1"].Name)
	assert.Equal(t, "Noa", ev.Assignments["a-1"].UserName)
	assert.Equal(t, "Noa", ev.MenuItems["m-1"].CreatorName)
	require.NotNil(t, ev.MenuItems["m-2"].LegacyAssignedToName)
	assert.Equal(t, "Noa", *ev.MenuItems["m-2"].LegacyAssignedToName)
	assert.Equal(t, "Tal", ev.Assignments["a-2"].UserName)
	assert.Equal(t, "Tal", ev.MenuItems["m-3"].CreatorName)
	assert.Equal(t, 5.0, ev.MenuItems["m-1"].TotalAssignedQuantity)

	require.ErrorIs(t, svc.RenameParticipant(ctx, "ev-1", "u-1", "  "), domain.ErrInvalidInput)
	require.ErrorIs(t, svc.RenameParticipant(ctx, "missing", "u-1", "Noa"), domain.ErrNotFound)
}

func TestParticipantService_RenameUnchangedSkipsWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)
	seedEvent(t, s, "ev-1", nil, nil)
	svc := NewParticipantService(s, nil, testTimeout)
	require.NoError(t, svc.JoinEvent(ctx, "ev-1", "u-1", "Noa"))

	changes := make(chan *domain.Event, 8)
	stop, err := s.WatchEvent(ctx, "ev-1", func(ev *domain.Event) { changes <- ev })
	require.NoError(t, err)
	defer stop()
	<-changes

	require.NoError(t, svc.RenameParticipant(ctx, "ev-1", "u-1", "Noa"))
	select {
	case <-changes:
		t.Fatal("unchanged rename wrote to the store")
	case <-time.After(50 * time.Millisecond):
	}
}
