package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"potluck/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStore fails the selected calls and delegates everything else.
type faultyStore struct {
	domain.EventStore
	getUserErr error
	putUserErr error
	deleteErr  error
}

func (f *faultyStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	return f.EventStore.GetUser(ctx, userID)
}

func (f *faultyStore) PutUser(ctx context.Context, user *domain.User) error {
	if f.putUserErr != nil {
		return f.putUserErr
	}
	return f.EventStore.PutUser(ctx, user)
}

func (f *faultyStore) DeleteEvent(ctx context.Context, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.EventStore.DeleteEvent(ctx, eventID)
}

func TestEventService_CreateEvent(t *testing.T) {
	ctx := context.Background()
	details := domain.EventDetails{Title: " Rosh Hashana ", Date: "2025-09-22", Location: "Haifa", IsActive: true}

	tests := []struct {
		name      string
		organizer domain.Identity
		details   domain.EventDetails
		seedUser  *domain.User
		wantErr   error
		wantName  string
	}{
		{
			name:      "identity name wins",
			organizer: domain.Identity{UserID: "org-1", DisplayName: "Dana"},
			details:   details,
			seedUser:  &domain.User{ID: "org-1", Name: "Dana L."},
			wantName:  "Dana",
		},
		{
			name:      "falls back to profile",
			organizer: domain.Identity{UserID: "org-1"},
			details:   details,
			seedUser:  &domain.User{ID: "org-1", Name: "Dana L."},
			wantName:  "Dana L.",
		},
		{
			name:      "falls back to default",
			organizer: domain.Identity{UserID: "org-1"},
			details:   details,
			wantName:  DefaultOrganizerName,
		},
		{
			name:      "anonymous organizer",
			organizer: domain.Identity{UserID: "anon-1", IsAnonymous: true},
			details:   details,
			wantErr:   domain.ErrPermissionDenied,
		},
		{
			name:      "missing organizer",
			organizer: domain.Identity{},
			details:   details,
			wantErr:   domain.ErrInvalidInput,
		},
		{
			name:      "blank title",
			organizer: domain.Identity{UserID: "org-1"},
			details:   domain.EventDetails{Title: "   "},
			wantErr:   domain.ErrInvalidInput,
		},
		{
			name:      "negative limit",
			organizer: domain.Identity{UserID: "org-1"},
			details:   domain.EventDetails{Title: "Picnic", UserItemLimit: ptr(-1)},
			wantErr:   domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			if tt.seedUser != nil {
				require.NoError(t, s.PutUser(ctx, tt.seedUser))
			}
			rec := &captureRecorder{}
			svc := NewEventService(s, rec, discardLogger, testTimeout)

			ev, err := svc.CreateEvent(ctx, tt.organizer, tt.details)
			assert.Equal(t, opCreateEvent, rec.last().op)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, ev)
				events, err := s.ListEvents(ctx)
				require.NoError(t, err)
				require.Empty(t, events)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, ev.ID)
			assert.Equal(t, tt.wantName, ev.OrganizerName)

			stored := mustEvent(t, s, ev.ID)
			assert.Equal(t, "Rosh Hashana", stored.Details.Title)
			assert.Equal(t, "org-1", stored.OrganizerID)
			assert.Empty(t, stored.MenuItems)
			assert.Empty(t, stored.Assignments)

			// Every organizer ends up with a profile the purge can remove.
			_, err = s.GetUser(ctx, "org-1")
			require.NoError(t, err)
		})
	}
}

func TestEventService_CreateEventProfileErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("profile lookup fails", func(t *testing.T) {
		s := &faultyStore{EventStore: newTestStore(t), getUserErr: boom}
		svc := NewEventService(s, nil, discardLogger, testTimeout)
		_, err := svc.CreateEvent(ctx, domain.Identity{UserID: "org-1"}, domain.EventDetails{Title: "Picnic"})
		require.ErrorIs(t, err, boom)
	})

	t.Run("profile create fails", func(t *testing.T) {
		s := &faultyStore{EventStore: newTestStore(t), putUserErr: boom}
		svc := NewEventService(s, nil, discardLogger, testTimeout)
		_, err := svc.CreateEvent(ctx, domain.Identity{UserID: "org-1"}, domain.EventDetails{Title: "Picnic"})
		require.ErrorIs(t, err, boom)
	})
}

func TestEventService_GetAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev-1", nil, nil)
	seedEvent(t, s, "ev-2", nil, nil)
	other := domain.NewEvent("org-2", "Someone Else", domain.EventDetails{Title: "BBQ"}, now())
	other.ID = "ev-3"
	require.NoError(t, s.CreateEvent(ctx, other))
	svc := NewEventService(s, nil, discardLogger, testTimeout)

	ev, err := svc.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "Shabbat dinner", ev.Details.Title)

	_, err = svc.GetEvent(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := svc.ListEventsByOrganizer(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "org-1", ev.OrganizerID)
	}

	events, err = svc.ListEventsByOrganizer(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestEventService_UpdateEventDetails(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		actorID string
		patch   domain.EventDetailsPatch
		wantErr error
		assert  func(t *testing.T, d *domain.EventDetails)
	}{
		{
			name:    "organizer updates settings",
			actorID: "org-1",
			patch: domain.EventDetailsPatch{
				Title:          ptr(" Friday dinner "),
				AllowUserItems: ptr(false),
				UserItemLimit:  ptr(5),
			},
			assert: func(t *testing.T, d *domain.EventDetails) {
				assert.Equal(t, "Friday dinner", d.Title)
				assert.False(t, d.UserItemsAllowed())
				assert.Equal(t, 5, d.ItemLimit(3))
				assert.True(t, d.IsActive)
			},
		},
		{
			name:    "only the organizer",
			actorID: "u-1",
			patch:   domain.EventDetailsPatch{Location: ptr("Tel Aviv")},
			wantErr: domain.ErrPermissionDenied,
		},
		{
			name:    "blank title",
			actorID: "org-1",
			patch:   domain.EventDetailsPatch{Title: ptr(" ")},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "negative limit",
			actorID: "org-1",
			patch:   domain.EventDetailsPatch{UserItemLimit: ptr(-2)},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			seedEvent(t, s, "ev-1", nil, nil)
			svc := NewEventService(s, nil, discardLogger, testTimeout)

			updated, err := svc.UpdateEventDetails(ctx, "ev-1", tt.actorID, tt.patch)
			stored := mustEvent(t, s, "ev-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, updated)
				require.Equal(t, "Shabbat dinner", stored.Details.Title)
				require.Nil(t, stored.UpdatedAt)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, updated.UpdatedAt)
			require.NotNil(t, stored.UpdatedAt)
			tt.assert(t, stored.Details)
		})
	}

	t.Run("missing event", func(t *testing.T) {
		svc := NewEventService(newTestStore(t), nil, discardLogger, testTimeout)
		_, err := svc.UpdateEventDetails(ctx, "missing", "org-1", domain.EventDetailsPatch{Location: ptr("Haifa")})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEventService_DeleteEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("organizer deletes", func(t *testing.T) {
		s := newTestStore(t)
		seedEvent(t, s, "ev-1", []*domain.MenuItem{hummus(2)}, []*domain.Assignment{{ID: "a-1", MenuItemID: "m-1", UserID: "u-1", Quantity: 2}})
		svc := NewEventService(s, nil, discardLogger, testTimeout)

		require.NoError(t, svc.DeleteEvent(ctx, "ev-1", "org-1"))
		_, err := s.GetEvent(ctx, "ev-1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("not the organizer", func(t *testing.T) {
		s := newTestStore(t)
		seedEvent(t, s, "ev-1", nil, nil)
		svc := NewEventService(s, nil, discardLogger, testTimeout)

		require.ErrorIs(t, svc.DeleteEvent(ctx, "ev-1", "u-1"), domain.ErrPermissionDenied)
		mustEvent(t, s, "ev-1")
	})

	t.Run("missing", func(t *testing.T) {
		svc := NewEventService(newTestStore(t), nil, discardLogger, testTimeout)
		require.ErrorIs(t, svc.DeleteEvent(ctx, "missing", "org-1"), domain.ErrNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		boom := &domain.StoreError{Op: "transact", Err: errors.New("connection reset")}
		base := newTestStore(t)
		seedEvent(t, base, "ev-1", nil, nil)
		svc := NewEventService(&faultyStore{EventStore: base, deleteErr: boom}, nil, discardLogger, testTimeout)

		err := svc.DeleteEvent(ctx, "ev-1", "org-1")
		require.ErrorIs(t, err, domain.ErrTransientStore)
	})
}

func TestEventService_WatchEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)
	seedEvent(t, s, "ev-1", nil, nil)
	svc := NewEventService(s, nil, discardLogger, testTimeout)

	changes := make(chan *domain.Event, 8)
	stop, err := svc.WatchEvent(ctx, "ev-1", func(ev *domain.Event) { changes <- ev })
	require.NoError(t, err)
	defer stop()

	next := func() *domain.Event {
		select {
		case ev := <-changes:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no change delivered")
			return nil
		}
	}
	require.Equal(t, "Shabbat dinner", next().Details.Title)

	_, err = svc.UpdateEventDetails(ctx, "ev-1", "org-1", domain.EventDetailsPatch{Title: ptr("Seder")})
	require.NoError(t, err)
	require.Equal(t, "Seder", next().Details.Title)

	require.NoError(t, svc.DeleteEvent(ctx, "ev-1", "org-1"))
	require.Nil(t, next())
}
