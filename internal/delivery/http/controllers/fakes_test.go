package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/delivery/http/middleware"
	"potluck/internal/domain"

	"github.com/stretchr/testify/require"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var testCaller = domain.Identity{UserID: "user-123", DisplayName: "Noa"}

// newRequest builds a request with path values and, unless caller is nil, an identity.
func newRequest(method, target, body string, caller *domain.Identity, pathValues map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if caller != nil {
		req = req.WithContext(middleware.SetIdentity(req.Context(), *caller))
	}
	return req
}

// decodeEnvelope decodes the response envelope and, when dest is non-nil, its data.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, dest any) helpers.APIResponse {
	t.Helper()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope), "response must be valid JSON envelope")
	if dest != nil && envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dest))
	}
	return envelope
}

// fakeEventService implements domain.EventService for handler tests.
type fakeEventService struct {
	err           error
	event         *domain.Event
	events        []*domain.Event
	watchErr      error
	watchUpdates  []*domain.Event
	lastOrganizer domain.Identity
	lastDetails   domain.EventDetails
	lastEventID   string
	lastActorID   string
	lastPatch     domain.EventDetailsPatch
	stopped       bool
}

func (f *fakeEventService) CreateEvent(_ context.Context, organizer domain.Identity, details domain.EventDetails) (*domain.Event, error) {
	f.lastOrganizer, f.lastDetails = organizer, details
	if f.err != nil {
		return nil, f.err
	}
	ev := domain.NewEvent(organizer.UserID, organizer.DisplayName, details, time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))
	ev.ID = "ev-created"
	return ev, nil
}

func (f *fakeEventService) GetEvent(_ context.Context, eventID string) (*domain.Event, error) {
	f.lastEventID = eventID
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func (f *fakeEventService) ListEventsByOrganizer(_ context.Context, organizerID string) ([]*domain.Event, error) {
	f.lastActorID = organizerID
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeEventService) UpdateEventDetails(_ context.Context, eventID, actorID string, patch domain.EventDetailsPatch) (*domain.Event, error) {
	f.lastEventID, f.lastActorID, f.lastPatch = eventID, actorID, patch
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func (f *fakeEventService) DeleteEvent(_ context.Context, eventID, actorID string) error {
	f.lastEventID, f.lastActorID = eventID, actorID
	return f.err
}

func (f *fakeEventService) WatchEvent(_ context.Context, eventID string, onChange func(*domain.Event)) (func(), error) {
	f.lastEventID = eventID
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ev := range f.watchUpdates {
			onChange(ev)
		}
	}()
	return func() {
		<-done
		f.stopped = true
	}, nil
}

// fakeValidator implements domain.Validator.
type fakeValidator struct {
	report *domain.ValidationReport
	err    error
}

func (f *fakeValidator) ValidateEvent(_ context.Context, eventID string) (*domain.ValidationReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.report.EventID = eventID
	return f.report, nil
}

func (f *fakeValidator) ValidateAll(context.Context) ([]*domain.ValidationReport, error) {
	return []*domain.ValidationReport{f.report}, f.err
}

// fakeItemService implements domain.ItemService.
type fakeItemService struct {
	err         error
	lastEventID string
	lastItemID  string
	lastInput   domain.ItemInput
	lastPatch   domain.ItemPatch
	lastUserID  string
	lastName    string
}

func (f *fakeItemService) AddItem(_ context.Context, eventID, actorID string, in domain.ItemInput) (string, error) {
	f.lastEventID, f.lastUserID, f.lastInput = eventID, actorID, in
	if f.err != nil {
		return "", f.err
	}
	return "m-new", nil
}

func (f *fakeItemService) AddItemAndAssign(_ context.Context, eventID string, in domain.ItemInput, userID, userName string) (string, error) {
	f.lastEventID, f.lastInput, f.lastUserID, f.lastName = eventID, in, userID, userName
	if f.err != nil {
		return "", f.err
	}
	return "m-new", nil
}

func (f *fakeItemService) UpdateItem(_ context.Context, eventID, itemID, actorID string, patch domain.ItemPatch) error {
	f.lastEventID, f.lastItemID, f.lastUserID, f.lastPatch = eventID, itemID, actorID, patch
	return f.err
}

func (f *fakeItemService) DeleteItem(_ context.Context, eventID, itemID, actorID string) error {
	f.lastEventID, f.lastItemID, f.lastUserID = eventID, itemID, actorID
	return f.err
}

// fakeReservationService implements domain.ReservationService.
type fakeReservationService struct {
	err              error
	bulk             *domain.BulkCancelResult
	lastEventID      string
	lastAssignmentID string
	lastMenuItemID   string
	lastActorID      string
	lastClaim        domain.ClaimRequest
	lastUpdate       domain.ClaimUpdate
	lastItemIDs      []string
}

func (f *fakeReservationService) CreateAssignment(_ context.Context, eventID string, req domain.ClaimRequest) (string, error) {
	f.lastEventID, f.lastClaim = eventID, req
	if f.err != nil {
		return "", f.err
	}
	return "a-new", nil
}

func (f *fakeReservationService) UpdateAssignment(_ context.Context, eventID, assignmentID, actorID string, upd domain.ClaimUpdate) error {
	f.lastEventID, f.lastAssignmentID, f.lastActorID, f.lastUpdate = eventID, assignmentID, actorID, upd
	return f.err
}

func (f *fakeReservationService) CancelAssignment(_ context.Context, eventID, assignmentID, menuItemID, actorID string) error {
	f.lastEventID, f.lastAssignmentID, f.lastMenuItemID, f.lastActorID = eventID, assignmentID, menuItemID, actorID
	return f.err
}

func (f *fakeReservationService) CancelAssignmentsForItems(_ context.Context, eventID, actorID string, itemIDs []string) (*domain.BulkCancelResult, error) {
	f.lastEventID, f.lastActorID, f.lastItemIDs = eventID, actorID, itemIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.bulk, nil
}

// fakeParticipantService implements domain.ParticipantService.
type fakeParticipantService struct {
	err         error
	lastEventID string
	lastUserID  string
	lastName    string
}

func (f *fakeParticipantService) JoinEvent(_ context.Context, eventID, userID, name string) error {
	f.lastEventID, f.lastUserID, f.lastName = eventID, userID, name
	return f.err
}

func (f *fakeParticipantService) LeaveEvent(_ context.Context, eventID, userID string) error {
	f.lastEventID, f.lastUserID = eventID, userID
	return f.err
}

func (f *fakeParticipantService) RenameParticipant(_ context.Context, eventID, userID, name string) error {
	f.lastEventID, f.lastUserID, f.lastName = eventID, userID, name
	return f.err
}

// fakePurgeService implements domain.PurgeService.
type fakePurgeService struct {
	err        error
	lastUserID string
}

func (f *fakePurgeService) PurgeAccount(_ context.Context, userID string) (*domain.PurgeReport, error) {
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PurgeReport{UserID: userID, DeletedEvents: []string{"ev-1"}, DeletedAssignments: 2, Writes: 4}, nil
}
