package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"potluck/internal/adapters/auth"
	"potluck/internal/delivery/http/controllers"
	"potluck/internal/delivery/http/helpers"
	"potluck/internal/domain"
	"potluck/internal/metrics"
	"potluck/internal/services"
	"potluck/internal/store"
	"potluck/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	authority auth.JWTAuthority
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	es := store.New(memory.NewBackend(store.Options{}), logger)
	rec := metrics.NewRecorder()
	timeout := 5 * time.Second

	participants := services.NewParticipantService(es, rec, timeout)
	c := Controllers{
		Events:       controllers.NewEventController(logger, services.NewEventService(es, rec, logger, timeout), services.NewValidator(es, rec, logger)),
		Items:        controllers.NewItemController(logger, services.NewItemService(es, rec, domain.DefaultUserItemLimit, timeout)),
		Assignments:  controllers.NewAssignmentController(logger, services.NewReservationService(es, participants, rec, logger, timeout)),
		Participants: controllers.NewParticipantController(logger, participants),
		Account:      controllers.NewAccountController(logger, services.NewPurgeService(es, nil, []string{"admin"}, rec, logger)),
	}
	authority := auth.NewJWTAuthority("router-test-secret", "potluck")
	srv := httptest.NewServer(NewRouter(c, authority, rec.Handler(), logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, authority: authority}
}

func (s *testServer) token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := s.authority.Issue(domain.Identity{UserID: userID, DisplayName: name}, time.Hour)
	require.NoError(t, err)
	return tok
}

// call sends a JSON request and decodes the envelope data into dest when non-nil.
func (s *testServer) call(t *testing.T, method, path, token, body string, dest any) (int, helpers.APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if dest != nil && envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dest))
	}
	return resp.StatusCode, envelope
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.call(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_RequiresToken(t *testing.T) {
	srv := newTestServer(t)
	status, envelope := srv.call(t, http.MethodPost, "/events", "", `{"title":"Seder"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, helpers.ErrCodeUnauthorized, envelope.Error.Code)

	status, _ = srv.call(t, http.MethodDelete, "/me", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_ClaimFlow(t *testing.T) {
	srv := newTestServer(t)
	organizer := srv.token(t, "u-1", "Noa")
	guest := srv.token(t, "u-2", "Dan")

	var ev domain.Event
	status, _ := srv.call(t, http.MethodPost, "/events", organizer, `{"title":"Seder","date":"2025-04-12"}`, &ev)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, ev.ID)

	var item controllers.ItemCreatedResponse
	status, _ = srv.call(t, http.MethodPost, "/events/"+ev.ID+"/items", organizer,
		`{"name":"Hummus","category":"starter","quantity_required":10,"unit_type":"servings"}`, &item)
	require.Equal(t, http.StatusCreated, status)

	claimPath := "/events/" + ev.ID + "/items/" + item.ItemID + "/assignments"
	var claim controllers.AssignmentCreatedResponse
	status, _ = srv.call(t, http.MethodPost, claimPath, organizer, `{"quantity":6}`, &claim)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, claim.AssignmentID)

	status, envelope := srv.call(t, http.MethodPost, claimPath, guest, `{"quantity":5}`, nil)
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, helpers.ErrCodeCapacityExceeded, envelope.Error.Code)

	status, _ = srv.call(t, http.MethodPost, claimPath, guest, `{"quantity":4}`, nil)
	require.Equal(t, http.StatusCreated, status)

	var got domain.Event
	status, _ = srv.call(t, http.MethodGet, "/events/"+ev.ID, guest, "", &got)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, got.MenuItems, item.ItemID)
	assert.Equal(t, 10.0, got.MenuItems[item.ItemID].TotalAssignedQuantity)
	assert.Contains(t, got.Participants, "u-2", "claiming registers the participant")

	var report domain.ValidationReport
	status, _ = srv.call(t, http.MethodGet, "/events/"+ev.ID+"/validation", guest, "", &report)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, report.Valid, "issues: %v", report.Issues)

	status, _ = srv.call(t, http.MethodDelete, "/events/"+ev.ID+"/assignments/"+claim.AssignmentID, organizer, "", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.call(t, http.MethodGet, "/events/"+ev.ID, guest, "", &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 4.0, got.MenuItems[item.ItemID].TotalAssignedQuantity)

	status, _ = srv.call(t, http.MethodDelete, "/events/"+ev.ID, guest, "", nil)
	assert.Equal(t, http.StatusForbidden, status, "only the organizer deletes the event")

	var purge domain.PurgeReport
	status, _ = srv.call(t, http.MethodDelete, "/me", organizer, "", &purge)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{ev.ID}, purge.DeletedEvents)

	status, _ = srv.call(t, http.MethodGet, "/events/"+ev.ID, guest, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_OwnershipRules(t *testing.T) {
	srv := newTestServer(t)
	organizer := srv.token(t, "u-1", "Noa")
	guest := srv.token(t, "u-2", "Dan")
	other := srv.token(t, "u-3", "Mia")

	var ev domain.Event
	status, _ := srv.call(t, http.MethodPost, "/events", organizer, `{"title":"Seder","allow_user_items":false}`, &ev)
	require.Equal(t, http.StatusCreated, status)

	var item controllers.ItemCreatedResponse
	status, _ = srv.call(t, http.MethodPost, "/events/"+ev.ID+"/items", organizer,
		`{"name":"Hummus","category":"starter","quantity_required":10,"unit_type":"servings"}`, &item)
	require.Equal(t, http.StatusCreated, status)
	itemPath := "/events/" + ev.ID + "/items/" + item.ItemID

	expectForbidden := func(t *testing.T, method, path, token, body string) {
		t.Helper()
		status, envelope := srv.call(t, method, path, token, body, nil)
		require.Equal(t, http.StatusForbidden, status)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, helpers.ErrCodeForbidden, envelope.Error.Code)
	}

	t.Run("guest cannot add unclaimed items", func(t *testing.T) {
		expectForbidden(t, http.MethodPost, "/events/"+ev.ID+"/items", guest,
			`{"name":"Wine","category":"drink","quantity_required":50,"unit_type":"units"}`)
	})

	t.Run("guest cannot edit or delete the organizer's item", func(t *testing.T) {
		expectForbidden(t, http.MethodPatch, itemPath, guest, `{"quantity_required":1}`)
		expectForbidden(t, http.MethodDelete, itemPath, guest, "")
	})

	var claim controllers.AssignmentCreatedResponse
	status, _ = srv.call(t, http.MethodPost, itemPath+"/assignments", guest, `{"quantity":4}`, &claim)
	require.Equal(t, http.StatusCreated, status)
	claimPath := "/events/" + ev.ID + "/assignments/" + claim.AssignmentID

	t.Run("another participant cannot touch the claim", func(t *testing.T) {
		expectForbidden(t, http.MethodPatch, claimPath, other, `{"quantity":1}`)
		expectForbidden(t, http.MethodPatch, claimPath, other, `{"quantity":4,"display_name":"Impostor"}`)
		expectForbidden(t, http.MethodDelete, claimPath, other, "")
		expectForbidden(t, http.MethodPost, "/events/"+ev.ID+"/assignments/cancellations", other,
			`{"item_ids":["`+item.ItemID+`"]}`)
	})

	var got domain.Event
	status, _ = srv.call(t, http.MethodGet, "/events/"+ev.ID, guest, "", &got)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, got.MenuItems, 1)
	assert.Equal(t, 10.0, got.MenuItems[item.ItemID].QuantityRequired)
	assert.Equal(t, 4.0, got.MenuItems[item.ItemID].TotalAssignedQuantity)
	require.Contains(t, got.Assignments, claim.AssignmentID)
	assert.Equal(t, "Dan", got.Assignments[claim.AssignmentID].UserName)

	status, _ = srv.call(t, http.MethodPatch, claimPath, guest, `{"quantity":3}`, nil)
	require.Equal(t, http.StatusOK, status, "the claimant adjusts their own claim")
	status, _ = srv.call(t, http.MethodDelete, itemPath, organizer, "", nil)
	require.Equal(t, http.StatusOK, status, "the organizer deletes any item")
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.call(t, http.MethodPost, "/events", srv.token(t, "u-1", "Noa"), `{"title":"Seder"}`, nil)
	require.Equal(t, http.StatusCreated, status)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `potluck_operations_total{operation="create_event",outcome="ok"} 1`)
}
