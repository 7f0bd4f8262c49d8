package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/domain"
)

// JoinEventRequest is the request body for POST /events/{eventID}/participants.
// An empty name falls back to the token's display name.
type JoinEventRequest struct {
	Name string `json:"name"`
}

// RenameRequest is the request body for PUT /events/{eventID}/participants/me/name.
type RenameRequest struct {
	Name string `json:"name"`
}

// Validate implements Validator.
func (r RenameRequest) Validate() []string {
	if strings.TrimSpace(r.Name) == "" {
		return []string{"name is required"}
	}
	return nil
}

type ParticipantController struct {
	Logger  *slog.Logger
	Service domain.ParticipantService
}

func NewParticipantController(logger *slog.Logger, svc domain.ParticipantService) *ParticipantController {
	return &ParticipantController{Logger: logger, Service: svc}
}

// JoinEvent godoc
// @Summary Join an event
// @Description Records the caller as a participant of the event, or refreshes their display name.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body JoinEventRequest true "Display name"
// @Success 200 {object} helpers.APIResponse "data.status: joined"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/participants [post]
func (c *ParticipantController) JoinEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req JoinEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = caller.DisplayName
	}
	if err := c.Service.JoinEvent(r.Context(), eventID, caller.UserID, name); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "joined"})
}

// LeaveEvent godoc
// @Summary Leave an event
// @Description Removes the caller's participant record. Their claims are left untouched.
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse "data.status: left"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/participants/me [delete]
func (c *ParticipantController) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := c.Service.LeaveEvent(r.Context(), eventID, caller.UserID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "left"})
}

// RenameParticipant godoc
// @Summary Change my display name in an event
// @Description Sets the caller's name on their participant record, claims and created items.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body RenameRequest true "New display name"
// @Success 200 {object} helpers.APIResponse "data.status: renamed"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/participants/me/name [put]
func (c *ParticipantController) RenameParticipant(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req RenameRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := c.Service.RenameParticipant(r.Context(), eventID, caller.UserID, req.Name); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "renamed"})
}
