package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/domain"
)

// ClaimRequest is the request body for POST /events/{eventID}/items/{itemID}/assignments.
type ClaimRequest struct {
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes"`
	UserName string  `json:"user_name"`
}

// Validate implements Validator.
func (c ClaimRequest) Validate() []string {
	if c.Quantity <= 0 {
		return []string{"quantity must be positive"}
	}
	return nil
}

// AssignmentCreatedResponse is the data payload for a new claim.
type AssignmentCreatedResponse struct {
	AssignmentID string `json:"assignment_id"`
}

// AssignmentCreatedSuccessResponse is the success response envelope for a new claim (201).
type AssignmentCreatedSuccessResponse struct {
	Data  AssignmentCreatedResponse `json:"data"`
	Error *helpers.APIError         `json:"error"`
}

// UpdateClaimRequest is the request body for PATCH /events/{eventID}/assignments/{assignmentID}.
type UpdateClaimRequest struct {
	Quantity    float64 `json:"quantity"`
	Notes       string  `json:"notes"`
	DisplayName string  `json:"display_name"`
}

// Validate implements Validator.
func (u UpdateClaimRequest) Validate() []string {
	if u.Quantity <= 0 {
		return []string{"quantity must be positive"}
	}
	return nil
}

// BulkCancelRequest is the request body for POST /events/{eventID}/assignments/cancellations.
type BulkCancelRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// Validate implements Validator.
func (b BulkCancelRequest) Validate() []string {
	if len(b.ItemIDs) == 0 {
		return []string{"item_ids is required"}
	}
	return nil
}

// BulkCancelSuccessResponse is the success response envelope for bulk cancellation (200).
type BulkCancelSuccessResponse struct {
	Data  *domain.BulkCancelResult `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

type AssignmentController struct {
	Logger  *slog.Logger
	Service domain.ReservationService
}

func NewAssignmentController(logger *slog.Logger, svc domain.ReservationService) *AssignmentController {
	return &AssignmentController{Logger: logger, Service: svc}
}

// CreateAssignment godoc
// @Summary Claim part of a menu item
// @Description Claims quantity of an item for the caller. Fails with capacity_exceeded when less than the requested quantity remains.
// @Tags assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param itemID path string true "Menu item ID"
// @Param claim body ClaimRequest true "Claim"
// @Success 201 {object} controllers.AssignmentCreatedSuccessResponse "data contains the assignment id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: capacity_exceeded"
// @Router /events/{eventID}/items/{itemID}/assignments [post]
func (c *AssignmentController) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	eventID, itemID := r.PathValue("eventID"), r.PathValue("itemID")
	if eventID == "" || itemID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID or itemID")
		return
	}
	var req ClaimRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		name = caller.DisplayName
	}
	id, err := c.Service.CreateAssignment(r.Context(), eventID, domain.ClaimRequest{
		MenuItemID: itemID,
		UserID:     caller.UserID,
		UserName:   name,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, AssignmentCreatedResponse{AssignmentID: id})
}

// UpdateAssignment godoc
// @Summary Change a claim
// @Description Sets a new quantity and notes on a claim. Only the claimant or the organizer may change it. A display_name, accepted from the claimant only, is propagated to their other records after the claim commits.
// @Tags assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param assignmentID path string true "Assignment ID"
// @Param claim body UpdateClaimRequest true "Claim update"
// @Success 200 {object} helpers.APIResponse "data.status: updated"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: capacity_exceeded"
// @Router /events/{eventID}/assignments/{assignmentID} [patch]
func (c *AssignmentController) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	eventID, assignmentID := r.PathValue("eventID"), r.PathValue("assignmentID")
	if eventID == "" || assignmentID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID or assignmentID")
		return
	}
	var req UpdateClaimRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	err := c.Service.UpdateAssignment(r.Context(), eventID, assignmentID, caller.UserID, domain.ClaimUpdate(req))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// CancelAssignment godoc
// @Summary Cancel a claim
// @Description Removes a claim and returns its quantity to the item. Only the claimant or the organizer may cancel it. Cancelling a claim that no longer exists succeeds.
// @Tags assignments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param assignmentID path string true "Assignment ID"
// @Param menu_item_id query string false "Menu item the claim is expected to reference"
// @Success 200 {object} helpers.APIResponse "data.status: cancelled"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /events/{eventID}/assignments/{assignmentID} [delete]
func (c *AssignmentController) CancelAssignment(w http.ResponseWriter, r *http.Request) {
	eventID, assignmentID := r.PathValue("eventID"), r.PathValue("assignmentID")
	if eventID == "" || assignmentID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID or assignmentID")
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	menuItemID := r.URL.Query().Get("menu_item_id")
	if err := c.Service.CancelAssignment(r.Context(), eventID, assignmentID, menuItemID, caller.UserID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}

// CancelAssignmentsForItems godoc
// @Summary Cancel every claim on a set of items
// @Description Organizer only. Cancels each claim against the given items independently and reports which ones failed.
// @Tags assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body BulkCancelRequest true "Items"
// @Success 200 {object} controllers.BulkCancelSuccessResponse "data contains cancelled and failed assignments"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/assignments/cancellations [post]
func (c *AssignmentController) CancelAssignmentsForItems(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req BulkCancelRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	result, err := c.Service.CancelAssignmentsForItems(r.Context(), eventID, caller.UserID, req.ItemIDs)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}
