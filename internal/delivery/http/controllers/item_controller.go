package controllers

import (
	"log/slog"
	"net/http"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/domain"
)

// AddItemRequest is the request body for POST /events/{eventID}/items and
// POST /events/{eventID}/items/claimed.
type AddItemRequest struct {
	Name             string          `json:"name"`
	Category         domain.Category `json:"category"`
	QuantityRequired float64         `json:"quantity_required"`
	UnitType         domain.UnitType `json:"unit_type"`
	IsRequired       bool            `json:"is_required"`
	Notes            string          `json:"notes"`
}

// Validate implements Validator. Bounds are checked by the service.
func (a AddItemRequest) Validate() []string {
	var errs []string
	if a.Name == "" {
		errs = append(errs, "name is required")
	}
	if a.QuantityRequired <= 0 {
		errs = append(errs, "quantity_required must be positive")
	}
	return errs
}

func (a AddItemRequest) input() domain.ItemInput {
	return domain.ItemInput{
		Name:             a.Name,
		Category:         a.Category,
		QuantityRequired: a.QuantityRequired,
		UnitType:         a.UnitType,
		IsRequired:       a.IsRequired,
		Notes:            a.Notes,
	}
}

// ItemCreatedResponse is the data payload when an item is created.
type ItemCreatedResponse struct {
	ItemID string `json:"item_id"`
}

// ItemCreatedSuccessResponse is the success response envelope for item creation (201).
type ItemCreatedSuccessResponse struct {
	Data  ItemCreatedResponse `json:"data"`
	Error *helpers.APIError   `json:"error"`
}

type ItemController struct {
	Logger  *slog.Logger
	Service domain.ItemService
}

func NewItemController(logger *slog.Logger, svc domain.ItemService) *ItemController {
	return &ItemController{Logger: logger, Service: svc}
}

// AddItem godoc
// @Summary Add a menu item
// @Description Adds an unclaimed menu item to the event. Only the organizer may use this; participants add items through /items/claimed.
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param item body AddItemRequest true "Menu item"
// @Success 201 {object} controllers.ItemCreatedSuccessResponse "data contains the item id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/items [post]
func (c *ItemController) AddItem(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req AddItemRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	itemID, err := c.Service.AddItem(r.Context(), eventID, caller.UserID, req.input())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, ItemCreatedResponse{ItemID: itemID})
}

// AddItemAndAssign godoc
// @Summary Add a menu item and claim all of it
// @Description Creates an item on behalf of the caller and assigns its full quantity to them, subject to the event's per-user item quota.
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param item body AddItemRequest true "Menu item"
// @Success 201 {object} controllers.ItemCreatedSuccessResponse "data contains the item id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (participant items disabled)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: quota_exceeded"
// @Router /events/{eventID}/items/claimed [post]
func (c *ItemController) AddItemAndAssign(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req AddItemRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	itemID, err := c.Service.AddItemAndAssign(r.Context(), eventID, req.input(), caller.UserID, caller.DisplayName)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, ItemCreatedResponse{ItemID: itemID})
}

// UpdateItemRequest is the request body for PATCH /events/{eventID}/items/{itemID}.
// The assigned total cannot be set through this endpoint.
type UpdateItemRequest struct {
	Name             *string          `json:"name"`
	Category         *domain.Category `json:"category"`
	QuantityRequired *float64         `json:"quantity_required"`
	UnitType         *domain.UnitType `json:"unit_type"`
	IsRequired       *bool            `json:"is_required"`
	Notes            *string          `json:"notes"`
}

// UpdateItem godoc
// @Summary Update a menu item
// @Description Updates plain item fields. The required quantity cannot drop below what is already claimed.
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param itemID path string true "Menu item ID"
// @Param body body UpdateItemRequest true "Fields to update (all optional)"
// @Success 200 {object} helpers.APIResponse "data.status: updated"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/items/{itemID} [patch]
func (c *ItemController) UpdateItem(w http.ResponseWriter, r *http.Request) {
	eventID, itemID := r.PathValue("eventID"), r.PathValue("itemID")
	if eventID == "" || itemID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID or itemID")
		return
	}
	var req UpdateItemRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := c.Service.UpdateItem(r.Context(), eventID, itemID, caller.UserID, domain.ItemPatch(req)); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// DeleteItem godoc
// @Summary Delete a menu item
// @Description Deletes the item together with every assignment against it. Deleting a missing item succeeds.
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param itemID path string true "Menu item ID"
// @Success 200 {object} helpers.APIResponse "data.status: deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /events/{eventID}/items/{itemID} [delete]
func (c *ItemController) DeleteItem(w http.ResponseWriter, r *http.Request) {
	eventID, itemID := r.PathValue("eventID"), r.PathValue("itemID")
	if eventID == "" || itemID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID or itemID")
		return
	}
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteItem(r.Context(), eventID, itemID, caller.UserID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "deleted"})
}
