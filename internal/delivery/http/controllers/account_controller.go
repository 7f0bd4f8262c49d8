package controllers

import (
	"log/slog"
	"net/http"

	"potluck/internal/delivery/http/helpers"
	"potluck/internal/domain"
)

// PurgeSuccessResponse is the success response envelope for DELETE /me (200).
type PurgeSuccessResponse struct {
	Data  *domain.PurgeReport `json:"data"`
	Error *helpers.APIError   `json:"error"`
}

type AccountController struct {
	Logger  *slog.Logger
	Service domain.PurgeService
}

func NewAccountController(logger *slog.Logger, svc domain.PurgeService) *AccountController {
	return &AccountController{Logger: logger, Service: svc}
}

// DeleteMe godoc
// @Summary Delete my account data
// @Description Deletes the events the caller organizes and removes the caller's claims, participation and profile from everyone else's events. Protected identities are refused.
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.PurgeSuccessResponse "data contains the purge report"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (protected identity)"
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /me [delete]
func (c *AccountController) DeleteMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	report, err := c.Service.PurgeAccount(r.Context(), caller.UserID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, report)
}

// Health godoc
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} helpers.APIResponse "data.status: ok"
// @Router /health [get]
func Health(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSONSuccess(w, http.StatusOK, StatusResponse{Status: "ok"})
}
