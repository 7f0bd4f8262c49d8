package http

import (
	"log/slog"
	"net/http"

	"potluck/internal/delivery/http/controllers"
	"potluck/internal/delivery/http/middleware"
	"potluck/internal/domain"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Events       *controllers.EventController
	Items        *controllers.ItemController
	Assignments  *controllers.AssignmentController
	Participants *controllers.ParticipantController
	Account      *controllers.AccountController
}

// NewRouter initializes the HTTP router with all application routes.
// Every API route requires a bearer token; /health, /metrics and /swagger/ do not.
// metrics may be nil.
func NewRouter(c Controllers, verifier domain.TokenVerifier, metrics http.Handler, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)

	// Events
	mux.HandleFunc("POST /events", auth(c.Events.CreateEvent))
	mux.HandleFunc("GET /events/mine", auth(c.Events.ListMyEvents))
	mux.HandleFunc("GET /events/{eventID}", auth(c.Events.GetEvent))
	mux.HandleFunc("PATCH /events/{eventID}/details", auth(c.Events.UpdateEventDetails))
	mux.HandleFunc("DELETE /events/{eventID}", auth(c.Events.DeleteEvent))
	mux.HandleFunc("GET /events/{eventID}/watch", auth(c.Events.WatchEvent))
	mux.HandleFunc("GET /events/{eventID}/validation", auth(c.Events.ValidateEvent))

	// Participants
	mux.HandleFunc("POST /events/{eventID}/participants", auth(c.Participants.JoinEvent))
	mux.HandleFunc("DELETE /events/{eventID}/participants/me", auth(c.Participants.LeaveEvent))
	mux.HandleFunc("PUT /events/{eventID}/participants/me/name", auth(c.Participants.RenameParticipant))

	// Menu items
	mux.HandleFunc("POST /events/{eventID}/items", auth(c.Items.AddItem))
	mux.HandleFunc("POST /events/{eventID}/items/claimed", auth(c.Items.AddItemAndAssign))
	mux.HandleFunc("PATCH /events/{eventID}/items/{itemID}", auth(c.Items.UpdateItem))
	mux.HandleFunc("DELETE /events/{eventID}/items/{itemID}", auth(c.Items.DeleteItem))

	// Assignments
	mux.HandleFunc("POST /events/{eventID}/items/{itemID}/assignments", auth(c.Assignments.CreateAssignment))
	mux.HandleFunc("PATCH /events/{eventID}/assignments/{assignmentID}", auth(c.Assignments.UpdateAssignment))
	mux.HandleFunc("DELETE /events/{eventID}/assignments/{assignmentID}", auth(c.Assignments.CancelAssignment))
	mux.HandleFunc("POST /events/{eventID}/assignments/cancellations", auth(c.Assignments.CancelAssignmentsForItems))

	// Account
	mux.HandleFunc("DELETE /me", auth(c.Account.DeleteMe))

	// Operations
	mux.HandleFunc("GET /health", controllers.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
