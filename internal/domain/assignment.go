package domain

import (
	"context"
	"time"
)

// AssignmentStatus tags the state of a claim.
type AssignmentStatus string

const (
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Assignment is one participant's claim of a quantity against a menu item.
// swagger:model Assignment
type Assignment struct {
	ID         string           `json:"id"`
	MenuItemID string           `json:"menu_item_id"`
	UserID     string           `json:"user_id"`
	UserName   string           `json:"user_name"`
	Quantity   float64          `json:"quantity"`
	Notes      string           `json:"notes,omitempty"`
	Status     AssignmentStatus `json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
	UpdatedAt  *time.Time       `json:"updated_at,omitempty"`
}

// Participant is a user's display identity within one event, keyed by user id.
// swagger:model Participant
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// ClaimRequest is a participant's request to claim part of a menu item.
type ClaimRequest struct {
	MenuItemID string
	UserID     string
	UserName   string
	Quantity   float64
	Notes      string
}

// ClaimUpdate changes an existing claim. A non-empty DisplayName is
// propagated to the participant's other records after the claim commits and
// may only be set by the claimant.
type ClaimUpdate struct {
	Quantity    float64
	Notes       string
	DisplayName string
}

// CancelFailure reports one assignment a bulk cancellation could not cancel.
type CancelFailure struct {
	AssignmentID string `json:"assignment_id"`
	MenuItemID   string `json:"menu_item_id"`
	Error        string `json:"error"`
}

// BulkCancelResult summarizes a bulk cancellation.
// swagger:model BulkCancelResult
type BulkCancelResult struct {
	Cancelled []string        `json:"cancelled"`
	Failed    []CancelFailure `json:"failed"`
}

// ReservationService defines the quantity-accounting operations. These are
// the only operations that change a menu item's assigned total. A claim may
// be changed or cancelled by its claimant or by the event organizer; bulk
// cancellation is reserved to the organizer.
type ReservationService interface {
	CreateAssignment(ctx context.Context, eventID string, req ClaimRequest) (string, error)
	UpdateAssignment(ctx context.Context, eventID, assignmentID, actorID string, upd ClaimUpdate) error
	CancelAssignment(ctx context.Context, eventID, assignmentID, menuItemID, actorID string) error
	CancelAssignmentsForItems(ctx context.Context, eventID, actorID string, itemIDs []string) (*BulkCancelResult, error)
}

// ParticipantService manages participant records and name propagation.
type ParticipantService interface {
	JoinEvent(ctx context.Context, eventID, userID, name string) error
	LeaveEvent(ctx context.Context, eventID, userID string) error
	// RenameParticipant is best-effort and not atomic with concurrent item creation.
	RenameParticipant(ctx context.Context, eventID, userID, name string) error
}
