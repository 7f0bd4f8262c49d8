package domain

import (
	"context"
	"time"
)

// DefaultUserItemLimit is the per-user item quota applied when an event does not set one.
const DefaultUserItemLimit = 3

// EventDetails holds the organizer-editable settings of an event.
// swagger:model EventDetails
type EventDetails struct {
	Title          string `json:"title"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Location       string `json:"location"`
	Description    string `json:"description,omitempty"`
	IsActive       bool   `json:"is_active"`
	AllowUserItems *bool  `json:"allow_user_items,omitempty"`
	UserItemLimit  *int   `json:"user_item_limit,omitempty"`
}

// UserItemsAllowed reports whether participants may add their own items.
// Only an explicit false disables it.
func (d EventDetails) UserItemsAllowed() bool {
	return d.AllowUserItems == nil || *d.AllowUserItems
}

// ItemLimit returns the per-user item quota, falling back to fallback when unset.
func (d EventDetails) ItemLimit(fallback int) int {
	if d.UserItemLimit == nil {
		return fallback
	}
	return *d.UserItemLimit
}

// Event is the container owning all per-event entities. It is stored as a
// single subtree so that its items, assignments and counters can be changed
// together in one transaction.
// swagger:model Event
type Event struct {
	ID             string                  `json:"id"`
	OrganizerID    string                  `json:"organizer_id"`
	OrganizerName  string                  `json:"organizer_name"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      *time.Time              `json:"updated_at,omitempty"`
	Details        *EventDetails           `json:"details"`
	MenuItems      map[string]*MenuItem    `json:"menu_items"`
	Assignments    map[string]*Assignment  `json:"assignments"`
	Participants   map[string]*Participant `json:"participants"`
	UserItemCounts map[string]int          `json:"user_item_counts"`
}

// NewEvent returns an Event with empty collections. ID is typically set by the caller before create.
func NewEvent(organizerID, organizerName string, details EventDetails, createdAt time.Time) *Event {
	return &Event{
		OrganizerID:    organizerID,
		OrganizerName:  organizerName,
		CreatedAt:      createdAt,
		Details:        &details,
		MenuItems:      map[string]*MenuItem{},
		Assignments:    map[string]*Assignment{},
		Participants:   map[string]*Participant{},
		UserItemCounts: map[string]int{},
	}
}

// Normalize repairs shapes written by older clients so callers can rely on
// non-nil collections, populated ids and non-negative aggregates. It is
// applied once at the store read boundary.
func (e *Event) Normalize(id string) {
	if e.ID == "" {
		e.ID = id
	}
	if e.MenuItems == nil {
		e.MenuItems = map[string]*MenuItem{}
	}
	if e.Assignments == nil {
		e.Assignments = map[string]*Assignment{}
	}
	if e.Participants == nil {
		e.Participants = map[string]*Participant{}
	}
	if e.UserItemCounts == nil {
		e.UserItemCounts = map[string]int{}
	}
	for itemID, item := range e.MenuItems {
		if item == nil {
			delete(e.MenuItems, itemID)
			continue
		}
		item.normalize(itemID)
	}
	for assignmentID, a := range e.Assignments {
		if a == nil {
			delete(e.Assignments, assignmentID)
			continue
		}
		if a.ID == "" {
			a.ID = assignmentID
		}
		if a.Status == "" {
			a.Status = AssignmentConfirmed
		}
	}
	for userID, p := range e.Participants {
		if p == nil {
			delete(e.Participants, userID)
			continue
		}
		if p.ID == "" {
			p.ID = userID
		}
	}
}

// ItemLimit returns the effective per-user item quota for this event.
func (e *Event) ItemLimit(fallback int) int {
	if e.Details == nil {
		return fallback
	}
	return e.Details.ItemLimit(fallback)
}

// AssignmentsForItem returns every assignment that references itemID.
func (e *Event) AssignmentsForItem(itemID string) []*Assignment {
	var out []*Assignment
	for _, a := range e.Assignments {
		if a.MenuItemID == itemID {
			out = append(out, a)
		}
	}
	return out
}

// EnsureParticipant records userID as a participant when it is not one yet.
// It reports whether a record was added.
func (e *Event) EnsureParticipant(userID, name string, now time.Time) bool {
	if _, ok := e.Participants[userID]; ok {
		return false
	}
	e.Participants[userID] = &Participant{ID: userID, Name: name, JoinedAt: now}
	return true
}

// EventDetailsPatch carries a partial update of EventDetails. Nil fields are left untouched.
type EventDetailsPatch struct {
	Title          *string `json:"title,omitempty"`
	Date           *string `json:"date,omitempty"`
	Time           *string `json:"time,omitempty"`
	Location       *string `json:"location,omitempty"`
	Description    *string `json:"description,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	AllowUserItems *bool   `json:"allow_user_items,omitempty"`
	UserItemLimit  *int    `json:"user_item_limit,omitempty"`
}

// Apply copies the set fields of p onto d.
func (p EventDetailsPatch) Apply(d *EventDetails) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Time != nil {
		d.Time = *p.Time
	}
	if p.Location != nil {
		d.Location = *p.Location
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.IsActive != nil {
		d.IsActive = *p.IsActive
	}
	if p.AllowUserItems != nil {
		v := *p.AllowUserItems
		d.AllowUserItems = &v
	}
	if p.UserItemLimit != nil {
		v := *p.UserItemLimit
		d.UserItemLimit = &v
	}
}

// EventService defines organizer and participant operations on events themselves.
type EventService interface {
	CreateEvent(ctx context.Context, organizer Identity, details EventDetails) (*Event, error)
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]*Event, error)
	UpdateEventDetails(ctx context.Context, eventID, actorID string, patch EventDetailsPatch) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, actorID string) error
	// WatchEvent delivers the full event on every change until the returned function is called.
	WatchEvent(ctx context.Context, eventID string, onChange func(*Event)) (func(), error)
}
