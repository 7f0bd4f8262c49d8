package domain

import (
	"context"
	"strings"
)

// Top-level collections of the entity store.
const (
	CollectionEvents = "events"
	CollectionUsers  = "users"
)

// Sub-collections and fields of an event document, as addressed by batch paths.
const (
	FieldMenuItems             = "menu_items"
	FieldAssignments           = "assignments"
	FieldParticipants          = "participants"
	FieldUserItemCounts        = "user_item_counts"
	FieldTotalAssignedQuantity = "total_assigned_quantity"

	FieldLegacyAssignedTo     = "assigned_to"
	FieldLegacyAssignedToName = "assigned_to_name"
	FieldLegacyAssignedAt     = "assigned_at"
)

// EventPath joins an event id and the segments below it into a store path.
func EventPath(eventID string, segments ...string) string {
	return strings.Join(append([]string{CollectionEvents, eventID}, segments...), "/")
}

// UserPath returns the store path of a user profile record.
func UserPath(userID string) string {
	return CollectionUsers + "/" + userID
}

// BatchOpKind selects what a batch operation does at its path.
type BatchOpKind int

const (
	BatchSet BatchOpKind = iota
	BatchDelete
	BatchIncrement
)

// BatchOp is a single write of a Batch.
type BatchOp struct {
	Kind  BatchOpKind
	Path  string
	Value any
	Delta float64
}

// Batch is a multi-path update. The store applies all of its operations or
// none of them, against the latest stored documents.
type Batch struct {
	ops []BatchOp
}

// Set writes value at path, replacing whatever is there.
func (b *Batch) Set(path string, value any) {
	b.ops = append(b.ops, BatchOp{Kind: BatchSet, Path: path, Value: value})
}

// Delete removes path and everything below it.
func (b *Batch) Delete(path string) {
	b.ops = append(b.ops, BatchOp{Kind: BatchDelete, Path: path})
}

// Increment adds delta to the number at path. The result never drops below
// zero and the write is skipped when the parent object no longer exists.
func (b *Batch) Increment(path string, delta float64) {
	b.ops = append(b.ops, BatchOp{Kind: BatchIncrement, Path: path, Delta: delta})
}

// Ops returns the operations in insertion order.
func (b *Batch) Ops() []BatchOp {
	return b.ops
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// EventStore is the typed view of the entity store used by services.
type EventStore interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	ListEvents(ctx context.Context) ([]*Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]*Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	// UpdateEvent runs fn against the current event subtree and commits its
	// changes atomically. fn may run more than once when another writer
	// commits first; an error from fn aborts without writing. Returns
	// ErrNotFound when the event does not exist.
	UpdateEvent(ctx context.Context, eventID string, fn func(*Event) error) error
	ApplyBatch(ctx context.Context, batch *Batch) error
	WatchEvent(ctx context.Context, eventID string, onChange func(*Event)) (func(), error)
	GetUser(ctx context.Context, userID string) (*User, error)
	PutUser(ctx context.Context, user *User) error
}
