package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Category tags a menu item for grouping.
type Category string

const (
	CategoryStarter   Category = "starter"
	CategoryMain      Category = "main"
	CategoryDessert   Category = "dessert"
	CategoryDrink     Category = "drink"
	CategoryEquipment Category = "equipment"
	CategoryOther     Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStarter, CategoryMain, CategoryDessert, CategoryDrink, CategoryEquipment, CategoryOther:
		return true
	}
	return false
}

// UnitType is the unit in which a menu item's quantities are measured.
type UnitType string

const (
	UnitUnits    UnitType = "units"
	UnitGrams    UnitType = "grams"
	UnitServings UnitType = "servings"
)

// Valid reports whether u is one of the known units.
func (u UnitType) Valid() bool {
	switch u {
	case UnitUnits, UnitGrams, UnitServings:
		return true
	}
	return false
}

// Item quantity bounds accepted from callers.
const (
	MinItemQuantity = 1
	MaxItemQuantity = 10000
	MinItemNameLen  = 2
)

// MenuItem is a claimable need within an event. TotalAssignedQuantity is the
// cached sum of all live assignments against the item and is only changed by
// the reservation operations.
// swagger:model MenuItem
type MenuItem struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Category              Category  `json:"category"`
	QuantityRequired      float64   `json:"quantity_required"`
	UnitType              UnitType  `json:"unit_type"`
	TotalAssignedQuantity float64   `json:"total_assigned_quantity"`
	IsRequired            bool      `json:"is_required"`
	Notes                 *string   `json:"notes,omitempty"`
	CreatorID             string    `json:"creator_id,omitempty"`
	CreatorName           string    `json:"creator_name,omitempty"`
	CreatedAt             time.Time `json:"created_at"`

	// Single-assignment fields written by older clients. They are cleared
	// when the user they point at is purged and are otherwise ignored.
	LegacyQuantity       float64    `json:"quantity,omitempty"`
	LegacyAssignedTo     *string    `json:"assigned_to,omitempty"`
	LegacyAssignedToName *string    `json:"assigned_to_name,omitempty"`
	LegacyAssignedAt     *time.Time `json:"assigned_at,omitempty"`
}

func (m *MenuItem) normalize(id string) {
	if m.ID == "" {
		m.ID = id
	}
	if m.QuantityRequired == 0 && m.LegacyQuantity > 0 {
		m.QuantityRequired = m.LegacyQuantity
	}
	if m.TotalAssignedQuantity < 0 {
		m.TotalAssignedQuantity = 0
	}
	if m.UnitType == "" {
		m.UnitType = UnitUnits
	}
	if m.Notes != nil && strings.TrimSpace(*m.Notes) == "" {
		m.Notes = nil
	}
}

// Remaining is the quantity still claimable on the item.
func (m *MenuItem) Remaining() float64 {
	return m.QuantityRequired - m.TotalAssignedQuantity
}

// ItemInput is the caller-supplied data for a new menu item.
type ItemInput struct {
	Name             string   `json:"name"`
	Category         Category `json:"category"`
	QuantityRequired float64  `json:"quantity_required"`
	UnitType         UnitType `json:"unit_type"`
	IsRequired       bool     `json:"is_required"`
	Notes            string   `json:"notes,omitempty"`
	CreatorID        string   `json:"creator_id,omitempty"`
	CreatorName      string   `json:"creator_name,omitempty"`
}

// Validate checks the input against the item bounds. It trims Name and Notes in place.
func (in *ItemInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Notes = strings.TrimSpace(in.Notes)
	if len([]rune(in.Name)) < MinItemNameLen {
		return fmt.Errorf("%w: item name must be at least %d characters", ErrInvalidInput, MinItemNameLen)
	}
	if in.QuantityRequired < MinItemQuantity || in.QuantityRequired > MaxItemQuantity {
		return fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidInput, MinItemQuantity, MaxItemQuantity)
	}
	if in.Category == "" {
		in.Category = CategoryOther
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}
	if in.UnitType == "" {
		in.UnitType = UnitUnits
	}
	if !in.UnitType.Valid() {
		return fmt.Errorf("%w: unknown unit type %q", ErrInvalidInput, in.UnitType)
	}
	return nil
}

// ToMenuItem builds the stored item. Empty optional fields are left unset.
func (in ItemInput) ToMenuItem(id string, createdAt time.Time) *MenuItem {
	item := &MenuItem{
		ID:               id,
		Name:             in.Name,
		Category:         in.Category,
		QuantityRequired: in.QuantityRequired,
		UnitType:         in.UnitType,
		IsRequired:       in.IsRequired,
		CreatorID:        in.CreatorID,
		CreatorName:      in.CreatorName,
		CreatedAt:        createdAt,
	}
	if in.Notes != "" {
		notes := in.Notes
		item.Notes = &notes
	}
	return item
}

// ItemPatch is a plain field patch of a menu item. It deliberately has no way
// to address TotalAssignedQuantity. A non-nil Notes pointing at an empty
// string clears the notes.
type ItemPatch struct {
	Name             *string   `json:"name,omitempty"`
	Category         *Category `json:"category,omitempty"`
	QuantityRequired *float64  `json:"quantity_required,omitempty"`
	UnitType         *UnitType `json:"unit_type,omitempty"`
	IsRequired       *bool     `json:"is_required,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.QuantityRequired == nil &&
		p.UnitType == nil && p.IsRequired == nil && p.Notes == nil
}

// Validate checks the set fields against the item bounds.
func (p *ItemPatch) Validate() error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if len([]rune(name)) < MinItemNameLen {
			return fmt.Errorf("%w: item name must be at least %d characters", ErrInvalidInput, MinItemNameLen)
		}
		p.Name = &name
	}
	if p.QuantityRequired != nil && (*p.QuantityRequired < MinItemQuantity || *p.QuantityRequired > MaxItemQuantity) {
		return fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidInput, MinItemQuantity, MaxItemQuantity)
	}
	if p.Category != nil && !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *p.Category)
	}
	if p.UnitType != nil && !p.UnitType.Valid() {
		return fmt.Errorf("%w: unknown unit type %q", ErrInvalidInput, *p.UnitType)
	}
	return nil
}

// Apply copies the set fields onto item.
func (p ItemPatch) Apply(item *MenuItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.QuantityRequired != nil {
		item.QuantityRequired = *p.QuantityRequired
	}
	if p.UnitType != nil {
		item.UnitType = *p.UnitType
	}
	if p.IsRequired != nil {
		item.IsRequired = *p.IsRequired
	}
	if p.Notes != nil {
		notes := strings.TrimSpace(*p.Notes)
		if notes == "" {
			item.Notes = nil
		} else {
			item.Notes = &notes
		}
	}
}

// ItemService defines the menu item lifecycle operations. actorID is the
// caller: AddItem is reserved to the organizer, UpdateItem and DeleteItem to
// the organizer and the item's creator.
type ItemService interface {
	AddItem(ctx context.Context, eventID, actorID string, in ItemInput) (string, error)
	AddItemAndAssign(ctx context.Context, eventID string, in ItemInput, userID, userName string) (string, error)
	UpdateItem(ctx context.Context, eventID, itemID, actorID string, patch ItemPatch) error
	DeleteItem(ctx context.Context, eventID, itemID, actorID string) error
}
