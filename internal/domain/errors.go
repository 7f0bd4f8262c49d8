package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors shared by services, stores and delivery.
var (
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrQuotaExceeded     = errors.New("item quota exceeded")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTransientStore    = errors.New("store unavailable")
	ErrProtectedIdentity = errors.New("identity is protected from deletion")
)

// CapacityExceededError reports a claim larger than what is left on an item.
type CapacityExceededError struct {
	ItemName  string
	Requested float64
	Remaining float64
	Unit      UnitType
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("requested %s %s of %q but only %s %s remain",
		formatQuantity(e.Requested), e.Unit, e.ItemName, formatQuantity(e.Remaining), e.Unit)
}

// Is lets errors.Is match ErrCapacityExceeded.
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// QuotaExceededError reports a participant who already created as many items as allowed.
type QuotaExceededError struct {
	Count int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("item quota reached: %d of %d items already added", e.Count, e.Limit)
}

// Is lets errors.Is match ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// StoreError wraps a failure of the underlying store. It matches ErrTransientStore.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransientStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrTransientStore
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
