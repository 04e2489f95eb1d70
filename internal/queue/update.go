package queue

import (
	"slices"
	"time"
)

type fieldState uint8

const (
	fieldUnchanged fieldState = iota
	fieldSet
	fieldCleared
)

// Field is one field of an Update. The zero value leaves the stored field
// unchanged; Set writes a value; Clear removes the field from the stored
// record entirely.
type Field[T any] struct {
	state fieldState
	value T
}

// Set returns a Field that writes v.
func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldSet, value: v}
}

// Clear returns a Field that removes the stored value.
func Clear[T any]() Field[T] {
	return Field[T]{state: fieldCleared}
}

// SetOrClear sets s, or clears the field when s is empty.
func SetOrClear(s string) Field[string] {
	if s == "" {
		return Clear[string]()
	}
	return Set(s)
}

// IsSet reports whether the field writes a value.
func (f Field[T]) IsSet() bool { return f.state == fieldSet }

// IsCleared reports whether the field removes the stored value.
func (f Field[T]) IsCleared() bool { return f.state == fieldCleared }

// IsUnchanged reports whether the field leaves the stored value alone.
func (f Field[T]) IsUnchanged() bool { return f.state == fieldUnchanged }

// Value returns the value to write and whether there is one.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.state == fieldSet
}

// Update is a field-level modification of a single document.
type Update struct {
	Status    Field[Status]
	Data      Field[Data]
	Errors    Field[[]ErrorRecord]
	UpdatedAt Field[time.Time]
	UpdatedBy Field[string]
}

// merge returns u with every non-unchanged field of other applied on top.
func (u Update) merge(other Update) Update {
	if !other.Status.IsUnchanged() {
		u.Status = other.Status
	}
	if !other.Data.IsUnchanged() {
		u.Data = other.Data
	}
	if !other.Errors.IsUnchanged() {
		u.Errors = other.Errors
	}
	if !other.UpdatedAt.IsUnchanged() {
		u.UpdatedAt = other.UpdatedAt
	}
	if !other.UpdatedBy.IsUnchanged() {
		u.UpdatedBy = other.UpdatedBy
	}
	return u
}

// ApplyTo writes u into doc. Values are copied so doc does not alias the update.
func (u Update) ApplyTo(doc *Document) {
	switch {
	case u.Status.IsSet():
		doc.Status = u.Status.value
	case u.Status.IsCleared():
		doc.Status = ""
	}

	switch {
	case u.Data.IsSet():
		doc.Data = u.Data.value.Clone()
	case u.Data.IsCleared():
		doc.Data = nil
	}

	switch {
	case u.Errors.IsSet():
		doc.Errors = slices.Clone(u.Errors.value)
	case u.Errors.IsCleared():
		doc.Errors = nil
	}

	switch {
	case u.UpdatedAt.IsSet():
		t := u.UpdatedAt.value
		doc.UpdatedAt = &t
	case u.UpdatedAt.IsCleared():
		doc.UpdatedAt = nil
	}

	switch {
	case u.UpdatedBy.IsSet():
		doc.UpdatedBy = u.UpdatedBy.value
	case u.UpdatedBy.IsCleared():
		doc.UpdatedBy = ""
	}
}

// Filter selects documents by status.
type Filter struct {
	// ExcludeStatuses lists statuses a matching document must not have.
	ExcludeStatuses []Status
}

// Matches reports whether a document with status s is selected by f.
func (f Filter) Matches(s Status) bool {
	return !slices.Contains(f.ExcludeStatuses, s)
}

// StatusStrings returns the excluded statuses as plain strings, for drivers.
func (f Filter) StatusStrings() []string {
	out := make([]string, len(f.ExcludeStatuses))
	for i, s := range f.ExcludeStatuses {
		out[i] = string(s)
	}
	return out
}
