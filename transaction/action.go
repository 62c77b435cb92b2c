// Package transaction holds the staging buffer for batch writes: an ordered, partitioned log of pending
// actions (ActionLog) and the Store facade that builds those actions from entities.
//
// Nothing in this package talks to a backend. A Store is built up by one goroutine, materialized into
// per-group batches & handed to a backend's BatchSubmitter. It is not safe for concurrent use.
package transaction

import "fmt"

// ActionKind enumerates the write actions a batch can carry.
type ActionKind int

const (
	Add ActionKind = iota
	UpdateMerge
	UpdateReplace
	Delete
	UpsertMerge
	UpsertReplace
)

func (k ActionKind) String() string {
	switch k {
	case Add:
		return "Add"
	case UpdateMerge:
		return "UpdateMerge"
	case UpdateReplace:
		return "UpdateReplace"
	case Delete:
		return "Delete"
	case UpsertMerge:
		return "UpsertMerge"
	case UpsertReplace:
		return "UpsertReplace"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// IsUpdate reports whether the kind requires the target entity to exist.
func (k ActionKind) IsUpdate() bool {
	return k == UpdateMerge || k == UpdateReplace
}

// IsUpsert reports whether the kind is an insert-or-update.
func (k ActionKind) IsUpsert() bool {
	return k == UpsertMerge || k == UpsertReplace
}

// IsMerge reports whether the kind merges properties into the existing entity.
func (k ActionKind) IsMerge() bool {
	return k == UpdateMerge || k == UpsertMerge
}

// UpdateMode selects between merging into, or replacing, the stored entity.
type UpdateMode int

const (
	Merge UpdateMode = iota
	Replace
)

func (m UpdateMode) String() string {
	if m == Replace {
		return "Replace"
	}
	return "Merge"
}

// UpdateKind returns UpdateMerge or UpdateReplace.
func (m UpdateMode) UpdateKind() ActionKind {
	if m == Replace {
		return UpdateReplace
	}
	return UpdateMerge
}

// UpsertKind returns UpsertMerge or UpsertReplace.
func (m UpdateMode) UpsertKind() ActionKind {
	if m == Replace {
		return UpsertReplace
	}
	return UpsertMerge
}

// Action is one pending write. It is immutable once constructed.
type Action[T any] struct {
	kind             ActionKind
	entity           T
	entityID         string
	concurrencyToken string
}

// NewAction constructs an Action. entityID identifies the entity within its group (e.g. the row key)
// and is what duplicate detection compares. concurrencyToken is optional ("" means none).
func NewAction[T any](kind ActionKind, entity T, entityID string, concurrencyToken string) Action[T] {
	return Action[T]{
		kind:             kind,
		entity:           entity,
		entityID:         entityID,
		concurrencyToken: concurrencyToken,
	}
}

// Kind returns the action kind.
func (a Action[T]) Kind() ActionKind {
	return a.kind
}

// Entity returns the entity payload.
func (a Action[T]) Entity() T {
	return a.entity
}

// EntityID returns the entity identity within its group.
func (a Action[T]) EntityID() string {
	return a.entityID
}

// ConcurrencyToken returns the optional version tag, "" when absent.
func (a Action[T]) ConcurrencyToken() string {
	return a.concurrencyToken
}

// HasConcurrencyToken reports whether the action is conditional on a version tag.
func (a Action[T]) HasConcurrencyToken() bool {
	return a.concurrencyToken != ""
}

func (a Action[T]) String() string {
	return fmt.Sprintf("%v(%s)", a.kind, a.entityID)
}
