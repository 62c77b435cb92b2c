package transaction

import (
	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
)

// KeyFunc extracts the group (partition) key from an entity.
type KeyFunc[K comparable, T any] func(entity T) K

// MakeActionFunc builds the Action for entity and kind. Backends supply it to pick the entity identity,
// the concurrency token & to reject entities they can't encode.
type MakeActionFunc[T any] func(entity T, kind ActionKind) (Action[T], error)

// Store is the action-kind specific facade over an ActionLog. All operations are synchronous and in-memory.
// Errors from the log (DuplicateEntityError, BatchSizeExceededError) are returned unchanged and leave the
// Store as it was before the call.
type Store[K comparable, T any] struct {
	log        *ActionLog[K, T]
	keyOf      KeyFunc[K, T]
	makeAction MakeActionFunc[T]
}

// NewStore returns an empty Store. maxBatchSize <= 0 means DefaultMaxBatchSize.
func NewStore[K comparable, T any](keyOf KeyFunc[K, T], makeAction MakeActionFunc[T], maxBatchSize int) (*Store[K, T], error) {
	if keyOf == nil {
		return nil, repositories.NewNilArgumentError("keyOf")
	}
	if makeAction == nil {
		return nil, repositories.NewNilArgumentError("makeAction")
	}
	return &Store[K, T]{
		log:        NewActionLog[K, T](maxBatchSize),
		keyOf:      keyOf,
		makeAction: makeAction,
	}, nil
}

// Add stages Add actions for entities.
func (s *Store[K, T]) Add(entities ...T) error {
	return s.appendKind(Add, entities)
}

// Update stages UpdateMerge or UpdateReplace actions for entities.
func (s *Store[K, T]) Update(mode UpdateMode, entities ...T) error {
	return s.appendKind(mode.UpdateKind(), entities)
}

// Upsert stages UpsertMerge or UpsertReplace actions for entities.
func (s *Store[K, T]) Upsert(mode UpdateMode, entities ...T) error {
	return s.appendKind(mode.UpsertKind(), entities)
}

// Delete stages Delete actions for entities.
func (s *Store[K, T]) Delete(entities ...T) error {
	return s.appendKind(Delete, entities)
}

// ClearNUpdate makes entities the complete set of staged writes, as UpdateMerge/UpdateReplace actions,
// for every group they touch. Groups not touched by entities are left alone.
func (s *Store[K, T]) ClearNUpdate(mode UpdateMode, entities ...T) error {
	return s.replaceKind(mode.UpdateKind(), entities)
}

// ClearNUpsert is ClearNUpdate with UpsertMerge/UpsertReplace actions.
func (s *Store[K, T]) ClearNUpsert(mode UpdateMode, entities ...T) error {
	return s.replaceKind(mode.UpsertKind(), entities)
}

// MaterializeBatches returns one batch per group, in first-touched group order.
func (s *Store[K, T]) MaterializeBatches() []Batch[K, T] {
	return s.log.MaterializeBatches()
}

// TotalActionCount returns the number of staged actions.
func (s *Store[K, T]) TotalActionCount() int {
	return s.log.TotalActionCount()
}

// GroupCount returns the number of groups (batches) staged.
func (s *Store[K, T]) GroupCount() int {
	return s.log.GroupCount()
}

// Actions returns a copy of the actions staged for groupKey.
func (s *Store[K, T]) Actions(groupKey K) []Action[T] {
	return s.log.Actions(groupKey)
}

// MaxBatchSize returns the per-group action ceiling.
func (s *Store[K, T]) MaxBatchSize() int {
	return s.log.MaxBatchSize()
}

// Clear empties the Store, e.g. after a successful submission.
func (s *Store[K, T]) Clear() {
	s.log.Clear()
}

func (s *Store[K, T]) buildActions(kind ActionKind, entities []T) ([]KeyedAction[K, T], error) {
	if len(entities) == 0 {
		return nil, repositories.NewEmptyArgumentError("entities")
	}
	r := make([]KeyedAction[K, T], 0, len(entities))
	for i := range entities {
		a, err := s.makeAction(entities[i], kind)
		if err != nil {
			return nil, err
		}
		r = append(r, KeyedAction[K, T]{
			GroupKey: s.keyOf(entities[i]),
			Action:   a,
		})
	}
	return r, nil
}

func (s *Store[K, T]) appendKind(kind ActionKind, entities []T) error {
	actions, err := s.buildActions(kind, entities)
	if err != nil {
		return err
	}
	return s.log.AppendAll(actions)
}

func (s *Store[K, T]) replaceKind(kind ActionKind, entities []T) error {
	actions, err := s.buildActions(kind, entities)
	if err != nil {
		return err
	}
	keys := make([]K, 0, 2)
	groups := make(map[K][]Action[T], 2)
	for _, ka := range actions {
		if _, ok := groups[ka.GroupKey]; !ok {
			keys = append(keys, ka.GroupKey)
		}
		groups[ka.GroupKey] = append(groups[ka.GroupKey], ka.Action)
	}
	return s.log.ReplaceGroups(keys, groups)
}
