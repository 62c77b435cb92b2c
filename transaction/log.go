package transaction

// DefaultMaxBatchSize is the backend's maximum number of actions in one atomic batch.
const DefaultMaxBatchSize = 100

// Batch is an ordered run of actions sharing one GroupKey, safe to submit as one atomic unit.
type Batch[K comparable, T any] struct {
	GroupKey K
	Actions  []Action[T]
}

// Len returns the number of actions in the batch.
func (b Batch[K, T]) Len() int {
	return len(b.Actions)
}

// KeyedAction pairs an action with the group it goes to.
type KeyedAction[K comparable, T any] struct {
	GroupKey K
	Action   Action[T]
}

// ActionLog holds pending actions grouped by key. Within a group, insertion order is preserved
// because the backend commits a batch in the order supplied.
type ActionLog[K comparable, T any] struct {
	maxBatchSize int
	groups       map[K][]Action[T]
	// Group keys in the order they were first touched.
	order []K
}

// NewActionLog returns an empty log. maxBatchSize <= 0 means DefaultMaxBatchSize.
func NewActionLog[K comparable, T any](maxBatchSize int) *ActionLog[K, T] {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &ActionLog[K, T]{
		maxBatchSize: maxBatchSize,
		groups:       make(map[K][]Action[T]),
	}
}

// MaxBatchSize returns the per-group action ceiling.
func (l *ActionLog[K, T]) MaxBatchSize() int {
	return l.maxBatchSize
}

// Append adds action at the end of groupKey's sequence. On error the log is unchanged.
func (l *ActionLog[K, T]) Append(groupKey K, action Action[T]) error {
	if err := l.checkAppend(groupKey, l.groups[groupKey], action); err != nil {
		return err
	}
	l.append(groupKey, action)
	return nil
}

// AppendAll appends all actions or none: if any append fails, the groups are rolled back
// to their state before the call and the error is returned.
func (l *ActionLog[K, T]) AppendAll(actions []KeyedAction[K, T]) error {
	prevLens := make(map[K]int, 4)
	prevOrderLen := len(l.order)
	for _, ka := range actions {
		if _, ok := prevLens[ka.GroupKey]; !ok {
			prevLens[ka.GroupKey] = len(l.groups[ka.GroupKey])
		}
		if err := l.Append(ka.GroupKey, ka.Action); err != nil {
			l.rollback(prevLens, prevOrderLen)
			return err
		}
	}
	return nil
}

// ReplaceGroup discards groupKey's existing sequence and installs actions in its place. The new sequence
// is validated first; on error the log is unchanged. An empty actions list removes the group.
func (l *ActionLog[K, T]) ReplaceGroup(groupKey K, actions []Action[T]) error {
	return l.ReplaceGroups([]K{groupKey}, map[K][]Action[T]{groupKey: actions})
}

// ReplaceGroups replaces several groups at once, in keys order. All new sequences are validated before
// any group is touched.
func (l *ActionLog[K, T]) ReplaceGroups(keys []K, groups map[K][]Action[T]) error {
	for _, k := range keys {
		if err := l.validateSequence(k, groups[k]); err != nil {
			return err
		}
	}
	for _, k := range keys {
		actions := groups[k]
		if len(actions) == 0 {
			l.removeGroup(k)
			continue
		}
		if _, ok := l.groups[k]; !ok {
			l.order = append(l.order, k)
		}
		seq := make([]Action[T], len(actions))
		copy(seq, actions)
		l.groups[k] = seq
	}
	return nil
}

// MaterializeBatches returns one batch per group, in the order the groups were first touched, each
// holding the group's actions in append order. The returned batches are copies; the log is not cleared.
func (l *ActionLog[K, T]) MaterializeBatches() []Batch[K, T] {
	batches := make([]Batch[K, T], 0, len(l.order))
	for _, k := range l.order {
		src := l.groups[k]
		actions := make([]Action[T], len(src))
		copy(actions, src)
		batches = append(batches, Batch[K, T]{
			GroupKey: k,
			Actions:  actions,
		})
	}
	return batches
}

// Actions returns a copy of the sequence staged for groupKey.
func (l *ActionLog[K, T]) Actions(groupKey K) []Action[T] {
	src := l.groups[groupKey]
	r := make([]Action[T], len(src))
	copy(r, src)
	return r
}

// GroupKeys returns the group keys in first-touched order.
func (l *ActionLog[K, T]) GroupKeys() []K {
	r := make([]K, len(l.order))
	copy(r, l.order)
	return r
}

// GroupCount returns the number of non-empty groups.
func (l *ActionLog[K, T]) GroupCount() int {
	return len(l.order)
}

// TotalActionCount returns the number of actions across all groups.
func (l *ActionLog[K, T]) TotalActionCount() int {
	total := 0
	for _, k := range l.order {
		total += len(l.groups[k])
	}
	return total
}

// Clear empties the log.
func (l *ActionLog[K, T]) Clear() {
	l.groups = make(map[K][]Action[T])
	l.order = nil
}

func (l *ActionLog[K, T]) checkAppend(groupKey K, seq []Action[T], action Action[T]) error {
	for i := range seq {
		if seq[i].entityID == action.entityID {
			return &DuplicateEntityError{
				GroupKey: groupKey,
				EntityID: action.entityID,
			}
		}
	}
	if len(seq)+1 > l.maxBatchSize {
		return &BatchSizeExceededError{
			GroupKey:     groupKey,
			MaxBatchSize: l.maxBatchSize,
			Attempted:    len(seq) + 1,
		}
	}
	return nil
}

func (l *ActionLog[K, T]) validateSequence(groupKey K, actions []Action[T]) error {
	if len(actions) > l.maxBatchSize {
		return &BatchSizeExceededError{
			GroupKey:     groupKey,
			MaxBatchSize: l.maxBatchSize,
			Attempted:    len(actions),
		}
	}
	seen := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if _, ok := seen[a.entityID]; ok {
			return &DuplicateEntityError{
				GroupKey: groupKey,
				EntityID: a.entityID,
			}
		}
		seen[a.entityID] = struct{}{}
	}
	return nil
}

func (l *ActionLog[K, T]) append(groupKey K, action Action[T]) {
	seq, ok := l.groups[groupKey]
	if !ok {
		l.order = append(l.order, groupKey)
	}
	l.groups[groupKey] = append(seq, action)
}

func (l *ActionLog[K, T]) removeGroup(groupKey K) {
	if _, ok := l.groups[groupKey]; !ok {
		return
	}
	delete(l.groups, groupKey)
	for i, k := range l.order {
		if k == groupKey {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

func (l *ActionLog[K, T]) rollback(prevLens map[K]int, prevOrderLen int) {
	for k, n := range prevLens {
		if n == 0 {
			delete(l.groups, k)
			continue
		}
		l.groups[k] = l.groups[k][:n]
	}
	l.order = l.order[:prevOrderLen]
}
