package transaction

import "fmt"

// DuplicateEntityError is returned when an action for an entity identity already staged in the same group
// is appended again. It is a programmer error, never retryable.
type DuplicateEntityError struct {
	GroupKey any
	EntityID string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("duplicate entity '%s' in batch group '%v', an entity can appear only once per batch", e.EntityID, e.GroupKey)
}

// BatchSizeExceededError is returned when appending would grow a group past the maximum batch size.
type BatchSizeExceededError struct {
	GroupKey     any
	MaxBatchSize int
	Attempted    int
}

func (e *BatchSizeExceededError) Error() string {
	return fmt.Sprintf("batch group '%v' can't hold %d actions, maximum batch size is %d", e.GroupKey, e.Attempted, e.MaxBatchSize)
}
