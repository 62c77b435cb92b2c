package cassandra

import (
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// TableTransaction stages entity writes for SubmitTransaction. Writes are grouped by partition key,
// each group becomes one atomic batch. Not safe for concurrent use.
type TableTransaction struct {
	store *transaction.Store[string, TableEntity]
}

// NewTableTransaction returns an empty TableTransaction. maxBatchSize <= 0 means transaction.DefaultMaxBatchSize.
func NewTableTransaction(maxBatchSize int) (*TableTransaction, error) {
	s, err := transaction.NewStore(partitionKeyOf, tableAction, maxBatchSize)
	if err != nil {
		return nil, err
	}
	return &TableTransaction{store: s}, nil
}

func partitionKeyOf(e TableEntity) string {
	return e.PartitionKey
}

// tableAction identifies an entity by its row key and uses its ETag as the concurrency token.
func tableAction(e TableEntity, kind transaction.ActionKind) (transaction.Action[TableEntity], error) {
	if err := validateEntity(e); err != nil {
		return transaction.Action[TableEntity]{}, err
	}
	return transaction.NewAction(kind, e, e.RowKey, e.ETag), nil
}

// Add stages inserts.
func (t *TableTransaction) Add(entities ...TableEntity) error {
	return t.store.Add(entities...)
}

// Update stages updates of existing entities. An entity's ETag, when set, must match the stored one.
func (t *TableTransaction) Update(mode transaction.UpdateMode, entities ...TableEntity) error {
	return t.store.Update(mode, entities...)
}

// Upsert stages inserts or updates.
func (t *TableTransaction) Upsert(mode transaction.UpdateMode, entities ...TableEntity) error {
	return t.store.Upsert(mode, entities...)
}

// Delete stages deletes. An entity's ETag, when set, must match the stored one.
func (t *TableTransaction) Delete(entities ...TableEntity) error {
	return t.store.Delete(entities...)
}

// ClearNUpdate replaces whatever was staged for the touched partitions with updates of entities.
func (t *TableTransaction) ClearNUpdate(mode transaction.UpdateMode, entities ...TableEntity) error {
	return t.store.ClearNUpdate(mode, entities...)
}

// ClearNUpsert replaces whatever was staged for the touched partitions with upserts of entities.
func (t *TableTransaction) ClearNUpsert(mode transaction.UpdateMode, entities ...TableEntity) error {
	return t.store.ClearNUpsert(mode, entities...)
}

// Batches returns the staged batches, one per partition key in first touched order.
func (t *TableTransaction) Batches() []transaction.Batch[string, TableEntity] {
	return t.store.MaterializeBatches()
}

// Len returns the number of staged actions.
func (t *TableTransaction) Len() int {
	return t.store.TotalActionCount()
}

// PartitionCount returns the number of staged batches.
func (t *TableTransaction) PartitionCount() int {
	return t.store.GroupCount()
}

// Clear drops everything staged.
func (t *TableTransaction) Clear() {
	t.store.Clear()
}
