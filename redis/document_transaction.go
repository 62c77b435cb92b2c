package redis

import (
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// docEntry is a staged document write. A merge with nil ops merges Body's top level fields.
type docEntry struct {
	Document
	ops []PatchOperation
}

// DocumentTransaction stages document writes for ExecuteTransaction. Writes are grouped by partition
// key, each group is applied atomically. Not safe for concurrent use.
type DocumentTransaction struct {
	store *transaction.Store[string, docEntry]
}

// NewDocumentTransaction returns an empty DocumentTransaction. maxBatchSize <= 0 means
// transaction.DefaultMaxBatchSize.
func NewDocumentTransaction(maxBatchSize int) (*DocumentTransaction, error) {
	s, err := transaction.NewStore(docPartitionKeyOf, documentAction, maxBatchSize)
	if err != nil {
		return nil, err
	}
	return &DocumentTransaction{store: s}, nil
}

func docPartitionKeyOf(e docEntry) string {
	return e.PartitionKey
}

func documentAction(e docEntry, kind transaction.ActionKind) (transaction.Action[docEntry], error) {
	if err := validateDocument(e.Document); err != nil {
		return transaction.Action[docEntry]{}, err
	}
	if e.ops != nil {
		if err := validatePatch(e.ops); err != nil {
			return transaction.Action[docEntry]{}, err
		}
	}
	return transaction.NewAction(kind, e, e.ID, e.ETag), nil
}

func entries(docs []Document) []docEntry {
	r := make([]docEntry, len(docs))
	for i, d := range docs {
		r[i] = docEntry{Document: d}
	}
	return r
}

// Create stages inserts.
func (t *DocumentTransaction) Create(docs ...Document) error {
	return t.store.Add(entries(docs)...)
}

// Replace stages replacements of existing documents. A set ETag must match the stored one.
func (t *DocumentTransaction) Replace(docs ...Document) error {
	return t.store.Update(transaction.Replace, entries(docs)...)
}

// Patch stages merges of each document's body fields into the existing document.
func (t *DocumentTransaction) Patch(docs ...Document) error {
	return t.store.Update(transaction.Merge, entries(docs)...)
}

// PatchOperations stages a patch of one existing document. etag may be empty.
func (t *DocumentTransaction) PatchOperations(partitionKey, id, etag string, ops ...PatchOperation) error {
	if ops == nil {
		ops = []PatchOperation{}
	}
	return t.store.Update(transaction.Merge, docEntry{
		Document: Document{ID: id, PartitionKey: partitionKey, ETag: etag},
		ops:      ops,
	})
}

// Upsert stages inserts or replacements.
func (t *DocumentTransaction) Upsert(docs ...Document) error {
	return t.store.Upsert(transaction.Replace, entries(docs)...)
}

// Delete stages deletes. A set ETag must match the stored one.
func (t *DocumentTransaction) Delete(docs ...Document) error {
	return t.store.Delete(entries(docs)...)
}

// Batches returns the staged batches, one per partition key in first touched order.
func (t *DocumentTransaction) Batches() []transaction.Batch[string, docEntry] {
	return t.store.MaterializeBatches()
}

// Len returns the number of staged actions.
func (t *DocumentTransaction) Len() int {
	return t.store.TotalActionCount()
}

// Clear drops everything staged.
func (t *DocumentTransaction) Clear() {
	t.store.Clear()
}
