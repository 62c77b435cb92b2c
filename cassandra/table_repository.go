package cassandra

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"reflect"
	"time"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/cel"
	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
	"github.com/cesarpv27/Azure.Repositories-sub001/provision"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// TableOptions configures a TableRepository.
type TableOptions struct {
	repositories.RepositoryOptions
	// MaxBatchSize caps the actions of one partition in a transaction.
	MaxBatchSize int `json:"max_batch_size"`
	// MaxConcurrentBatches caps the batches of one transaction submitted in parallel.
	MaxConcurrentBatches int `json:"max_concurrent_batches"`
}

// DefaultTableOptions returns the default repository options, batches of up to 100 actions and
// 4 batches in flight.
func DefaultTableOptions() TableOptions {
	return TableOptions{
		RepositoryOptions:    repositories.DefaultRepositoryOptions(),
		MaxBatchSize:         transaction.DefaultMaxBatchSize,
		MaxConcurrentBatches: 4,
	}
}

// TableQuery selects entities of a table. All set criteria must hold.
type TableQuery struct {
	// PartitionKey restricts the query to one partition. Empty scans the whole table.
	PartitionKey string `json:"partition_key,omitempty"`
	// Terms are property equality conditions, PartitionKey & RowKey included.
	Terms []repositories.KeyValuePair[string, any] `json:"terms,omitempty"`
	// Filter is a CEL boolean expression over the variable entity, e.g. "entity['Total'] > 10.0".
	Filter string `json:"filter,omitempty"`
	// OrderBy is a CEL comparer over mapX & mapY. Results are in storage order when empty.
	OrderBy string `json:"order_by,omitempty"`
	// Limit caps the result count, 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// TableRepository stores entities in partitioned tables. Every operation returns a Response; cataloged
// conditions like a missing entity come back as expected failures.
type TableRepository struct {
	backend     tableBackend
	options     TableOptions
	provisioner *provision.Provisioner
	classifier  *azerrors.Classifier
	now         func() time.Time
	newETag     func() string
}

// NewTableRepository returns a TableRepository on the global Cassandra connection, see OpenConnection.
func NewTableRepository(options TableOptions) (*TableRepository, error) {
	b, err := newSessionBackend()
	if err != nil {
		return nil, err
	}
	return newTableRepository(b, options), nil
}

func newTableRepository(b tableBackend, options TableOptions) *TableRepository {
	if options.MaxConcurrentBatches <= 0 {
		options.MaxConcurrentBatches = 1
	}
	return &TableRepository{
		backend:     b,
		options:     options,
		provisioner: provision.NewProvisioner(options.CreateResourcePolicy),
		classifier:  azerrors.NewClassifier(azerrors.Table),
		now:         func() time.Time { return time.Now().UTC() },
		newETag:     repositories.NewETag,
	}
}

// CreateTable creates a table. An existing table is reported as TableAlreadyExists.
func (r *TableRepository) CreateTable(ctx context.Context, table string) repositories.Response[string] {
	name, err := normalizeTableName(table)
	if err == nil {
		err = r.createTable(ctx, name)
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(name, http.StatusCreated)
}

// GetTable checks a table exists and returns its normalized name.
func (r *TableRepository) GetTable(ctx context.Context, table string) repositories.Response[string] {
	name, err := normalizeTableName(table)
	if err == nil {
		err = r.getTable(ctx, name)
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(name, http.StatusOK)
}

// DeleteTable drops a table and all its entities.
func (r *TableRepository) DeleteTable(ctx context.Context, table string) repositories.Response[struct{}] {
	name, err := normalizeTableName(table)
	if err == nil {
		err = r.getTable(ctx, name)
	}
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			return r.backend.dropTable(ctx, name)
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, err)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// ListTables returns the names of the tables in the keyspace.
func (r *TableRepository) ListTables(ctx context.Context) repositories.Response[[]string] {
	var names []string
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		names, err = r.backend.listTables(ctx)
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(names, http.StatusOK)
}

// Add inserts entity. An existing entity with the same keys is reported as EntityAlreadyExists.
// The returned entity carries its new ETag & Timestamp.
func (r *TableRepository) Add(ctx context.Context, table string, entity TableEntity) repositories.Response[TableEntity] {
	return r.write(ctx, table, transaction.Add, entity)
}

// Update merges into, or replaces, an existing entity. A set ETag must match the stored one, "*" matches any.
func (r *TableRepository) Update(ctx context.Context, table string, entity TableEntity, mode transaction.UpdateMode) repositories.Response[TableEntity] {
	return r.write(ctx, table, mode.UpdateKind(), entity)
}

// Upsert inserts entity or merges into, or replaces, the existing one.
func (r *TableRepository) Upsert(ctx context.Context, table string, entity TableEntity, mode transaction.UpdateMode) repositories.Response[TableEntity] {
	return r.write(ctx, table, mode.UpsertKind(), entity)
}

// Delete removes an entity. A set ETag must match the stored one.
func (r *TableRepository) Delete(ctx context.Context, table string, entity TableEntity) repositories.Response[struct{}] {
	res := r.write(ctx, table, transaction.Delete, entity)
	if !res.Succeeded {
		return repositories.ResponseFrom[struct{}](res)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// Get reads one entity. A missing entity is reported as ResourceNotFound.
func (r *TableRepository) Get(ctx context.Context, table, partitionKey, rowKey string) repositories.Response[TableEntity] {
	name, err := r.prepare(ctx, table)
	if err == nil {
		err = validateEntity(TableEntity{PartitionKey: partitionKey, RowKey: rowKey})
	}
	var e TableEntity
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			e, err = r.backend.get(ctx, name, partitionKey, rowKey)
			return err
		})
	}
	if err != nil {
		return azerrors.ToResponse[TableEntity](r.classifier, err)
	}
	return repositories.SucceededWithStatus(e, http.StatusOK)
}

// Query returns the entities matching q.
func (r *TableRepository) Query(ctx context.Context, table string, q TableQuery) repositories.Response[[]TableEntity] {
	name, err := r.prepare(ctx, table)
	var result []TableEntity
	if err == nil {
		result, err = r.query(ctx, name, q)
	}
	if err != nil {
		return azerrors.ToResponse[[]TableEntity](r.classifier, err)
	}
	return repositories.SucceededWithStatus(result, http.StatusOK)
}

// NewTransaction returns an empty TableTransaction sized for this repository.
func (r *TableRepository) NewTransaction() (*TableTransaction, error) {
	return NewTableTransaction(r.options.MaxBatchSize)
}

// SubmitTransaction submits every staged batch of tx once, batches of different partitions in parallel,
// and returns one Response per batch in staging order. Batches are never retried. tx is left as is.
// A nil or empty tx, or an invalid table name, is returned as error.
func (r *TableRepository) SubmitTransaction(ctx context.Context, table string, tx *TableTransaction) ([]repositories.Response[azerrors.BatchResult[string]], error) {
	if tx == nil {
		return nil, repositories.NewNilArgumentError("tx")
	}
	if _, err := normalizeTableName(table); err != nil {
		return nil, err
	}
	batches := tx.Batches()
	if len(batches) == 0 {
		return nil, repositories.NewEmptyArgumentError("tx")
	}
	rs := make([]repositories.Response[azerrors.BatchResult[string]], len(batches))
	name, err := r.prepare(ctx, table)
	if err != nil {
		for i, b := range batches {
			rs[i] = azerrors.ToResponse[azerrors.BatchResult[string]](r.classifier, err)
			rs[i].Value = azerrors.BatchResult[string]{GroupKey: b.GroupKey, FailedIndex: -1}
		}
		return rs, nil
	}

	timeout := r.options.Retry.Normalize().NetworkTimeout
	submitter := transaction.BatchSubmitterFunc[string, TableEntity](func(ctx context.Context, b transaction.Batch[string, TableEntity]) (transaction.Outcome, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		applied, current, err := r.backend.execute(ctx, r.newWriteSet(name, b.GroupKey, b.Actions))
		if err != nil {
			return transaction.Outcome{}, err
		}
		return outcomeOf(b.Actions, applied, current)
	})
	for i, s := range transaction.SubmitBatches(ctx, submitter, batches, r.options.MaxConcurrentBatches) {
		rs[i] = azerrors.FromBatch(r.classifier, s)
		if rs[i].Err != nil {
			log.Warn(fmt.Sprintf("table '%s' batch of partition '%s' failed, details: %v", name, s.Batch.GroupKey, rs[i].Err))
		}
	}
	return rs, nil
}

func (r *TableRepository) write(ctx context.Context, table string, kind transaction.ActionKind, entity TableEntity) repositories.Response[TableEntity] {
	name, err := r.prepare(ctx, table)
	var a transaction.Action[TableEntity]
	if err == nil {
		a, err = tableAction(entity, kind)
	}
	if err != nil {
		return azerrors.ToResponse[TableEntity](r.classifier, err)
	}
	w := r.newWriteSet(name, entity.PartitionKey, []transaction.Action[TableEntity]{a})
	var applied bool
	var current map[string]string
	// Conditional writes are not repeated once sent, a lost reply would surface as a conflict.
	err = repositories.RetryUnsent(ctx, r.options.Retry, func(ctx context.Context) error {
		var err error
		applied, current, err = r.backend.execute(ctx, w)
		return err
	}, isUnsent)
	if err == nil && !applied {
		if _, e, ok := resolveRejection(w.actions, current); ok {
			err = azerrors.NewStatusError(e, nil)
		} else {
			err = fmt.Errorf("%v of entity '%s/%s' was not applied", kind, entity.PartitionKey, entity.RowKey)
		}
	}
	if err != nil {
		return azerrors.ToResponse[TableEntity](r.classifier, err)
	}
	switch kind {
	case transaction.Add:
		entity.ETag = w.etags[0]
		entity.Timestamp = w.now
		return repositories.SucceededWithStatus(entity, http.StatusCreated)
	case transaction.Delete:
		return repositories.SucceededWithStatus(entity, http.StatusNoContent)
	default:
		entity.ETag = w.etags[0]
		entity.Timestamp = w.now
		return repositories.SucceededWithStatus(entity, http.StatusNoContent)
	}
}

func (r *TableRepository) newWriteSet(table, partitionKey string, actions []transaction.Action[TableEntity]) writeSet {
	etags := make([]string, len(actions))
	for i := range etags {
		etags[i] = r.newETag()
	}
	return writeSet{
		table:        table,
		partitionKey: partitionKey,
		actions:      actions,
		etags:        etags,
		now:          r.now(),
	}
}

// prepare validates the table name and, when the policy says so, makes sure the table exists.
func (r *TableRepository) prepare(ctx context.Context, table string) (string, error) {
	name, err := normalizeTableName(table)
	if err != nil {
		return "", err
	}
	_, _, err = provision.Provision(ctx, r.provisioner,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.createTable(ctx, name)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.getTable(ctx, name)
		},
		provision.AlreadyExists(r.classifier, azerrors.TableAlreadyExists))
	return name, err
}

func (r *TableRepository) createTable(ctx context.Context, name string) error {
	return r.retry(ctx, func(ctx context.Context) error {
		return r.backend.createTable(ctx, name)
	})
}

func (r *TableRepository) getTable(ctx context.Context, name string) error {
	var ok bool
	if err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		ok, err = r.backend.tableExists(ctx, name)
		return err
	}); err != nil {
		return err
	}
	if !ok {
		return azerrors.NewStatusError(azerrors.TableNotFound, nil)
	}
	return nil
}

func (r *TableRepository) retry(ctx context.Context, task func(ctx context.Context) error) error {
	return repositories.Retry(ctx, r.options.Retry, task, r.classifier.IsRetryable)
}

func (r *TableRepository) query(ctx context.Context, table string, q TableQuery) ([]TableEntity, error) {
	if q.Limit < 0 {
		return nil, repositories.NewInvalidArgumentError("Limit", "can't be negative")
	}
	terms, err := normalizeTerms(q.Terms)
	if err != nil {
		return nil, err
	}
	var filter *cel.Filter
	if q.Filter != "" {
		if filter, err = cel.NewFilter(q.Filter); err != nil {
			return nil, repositories.NewInvalidArgumentError("Filter", err.Error())
		}
	}
	var orderBy *cel.Evaluator
	if q.OrderBy != "" {
		if orderBy, err = cel.NewEvaluator("orderBy", q.OrderBy); err != nil {
			return nil, repositories.NewInvalidArgumentError("OrderBy", err.Error())
		}
	}

	var result []TableEntity
	err = r.retry(ctx, func(ctx context.Context) error {
		result = nil
		return r.backend.scan(ctx, table, q.PartitionKey, func(e TableEntity) (bool, error) {
			if !matches(e, terms, filter) {
				return true, nil
			}
			result = append(result, e)
			return orderBy != nil || q.Limit == 0 || len(result) < q.Limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	if orderBy != nil {
		if err := cel.SortBy(orderBy, result, TableEntity.ToMap); err != nil {
			return nil, repositories.NewInvalidArgumentError("OrderBy", err.Error())
		}
		if q.Limit > 0 && len(result) > q.Limit {
			result = result[:q.Limit]
		}
	}
	return result, nil
}

// normalizeTerms round trips term values through the value marshaler so they compare equal to decoded
// properties, e.g. int 3 becomes float64 3.
func normalizeTerms(terms []repositories.KeyValuePair[string, any]) ([]repositories.KeyValuePair[string, any], error) {
	r := make([]repositories.KeyValuePair[string, any], 0, len(terms))
	for _, t := range terms {
		if t.Key == "" {
			return nil, repositories.NewEmptyArgumentError("term key")
		}
		ba, err := encoding.ValueMarshaler.Marshal(t.Value)
		if err != nil {
			return nil, repositories.NewInvalidArgumentError(t.Key, err.Error())
		}
		var v any
		if err := encoding.ValueMarshaler.Unmarshal(ba, &v); err != nil {
			return nil, repositories.NewInvalidArgumentError(t.Key, err.Error())
		}
		r = append(r, repositories.Pair(t.Key, v))
	}
	return r, nil
}

// matches reports whether e satisfies terms & filter. An entity the filter can't be evaluated on, e.g.
// lacking a referenced property, does not match.
func matches(e TableEntity, terms []repositories.KeyValuePair[string, any], filter *cel.Filter) bool {
	if len(terms) == 0 && filter == nil {
		return true
	}
	m := e.ToMap()
	for _, t := range terms {
		v, ok := m[t.Key]
		if !ok || !reflect.DeepEqual(v, t.Value) {
			return false
		}
	}
	if filter == nil {
		return true
	}
	ok, err := filter.Match(m)
	if err != nil {
		log.Debug(fmt.Sprintf("entity '%s/%s' skipped, details: %v", e.PartitionKey, e.RowKey, err))
		return false
	}
	return ok
}
