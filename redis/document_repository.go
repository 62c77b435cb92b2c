package redis

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/cel"
	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
	"github.com/cesarpv27/Azure.Repositories-sub001/provision"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// maxWatchAttempts caps how many times a partition write is replayed when a watched key changed under it.
const maxWatchAttempts = 16

// DocumentOptions configures a DocumentRepository.
type DocumentOptions struct {
	repositories.RepositoryOptions
	// MaxBatchSize caps the actions of one partition in a transaction.
	MaxBatchSize int `json:"max_batch_size"`
	// MaxConcurrentBatches caps the batches of one transaction submitted in parallel.
	MaxConcurrentBatches int `json:"max_concurrent_batches"`
}

// DefaultDocumentOptions returns the default repository options, batches of up to 100 actions and
// 4 batches in flight.
func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{
		RepositoryOptions:    repositories.DefaultRepositoryOptions(),
		MaxBatchSize:         transaction.DefaultMaxBatchSize,
		MaxConcurrentBatches: 4,
	}
}

// ContainerInfo describes a document container.
type ContainerInfo struct {
	Name      string    `json:"name"`
	CreatedOn time.Time `json:"created_on"`
}

// DocumentQuery selects documents of one partition.
type DocumentQuery struct {
	// Filter is a CEL boolean expression over the variable entity, e.g. "entity['total'] > 10.0".
	Filter string `json:"filter,omitempty"`
	// OrderBy is a CEL comparer over mapX & mapY. Results are ordered by id when empty.
	OrderBy string `json:"order_by,omitempty"`
	// Limit caps the result count, 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// DocumentRepository stores JSON documents in partitioned containers on Redis. Writes of one partition
// are applied with WATCH & MULTI/EXEC so a batch lands entirely or not at all.
type DocumentRepository struct {
	client      redis.UniversalClient
	options     DocumentOptions
	provisioner *provision.Provisioner
	classifier  *azerrors.Classifier
	now         func() time.Time
	newETag     func() string
}

// NewDocumentRepository returns a DocumentRepository on the global Redis connection, see OpenConnection.
func NewDocumentRepository(options DocumentOptions) (*DocumentRepository, error) {
	c, err := getClient()
	if err != nil {
		return nil, err
	}
	return newDocumentRepository(c, options), nil
}

func newDocumentRepository(c redis.UniversalClient, options DocumentOptions) *DocumentRepository {
	if options.MaxConcurrentBatches <= 0 {
		options.MaxConcurrentBatches = 1
	}
	return &DocumentRepository{
		client:      c,
		options:     options,
		provisioner: provision.NewProvisioner(options.CreateResourcePolicy),
		classifier:  azerrors.NewClassifier(azerrors.Document),
		now:         func() time.Time { return time.Now().UTC() },
		newETag:     repositories.NewETag,
	}
}

// CreateContainer creates a container. An existing one is reported as DocumentContainerAlreadyExists.
func (r *DocumentRepository) CreateContainer(ctx context.Context, container string) repositories.Response[ContainerInfo] {
	var ci ContainerInfo
	err := validateContainerName(container)
	if err == nil {
		ci, err = r.createContainer(ctx, container)
	}
	if err != nil {
		return azerrors.ToResponse[ContainerInfo](r.classifier, err)
	}
	return repositories.SucceededWithStatus(ci, http.StatusCreated)
}

// GetContainer returns a container's info.
func (r *DocumentRepository) GetContainer(ctx context.Context, container string) repositories.Response[ContainerInfo] {
	var ci ContainerInfo
	err := validateContainerName(container)
	if err == nil {
		ci, err = r.getContainer(ctx, container)
	}
	if err != nil {
		return azerrors.ToResponse[ContainerInfo](r.classifier, err)
	}
	return repositories.SucceededWithStatus(ci, http.StatusOK)
}

// DeleteContainer deletes a container and its documents.
func (r *DocumentRepository) DeleteContainer(ctx context.Context, container string) repositories.Response[struct{}] {
	err := validateContainerName(container)
	if err == nil {
		_, err = r.getContainer(ctx, container)
	}
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			// Meta goes first so writes racing with the delete fail on a missing container.
			if err := r.client.Del(ctx, containerMetaKey(container)).Err(); err != nil {
				return err
			}
			keys, err := scanKeys(ctx, r.client, containerKeyPattern(container))
			if err != nil {
				return err
			}
			for len(keys) > 0 {
				n := min(len(keys), 500)
				if err := r.client.Del(ctx, keys[:n]...).Err(); err != nil {
					return err
				}
				keys = keys[n:]
			}
			return nil
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, err)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// ListContainers returns the names of all containers.
func (r *DocumentRepository) ListContainers(ctx context.Context) repositories.Response[[]string] {
	var keys []string
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		keys, err = scanKeys(ctx, r.client, "azdoc:{*}:meta")
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]string](r.classifier, err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(k, "azdoc:{"), "}:meta"))
	}
	sort.Strings(names)
	return repositories.SucceededWithStatus(names, http.StatusOK)
}

// Create inserts doc. An existing document with the same keys is reported as DocumentAlreadyExists.
// The returned document carries its new ETag & Timestamp.
func (r *DocumentRepository) Create(ctx context.Context, container string, doc Document) repositories.Response[Document] {
	return r.write(ctx, container, transaction.Add, docEntry{Document: doc})
}

// Replace replaces an existing document. A set ETag must match the stored one, "*" matches any.
func (r *DocumentRepository) Replace(ctx context.Context, container string, doc Document) repositories.Response[Document] {
	return r.write(ctx, container, transaction.UpdateReplace, docEntry{Document: doc})
}

// Upsert inserts doc or replaces the existing one. Status is 201 when the document was created.
func (r *DocumentRepository) Upsert(ctx context.Context, container string, doc Document) repositories.Response[Document] {
	return r.write(ctx, container, transaction.UpsertReplace, docEntry{Document: doc})
}

// Patch applies ops, in order, to an existing document. etag, when set, must match the stored one.
func (r *DocumentRepository) Patch(ctx context.Context, container, partitionKey, id, etag string, ops ...PatchOperation) repositories.Response[Document] {
	if ops == nil {
		ops = []PatchOperation{}
	}
	return r.write(ctx, container, transaction.UpdateMerge, docEntry{
		Document: Document{ID: id, PartitionKey: partitionKey, ETag: etag},
		ops:      ops,
	})
}

// Delete removes a document. etag, when set, must match the stored one.
func (r *DocumentRepository) Delete(ctx context.Context, container, partitionKey, id, etag string) repositories.Response[struct{}] {
	res := r.write(ctx, container, transaction.Delete, docEntry{
		Document: Document{ID: id, PartitionKey: partitionKey, ETag: etag},
	})
	if !res.Succeeded {
		return repositories.ResponseFrom[struct{}](res)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// Read returns one document. A missing document is reported as DocumentNotFound.
func (r *DocumentRepository) Read(ctx context.Context, container, partitionKey, id string) repositories.Response[Document] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateDocument(Document{ID: id, PartitionKey: partitionKey})
	}
	var d Document
	if err == nil {
		var found bool
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			found, err = getStruct(ctx, r.client, documentKey(container, partitionKey, id), &d)
			return err
		})
		if err == nil && !found {
			if _, err = r.getContainer(ctx, container); err == nil {
				err = azerrors.NewStatusError(azerrors.DocumentNotFound, nil)
			}
		}
	}
	if err != nil {
		return azerrors.ToResponse[Document](r.classifier, err)
	}
	return repositories.SucceededWithStatus(d, http.StatusOK)
}

// QueryPartition returns the documents of one partition matching q.
func (r *DocumentRepository) QueryPartition(ctx context.Context, container, partitionKey string, q DocumentQuery) repositories.Response[[]Document] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateDocumentKey("PartitionKey", partitionKey)
	}
	var docs []Document
	if err == nil {
		docs, err = r.queryPartition(ctx, container, partitionKey, q)
	}
	if err != nil {
		return azerrors.ToResponse[[]Document](r.classifier, err)
	}
	return repositories.SucceededWithStatus(docs, http.StatusOK)
}

// NewTransaction returns an empty DocumentTransaction sized for this repository.
func (r *DocumentRepository) NewTransaction() (*DocumentTransaction, error) {
	return NewDocumentTransaction(r.options.MaxBatchSize)
}

// ExecuteTransaction applies every staged batch of tx once, batches of different partitions in parallel,
// and returns one Response per batch in staging order. A batch failing a precondition is not applied at
// all. tx is left as is. A nil or empty tx, or an invalid container name, is returned as error.
func (r *DocumentRepository) ExecuteTransaction(ctx context.Context, container string, tx *DocumentTransaction) ([]repositories.Response[azerrors.BatchResult[string]], error) {
	if tx == nil {
		return nil, repositories.NewNilArgumentError("tx")
	}
	if err := validateContainerName(container); err != nil {
		return nil, err
	}
	batches := tx.Batches()
	if len(batches) == 0 {
		return nil, repositories.NewEmptyArgumentError("tx")
	}
	rs := make([]repositories.Response[azerrors.BatchResult[string]], len(batches))
	if err := r.prepare(ctx, container); err != nil {
		for i, b := range batches {
			rs[i] = azerrors.ToResponse[azerrors.BatchResult[string]](r.classifier, err)
			rs[i].Value = azerrors.BatchResult[string]{GroupKey: b.GroupKey, FailedIndex: -1}
		}
		return rs, nil
	}

	timeout := r.options.Retry.Normalize().NetworkTimeout
	submitter := transaction.BatchSubmitterFunc[string, docEntry](func(ctx context.Context, b transaction.Batch[string, docEntry]) (transaction.Outcome, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		o, _, err := r.execute(ctx, container, b.GroupKey, b.Actions)
		return o, err
	})
	for i, s := range transaction.SubmitBatches(ctx, submitter, batches, r.options.MaxConcurrentBatches) {
		rs[i] = azerrors.FromBatch(r.classifier, s)
		if rs[i].Err != nil {
			log.Warn(fmt.Sprintf("container '%s' batch of partition '%s' failed, details: %v", container, s.Batch.GroupKey, rs[i].Err))
		}
	}
	return rs, nil
}

func (r *DocumentRepository) write(ctx context.Context, container string, kind transaction.ActionKind, e docEntry) repositories.Response[Document] {
	err := r.prepare(ctx, container)
	var a transaction.Action[docEntry]
	if err == nil {
		a, err = documentAction(e, kind)
	}
	if err != nil {
		return azerrors.ToResponse[Document](r.classifier, err)
	}
	var o transaction.Outcome
	var docs []Document
	// ETag conditioned writes are not repeated once sent.
	err = repositories.RetryUnsent(ctx, r.options.Retry, func(ctx context.Context) error {
		var err error
		o, docs, err = r.execute(ctx, container, e.PartitionKey, []transaction.Action[docEntry]{a})
		return err
	}, nil)
	if err == nil && !o.Succeeded {
		if ae, ok := azerrors.Lookup(azerrors.Document, o.FailureCode, o.StatusCodes[0]); ok {
			err = azerrors.NewStatusError(ae, nil)
		} else {
			err = fmt.Errorf("%v of document '%s/%s' was not applied", kind, e.PartitionKey, e.ID)
		}
	}
	if err != nil {
		return azerrors.ToResponse[Document](r.classifier, err)
	}
	return repositories.SucceededWithStatus(docs[0], o.StatusCodes[0])
}

// execute applies the actions of one partition atomically. When applied it also returns the resulting
// documents in action order, a zero Document for deletes.
func (r *DocumentRepository) execute(ctx context.Context, container, partitionKey string, actions []transaction.Action[docEntry]) (transaction.Outcome, []Document, error) {
	meta := containerMetaKey(container)
	index := partitionIndexKey(container, partitionKey)
	keys := make([]string, len(actions))
	for i, a := range actions {
		keys[i] = documentKey(container, partitionKey, a.EntityID())
	}

	var outcome transaction.Outcome
	var docs []Document
	apply := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, meta).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return azerrors.NewStatusError(azerrors.DocumentContainerNotFound, nil)
		}
		current, err := readDocuments(ctx, tx, keys)
		if err != nil {
			return err
		}
		if i, ae, rejected := resolveDocumentRejection(actions, current); rejected {
			outcome = rejectedOutcome(len(actions), i, ae)
			docs = nil
			return nil
		}
		now := r.now()
		next := make([]Document, len(actions))
		statuses := make([]int, len(actions))
		for i, a := range actions {
			if next[i], statuses[i], err = r.nextDocument(a, current[i], now); err != nil {
				return err
			}
		}
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, a := range actions {
				if a.Kind() == transaction.Delete {
					p.Del(ctx, keys[i])
					p.SRem(ctx, index, a.EntityID())
					continue
				}
				if err := setStruct(ctx, p, keys[i], next[i], 0); err != nil {
					return err
				}
				p.SAdd(ctx, index, a.EntityID())
			}
			return nil
		}); err != nil {
			return err
		}
		outcome = transaction.Outcome{Succeeded: true, StatusCodes: statuses}
		docs = next
		return nil
	}

	watched := append([]string{meta, index}, keys...)
	for i := 0; i < maxWatchAttempts; i++ {
		err := r.client.Watch(ctx, apply, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug(fmt.Sprintf("partition '%s' of container '%s' changed during the write, replaying", partitionKey, container))
			continue
		}
		if err != nil {
			return transaction.Outcome{}, nil, err
		}
		return outcome, docs, nil
	}
	return transaction.Outcome{}, nil, fmt.Errorf("partition '%s' of container '%s' kept changing, gave up after %d attempts", partitionKey, container, maxWatchAttempts)
}

// nextDocument returns what a's document becomes and the action's status code.
func (r *DocumentRepository) nextDocument(a transaction.Action[docEntry], current *Document, now time.Time) (Document, int, error) {
	e := a.Entity()
	var d Document
	status := http.StatusOK
	switch a.Kind() {
	case transaction.Delete:
		return Document{}, http.StatusNoContent, nil
	case transaction.Add:
		d, status = e.Document, http.StatusCreated
	case transaction.UpdateReplace:
		d = e.Document
	case transaction.UpsertReplace:
		d = e.Document
		if current == nil {
			status = http.StatusCreated
		}
	case transaction.UpdateMerge, transaction.UpsertMerge:
		if current == nil {
			d, status = e.Document, http.StatusCreated
			break
		}
		d = *current
		if d.Body == nil {
			d.Body = make(map[string]any)
		}
		if e.ops != nil {
			if err := applyPatch(d.Body, e.ops); err != nil {
				return Document{}, 0, err
			}
		} else {
			for k, v := range e.Body {
				d.Body[k] = v
			}
		}
	default:
		return Document{}, 0, fmt.Errorf("action kind %v is not supported on documents", a.Kind())
	}
	if d.Body == nil {
		d.Body = make(map[string]any)
	}
	d.ETag = r.newETag()
	d.Timestamp = now
	return d, status, nil
}

// resolveDocumentRejection returns the first action whose precondition does not hold on current.
func resolveDocumentRejection(actions []transaction.Action[docEntry], current []*Document) (int, azerrors.AzError, bool) {
	for i, a := range actions {
		cur := current[i]
		switch a.Kind() {
		case transaction.Add:
			if cur != nil {
				return i, azerrors.DocumentAlreadyExists, true
			}
		case transaction.UpdateMerge, transaction.UpdateReplace, transaction.Delete:
			if cur == nil {
				return i, azerrors.DocumentNotFound, true
			}
			if t := a.ConcurrencyToken(); t != "" && t != "*" && t != cur.ETag {
				return i, azerrors.PreconditionFailed, true
			}
		}
	}
	return -1, azerrors.AzError{}, false
}

// rejectedOutcome reports ae's status for the failing action and 424 for the others.
func rejectedOutcome(n, failed int, ae azerrors.AzError) transaction.Outcome {
	codes := make([]int, n)
	for i := range codes {
		codes[i] = http.StatusFailedDependency
	}
	codes[failed] = ae.Status
	return transaction.Outcome{StatusCodes: codes, FailureCode: ae.Code}
}

func readDocuments(ctx context.Context, c redis.Cmdable, keys []string) ([]*Document, error) {
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	r := make([]*Document, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var d Document
		if err := encoding.ValueMarshaler.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("document key '%s' holds an invalid document, details: %w", keys[i], err)
		}
		r[i] = &d
	}
	return r, nil
}

func (r *DocumentRepository) queryPartition(ctx context.Context, container, partitionKey string, q DocumentQuery) ([]Document, error) {
	if q.Limit < 0 {
		return nil, repositories.NewInvalidArgumentError("Limit", "can't be negative")
	}
	var filter *cel.Filter
	var err error
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
	if _, err := r.getContainer(ctx, container); err != nil {
		return nil, err
	}

	var current []*Document
	err = r.retry(ctx, func(ctx context.Context) error {
		ids, err := r.client.SMembers(ctx, partitionIndexKey(container, partitionKey)).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			current = nil
			return nil
		}
		sort.Strings(ids)
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = documentKey(container, partitionKey, id)
		}
		current, err = readDocuments(ctx, r.client, keys)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]Document, 0, len(current))
	for _, d := range current {
		if d == nil {
			continue
		}
		if filter != nil {
			ok, err := filter.Match(d.ToMap())
			if err != nil {
				log.Debug(fmt.Sprintf("document '%s/%s' skipped, details: %v", d.PartitionKey, d.ID, err))
				continue
			}
			if !ok {
				continue
			}
		}
		result = append(result, *d)
		if orderBy == nil && q.Limit > 0 && len(result) == q.Limit {
			break
		}
	}
	if orderBy != nil {
		if err := cel.SortBy(orderBy, result, Document.ToMap); err != nil {
			return nil, repositories.NewInvalidArgumentError("OrderBy", err.Error())
		}
		if q.Limit > 0 && len(result) > q.Limit {
			result = result[:q.Limit]
		}
	}
	return result, nil
}

// prepare validates the container name and, when the policy says so, makes sure the container exists.
func (r *DocumentRepository) prepare(ctx context.Context, container string) error {
	if err := validateContainerName(container); err != nil {
		return err
	}
	_, _, err := provision.Provision(ctx, r.provisioner,
		func(ctx context.Context) (ContainerInfo, error) {
			return r.createContainer(ctx, container)
		},
		func(ctx context.Context) (ContainerInfo, error) {
			return r.getContainer(ctx, container)
		},
		provision.AlreadyExists(r.classifier, azerrors.DocumentContainerAlreadyExists))
	return err
}

func (r *DocumentRepository) createContainer(ctx context.Context, container string) (ContainerInfo, error) {
	ci := ContainerInfo{Name: container, CreatedOn: r.now()}
	ba, err := encoding.ValueMarshaler.Marshal(ci)
	if err != nil {
		return ContainerInfo{}, err
	}
	var created bool
	if err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		created, err = r.client.SetNX(ctx, containerMetaKey(container), ba, 0).Result()
		return err
	}); err != nil {
		return ContainerInfo{}, err
	}
	if !created {
		return ContainerInfo{}, azerrors.NewStatusError(azerrors.DocumentContainerAlreadyExists, nil)
	}
	return ci, nil
}

func (r *DocumentRepository) getContainer(ctx context.Context, container string) (ContainerInfo, error) {
	var ci ContainerInfo
	var found bool
	if err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		found, err = getStruct(ctx, r.client, containerMetaKey(container), &ci)
		return err
	}); err != nil {
		return ContainerInfo{}, err
	}
	if !found {
		return ContainerInfo{}, azerrors.NewStatusError(azerrors.DocumentContainerNotFound, nil)
	}
	return ci, nil
}

func (r *DocumentRepository) retry(ctx context.Context, task func(ctx context.Context) error) error {
	return repositories.Retry(ctx, r.options.Retry, task, r.classifier.IsRetryable)
}
