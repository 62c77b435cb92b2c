package cassandra

import (
	"context"
	"sort"
	"sync"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// fakeBackend is an in-memory tableBackend honoring the same conditions as the CQL statements.
type fakeBackend struct {
	lock         sync.Mutex
	tables       map[string]map[string]map[string]TableEntity
	createCalls  int
	executeCalls int
	executeErr   error
	// lostReplyErr is returned after an applied write.
	lostReplyErr error
}

func newFakeBackend(tables ...string) *fakeBackend {
	b := &fakeBackend{tables: make(map[string]map[string]map[string]TableEntity)}
	for _, t := range tables {
		b.tables[t] = make(map[string]map[string]TableEntity)
	}
	return b
}

func (b *fakeBackend) keyspace() string {
	return "test"
}

func (b *fakeBackend) createTable(ctx context.Context, table string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.createCalls++
	if _, ok := b.tables[table]; ok {
		return azerrors.NewStatusError(azerrors.TableAlreadyExists, nil)
	}
	b.tables[table] = make(map[string]map[string]TableEntity)
	return nil
}

func (b *fakeBackend) tableExists(ctx context.Context, table string) (bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, ok := b.tables[table]
	return ok, nil
}

func (b *fakeBackend) dropTable(ctx context.Context, table string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if _, ok := b.tables[table]; !ok {
		return azerrors.NewStatusError(azerrors.TableNotFound, nil)
	}
	delete(b.tables, table)
	return nil
}

func (b *fakeBackend) listTables(ctx context.Context) ([]string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	r := make([]string, 0, len(b.tables))
	for t := range b.tables {
		r = append(r, t)
	}
	sort.Strings(r)
	return r, nil
}

func (b *fakeBackend) execute(ctx context.Context, w writeSet) (bool, map[string]string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.executeCalls++
	if b.executeErr != nil {
		return false, nil, b.executeErr
	}
	t, ok := b.tables[w.table]
	if !ok {
		return false, nil, azerrors.NewStatusError(azerrors.TableNotFound, nil)
	}
	part := t[w.partitionKey]
	if part == nil {
		part = make(map[string]TableEntity)
	}
	current := make(map[string]string)
	for _, a := range w.actions {
		if e, ok := part[a.EntityID()]; ok {
			current[a.EntityID()] = e.ETag
		}
	}
	if _, _, rejected := resolveRejection(w.actions, current); rejected {
		return false, current, nil
	}
	for i, a := range w.actions {
		e := a.Entity()
		stored, exists := part[e.RowKey]
		switch {
		case a.Kind() == transaction.Delete:
			delete(part, e.RowKey)
			continue
		case a.Kind().IsMerge() && exists:
			props := copyProps(stored.Properties)
			for k, v := range e.Properties {
				props[k] = v
			}
			e.Properties = props
		default:
			e.Properties = copyProps(e.Properties)
		}
		e.ETag = w.etags[i]
		e.Timestamp = w.now
		part[e.RowKey] = e
	}
	t[w.partitionKey] = part
	if b.lostReplyErr != nil {
		return false, nil, b.lostReplyErr
	}
	return true, nil, nil
}

func (b *fakeBackend) get(ctx context.Context, table, partitionKey, rowKey string) (TableEntity, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	t, ok := b.tables[table]
	if !ok {
		return TableEntity{}, azerrors.NewStatusError(azerrors.TableNotFound, nil)
	}
	e, ok := t[partitionKey][rowKey]
	if !ok {
		return TableEntity{}, azerrors.NewStatusError(azerrors.ResourceNotFound, nil)
	}
	return e, nil
}

func (b *fakeBackend) scan(ctx context.Context, table, partitionKey string, visit func(TableEntity) (bool, error)) error {
	b.lock.Lock()
	t, ok := b.tables[table]
	if !ok {
		b.lock.Unlock()
		return azerrors.NewStatusError(azerrors.TableNotFound, nil)
	}
	var rows []TableEntity
	for pk, part := range t {
		if partitionKey != "" && pk != partitionKey {
			continue
		}
		for _, e := range part {
			rows = append(rows, e)
		}
	}
	b.lock.Unlock()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PartitionKey != rows[j].PartitionKey {
			return rows[i].PartitionKey < rows[j].PartitionKey
		}
		return rows[i].RowKey < rows[j].RowKey
	})
	for _, e := range rows {
		more, err := visit(e)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// copyProps copies through the value encoding, so values read back look like the ones Cassandra returns.
func copyProps(props map[string]any) map[string]any {
	enc, err := encoding.MarshalProperties(props)
	if err != nil {
		panic(err)
	}
	r, err := encoding.UnmarshalProperties(enc)
	if err != nil {
		panic(err)
	}
	return r
}
