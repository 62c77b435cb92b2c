package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
)

// tableBackend is the storage the table repository runs against.
type tableBackend interface {
	keyspace() string
	createTable(ctx context.Context, table string) error
	tableExists(ctx context.Context, table string) (bool, error)
	dropTable(ctx context.Context, table string) error
	listTables(ctx context.Context) ([]string, error)
	// execute applies w atomically. When w is rejected on a condition, applied is false and current
	// holds the ETags of the involved rows that exist, keyed by row key.
	execute(ctx context.Context, w writeSet) (applied bool, current map[string]string, err error)
	get(ctx context.Context, table, partitionKey, rowKey string) (TableEntity, error)
	// scan visits the rows of a partition, or of the whole table when partitionKey is empty, until visit returns false.
	scan(ctx context.Context, table, partitionKey string, visit func(TableEntity) (bool, error)) error
}

type sessionBackend struct {
	conn *Connection
}

func newSessionBackend() (*sessionBackend, error) {
	c, err := getConnection()
	if err != nil {
		return nil, err
	}
	return &sessionBackend{conn: c}, nil
}

func (b *sessionBackend) keyspace() string {
	return b.conn.Keyspace
}

func (b *sessionBackend) createTable(ctx context.Context, table string) error {
	ddl := fmt.Sprintf("CREATE TABLE %s.%s (pk text, rk text, etag text, ts timestamp, props map<text, text>, PRIMARY KEY ((pk), rk));",
		b.conn.Keyspace, table)
	qry := b.conn.Session.Query(ddl).WithContext(ctx)
	qry.Consistency(consistencyOr(b.conn.ConsistencyBook.TableManage, b.conn.Consistency))
	return translateError(qry.Exec())
}

func (b *sessionBackend) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	qry := b.conn.Session.Query("SELECT table_name FROM system_schema.tables WHERE keyspace_name = ? AND table_name = ?;",
		b.conn.Keyspace, table).WithContext(ctx)
	if err := qry.Scan(&name); err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *sessionBackend) dropTable(ctx context.Context, table string) error {
	qry := b.conn.Session.Query(fmt.Sprintf("DROP TABLE %s.%s;", b.conn.Keyspace, table)).WithContext(ctx)
	qry.Consistency(consistencyOr(b.conn.ConsistencyBook.TableManage, b.conn.Consistency))
	return translateError(qry.Exec())
}

func (b *sessionBackend) listTables(ctx context.Context) ([]string, error) {
	iter := b.conn.Session.Query("SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?;",
		b.conn.Keyspace).WithContext(ctx).Iter()
	var r []string
	var name string
	for iter.Scan(&name) {
		r = append(r, name)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *sessionBackend) execute(ctx context.Context, w writeSet) (bool, map[string]string, error) {
	stmts, err := buildStatements(b.conn.Keyspace, w)
	if err != nil {
		return false, nil, err
	}
	// Single partition logged batch, all or nothing.
	batch := b.conn.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.SetConsistency(consistencyOr(b.conn.ConsistencyBook.EntityWrite, b.conn.Consistency))
	for _, s := range stmts {
		batch.Query(s.cql, s.args...)
	}
	if !w.hasConditions() {
		if err := b.conn.Session.ExecuteBatch(batch); err != nil {
			return false, nil, translateError(err)
		}
		return true, nil, nil
	}

	row := map[string]interface{}{}
	applied, iter, err := b.conn.Session.MapExecuteBatchCAS(batch, row)
	if err != nil {
		return false, nil, translateError(err)
	}
	if applied {
		return true, nil, iter.Close()
	}
	current := make(map[string]string)
	collectRow(row, current)
	for {
		row = map[string]interface{}{}
		if !iter.MapScan(row) {
			break
		}
		collectRow(row, current)
	}
	if err := iter.Close(); err != nil {
		return false, nil, translateError(err)
	}
	return false, current, nil
}

func collectRow(row map[string]interface{}, current map[string]string) {
	rk, ok := row["rk"].(string)
	if !ok {
		return
	}
	etag, _ := row["etag"].(string)
	current[rk] = etag
}

func (b *sessionBackend) get(ctx context.Context, table, partitionKey, rowKey string) (TableEntity, error) {
	qry := b.conn.Session.Query(fmt.Sprintf("SELECT %s FROM %s.%s WHERE pk = ? AND rk = ?;", columns, b.conn.Keyspace, table),
		partitionKey, rowKey).WithContext(ctx)
	qry.Consistency(consistencyOr(b.conn.ConsistencyBook.EntityGet, b.conn.Consistency))
	var r row
	if err := qry.Scan(&r.pk, &r.rk, &r.etag, &r.ts, &r.props); err != nil {
		return TableEntity{}, translateError(err)
	}
	return r.toEntity()
}

func (b *sessionBackend) scan(ctx context.Context, table, partitionKey string, visit func(TableEntity) (bool, error)) error {
	var qry *gocql.Query
	if partitionKey == "" {
		qry = b.conn.Session.Query(fmt.Sprintf("SELECT %s FROM %s.%s;", columns, b.conn.Keyspace, table))
	} else {
		qry = b.conn.Session.Query(fmt.Sprintf("SELECT %s FROM %s.%s WHERE pk = ?;", columns, b.conn.Keyspace, table), partitionKey)
	}
	qry = qry.WithContext(ctx)
	qry.Consistency(consistencyOr(b.conn.ConsistencyBook.Query, b.conn.Consistency))
	iter := qry.Iter()
	var r row
	for iter.Scan(&r.pk, &r.rk, &r.etag, &r.ts, &r.props) {
		e, err := r.toEntity()
		if err != nil {
			iter.Close()
			return err
		}
		more, err := visit(e)
		if err != nil {
			iter.Close()
			return err
		}
		if !more {
			break
		}
		r = row{}
	}
	return translateError(iter.Close())
}

type row struct {
	pk    string
	rk    string
	etag  string
	ts    time.Time
	props map[string]string
}

func (r row) toEntity() (TableEntity, error) {
	props, err := encoding.UnmarshalProperties(r.props)
	if err != nil {
		return TableEntity{}, fmt.Errorf("entity '%s/%s' has undecodable properties, details: %w", r.pk, r.rk, err)
	}
	return TableEntity{
		PartitionKey: r.pk,
		RowKey:       r.rk,
		ETag:         r.etag,
		Timestamp:    r.ts,
		Properties:   props,
	}, nil
}
