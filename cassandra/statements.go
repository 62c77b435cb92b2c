package cassandra

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

const columns = "pk, rk, etag, ts, props"

// writeSet is one partition's worth of actions, submitted atomically. etags holds the ETag each
// action stamps on its row, same order as actions.
type writeSet struct {
	table        string
	partitionKey string
	actions      []transaction.Action[TableEntity]
	etags        []string
	now          time.Time
}

type condition int

const (
	unconditional condition = iota
	mustNotExist
	mustExist
	mustMatchETag
)

func conditionOf(a transaction.Action[TableEntity]) condition {
	switch a.Kind() {
	case transaction.Add:
		return mustNotExist
	case transaction.UpdateMerge, transaction.UpdateReplace, transaction.Delete:
		if a.HasConcurrencyToken() && a.ConcurrencyToken() != "*" {
			return mustMatchETag
		}
		return mustExist
	default:
		return unconditional
	}
}

func (w writeSet) hasConditions() bool {
	for _, a := range w.actions {
		if conditionOf(a) != unconditional {
			return true
		}
	}
	return false
}

type statement struct {
	cql  string
	args []any
}

func buildStatements(keyspace string, w writeSet) ([]statement, error) {
	r := make([]statement, 0, len(w.actions))
	for i, a := range w.actions {
		s, err := buildStatement(keyspace, w.table, a, w.etags[i], w.now)
		if err != nil {
			return nil, err
		}
		r = append(r, s)
	}
	return r, nil
}

func buildStatement(keyspace, table string, a transaction.Action[TableEntity], etag string, now time.Time) (statement, error) {
	e := a.Entity()
	var props map[string]string
	if a.Kind() != transaction.Delete {
		var err error
		if props, err = encoding.MarshalProperties(e.Properties); err != nil {
			return statement{}, fmt.Errorf("can't encode properties of entity '%s/%s', details: %w", e.PartitionKey, e.RowKey, err)
		}
	}
	var s statement
	switch a.Kind() {
	case transaction.Add, transaction.UpsertReplace:
		s.cql = fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (?, ?, ?, ?, ?)", keyspace, table, columns)
		s.args = []any{e.PartitionKey, e.RowKey, etag, now, props}
	case transaction.UpdateMerge, transaction.UpsertMerge:
		s.cql = fmt.Sprintf("UPDATE %s.%s SET props = props + ?, etag = ?, ts = ? WHERE pk = ? AND rk = ?", keyspace, table)
		s.args = []any{props, etag, now, e.PartitionKey, e.RowKey}
	case transaction.UpdateReplace:
		s.cql = fmt.Sprintf("UPDATE %s.%s SET props = ?, etag = ?, ts = ? WHERE pk = ? AND rk = ?", keyspace, table)
		s.args = []any{props, etag, now, e.PartitionKey, e.RowKey}
	case transaction.Delete:
		s.cql = fmt.Sprintf("DELETE FROM %s.%s WHERE pk = ? AND rk = ?", keyspace, table)
		s.args = []any{e.PartitionKey, e.RowKey}
	default:
		return statement{}, fmt.Errorf("action kind %v is not supported", a.Kind())
	}
	switch conditionOf(a) {
	case mustNotExist:
		s.cql += " IF NOT EXISTS"
	case mustExist:
		s.cql += " IF EXISTS"
	case mustMatchETag:
		s.cql += " IF etag = ?"
		s.args = append(s.args, a.ConcurrencyToken())
	}
	return s, nil
}

// resolveRejection finds the first action whose condition does not hold against current, the ETags of
// the rows that exist (keyed by row key), as reported by a rejected conditional batch.
func resolveRejection(actions []transaction.Action[TableEntity], current map[string]string) (int, azerrors.AzError, bool) {
	for i, a := range actions {
		etag, exists := current[a.EntityID()]
		exists = exists && etag != ""
		switch conditionOf(a) {
		case mustNotExist:
			if exists {
				return i, azerrors.EntityAlreadyExists, true
			}
		case mustExist:
			if !exists {
				return i, azerrors.ResourceNotFound, true
			}
		case mustMatchETag:
			if !exists {
				return i, azerrors.ResourceNotFound, true
			}
			if etag != a.ConcurrencyToken() {
				return i, azerrors.UpdateConditionNotSatisfied, true
			}
		}
	}
	return -1, azerrors.AzError{}, false
}

// outcomeOf shapes a batch result: 204 per action on success; on rejection the failing action gets its
// own status and every other action 424.
func outcomeOf(actions []transaction.Action[TableEntity], applied bool, current map[string]string) (transaction.Outcome, error) {
	codes := make([]int, len(actions))
	if applied {
		for i := range codes {
			codes[i] = http.StatusNoContent
		}
		return transaction.Outcome{Succeeded: true, StatusCodes: codes}, nil
	}
	i, e, ok := resolveRejection(actions, current)
	if !ok {
		return transaction.Outcome{}, fmt.Errorf("batch of %d actions was not applied but no failed condition could be identified", len(actions))
	}
	for j := range codes {
		codes[j] = http.StatusFailedDependency
	}
	codes[i] = e.Status
	return transaction.Outcome{StatusCodes: codes, FailureCode: e.Code}, nil
}
