package cassandra

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
)

// TableEntity is one row of a table: its keys, concurrency tag and free form properties.
type TableEntity struct {
	PartitionKey string         `json:"PartitionKey"`
	RowKey       string         `json:"RowKey"`
	ETag         string         `json:"ETag,omitempty"`
	Timestamp    time.Time      `json:"Timestamp,omitempty"`
	Properties   map[string]any `json:"Properties,omitempty"`
}

// NewTableEntity returns an entity with the given keys and an empty property set.
func NewTableEntity(partitionKey, rowKey string) TableEntity {
	return TableEntity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Properties:   make(map[string]any),
	}
}

// With sets a property and returns the entity, for chaining.
func (e TableEntity) With(name string, value any) TableEntity {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[name] = value
	return e
}

// ToMap flattens the entity for query terms & filters. Properties named like a system field are
// shadowed by the field.
func (e TableEntity) ToMap() map[string]any {
	m := make(map[string]any, len(e.Properties)+4)
	for k, v := range e.Properties {
		m[k] = v
	}
	m["PartitionKey"] = e.PartitionKey
	m["RowKey"] = e.RowKey
	m["ETag"] = e.ETag
	m["Timestamp"] = e.Timestamp
	return m
}

const maxKeyLength = 1024

func validateKey(name, value string) error {
	if len(value) > maxKeyLength {
		return repositories.NewInvalidArgumentError(name, fmt.Sprintf("longer than %d bytes", maxKeyLength))
	}
	if strings.ContainsAny(value, `/\#?`) {
		return repositories.NewInvalidArgumentError(name, `can't contain '/', '\', '#' or '?'`)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return repositories.NewInvalidArgumentError(name, "can't contain control characters")
		}
	}
	return nil
}

func validateEntity(e TableEntity) error {
	if e.PartitionKey == "" {
		return repositories.NewEmptyArgumentError("PartitionKey")
	}
	if err := validateKey("PartitionKey", e.PartitionKey); err != nil {
		return err
	}
	return validateKey("RowKey", e.RowKey)
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{2,47}$`)

// normalizeTableName validates name and returns it the way Cassandra stores unquoted identifiers.
func normalizeTableName(name string) (string, error) {
	if name == "" {
		return "", repositories.NewEmptyArgumentError("table")
	}
	if !tableNamePattern.MatchString(name) {
		return "", repositories.NewInvalidArgumentError("table", fmt.Sprintf("'%s' must be 3 to 48 alphanumeric characters starting with a letter", name))
	}
	return strings.ToLower(name), nil
}
