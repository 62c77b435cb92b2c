package redis

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
)

// Document is a JSON document of a container. Documents are unique by PartitionKey & ID.
type Document struct {
	ID           string         `json:"id"`
	PartitionKey string         `json:"partition_key"`
	ETag         string         `json:"etag,omitempty"`
	Timestamp    time.Time      `json:"ts,omitempty"`
	Body         map[string]any `json:"body,omitempty"`
}

// NewDocument returns a document with an empty body.
func NewDocument(partitionKey, id string) Document {
	return Document{
		ID:           id,
		PartitionKey: partitionKey,
		Body:         make(map[string]any),
	}
}

// With sets a body field and returns the document, for chaining.
func (d Document) With(name string, value any) Document {
	if d.Body == nil {
		d.Body = make(map[string]any)
	}
	d.Body[name] = value
	return d
}

// ToMap flattens the document for filters. System fields shadow body fields of the same name.
func (d Document) ToMap() map[string]any {
	m := make(map[string]any, len(d.Body)+4)
	for k, v := range d.Body {
		m[k] = v
	}
	m["id"] = d.ID
	m["partition_key"] = d.PartitionKey
	m["etag"] = d.ETag
	m["ts"] = d.Timestamp
	return m
}

// PatchOp is the kind of a PatchOperation.
type PatchOp string

const (
	// PatchSet sets the value at Path, creating intermediate objects.
	PatchSet PatchOp = "set"
	// PatchRemove removes the value at Path, if any.
	PatchRemove PatchOp = "remove"
	// PatchIncrement adds the numeric Value to the number at Path, a missing value counts as 0.
	PatchIncrement PatchOp = "incr"
)

// PatchOperation changes one body field. Path is slash separated, e.g. "/address/city".
type PatchOperation struct {
	Op    PatchOp `json:"op"`
	Path  string  `json:"path"`
	Value any     `json:"value,omitempty"`
}

func validatePatch(ops []PatchOperation) error {
	if len(ops) == 0 {
		return repositories.NewEmptyArgumentError("operations")
	}
	for _, o := range ops {
		if _, err := splitPath(o.Path); err != nil {
			return err
		}
		switch o.Op {
		case PatchSet, PatchRemove:
		case PatchIncrement:
			if _, ok := toFloat(o.Value); !ok {
				return repositories.NewInvalidArgumentError("value", fmt.Sprintf("incr of '%s' needs a number, got %T", o.Path, o.Value))
			}
		default:
			return repositories.NewInvalidArgumentError("op", fmt.Sprintf("'%s' is not supported", o.Op))
		}
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return nil, repositories.NewInvalidArgumentError("path", fmt.Sprintf("'%s' must start with '/' and name a field", path))
	}
	parts := strings.Split(path[1:], "/")
	for _, p := range parts {
		if p == "" {
			return nil, repositories.NewInvalidArgumentError("path", fmt.Sprintf("'%s' has an empty segment", path))
		}
	}
	return parts, nil
}

// applyPatch applies ops in order to body, in place. ops must have been validated.
func applyPatch(body map[string]any, ops []PatchOperation) error {
	for _, o := range ops {
		parts, _ := splitPath(o.Path)
		parent := body
		for _, p := range parts[:len(parts)-1] {
			child, ok := parent[p].(map[string]any)
			if !ok {
				if _, exists := parent[p]; exists && o.Op != PatchRemove {
					return repositories.NewInvalidArgumentError("path", fmt.Sprintf("'%s' crosses a non object field", o.Path))
				}
				if o.Op == PatchRemove {
					parent = nil
					break
				}
				child = make(map[string]any)
				parent[p] = child
			}
			parent = child
		}
		if parent == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		switch o.Op {
		case PatchSet:
			parent[leaf] = o.Value
		case PatchRemove:
			delete(parent, leaf)
		case PatchIncrement:
			cur := 0.0
			if v, exists := parent[leaf]; exists {
				f, ok := toFloat(v)
				if !ok {
					return repositories.NewInvalidArgumentError("path", fmt.Sprintf("'%s' is not a number", o.Path))
				}
				cur = f
			}
			delta, _ := toFloat(o.Value)
			parent[leaf] = cur + delta
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

const maxDocumentKeyLength = 255

func validateDocumentKey(name, value string) error {
	if value == "" {
		return repositories.NewEmptyArgumentError(name)
	}
	if len(value) > maxDocumentKeyLength {
		return repositories.NewInvalidArgumentError(name, fmt.Sprintf("longer than %d bytes", maxDocumentKeyLength))
	}
	if strings.ContainsAny(value, `/\#?`) {
		return repositories.NewInvalidArgumentError(name, fmt.Sprintf("'%s' contains one of the characters / \\ # ?", value))
	}
	return nil
}

func validateDocument(d Document) error {
	if err := validateDocumentKey("PartitionKey", d.PartitionKey); err != nil {
		return err
	}
	return validateDocumentKey("ID", d.ID)
}

var containerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

func validateContainerName(name string) error {
	if name == "" {
		return repositories.NewEmptyArgumentError("container")
	}
	if !containerNamePattern.MatchString(name) || strings.Contains(name, "--") {
		return repositories.NewInvalidArgumentError("container", fmt.Sprintf("'%s' must be 3 to 63 lower case letters, digits or single dashes", name))
	}
	return nil
}

// Document keys: azdoc:{container}:meta, azdoc:{container}:p:<pk> (set of the partition's ids) and
// azdoc:{container}:d:<pk>:<id>. Keys are query escaped so ':' can't make two documents collide.

func containerMetaKey(container string) string {
	return "azdoc:{" + container + "}:meta"
}

func containerKeyPattern(container string) string {
	return "azdoc:{" + container + "}:*"
}

func partitionIndexKey(container, partitionKey string) string {
	return "azdoc:{" + container + "}:p:" + url.QueryEscape(partitionKey)
}

func documentKey(container, partitionKey, id string) string {
	return "azdoc:{" + container + "}:d:" + url.QueryEscape(partitionKey) + ":" + url.QueryEscape(id)
}
