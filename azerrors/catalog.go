// Package azerrors classifies backend failures against a static catalog of known conditions and turns
// them into Response envelopes. A cataloged condition (not found, already exists, ...) is an expected
// business outcome; anything else is unexpected and keeps the original error attached.
package azerrors

import (
	"fmt"
	"net/http"
)

// ResourceKind enumerates the resource families a catalog entry belongs to.
type ResourceKind int

const (
	Table ResourceKind = iota
	Queue
	Blob
	Document
)

func (k ResourceKind) String() string {
	switch k {
	case Table:
		return "table"
	case Queue:
		return "queue"
	case Blob:
		return "blob"
	case Document:
		return "document"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// AzError is one known backend condition. Entries are statically defined and only used for matching.
type AzError struct {
	Kind ResourceKind
	// Code is the canonical error code.
	Code string
	// Status is the HTTP status the condition is reported with.
	Status int
	// Message is the canonical text, also used as a substring match key.
	Message string
	// Codes are backend native error codes that denote the same condition.
	Codes []string
	// Patterns are backend native message fragments that denote the same condition.
	Patterns []string
}

func (e AzError) String() string {
	return fmt.Sprintf("%v/%s(%d)", e.Kind, e.Code, e.Status)
}

// Is reports whether e and other are the same catalog condition.
func (e AzError) Is(other AzError) bool {
	return e.Kind == other.Kind && e.Code == other.Code
}

// Table store conditions. More specific entries come first, classification stops at the first match.
var (
	TableAlreadyExists = AzError{
		Kind:     Table,
		Code:     "TableAlreadyExists",
		Status:   http.StatusConflict,
		Message:  "The table specified already exists.",
		Patterns: []string{"Cannot add already existing table"},
	}
	TableNotFound = AzError{
		Kind:     Table,
		Code:     "TableNotFound",
		Status:   http.StatusNotFound,
		Message:  "The table specified does not exist.",
		Patterns: []string{"unconfigured table"},
	}
	EntityAlreadyExists = AzError{
		Kind:    Table,
		Code:    "EntityAlreadyExists",
		Status:  http.StatusConflict,
		Message: "The specified entity already exists.",
	}
	UpdateConditionNotSatisfied = AzError{
		Kind:    Table,
		Code:    "UpdateConditionNotSatisfied",
		Status:  http.StatusPreconditionFailed,
		Message: "The update condition specified in the request was not satisfied.",
	}
	ResourceNotFound = AzError{
		Kind:    Table,
		Code:    "ResourceNotFound",
		Status:  http.StatusNotFound,
		Message: "The specified resource does not exist.",
		Codes:   []string{"EntityNotFound"},
	}
)

// Queue conditions.
var (
	QueueAlreadyExists = AzError{
		Kind:    Queue,
		Code:    "QueueAlreadyExists",
		Status:  http.StatusConflict,
		Message: "The specified queue already exists.",
	}
	QueueNotFound = AzError{
		Kind:    Queue,
		Code:    "QueueNotFound",
		Status:  http.StatusNotFound,
		Message: "The specified queue does not exist.",
	}
	MessageNotFound = AzError{
		Kind:    Queue,
		Code:    "MessageNotFound",
		Status:  http.StatusNotFound,
		Message: "The specified message does not exist.",
	}
	PopReceiptMismatch = AzError{
		Kind:    Queue,
		Code:    "PopReceiptMismatch",
		Status:  http.StatusBadRequest,
		Message: "The specified pop receipt did not match the pop receipt for a dequeued message.",
	}
)

// Blob store conditions.
var (
	ContainerAlreadyExists = AzError{
		Kind:     Blob,
		Code:     "ContainerAlreadyExists",
		Status:   http.StatusConflict,
		Message:  "The specified container already exists.",
		Codes:    []string{"BucketAlreadyOwnedByYou", "BucketAlreadyExists"},
		Patterns: []string{"BucketAlreadyOwnedByYou", "BucketAlreadyExists"},
	}
	ContainerNotFound = AzError{
		Kind:     Blob,
		Code:     "ContainerNotFound",
		Status:   http.StatusNotFound,
		Message:  "The specified container does not exist.",
		Codes:    []string{"NoSuchBucket"},
		Patterns: []string{"NoSuchBucket"},
	}
	BlobNotFound = AzError{
		Kind:     Blob,
		Code:     "BlobNotFound",
		Status:   http.StatusNotFound,
		Message:  "The specified blob does not exist.",
		Codes:    []string{"NoSuchKey"},
		Patterns: []string{"NoSuchKey"},
	}
	BlobAlreadyExists = AzError{
		Kind:    Blob,
		Code:    "BlobAlreadyExists",
		Status:  http.StatusConflict,
		Message: "The specified blob already exists.",
	}
	ConditionNotMet = AzError{
		Kind:    Blob,
		Code:    "ConditionNotMet",
		Status:  http.StatusPreconditionFailed,
		Message: "The condition specified using HTTP conditional header(s) is not met.",
		Codes:   []string{"PreconditionFailed"},
	}
)

// Document store conditions.
var (
	DocumentContainerAlreadyExists = AzError{
		Kind:    Document,
		Code:    "DocumentContainerAlreadyExists",
		Status:  http.StatusConflict,
		Message: "The specified document container already exists.",
	}
	DocumentContainerNotFound = AzError{
		Kind:    Document,
		Code:    "DocumentContainerNotFound",
		Status:  http.StatusNotFound,
		Message: "The specified document container does not exist.",
	}
	DocumentAlreadyExists = AzError{
		Kind:    Document,
		Code:    "Conflict",
		Status:  http.StatusConflict,
		Message: "Entity with the specified id already exists in the system.",
	}
	DocumentNotFound = AzError{
		Kind:    Document,
		Code:    "NotFound",
		Status:  http.StatusNotFound,
		Message: "Entity with the specified id does not exist in the system.",
	}
	PreconditionFailed = AzError{
		Kind:    Document,
		Code:    "PreconditionFailed",
		Status:  http.StatusPreconditionFailed,
		Message: "One of the specified pre-condition is not met.",
	}
)

var catalogs = map[ResourceKind][]AzError{
	Table:    {TableAlreadyExists, TableNotFound, EntityAlreadyExists, UpdateConditionNotSatisfied, ResourceNotFound},
	Queue:    {QueueAlreadyExists, QueueNotFound, MessageNotFound, PopReceiptMismatch},
	Blob:     {ContainerAlreadyExists, ContainerNotFound, BlobNotFound, BlobAlreadyExists, ConditionNotMet},
	Document: {DocumentContainerAlreadyExists, DocumentContainerNotFound, DocumentAlreadyExists, DocumentNotFound, PreconditionFailed},
}

// Catalog returns a copy of the entries known for kind, in match priority order.
func Catalog(kind ResourceKind) []AzError {
	src := catalogs[kind]
	r := make([]AzError, len(src))
	copy(r, src)
	return r
}

// Lookup returns the kind's entry with the given code (canonical or native) and status. status 0 matches any.
func Lookup(kind ResourceKind, code string, status int) (AzError, bool) {
	for _, e := range catalogs[kind] {
		if e.matchesCode(code) && (status == 0 || status == e.Status) {
			return e, true
		}
	}
	return AzError{}, false
}
