package azerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

type errorCoder interface {
	ErrorCode() string
}

var _ errorCoder = (smithy.APIError)(nil)

type statusCoder interface {
	HTTPStatusCode() int
}

// Classifier matches errors against the catalogs of one or more resource kinds. It never panics and
// holds no mutable state, a single instance can be shared.
type Classifier struct {
	kinds   []ResourceKind
	entries []AzError
}

// NewClassifier returns a Classifier over the catalogs of kinds, in the order given.
// No kinds means all catalogs.
func NewClassifier(kinds ...ResourceKind) *Classifier {
	if len(kinds) == 0 {
		kinds = []ResourceKind{Table, Queue, Blob, Document}
	}
	c := &Classifier{kinds: kinds}
	for _, k := range kinds {
		c.entries = append(c.entries, catalogs[k]...)
	}
	return c
}

// Classify returns the catalog entry err denotes. It tries a structured match first (error code and
// status extracted from err's chain), then falls back to matching catalog messages against err's text.
// false means err is unexpected.
func (c *Classifier) Classify(err error) (AzError, bool) {
	if err == nil {
		return AzError{}, false
	}
	code, status := Extract(err)
	if code != "" {
		for _, e := range c.entries {
			if e.matchesCode(code) && (status == 0 || status == e.Status) {
				return e, true
			}
		}
	}
	text := strings.ToLower(err.Error())
	for _, e := range c.entries {
		if status != 0 && status != e.Status {
			continue
		}
		if e.matchesText(text) {
			return e, true
		}
	}
	return AzError{}, false
}

// Matches reports whether err is specifically the target condition.
func (c *Classifier) Matches(err error, target AzError) bool {
	if err == nil {
		return false
	}
	code, status := Extract(err)
	if status != 0 && status != target.Status {
		return false
	}
	if code != "" && target.matchesCode(code) {
		return true
	}
	return target.matchesText(strings.ToLower(err.Error()))
}

// IsExpected reports whether err is a cataloged business outcome.
func (c *Classifier) IsExpected(err error) bool {
	_, ok := c.Classify(err)
	return ok
}

// IsRetryable reports whether err is worth retrying: an unexpected failure that is not a caller error
// nor a context cancellation. Cataloged outcomes never get better by retrying.
func (c *Classifier) IsRetryable(err error) bool {
	return repositories.ShouldRetry(err) && !c.IsExpected(err)
}

// ClassifyError converts err into a valueless Response. See ToResponse.
func (c *Classifier) ClassifyError(err error) repositories.Response[struct{}] {
	return ToResponse[struct{}](c, err)
}

// ToResponse converts err into a Response. A nil err gives a succeeded Response.
// A cataloged err gives a failed Response with the canonical Message, the entry's status and no Err.
// Any other err gives a failed Response with err's text as Message and err itself attached, caller
// errors get status 400.
func ToResponse[T any](c *Classifier, err error) repositories.Response[T] {
	if err == nil {
		var zero T
		return repositories.Succeeded(zero)
	}
	if e, ok := c.Classify(err); ok {
		return repositories.Failed[T](e.Message, nil, e.Status)
	}
	_, status := Extract(err)
	if status == 0 && isCallerError(err) {
		status = http.StatusBadRequest
	}
	return repositories.Failed[T](err.Error(), err, status)
}

func isCallerError(err error) bool {
	if repositories.IsCallerError(err) {
		return true
	}
	var de *transaction.DuplicateEntityError
	var be *transaction.BatchSizeExceededError
	return errors.As(err, &de) || errors.As(err, &be)
}

// Extract returns the outermost error code (e.g. of a smithy.APIError or a StatusError) & HTTP status
// found along err's chain, zero values when absent.
func Extract(err error) (string, int) {
	var code string
	var status int
	var ec errorCoder
	if errors.As(err, &ec) {
		code = ec.ErrorCode()
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatusCode()
	}
	return code, status
}

// BatchResult describes a submitted batch: its group key and one status code per action, same order.
type BatchResult[K comparable] struct {
	GroupKey    K     `json:"group_key"`
	StatusCodes []int `json:"status_codes"`
	// FailedIndex is the index of the action that failed the batch, -1 if none.
	FailedIndex int `json:"failed_index"`
}

// FromBatch converts a batch submission into a Response. A transport error is classified like any other
// error. A rejected batch is classified by the failing action's status & failure code; the Value still
// carries the group key and per-action status codes.
func FromBatch[K comparable, T any](c *Classifier, s transaction.Submission[K, T]) repositories.Response[BatchResult[K]] {
	br := BatchResult[K]{
		GroupKey:    s.Batch.GroupKey,
		StatusCodes: s.Outcome.StatusCodes,
		FailedIndex: -1,
	}
	if s.Err != nil {
		r := ToResponse[BatchResult[K]](c, s.Err)
		r.Value = br
		return r
	}
	if len(s.Outcome.StatusCodes) != s.Batch.Len() {
		err := fmt.Errorf("batch '%v' outcome has %d status codes for %d actions", s.Batch.GroupKey, len(s.Outcome.StatusCodes), s.Batch.Len())
		r := repositories.Failed[BatchResult[K]]("", err, 0)
		r.Value = br
		return r
	}
	if s.Outcome.Succeeded {
		return repositories.SucceededWithStatus(br, http.StatusAccepted)
	}
	status := 0
	for i, sc := range s.Outcome.StatusCodes {
		if sc >= 400 && sc != http.StatusFailedDependency {
			br.FailedIndex = i
			status = sc
			break
		}
	}
	if br.FailedIndex >= 0 && s.Outcome.FailureCode != "" {
		for _, e := range c.entries {
			if e.matchesCode(s.Outcome.FailureCode) && e.Status == status {
				r := repositories.Failed[BatchResult[K]](fmt.Sprintf("%s (action %d: %v)", e.Message, br.FailedIndex, s.Batch.Actions[br.FailedIndex]), nil, status)
				r.Value = br
				return r
			}
		}
	}
	err := fmt.Errorf("batch '%v' was rejected, failed action index %d, status %d, code '%s'", s.Batch.GroupKey, br.FailedIndex, status, s.Outcome.FailureCode)
	r := repositories.Failed[BatchResult[K]]("", err, status)
	r.Value = br
	return r
}

func (e AzError) matchesCode(code string) bool {
	if code == "" {
		return false
	}
	if strings.EqualFold(e.Code, code) {
		return true
	}
	for _, c := range e.Codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// text must be lower case.
func (e AzError) matchesText(text string) bool {
	if e.Message != "" && strings.Contains(text, strings.ToLower(e.Message)) {
		return true
	}
	for _, p := range e.Patterns {
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
