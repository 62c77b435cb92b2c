package azerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

func Test_Classify_StructuredMatch(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		name string
		in   error
		want AzError
	}{
		{"status error", NewStatusError(EntityAlreadyExists, nil), EntityAlreadyExists},
		{"wrapped status error", fmt.Errorf("add failed: %w", NewStatusError(QueueNotFound, nil)), QueueNotFound},
		{"native code alias", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "key missing"}, BlobNotFound},
		{"native bucket code", &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}, ContainerAlreadyExists},
		{"entity not found alias", &StatusError{Status: http.StatusNotFound, Code: "EntityNotFound"}, ResourceNotFound},
	}
	for _, tt := range cases {
		got, ok := c.Classify(tt.in)
		if !ok || !got.Is(tt.want) {
			t.Errorf("%s: got %v (%v), want %v", tt.name, got, ok, tt.want)
		}
	}
}

func Test_Classify_MessageFallback(t *testing.T) {
	c := NewClassifier(Table)
	cases := []struct {
		name string
		in   error
		want AzError
	}{
		{"native already existing table", errors.New(`Cannot add already existing table "orders" to keyspace "ks"`), TableAlreadyExists},
		{"native unconfigured table", errors.New("unconfigured table orders"), TableNotFound},
		{"canonical text", errors.New("request failed: The specified entity already exists."), EntityAlreadyExists},
		{"case insensitive", errors.New("THE SPECIFIED RESOURCE DOES NOT EXIST."), ResourceNotFound},
	}
	for _, tt := range cases {
		got, ok := c.Classify(tt.in)
		if !ok || !got.Is(tt.want) {
			t.Errorf("%s: got %v (%v), want %v", tt.name, got, ok, tt.want)
		}
	}
}

func Test_Classify_Unexpected(t *testing.T) {
	c := NewClassifier()
	for _, err := range []error{
		nil,
		errors.New("connection reset by peer"),
		context.DeadlineExceeded,
		// Known code reported with an unrelated status is not the cataloged condition.
		&StatusError{Status: http.StatusInternalServerError, Code: "EntityAlreadyExists"},
	} {
		if got, ok := c.Classify(err); ok {
			t.Errorf("%v: got %v, want no match", err, got)
		}
	}
}

func Test_Classify_KindScoping(t *testing.T) {
	// "Conflict" is only a document store code.
	err := &StatusError{Status: http.StatusConflict, Code: "Conflict"}
	if _, ok := NewClassifier(Table, Queue).Classify(err); ok {
		t.Errorf("table/queue classifier matched a document code")
	}
	if got, ok := NewClassifier(Document).Classify(err); !ok || !got.Is(DocumentAlreadyExists) {
		t.Errorf("got %v, want %v", got, DocumentAlreadyExists)
	}
}

func Test_Classify_ContainerCodesAreDistinctPerKind(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		err  error
		want AzError
	}{
		{NewStatusError(DocumentContainerNotFound, nil), DocumentContainerNotFound},
		{NewStatusError(DocumentContainerAlreadyExists, nil), DocumentContainerAlreadyExists},
		{NewStatusError(ContainerNotFound, nil), ContainerNotFound},
		{NewStatusError(ContainerAlreadyExists, nil), ContainerAlreadyExists},
	}
	for _, tt := range cases {
		if got, ok := c.Classify(tt.err); !ok || !got.Is(tt.want) || got.Message != tt.want.Message {
			t.Errorf("%v: got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func Test_ToResponse_ExpectedVsUnexpected(t *testing.T) {
	c := NewClassifier()

	expected := ToResponse[string](c, NewStatusError(ResourceNotFound, errors.New("not found")))
	if expected.Succeeded || expected.Err != nil {
		t.Errorf("expected outcome got Succeeded=%v Err=%v", expected.Succeeded, expected.Err)
	}
	if expected.Message != ResourceNotFound.Message || expected.StatusCode != http.StatusNotFound {
		t.Errorf("got message %q status %d", expected.Message, expected.StatusCode)
	}
	if !expected.IsExpectedFailure() {
		t.Errorf("IsExpectedFailure got false")
	}

	cause := errors.New("dial tcp 10.0.0.1:9042: i/o timeout")
	unexpected := ToResponse[string](c, cause)
	if unexpected.Succeeded || unexpected.Err != cause {
		t.Errorf("unexpected got Succeeded=%v Err=%v", unexpected.Succeeded, unexpected.Err)
	}
	if unexpected.Message != cause.Error() {
		t.Errorf("got message %q", unexpected.Message)
	}

	caller := ToResponse[int](c, repositories.NewEmptyArgumentError("table"))
	if caller.Err == nil || caller.StatusCode != http.StatusBadRequest {
		t.Errorf("caller error got %+v", caller)
	}
	dup := ToResponse[int](c, &transaction.DuplicateEntityError{GroupKey: "pk", EntityID: "1"})
	if dup.Err == nil || dup.StatusCode != http.StatusBadRequest {
		t.Errorf("duplicate entity got %+v", dup)
	}

	if ok := ToResponse[int](c, nil); !ok.Succeeded || ok.Message != "" || ok.Err != nil {
		t.Errorf("nil error got %+v", ok)
	}
}

func Test_ToResponse_Idempotent(t *testing.T) {
	c := NewClassifier()
	for _, err := range []error{
		NewStatusError(MessageNotFound, nil),
		errors.New("broken pipe"),
	} {
		a := c.ClassifyError(err)
		b := c.ClassifyError(err)
		if a.Message != b.Message || a.StatusCode != b.StatusCode || a.Succeeded != b.Succeeded || a.Err != b.Err {
			t.Errorf("%v: got %+v then %+v", err, a, b)
		}
	}
}

func Test_Matches(t *testing.T) {
	c := NewClassifier(Blob)
	err := fmt.Errorf("create: %w", &smithy.GenericAPIError{Code: "BucketAlreadyExists"})
	if !c.Matches(err, ContainerAlreadyExists) {
		t.Errorf("want match on ContainerAlreadyExists")
	}
	if c.Matches(err, ContainerNotFound) {
		t.Errorf("unexpected match on ContainerNotFound")
	}
	if c.Matches(nil, ContainerAlreadyExists) {
		t.Errorf("nil matched")
	}
	if !c.Matches(errors.New("The specified container already exists."), ContainerAlreadyExists) {
		t.Errorf("want message match")
	}
}

type row struct{ id string }

func newBatch(n int) transaction.Batch[string, row] {
	b := transaction.Batch[string, row]{GroupKey: "pk"}
	for i := 0; i < n; i++ {
		id := fmt.Sprint(i)
		b.Actions = append(b.Actions, transaction.NewAction(transaction.Add, row{id: id}, id, ""))
	}
	return b
}

func Test_FromBatch(t *testing.T) {
	c := NewClassifier(Table)

	ok := FromBatch(c, transaction.Submission[string, row]{
		Batch:   newBatch(2),
		Outcome: transaction.Outcome{Succeeded: true, StatusCodes: []int{204, 204}},
	})
	if !ok.Succeeded || ok.Value.GroupKey != "pk" || ok.Value.FailedIndex != -1 || ok.Message != "" {
		t.Errorf("succeeded batch got %+v", ok)
	}

	rejected := FromBatch(c, transaction.Submission[string, row]{
		Batch: newBatch(3),
		Outcome: transaction.Outcome{
			StatusCodes: []int{424, 409, 424},
			FailureCode: EntityAlreadyExists.Code,
		},
	})
	if rejected.Succeeded || rejected.Err != nil || rejected.StatusCode != http.StatusConflict || rejected.Value.FailedIndex != 1 {
		t.Errorf("rejected batch got %+v", rejected)
	}

	unknown := FromBatch(c, transaction.Submission[string, row]{
		Batch:   newBatch(1),
		Outcome: transaction.Outcome{StatusCodes: []int{500}, FailureCode: "ServerBusy"},
	})
	if unknown.Succeeded || unknown.Err == nil || unknown.StatusCode != 500 {
		t.Errorf("unknown failure got %+v", unknown)
	}

	transport := FromBatch(c, transaction.Submission[string, row]{
		Batch: newBatch(1),
		Err:   errors.New("no hosts available in the pool"),
	})
	if transport.Succeeded || transport.Err == nil || transport.Value.GroupKey != "pk" {
		t.Errorf("transport failure got %+v", transport)
	}

	mismatch := FromBatch(c, transaction.Submission[string, row]{
		Batch:   newBatch(2),
		Outcome: transaction.Outcome{Succeeded: true, StatusCodes: []int{204}},
	})
	if mismatch.Succeeded || mismatch.Err == nil {
		t.Errorf("status count mismatch got %+v", mismatch)
	}
}

func Test_Lookup(t *testing.T) {
	if e, ok := Lookup(Blob, "NoSuchBucket", 0); !ok || !e.Is(ContainerNotFound) {
		t.Errorf("got %v, %v", e, ok)
	}
	if _, ok := Lookup(Queue, "QueueNotFound", http.StatusConflict); ok {
		t.Errorf("status mismatch matched")
	}
	cat := Catalog(Queue)
	cat[0].Code = "changed"
	if Catalog(Queue)[0].Code == "changed" {
		t.Errorf("Catalog returned the static table")
	}
}
