package redis

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

func newTestQueueRepository(t *testing.T, policy repositories.CreateResourcePolicy) (*QueueRepository, *clock) {
	t.Helper()
	_, c := newTestClient(t)
	options := DefaultQueueOptions()
	options.RepositoryOptions = testRepositoryOptions(policy)
	r := newQueueRepository(c, options)
	clk := newClock()
	r.now = clk.now
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
	return r, clk
}

func expectFailure[T any](t *testing.T, res repositories.Response[T], want azerrors.AzError) {
	t.Helper()
	if res.Succeeded || res.Err != nil || res.Message != want.Message || res.StatusCode != want.Status {
		t.Errorf("got %+v, want expected failure %v", res, want)
	}
}

func expectCallerError[T any](t *testing.T, res repositories.Response[T]) {
	t.Helper()
	if res.Succeeded || res.Err == nil || res.StatusCode != http.StatusBadRequest {
		t.Errorf("got %+v, want caller error", res)
	}
}

func Test_Queue_CreateGetListDelete(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.Never)

	if res := r.CreateQueue(ctx, "orders"); !res.Succeeded || res.StatusCode != http.StatusCreated {
		t.Fatalf("CreateQueue got %+v", res)
	}
	expectFailure(t, r.CreateQueue(ctx, "orders"), azerrors.QueueAlreadyExists)
	if res := r.GetQueue(ctx, "orders"); !res.Succeeded || res.StatusCode != http.StatusOK {
		t.Errorf("GetQueue got %+v", res)
	}
	r.CreateQueue(ctx, "invoices")
	if res := r.ListQueues(ctx); !res.Succeeded || len(res.Value) != 2 {
		t.Errorf("ListQueues got %+v", res)
	}

	r.SendMessage(ctx, "orders", "m1", 0, 0)
	if res := r.DeleteQueue(ctx, "orders"); !res.Succeeded || res.StatusCode != http.StatusNoContent {
		t.Fatalf("DeleteQueue got %+v", res)
	}
	expectFailure(t, r.GetQueue(ctx, "orders"), azerrors.QueueNotFound)
	expectFailure(t, r.DeleteQueue(ctx, "orders"), azerrors.QueueNotFound)
	if keys, _ := scanKeys(ctx, r.client, "azq:{orders}:*"); len(keys) != 0 {
		t.Errorf("keys left behind: %v", keys)
	}
}

func Test_Queue_SendReceiveDelete(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.OnlyFirstTime)

	sent := r.SendMessage(ctx, "orders", "hello", 0, 0)
	if !sent.Succeeded || sent.StatusCode != http.StatusCreated || sent.Value.ID == "" {
		t.Fatalf("SendMessage got %+v", sent)
	}
	if sent.Value.ExpiresOn.Sub(sent.Value.InsertedOn) != 7*24*time.Hour {
		t.Errorf("default time to live got %v", sent.Value.ExpiresOn.Sub(sent.Value.InsertedOn))
	}

	got := r.ReceiveMessages(ctx, "orders", 5, 30*time.Second)
	if !got.Succeeded || len(got.Value) != 1 {
		t.Fatalf("ReceiveMessages got %+v", got)
	}
	m := got.Value[0]
	if m.ID != sent.Value.ID || m.Body != "hello" || m.DequeueCount != 1 || m.PopReceipt == "" || m.PopReceipt == sent.Value.PopReceipt {
		t.Errorf("received %+v", m)
	}

	// Invisible until the visibility timeout passes.
	if again := r.ReceiveMessages(ctx, "orders", 5, 0); !again.Succeeded || len(again.Value) != 0 {
		t.Errorf("second receive got %+v", again)
	}

	expectFailure(t, r.DeleteMessage(ctx, "orders", m.ID, sent.Value.PopReceipt), azerrors.PopReceiptMismatch)
	if res := r.DeleteMessage(ctx, "orders", m.ID, m.PopReceipt); !res.Succeeded || res.StatusCode != http.StatusNoContent {
		t.Errorf("DeleteMessage got %+v", res)
	}
	expectFailure(t, r.DeleteMessage(ctx, "orders", m.ID, m.PopReceipt), azerrors.MessageNotFound)
	if res := r.ApproximateCount(ctx, "orders"); !res.Succeeded || res.Value != 0 {
		t.Errorf("ApproximateCount got %+v", res)
	}
}

func Test_Queue_VisibilityTimeoutExpires(t *testing.T) {
	r, clk := newTestQueueRepository(t, repositories.OnlyFirstTime)

	r.SendMessage(ctx, "orders", "hello", 0, 0)
	first := r.ReceiveMessages(ctx, "orders", 1, 10*time.Second)
	if len(first.Value) != 1 {
		t.Fatalf("first receive got %+v", first)
	}

	clk.advance(11 * time.Second)
	second := r.ReceiveMessages(ctx, "orders", 1, 10*time.Second)
	if len(second.Value) != 1 || second.Value[0].DequeueCount != 2 {
		t.Fatalf("second receive got %+v", second)
	}
	expectFailure(t, r.DeleteMessage(ctx, "orders", first.Value[0].ID, first.Value[0].PopReceipt), azerrors.PopReceiptMismatch)
}

func Test_Queue_PeekAndDelay(t *testing.T) {
	r, clk := newTestQueueRepository(t, repositories.OnlyFirstTime)

	r.SendMessage(ctx, "orders", "now", 0, 0)
	r.SendMessage(ctx, "orders", "later", time.Minute, 0)

	peek := r.PeekMessages(ctx, "orders", 32)
	if !peek.Succeeded || len(peek.Value) != 1 || peek.Value[0].Body != "now" || peek.Value[0].DequeueCount != 0 || peek.Value[0].PopReceipt != "" {
		t.Fatalf("PeekMessages got %+v", peek)
	}
	if res := r.ApproximateCount(ctx, "orders"); res.Value != 2 {
		t.Errorf("ApproximateCount got %+v", res)
	}

	clk.advance(2 * time.Minute)
	if peek := r.PeekMessages(ctx, "orders", 32); len(peek.Value) != 2 {
		t.Errorf("PeekMessages after the delay got %+v", peek)
	}
}

func Test_Queue_UpdateMessage(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.OnlyFirstTime)

	r.SendMessage(ctx, "orders", "v1", 0, 0)
	m := r.ReceiveMessages(ctx, "orders", 1, time.Minute).Value[0]

	body := "v2"
	up := r.UpdateMessage(ctx, "orders", m.ID, m.PopReceipt, &body, 0)
	if !up.Succeeded || up.Value.Body != "v2" || up.Value.PopReceipt == m.PopReceipt {
		t.Fatalf("UpdateMessage got %+v", up)
	}
	expectFailure(t, r.UpdateMessage(ctx, "orders", m.ID, m.PopReceipt, nil, 0), azerrors.PopReceiptMismatch)

	// Visibility 0 makes it visible right away.
	got := r.ReceiveMessages(ctx, "orders", 1, time.Minute)
	if len(got.Value) != 1 || got.Value[0].Body != "v2" || got.Value[0].DequeueCount != 2 {
		t.Errorf("ReceiveMessages got %+v", got)
	}
	expectFailure(t, r.UpdateMessage(ctx, "orders", "missing", "pr", nil, 0), azerrors.MessageNotFound)
}

func Test_Queue_ClearMessages(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.OnlyFirstTime)
	for i := 0; i < 3; i++ {
		r.SendMessage(ctx, "orders", fmt.Sprint(i), 0, 0)
	}
	if res := r.ClearMessages(ctx, "orders"); !res.Succeeded || res.Value != 3 {
		t.Fatalf("ClearMessages got %+v", res)
	}
	if res := r.ApproximateCount(ctx, "orders"); res.Value != 0 {
		t.Errorf("ApproximateCount got %+v", res)
	}
	if res := r.GetQueue(ctx, "orders"); !res.Succeeded {
		t.Errorf("queue was dropped by ClearMessages")
	}
}

func Test_Queue_ExpiredMessagesAreSwept(t *testing.T) {
	s, c := newTestClient(t)
	options := DefaultQueueOptions()
	options.RepositoryOptions = testRepositoryOptions(repositories.OnlyFirstTime)
	r := newQueueRepository(c, options)

	r.SendMessage(ctx, "orders", "short lived", 0, time.Second)
	s.FastForward(2 * time.Second)

	if got := r.ReceiveMessages(ctx, "orders", 1, 0); !got.Succeeded || len(got.Value) != 0 {
		t.Fatalf("ReceiveMessages got %+v", got)
	}
	if res := r.ApproximateCount(ctx, "orders"); res.Value != 0 {
		t.Errorf("ApproximateCount got %+v", res)
	}
}

func Test_Queue_NeverPolicyMissingQueue(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.Never)
	expectFailure(t, r.SendMessage(ctx, "orders", "x", 0, 0), azerrors.QueueNotFound)
	expectFailure(t, r.ReceiveMessages(ctx, "orders", 1, 0), azerrors.QueueNotFound)
	expectFailure(t, r.ApproximateCount(ctx, "orders"), azerrors.QueueNotFound)
}

func Test_Queue_CallerErrors(t *testing.T) {
	r, _ := newTestQueueRepository(t, repositories.OnlyFirstTime)

	for _, name := range []string{"", "ab", "Orders", "a--b", "-ab", "with_underscore"} {
		expectCallerError(t, r.CreateQueue(ctx, name))
	}
	expectCallerError(t, r.ReceiveMessages(ctx, "orders", 0, 0))
	expectCallerError(t, r.ReceiveMessages(ctx, "orders", MaxMessagesPerReceive+1, 0))
	expectCallerError(t, r.PeekMessages(ctx, "orders", -1))
	expectCallerError(t, r.SendMessage(ctx, "orders", "x", -time.Second, 0))
	expectCallerError(t, r.DeleteMessage(ctx, "orders", "", "pr"))
	expectCallerError(t, r.DeleteMessage(ctx, "orders", "id", ""))
}
