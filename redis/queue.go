package redis

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/provision"
)

// MaxMessagesPerReceive caps the messages one receive or peek can return.
const MaxMessagesPerReceive = 32

// QueueMessage is a message as stored in a queue. PopReceipt is only set on messages returned by
// SendMessage, ReceiveMessages & UpdateMessage and is required to delete or update them.
type QueueMessage struct {
	ID            string    `json:"id"`
	Body          string    `json:"body"`
	InsertedOn    time.Time `json:"inserted_on"`
	ExpiresOn     time.Time `json:"expires_on,omitempty"`
	NextVisibleOn time.Time `json:"next_visible_on,omitempty"`
	DequeueCount  int64     `json:"dequeue_count"`
	PopReceipt    string    `json:"pop_receipt,omitempty"`
}

// QueueOptions configures a QueueRepository.
type QueueOptions struct {
	repositories.RepositoryOptions
	// MessageTimeToLive applies to messages sent with a zero time to live. Negative means never expire.
	MessageTimeToLive time.Duration `json:"message_time_to_live"`
	// VisibilityTimeout applies to receives with a zero visibility timeout.
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
}

// DefaultQueueOptions returns the default repository options, 7 days message time to live and
// 30 seconds visibility timeout.
func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		RepositoryOptions: repositories.DefaultRepositoryOptions(),
		MessageTimeToLive: 7 * 24 * time.Hour,
		VisibilityTimeout: 30 * time.Second,
	}
}

// QueueRepository implements message queues with visibility timeouts on Redis. A queue is a meta
// hash, a sorted set of message ids scored by the time they become visible & one hash per message.
type QueueRepository struct {
	client      redis.UniversalClient
	options     QueueOptions
	provisioner *provision.Provisioner
	classifier  *azerrors.Classifier
	now         func() time.Time
	newID       func() string
}

// NewQueueRepository returns a QueueRepository on the global Redis connection, see OpenConnection.
func NewQueueRepository(options QueueOptions) (*QueueRepository, error) {
	c, err := getClient()
	if err != nil {
		return nil, err
	}
	return newQueueRepository(c, options), nil
}

func newQueueRepository(c redis.UniversalClient, options QueueOptions) *QueueRepository {
	if options.VisibilityTimeout <= 0 {
		options.VisibilityTimeout = DefaultQueueOptions().VisibilityTimeout
	}
	if options.MessageTimeToLive == 0 {
		options.MessageTimeToLive = DefaultQueueOptions().MessageTimeToLive
	}
	return &QueueRepository{
		client:      c,
		options:     options,
		provisioner: provision.NewProvisioner(options.CreateResourcePolicy),
		classifier:  azerrors.NewClassifier(azerrors.Queue),
		now:         time.Now,
		newID:       func() string { return repositories.NewUUID().String() },
	}
}

func queueMetaKey(queue string) string {
	return "azq:{" + queue + "}:meta"
}

func queueIndexKey(queue string) string {
	return "azq:{" + queue + "}:idx"
}

func messageKeyPrefix(queue string) string {
	return "azq:{" + queue + "}:m:"
}

var queueNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

func validateQueueName(name string) error {
	if name == "" {
		return repositories.NewEmptyArgumentError("queue")
	}
	if !queueNamePattern.MatchString(name) || strings.Contains(name, "--") {
		return repositories.NewInvalidArgumentError("queue", fmt.Sprintf("'%s' must be 3 to 63 lower case letters, digits or single dashes", name))
	}
	return nil
}

// Message fields: body, ins(erted), exp(ires), vis(ible at), deq(ueue count), pr (pop receipt). Times are
// unix milliseconds, exp 0 means never. Scripts touch message keys derived from ARGV; they share the
// queue's hash tag.
var (
	sendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
redis.call('HSET', KEYS[3], 'body', ARGV[2], 'ins', ARGV[3], 'exp', ARGV[4], 'vis', ARGV[5], 'deq', 0, 'pr', ARGV[7])
if tonumber(ARGV[6]) > 0 then redis.call('PEXPIRE', KEYS[3], ARGV[6]) end
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return 1`)

	receiveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local r = {}
local n = 0
for _, id in ipairs(ids) do
  local k = ARGV[4] .. id
  if redis.call('EXISTS', k) == 0 then
    redis.call('ZREM', KEYS[2], id)
  else
    n = n + 1
    local deq = redis.call('HINCRBY', k, 'deq', 1)
    redis.call('HSET', k, 'pr', ARGV[4 + n], 'vis', ARGV[2])
    redis.call('ZADD', KEYS[2], ARGV[2], id)
    local m = redis.call('HMGET', k, 'body', 'ins', 'exp')
    table.insert(r, {id, m[1], m[2], m[3], tostring(deq), ARGV[4 + n], ARGV[2]})
  end
end
return r`)

	peekScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local r = {}
for _, id in ipairs(ids) do
  local m = redis.call('HMGET', ARGV[3] .. id, 'body', 'ins', 'exp', 'deq', 'vis')
  if m[1] then
    table.insert(r, {id, m[1], m[2], m[3], m[4], '', m[5]})
  else
    redis.call('ZREM', KEYS[2], id)
  end
end
return r`)

	deleteMessageScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
local pr = redis.call('HGET', KEYS[3], 'pr')
if not pr then return redis.error_reply('MessageNotFound') end
if pr ~= ARGV[2] then return redis.error_reply('PopReceiptMismatch') end
redis.call('DEL', KEYS[3])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1`)

	updateMessageScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
local pr = redis.call('HGET', KEYS[3], 'pr')
if not pr then return redis.error_reply('MessageNotFound') end
if pr ~= ARGV[2] then return redis.error_reply('PopReceiptMismatch') end
if ARGV[6] == '1' then redis.call('HSET', KEYS[3], 'body', ARGV[5]) end
redis.call('HSET', KEYS[3], 'pr', ARGV[3], 'vis', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
local m = redis.call('HMGET', KEYS[3], 'body', 'ins', 'exp', 'deq')
return {ARGV[1], m[1], m[2], m[3], m[4], ARGV[3], ARGV[4]}`)

	// ARGV[2] == '1' drops the queue itself too.
	clearScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('QueueNotFound') end
local ids = redis.call('ZRANGE', KEYS[2], 0, -1)
for _, id in ipairs(ids) do redis.call('DEL', ARGV[1] .. id) end
redis.call('DEL', KEYS[2])
if ARGV[2] == '1' then redis.call('DEL', KEYS[1]) end
return #ids`)
)

// CreateQueue creates a queue. An existing queue is reported as QueueAlreadyExists.
func (r *QueueRepository) CreateQueue(ctx context.Context, queue string) repositories.Response[string] {
	err := validateQueueName(queue)
	if err == nil {
		err = r.createQueue(ctx, queue)
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(queue, http.StatusCreated)
}

// GetQueue checks a queue exists.
func (r *QueueRepository) GetQueue(ctx context.Context, queue string) repositories.Response[string] {
	err := validateQueueName(queue)
	if err == nil {
		err = r.getQueue(ctx, queue)
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(queue, http.StatusOK)
}

// DeleteQueue deletes a queue and its messages.
func (r *QueueRepository) DeleteQueue(ctx context.Context, queue string) repositories.Response[struct{}] {
	err := validateQueueName(queue)
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			return clearScript.Run(ctx, r.client, []string{queueMetaKey(queue), queueIndexKey(queue)}, messageKeyPrefix(queue), "1").Err()
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// ListQueues returns the names of all queues.
func (r *QueueRepository) ListQueues(ctx context.Context) repositories.Response[[]string] {
	var keys []string
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		keys, err = scanKeys(ctx, r.client, "azq:{*}:meta")
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]string](r.classifier, err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(k, "azq:{"), "}:meta"))
	}
	return repositories.SucceededWithStatus(names, http.StatusOK)
}

// SendMessage adds a message, visible after visibilityDelay. timeToLive 0 means the configured default,
// negative means the message never expires.
func (r *QueueRepository) SendMessage(ctx context.Context, queue string, body string, visibilityDelay, timeToLive time.Duration) repositories.Response[QueueMessage] {
	if err := r.prepare(ctx, queue); err != nil {
		return azerrors.ToResponse[QueueMessage](r.classifier, err)
	}
	if visibilityDelay < 0 {
		return azerrors.ToResponse[QueueMessage](r.classifier, repositories.NewInvalidArgumentError("visibilityDelay", "can't be negative"))
	}
	if timeToLive == 0 {
		timeToLive = r.options.MessageTimeToLive
	}
	now := r.now()
	m := QueueMessage{
		ID:            r.newID(),
		Body:          body,
		InsertedOn:    now,
		NextVisibleOn: now.Add(visibilityDelay),
		PopReceipt:    r.newID(),
	}
	var ttlMs int64
	if timeToLive > 0 {
		m.ExpiresOn = now.Add(timeToLive)
		ttlMs = timeToLive.Milliseconds()
	}
	err := r.retry(ctx, func(ctx context.Context) error {
		return sendScript.Run(ctx, r.client,
			[]string{queueMetaKey(queue), queueIndexKey(queue), messageKeyPrefix(queue) + m.ID},
			m.ID, m.Body, toMillis(m.InsertedOn), toMillis(m.ExpiresOn), toMillis(m.NextVisibleOn), ttlMs, m.PopReceipt).Err()
	})
	if err != nil {
		return azerrors.ToResponse[QueueMessage](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(m, http.StatusCreated)
}

// ReceiveMessages dequeues up to maxMessages visible messages, hiding them for visibilityTimeout
// (0 means the configured default). Each returned message carries a fresh PopReceipt.
func (r *QueueRepository) ReceiveMessages(ctx context.Context, queue string, maxMessages int, visibilityTimeout time.Duration) repositories.Response[[]QueueMessage] {
	if err := r.prepare(ctx, queue); err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, err)
	}
	if err := validateMaxMessages(maxMessages); err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, err)
	}
	if visibilityTimeout < 0 {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, repositories.NewInvalidArgumentError("visibilityTimeout", "can't be negative"))
	}
	if visibilityTimeout == 0 {
		visibilityTimeout = r.options.VisibilityTimeout
	}
	var msgs []QueueMessage
	// Messages a lost reply dequeued stay hidden until their visibility timeout, they are not received twice.
	err := r.retryUnsent(ctx, func(ctx context.Context) error {
		now := r.now()
		args := []any{toMillis(now), toMillis(now.Add(visibilityTimeout)), maxMessages, messageKeyPrefix(queue)}
		for i := 0; i < maxMessages; i++ {
			args = append(args, r.newID())
		}
		rows, err := receiveScript.Run(ctx, r.client, []string{queueMetaKey(queue), queueIndexKey(queue)}, args...).Slice()
		if err != nil {
			return err
		}
		msgs, err = parseMessages(rows)
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(msgs, http.StatusOK)
}

// PeekMessages returns up to maxMessages visible messages without dequeuing them.
func (r *QueueRepository) PeekMessages(ctx context.Context, queue string, maxMessages int) repositories.Response[[]QueueMessage] {
	if err := r.prepare(ctx, queue); err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, err)
	}
	if err := validateMaxMessages(maxMessages); err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, err)
	}
	var msgs []QueueMessage
	err := r.retry(ctx, func(ctx context.Context) error {
		rows, err := peekScript.Run(ctx, r.client, []string{queueMetaKey(queue), queueIndexKey(queue)},
			toMillis(r.now()), maxMessages, messageKeyPrefix(queue)).Slice()
		if err != nil {
			return err
		}
		msgs, err = parseMessages(rows)
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]QueueMessage](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(msgs, http.StatusOK)
}

// DeleteMessage deletes a received message. popReceipt must be the one of its last receive or update.
func (r *QueueRepository) DeleteMessage(ctx context.Context, queue, messageID, popReceipt string) repositories.Response[struct{}] {
	err := r.prepare(ctx, queue)
	if err == nil {
		err = validateMessageRef(messageID, popReceipt)
	}
	if err == nil {
		err = r.retryUnsent(ctx, func(ctx context.Context) error {
			return deleteMessageScript.Run(ctx, r.client,
				[]string{queueMetaKey(queue), queueIndexKey(queue), messageKeyPrefix(queue) + messageID},
				messageID, popReceipt).Err()
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusNoContent)
}

// UpdateMessage changes a received message's visibility timeout and, when body is not nil, its body.
// The returned message carries the new PopReceipt.
func (r *QueueRepository) UpdateMessage(ctx context.Context, queue, messageID, popReceipt string, body *string, visibilityTimeout time.Duration) repositories.Response[QueueMessage] {
	err := r.prepare(ctx, queue)
	if err == nil {
		err = validateMessageRef(messageID, popReceipt)
	}
	if err == nil && visibilityTimeout < 0 {
		err = repositories.NewInvalidArgumentError("visibilityTimeout", "can't be negative")
	}
	if err != nil {
		return azerrors.ToResponse[QueueMessage](r.classifier, err)
	}
	newBody, hasBody := "", "0"
	if body != nil {
		newBody, hasBody = *body, "1"
	}
	var msgs []QueueMessage
	err = r.retryUnsent(ctx, func(ctx context.Context) error {
		row, err := updateMessageScript.Run(ctx, r.client,
			[]string{queueMetaKey(queue), queueIndexKey(queue), messageKeyPrefix(queue) + messageID},
			messageID, popReceipt, r.newID(), toMillis(r.now().Add(visibilityTimeout)), newBody, hasBody).Slice()
		if err != nil {
			return err
		}
		msgs, err = parseMessages([]any{row})
		return err
	})
	if err != nil {
		return azerrors.ToResponse[QueueMessage](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(msgs[0], http.StatusNoContent)
}

// ClearMessages deletes every message of a queue and returns how many there were.
func (r *QueueRepository) ClearMessages(ctx context.Context, queue string) repositories.Response[int64] {
	if err := r.prepare(ctx, queue); err != nil {
		return azerrors.ToResponse[int64](r.classifier, err)
	}
	var n int64
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		n, err = clearScript.Run(ctx, r.client, []string{queueMetaKey(queue), queueIndexKey(queue)}, messageKeyPrefix(queue), "0").Int64()
		return err
	})
	if err != nil {
		return azerrors.ToResponse[int64](r.classifier, r.translate(err))
	}
	return repositories.SucceededWithStatus(n, http.StatusNoContent)
}

// ApproximateCount returns the number of messages, visible or not. Expired messages not yet
// swept by a receive or peek are counted.
func (r *QueueRepository) ApproximateCount(ctx context.Context, queue string) repositories.Response[int64] {
	err := r.prepare(ctx, queue)
	if err == nil {
		err = r.getQueue(ctx, queue)
	}
	var n int64
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			n, err = r.client.ZCard(ctx, queueIndexKey(queue)).Result()
			return err
		})
	}
	if err != nil {
		return azerrors.ToResponse[int64](r.classifier, err)
	}
	return repositories.SucceededWithStatus(n, http.StatusOK)
}

func (r *QueueRepository) prepare(ctx context.Context, queue string) error {
	if err := validateQueueName(queue); err != nil {
		return err
	}
	_, _, err := provision.Provision(ctx, r.provisioner,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.createQueue(ctx, queue)
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.getQueue(ctx, queue)
		},
		provision.AlreadyExists(r.classifier, azerrors.QueueAlreadyExists))
	return err
}

func (r *QueueRepository) createQueue(ctx context.Context, queue string) error {
	var created bool
	if err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		created, err = r.client.HSetNX(ctx, queueMetaKey(queue), "created", toMillis(r.now())).Result()
		return err
	}); err != nil {
		return err
	}
	if !created {
		return azerrors.NewStatusError(azerrors.QueueAlreadyExists, nil)
	}
	return nil
}

func (r *QueueRepository) getQueue(ctx context.Context, queue string) error {
	var n int64
	if err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.client.Exists(ctx, queueMetaKey(queue)).Result()
		return err
	}); err != nil {
		return err
	}
	if n == 0 {
		return azerrors.NewStatusError(azerrors.QueueNotFound, nil)
	}
	return nil
}

func (r *QueueRepository) retry(ctx context.Context, task func(ctx context.Context) error) error {
	return repositories.Retry(ctx, r.options.Retry, task, func(err error) bool {
		return r.classifier.IsRetryable(r.translate(err))
	})
}

// retryUnsent retries scripts that rotate pop receipts or visibility only when they were never sent.
func (r *QueueRepository) retryUnsent(ctx context.Context, task func(ctx context.Context) error) error {
	return repositories.RetryUnsent(ctx, r.options.Retry, task, nil)
}

func (r *QueueRepository) translate(err error) error {
	return translateScriptError(azerrors.Queue, err)
}

func validateMaxMessages(n int) error {
	if n < 1 || n > MaxMessagesPerReceive {
		return repositories.NewInvalidArgumentError("maxMessages", fmt.Sprintf("must be between 1 and %d", MaxMessagesPerReceive))
	}
	return nil
}

func validateMessageRef(messageID, popReceipt string) error {
	if messageID == "" {
		return repositories.NewEmptyArgumentError("messageID")
	}
	if popReceipt == "" {
		return repositories.NewEmptyArgumentError("popReceipt")
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// parseMessages reads script rows: id, body, inserted, expires, dequeue count, pop receipt, visible at.
func parseMessages(rows []any) ([]QueueMessage, error) {
	r := make([]QueueMessage, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]any)
		if !ok || len(fields) != 7 {
			return nil, fmt.Errorf("unexpected message row %v", row)
		}
		s := make([]string, len(fields))
		for i, f := range fields {
			switch v := f.(type) {
			case string:
				s[i] = v
			case int64:
				s[i] = strconv.FormatInt(v, 10)
			case nil:
			default:
				return nil, fmt.Errorf("unexpected message field %v", f)
			}
		}
		m := QueueMessage{ID: s[0], Body: s[1], PopReceipt: s[5]}
		var err error
		if m.InsertedOn, err = fromMillis(s[2]); err != nil {
			return nil, err
		}
		if m.ExpiresOn, err = fromMillis(s[3]); err != nil {
			return nil, err
		}
		if m.DequeueCount, err = strconv.ParseInt(s[4], 10, 64); err != nil {
			return nil, err
		}
		if m.NextVisibleOn, err = fromMillis(s[6]); err != nil {
			return nil, err
		}
		r = append(r, m)
	}
	return r, nil
}
