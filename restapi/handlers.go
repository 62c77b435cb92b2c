// Package restapi surfaces the table and queue repositories over HTTP. Every handler answers with the
// JSON form of the repository Response and uses its status code as the HTTP status.
package restapi

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/cassandra"
	"github.com/cesarpv27/Azure.Repositories-sub001/redis"
	"github.com/cesarpv27/Azure.Repositories-sub001/transaction"
)

// BasePath is the path all REST methods are mounted under.
const BasePath = "/api/v1"

// TableStore is the table repository surface used by the handlers.
type TableStore interface {
	NewTransaction() (*cassandra.TableTransaction, error)
	SubmitTransaction(ctx context.Context, table string, tx *cassandra.TableTransaction) ([]repositories.Response[azerrors.BatchResult[string]], error)
	Get(ctx context.Context, table, partitionKey, rowKey string) repositories.Response[cassandra.TableEntity]
	Delete(ctx context.Context, table string, entity cassandra.TableEntity) repositories.Response[struct{}]
}

// QueueStore is the queue repository surface used by the handlers.
type QueueStore interface {
	SendMessage(ctx context.Context, queue string, body string, visibilityDelay, timeToLive time.Duration) repositories.Response[redis.QueueMessage]
	ReceiveMessages(ctx context.Context, queue string, maxMessages int, visibilityTimeout time.Duration) repositories.Response[[]redis.QueueMessage]
	PeekMessages(ctx context.Context, queue string, maxMessages int) repositories.Response[[]redis.QueueMessage]
}

var _ TableStore = (*cassandra.TableRepository)(nil)
var _ QueueStore = (*redis.QueueRepository)(nil)

// Server holds the repositories the REST methods work on.
type Server struct {
	tables     TableStore
	queues     QueueStore
	classifier *azerrors.Classifier
}

// NewServer returns a Server over tables & queues.
func NewServer(tables TableStore, queues QueueStore) (*Server, error) {
	if tables == nil {
		return nil, repositories.NewNilArgumentError("tables")
	}
	if queues == nil {
		return nil, repositories.NewNilArgumentError("queues")
	}
	return &Server{
		tables:     tables,
		queues:     queues,
		classifier: azerrors.NewClassifier(azerrors.Table, azerrors.Queue),
	}, nil
}

// Register adds the Server's REST methods to r.
func (s *Server) Register(r *Registry) error {
	for _, m := range []RestMethod{
		{Verb: POST, Path: "/tables/:table/transactions", Handler: s.SubmitTransaction},
		{Verb: GET_ONE, Path: "/tables/:table/entities/:pk/:rk", Handler: s.GetEntity},
		{Verb: DELETE, Path: "/tables/:table/entities/:pk/:rk", Handler: s.DeleteEntity},
		{Verb: POST, Path: "/queues/:queue/messages", Handler: s.SendMessage},
		{Verb: GET, Path: "/queues/:queue/messages", Handler: s.ReceiveMessages},
	} {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Mount registers the Server's REST methods under BasePath of router, guarded by auth (may be nil).
func (s *Server) Mount(router *gin.Engine, auth *Authenticator) error {
	r := NewRegistry()
	if err := s.Register(r); err != nil {
		return err
	}
	r.Mount(router.Group(BasePath), auth.Wrap)
	return nil
}

// TableActionRequest is one staged write of a table transaction.
type TableActionRequest struct {
	// Action is one of add, update_merge, update_replace, upsert_merge, upsert_replace & delete.
	Action string                `json:"action" binding:"required,oneof=add update_merge update_replace upsert_merge upsert_replace delete"`
	Entity cassandra.TableEntity `json:"entity"`
}

// TableTransactionRequest lists the writes of a table transaction in staging order.
type TableTransactionRequest struct {
	Actions []TableActionRequest `json:"actions" binding:"required,min=1,dive"`
}

// TableTransactionResponse carries one Response per submitted partition batch, in staging order.
type TableTransactionResponse struct {
	Succeeded bool                                                   `json:"succeeded"`
	Batches   []repositories.Response[azerrors.BatchResult[string]] `json:"batches"`
}

// SubmitTransaction godoc
// @Summary SubmitTransaction stages the posted actions and submits them as per-partition batches.
// @Schemes
// @Description SubmitTransaction responds with one result per partition batch. 202 when every batch succeeded, 207 otherwise.
// @Tags Tables
// @Accept json
// @Produce json
// @Param			table	path		string		true	"Name of the table"    minlength(3)  maxlength(63)
// @Param			request	body		TableTransactionRequest	true	"Ordered actions"
// @Failure 400 {object} map[string]any
// @Success 202 {object} TableTransactionResponse
// @Success 207 {object} TableTransactionResponse
// @Router /tables/{table}/transactions [post]
// @Security Bearer
func (s *Server) SubmitTransaction(c *gin.Context) {
	table := c.Param("table")
	var req TableTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	tx, err := s.tables.NewTransaction()
	if err != nil {
		writeResponse(c, azerrors.ToResponse[struct{}](s.classifier, err))
		return
	}
	for i, a := range req.Actions {
		if err := stage(tx, a); err != nil {
			s.badRequest(c, fmt.Errorf("action %d: %w", i, err))
			return
		}
	}
	rs, err := s.tables.SubmitTransaction(c.Request.Context(), table, tx)
	if err != nil {
		writeResponse(c, azerrors.ToResponse[struct{}](s.classifier, err))
		return
	}
	resp := TableTransactionResponse{Succeeded: true, Batches: rs}
	for _, r := range rs {
		if !r.Succeeded {
			resp.Succeeded = false
			break
		}
	}
	status := http.StatusAccepted
	if !resp.Succeeded {
		status = http.StatusMultiStatus
	}
	c.IndentedJSON(status, resp)
}

func stage(tx *cassandra.TableTransaction, a TableActionRequest) error {
	switch a.Action {
	case "add":
		return tx.Add(a.Entity)
	case "update_merge":
		return tx.Update(transaction.Merge, a.Entity)
	case "update_replace":
		return tx.Update(transaction.Replace, a.Entity)
	case "upsert_merge":
		return tx.Upsert(transaction.Merge, a.Entity)
	case "upsert_replace":
		return tx.Upsert(transaction.Replace, a.Entity)
	case "delete":
		return tx.Delete(a.Entity)
	default:
		return repositories.NewInvalidArgumentError("action", fmt.Sprintf("'%s' is not a table action", a.Action))
	}
}

// GetEntity godoc
// @Summary GetEntity returns the entity of a table having the given partition & row keys.
// @Schemes
// @Description GetEntity responds with the entity as JSON.
// @Tags Tables
// @Accept json
// @Produce json
// @Param			table	path		string		true	"Name of the table"
// @Param			pk	path		string		true	"Partition key"
// @Param			rk	path		string		true	"Row key"
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /tables/{table}/entities/{pk}/{rk} [get]
// @Security Bearer
func (s *Server) GetEntity(c *gin.Context) {
	writeResponse(c, s.tables.Get(c.Request.Context(), c.Param("table"), c.Param("pk"), c.Param("rk")))
}

// DeleteEntity godoc
// @Summary DeleteEntity removes the entity of a table having the given partition & row keys.
// @Schemes
// @Description DeleteEntity is conditional on the If-Match header when set.
// @Tags Tables
// @Accept json
// @Produce json
// @Param			table	path		string		true	"Name of the table"
// @Param			pk	path		string		true	"Partition key"
// @Param			rk	path		string		true	"Row key"
// @Param			If-Match	header		string		false	"ETag the stored entity must carry"
// @Failure 404 {object} map[string]any
// @Failure 412 {object} map[string]any
// @Success 204 "No Content"
// @Router /tables/{table}/entities/{pk}/{rk} [delete]
// @Security Bearer
func (s *Server) DeleteEntity(c *gin.Context) {
	e := cassandra.NewTableEntity(c.Param("pk"), c.Param("rk"))
	e.ETag = c.GetHeader("If-Match")
	writeResponse(c, s.tables.Delete(c.Request.Context(), c.Param("table"), e))
}

// SendMessageRequest is a message to enqueue.
type SendMessageRequest struct {
	Body                   string `json:"body" binding:"required"`
	VisibilityDelaySeconds int    `json:"visibility_delay_seconds" binding:"gte=0"`
	// TimeToLiveSeconds of 0 applies the queue default, -1 means never expire.
	TimeToLiveSeconds int `json:"time_to_live_seconds" binding:"gte=-1"`
}

// SendMessage godoc
// @Summary SendMessage enqueues a message.
// @Schemes
// @Description SendMessage responds with the stored message, its pop receipt included.
// @Tags Queues
// @Accept json
// @Produce json
// @Param			queue	path		string		true	"Name of the queue"
// @Param			request	body		SendMessageRequest	true	"Message"
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 201 {object} map[string]any
// @Router /queues/{queue}/messages [post]
// @Security Bearer
func (s *Server) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ttl := time.Duration(req.TimeToLiveSeconds) * time.Second
	if req.TimeToLiveSeconds < 0 {
		ttl = -1
	}
	writeResponse(c, s.queues.SendMessage(c.Request.Context(), c.Param("queue"), req.Body, time.Duration(req.VisibilityDelaySeconds)*time.Second, ttl))
}

// ReceiveMessagesQuery selects how messages are fetched.
type ReceiveMessagesQuery struct {
	MaxMessages              int  `form:"max_messages" binding:"omitempty,gte=1,lte=32"`
	VisibilityTimeoutSeconds int  `form:"visibility_timeout_seconds" binding:"gte=0"`
	Peek                     bool `form:"peek"`
}

// ReceiveMessages godoc
// @Summary ReceiveMessages dequeues, or peeks at, visible messages.
// @Schemes
// @Description ReceiveMessages hides the returned messages for the visibility timeout, unless peek is set.
// @Tags Queues
// @Accept json
// @Produce json
// @Param			queue	path		string		true	"Name of the queue"
// @Param			max_messages	query		int		false	"Messages to return, 1 to 32"
// @Param			visibility_timeout_seconds	query		int		false	"Visibility timeout, 0 applies the queue default"
// @Param			peek	query		bool		false	"Peek without dequeueing"
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /queues/{queue}/messages [get]
// @Security Bearer
func (s *Server) ReceiveMessages(c *gin.Context) {
	var q ReceiveMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	if q.MaxMessages == 0 {
		q.MaxMessages = 1
	}
	queue := c.Param("queue")
	if q.Peek {
		writeResponse(c, s.queues.PeekMessages(c.Request.Context(), queue, q.MaxMessages))
		return
	}
	writeResponse(c, s.queues.ReceiveMessages(c.Request.Context(), queue, q.MaxMessages, time.Duration(q.VisibilityTimeoutSeconds)*time.Second))
}

func (s *Server) badRequest(c *gin.Context, err error) {
	writeResponse(c, repositories.Failed[struct{}](err.Error(), err, http.StatusBadRequest))
}

// writeResponse answers with r, using its status code. A Response without one maps to 200 on success and
// 500 on failure.
func writeResponse[T any](c *gin.Context, r repositories.Response[T]) {
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
		if !r.Succeeded {
			status = http.StatusInternalServerError
		}
	}
	if r.Err != nil && status >= http.StatusInternalServerError {
		log.Error(fmt.Sprintf("%s %s failed, details: %v", c.Request.Method, c.Request.URL.Path, r.Err))
	}
	if status == http.StatusNoContent {
		c.Status(status)
		return
	}
	c.IndentedJSON(status, r)
}
