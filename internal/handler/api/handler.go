package api

import (
	"encoding/json"

	"Qless/internal/queue"
	"Qless/internal/worker"
	"Qless/pkg/backend"
	xhttp "Qless/pkg/http"
	"Qless/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusSource lists the workers of this process.
type StatusSource interface {
	Statuses() []worker.Status
}

// Handler serves the operational HTTP API.
type Handler struct {
	logger  *logger.Logger
	workers StatusSource
	client  *backend.Client
	hub     *Hub
}

// NewHandler builds the API. client is used for queue routes and the health
// check; hub may be nil to disable /events.
func NewHandler(l *logger.Logger, workers StatusSource, client *backend.Client, hub *Hub) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{logger: l, workers: workers, client: client, hub: hub}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/workers", h.Workers)
	e.GET("/queues/:queue", h.Queue)
	e.POST("/queues/:queue/jobs", h.PutJob)
	if h.hub != nil {
		e.GET("/events", h.hub.ServeWS)
	}
}

// Health reports whether the backend answers.
func (h *Handler) Health(c echo.Context) error {
	if _, err := h.client.Call(c.Request().Context(), "config.get", "heartbeat"); err != nil {
		h.logger.Warn("health check failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("backend unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Workers lists the status of every worker in this process.
func (h *Handler) Workers(c echo.Context) error {
	var statuses []worker.Status
	if h.workers != nil {
		statuses = h.workers.Statuses()
	}
	if statuses == nil {
		statuses = []worker.Status{}
	}
	return xhttp.ListResponse(c, statuses, int64(len(statuses)))
}

// QueueInfo is the body of GET /queues/:queue.
type QueueInfo struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

// Queue reports the number of waiting and running jobs in a queue.
func (h *Handler) Queue(c echo.Context) error {
	q, err := queue.New(c.Param("queue"), h.client)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	}
	n, err := q.Length(c.Request().Context())
	if err != nil {
		h.logger.Error("queue length failed", logger.String("queue", q.Name()), logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("backend unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, QueueInfo{Name: q.Name(), Length: n})
}

// PutJobRequest is the body of POST /queues/:queue/jobs.
type PutJobRequest struct {
	Klass   string          `json:"klass" validate:"required"`
	Data    json.RawMessage `json:"data"`
	JID     string          `json:"jid" validate:"omitempty,max=128"`
	Retries *int            `json:"retries" validate:"omitempty,gte=0,lte=1000"`
	Worker  string          `json:"worker" default:"api"`
}

// PutJob enqueues a job and returns its jid.
func (h *Handler) PutJob(c echo.Context) error {
	req := &PutJobRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	q, err := queue.New(c.Param("queue"), h.client)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	}

	opts := []queue.PutOption{queue.WithProducer(req.Worker)}
	if req.JID != "" {
		opts = append(opts, queue.WithJID(req.JID))
	}
	if req.Retries != nil {
		opts = append(opts, queue.WithRetries(*req.Retries))
	}

	var data interface{}
	if len(req.Data) > 0 {
		data = req.Data
	}
	jid, err := q.Put(c.Request().Context(), req.Klass, data, opts...)
	if err != nil {
		h.logger.Error("put failed", logger.String("queue", q.Name()), logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("put rejected").WithError(err))
	}
	return xhttp.CreatedResponse(c, map[string]string{"jid": jid, "queue": q.Name()})
}
