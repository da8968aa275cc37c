// controller/webhook_controller.go
package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mitselek/esmuseum-map-app-sub006/credential"
	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
	"github.com/mitselek/esmuseum-map-app-sub006/queue"
	"github.com/mitselek/esmuseum-map-app-sub006/util"
)

// MaxPayloadBytes bounds a webhook body.
const MaxPayloadBytes = 16 << 10

// Enqueuer accepts notifications for asynchronous processing.
//
//go:generate mockgen -destination=../test/mock/enqueuer.go -package=mock . Enqueuer
type Enqueuer interface {
	Enqueue(n model.WebhookNotification) error
	Stats() queue.Stats
}

type WebhookController struct {
	queue          Enqueuer
	validationUtil *util.ValidationUtil
	now            func() time.Time
}

func NewWebhookController(q Enqueuer, validationUtil *util.ValidationUtil) *WebhookController {
	return &WebhookController{
		queue:          q,
		validationUtil: validationUtil,
		now:            time.Now,
	}
}

// RegisterRoutes registers the webhook endpoints, one per trigger kind
func (wc *WebhookController) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/student-added", wc.receive(model.StudentAddedToClass))
		webhooks.POST("/task-assigned", wc.receive(model.TaskAssignedToClass))
	}
	r.GET("/healthz", wc.Health)
}

// receive validates the payload, extracts the credential and hands the
// notification to the queue. It never calls the backend.
func (wc *WebhookController) receive(kind model.TriggerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxPayloadBytes)

		var payload util.WebhookPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid webhook payload", errors.Join(sync_errors.ErrMalformedPayload, err))
			return
		}
		if err := wc.validationUtil.ValidateWebhookPayload(payload); err != nil {
			if errors.Is(err, sync_errors.ErrDatabaseMismatch) {
				util.RespondWithError(c, http.StatusBadRequest, "Webhook is for another database", err)
				return
			}
			util.RespondWithError(c, http.StatusBadRequest, "Invalid webhook payload", err)
			return
		}

		cred, err := credential.Extract(payload.Token)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid credential", err)
			return
		}

		n := model.WebhookNotification{
			SourceEntityID: model.EntityID(payload.Entity.ID),
			TriggerKind:    kind,
			Credential:     cred,
			ReceivedAt:     wc.now(),
		}
		if err := wc.queue.Enqueue(n); err != nil {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to enqueue notification", err)
			return
		}

		logger.Info("Webhook accepted",
			zap.String("entityID", payload.Entity.ID),
			zap.String("trigger", string(kind)),
			zap.String("principalLabel", cred.PrincipalLabel),
			zap.String("plugin", payload.Plugin))
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "entityId": payload.Entity.ID})
	}
}

// Health reports queue counters.
func (wc *WebhookController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queue": wc.queue.Stats()})
}
