package handlers

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/mailer"
	"github.com/oksasatya/messaging-system/pkg/metrics"
	"github.com/oksasatya/messaging-system/pkg/response"
)

// UsageText is returned when a request names no known operation.
const UsageText = "Welcome to the messaging system. Use ?sendmail or ?talktome parameters."

// Enqueuer queues a send job for one recipient.
type Enqueuer interface {
	Enqueue(ctx context.Context, recipient string) (mailer.EmailJob, error)
}

type MessagingHandler struct {
	Service Enqueuer
	Logger  logrus.FieldLogger
	LogPath string
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewMessagingHandler(svc Enqueuer, logger logrus.FieldLogger, logPath string, m *metrics.Metrics) *MessagingHandler {
	return &MessagingHandler{Service: svc, Logger: logger, LogPath: logPath, Metrics: m}
}

func (h *MessagingHandler) log(c *gin.Context) *logrus.Entry {
	entry := helpers.Component(h.Logger, "router")
	if id := c.GetString("request_id"); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}

func (h *MessagingHandler) now() string {
	return helpers.Timestamp(helpers.Clock(h.Now)())
}

// Index dispatches GET / on its query: sendmail wins over talktome, and
// anything else gets the usage text.
func (h *MessagingHandler) Index(c *gin.Context) {
	if recipient, ok := c.GetQuery("sendmail"); ok {
		h.sendmail(c, recipient)
		return
	}
	if _, ok := c.GetQuery("talktome"); ok {
		h.talktome(c)
		return
	}
	h.Metrics.Request("usage")
	c.String(http.StatusOK, UsageText)
}

func (h *MessagingHandler) sendmail(c *gin.Context, recipient string) {
	h.Metrics.Request("sendmail")
	h.log(c).Infof("Sendmail request received for %s at %s", recipient, h.now())

	job, err := h.Service.Enqueue(c.Request.Context(), recipient)
	if err != nil {
		helpers.LogError(h.log(c), "failed to enqueue email job", err, logrus.Fields{"recipient": recipient})
		c.String(http.StatusServiceUnavailable, "Email sending task could not be queued for %s", recipient)
		return
	}
	h.log(c).WithField("job_id", job.ID).Debug("email job queued")
	c.String(http.StatusOK, "Email sending task queued for %s", recipient)
}

func (h *MessagingHandler) talktome(c *gin.Context) {
	h.Metrics.Request("talktome")
	ts := h.now()
	h.log(c).Infof("Talktome request received at %s", ts)
	c.String(http.StatusOK, "Request logged at %s", ts)
}

// Logs returns the log file as it was before this request's own entry.
func (h *MessagingHandler) Logs(c *gin.Context) {
	h.Metrics.Request("logs")

	data, err := os.ReadFile(h.LogPath)
	if errors.Is(err, fs.ErrNotExist) {
		msg := "Log file not found at " + h.now()
		h.log(c).Error(msg)
		c.String(http.StatusNotFound, "%s", msg)
		return
	}
	if err != nil {
		msg := "Log file could not be read at " + h.now()
		h.log(c).WithError(err).Error(msg)
		c.String(http.StatusInternalServerError, "%s", msg)
		return
	}
	h.log(c).Infof("Log file accessed at %s", h.now())
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// BrokerStatus reports whether the publisher holds a live connection.
type BrokerStatus interface {
	Connected() bool
}

type HealthHandler struct {
	Broker BrokerStatus
}

func NewHealthHandler(b BrokerStatus) *HealthHandler {
	return &HealthHandler{Broker: b}
}

// Healthz is a liveness probe. The broker is dialed lazily, so a false
// broker_connected is not a failure.
func (h *HealthHandler) Healthz(c *gin.Context) {
	connected := h.Broker != nil && h.Broker.Connected()
	response.JSON(c, http.StatusOK, gin.H{"broker_connected": connected}, "ok")
}
