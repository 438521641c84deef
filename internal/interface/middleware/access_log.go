package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/pkg/helpers"
)

// AccessLog writes one debug entry per request after it completes.
func AccessLog(logger logrus.FieldLogger) gin.HandlerFunc {
	log := helpers.Component(logger, "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         ipFromCtx(c),
			"request_id": c.GetString("request_id"),
		}).Debug("request handled")
	}
}
