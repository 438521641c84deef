package container

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/config"
	"github.com/oksasatya/messaging-system/internal/application"
	"github.com/oksasatya/messaging-system/pkg/metrics"
	"github.com/oksasatya/messaging-system/pkg/queue"
)

// Container holds the components built at startup so the router can wire
// modules from them. Optional components (Redis, Publisher, Gatherer) may be nil.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Redis     *redis.Client
	Publisher *queue.Publisher
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Emails    *application.EmailService
}

// Broker returns the publisher as a connection-state probe, or nil.
func (c *Container) Broker() interface{ Connected() bool } {
	if c.Publisher == nil {
		return nil
	}
	return c.Publisher
}
