package router

import (
	"github.com/oksasatya/messaging-system/internal/container"
	handlers "github.com/oksasatya/messaging-system/internal/interface/http"
	"github.com/oksasatya/messaging-system/internal/router/modules"
)

// InitModules builds the HTTP modules from c and adds them to r.
// Call once at startup, before RegisterAll.
func InitModules(r *Registry, c *container.Container) {
	cfg := c.Config

	messaging := handlers.NewMessagingHandler(c.Emails, c.Logger, cfg.LogFile, c.Metrics)
	r.Add(modules.NewMessagingModule(messaging, modules.RateLimitConfig{
		Redis:         c.Redis,
		Max:           cfg.SendmailRateLimit,
		Window:        cfg.SendmailRateWindow,
		BypassPrivate: cfg.RateLimitBypassPrivate,
	}))

	r.Add(modules.NewHealthModule(handlers.NewHealthHandler(c.Broker())))

	if cfg.MetricsEnabled && c.Gatherer != nil {
		r.Add(modules.NewMetricsModule(c.Gatherer))
	}
}
