package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/messaging-system/internal/interface/http"
	"github.com/oksasatya/messaging-system/internal/interface/middleware"
)

// RateLimitConfig bounds ?sendmail requests per client IP.
type RateLimitConfig struct {
	Redis         *redis.Client
	Max           int
	Window        time.Duration
	BypassPrivate bool
}

type MessagingModule struct {
	Handler   *handlers.MessagingHandler
	RateLimit RateLimitConfig
}

func NewMessagingModule(h *handlers.MessagingHandler, rl RateLimitConfig) *MessagingModule {
	return &MessagingModule{Handler: h, RateLimit: rl}
}

func (m *MessagingModule) Register(rg *gin.RouterGroup) {
	allow := middleware.AllowWithoutQuery("sendmail")
	if m.RateLimit.BypassPrivate {
		allow = middleware.AnyAllow(allow, middleware.AllowPrivateIP())
	}
	rl := middleware.RateLimit(m.RateLimit.Redis, m.RateLimit.Max, m.RateLimit.Window, middleware.KeyByIP(), allow)

	rg.GET("/", rl, m.Handler.Index)
	rg.GET("/logs", m.Handler.Logs)
}
