package middleware

import (
	"net"

	"github.com/gin-gonic/gin"
)

// AllowPrivateIP bypasses the limit for loopback and private (10/8, 172.16/12,
// 192.168/16) client addresses.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		parsed := net.ParseIP(ipFromCtx(c))
		if parsed == nil {
			return false
		}
		return parsed.IsLoopback() || parsed.IsPrivate()
	}
}

// AllowWithoutQuery bypasses the limit for requests that don't carry the
// given query parameter, so only that operation is counted.
func AllowWithoutQuery(param string) AllowFunc {
	return func(c *gin.Context) bool {
		_, ok := c.GetQuery(param)
		return !ok
	}
}

// AnyAllow bypasses when any of fns does. Nil entries are skipped.
func AnyAllow(fns ...AllowFunc) AllowFunc {
	return func(c *gin.Context) bool {
		for _, fn := range fns {
			if fn != nil && fn(c) {
				return true
			}
		}
		return false
	}
}
