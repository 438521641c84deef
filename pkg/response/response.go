package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// APIResponse is the JSON envelope of the service's machine-facing
// endpoints. The human-facing routes reply in plain text.
type APIResponse[T any] struct {
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      T         `json:"data,omitempty"`
}

// New builds an envelope; statuses below 400 are successes.
func New[T any](ctx *gin.Context, status int, data T, message string) APIResponse[T] {
	if status == 0 {
		status = http.StatusOK
	}
	return APIResponse[T]{
		Status:    status,
		Timestamp: time.Now().UTC(),
		RequestID: ctx.GetString("request_id"),
		Success:   status < http.StatusBadRequest,
		Message:   message,
		Data:      data,
	}
}

// JSON writes the envelope for data with the given status.
func JSON[T any](ctx *gin.Context, status int, data T, message string) {
	resp := New(ctx, status, data, message)
	ctx.JSON(resp.Status, resp)
}
