// Package response writes the JSON bodies shared by every handler.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Problem is the error body. Message is omitted for 5xx responses; the
// cause is attached to the gin context for the request logger instead.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func Fail(c *gin.Context, status int, code string, err error) {
	p := Problem{Code: code}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		p.TraceID = sc.TraceID().String()
	}
	if err != nil {
		_ = c.Error(err)
		if status < http.StatusInternalServerError {
			p.Message = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": p})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
