package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"companion.app/relay/common/logger"
)

// Recovery turns a handler panic into a 500. The panic is logged with the
// session it hit and recorded on the request span, and the response
// carries the trace ID so a device report can be matched to the log.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			fields := logger.LogFields{Component: "relay.http"}
			if id := c.Param("session_id"); id != "" {
				fields.SessionID = logger.Ptr(id)
			}
			ctx := logger.WithLogFields(c.Request.Context(), fields)

			span := trace.SpanFromContext(ctx)
			span.RecordError(fmt.Errorf("panic: %v", r))
			span.SetStatus(codes.Error, "panic")

			slog.ErrorContext(ctx, "panic recovered in handler",
				"panic", r,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()))

			if c.Writer.Written() {
				c.Abort()
				return
			}
			body := gin.H{"error": "internal server error"}
			if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
				body["trace_id"] = traceID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
