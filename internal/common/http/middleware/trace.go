package middleware

import (
	"context"
	"strings"

	"promptjudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"
	UserIDHeader    = "X-User-Id"
)

// TraceContextMiddleware copies trace, request and user ids from the inbound headers into
// both the gin context and the request context, generating trace/request ids when absent.
// The user id is trusted as set by the upstream gateway.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		propagate(c, TraceIDHeader, contextkey.TraceID, true)
		propagate(c, RequestIDHeader, contextkey.RequestID, true)
		propagate(c, UserIDHeader, contextkey.UserID, false)
		c.Next()
	}
}

func propagate(c *gin.Context, header string, key interface{ String() string }, generate bool) {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" {
		if !generate {
			return
		}
		value = uuid.NewString()
	}
	c.Set(key.String(), value)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, value))
	c.Writer.Header().Set(header, value)
}
