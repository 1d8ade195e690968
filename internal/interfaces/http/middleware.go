package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/purchase-approval/internal/application/workflow"
	"github.com/garyjia/purchase-approval/pkg/apperror"
	"github.com/garyjia/purchase-approval/pkg/auth"
	"github.com/garyjia/purchase-approval/pkg/metrics"
)

const (
	// RequestIDHeader carries the correlation id in and out
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID = "request_id"
	ctxKeySession   = "session"
)

// TokenValidator parses bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// requestIDMiddleware reuses the caller's X-Request-ID or mints one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxKeyRequestID),
		)
	}
}

// metricsMiddleware records request counts and latency per route template
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// clientInfoMiddleware makes the caller's address available to history entries
func clientInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := workflow.WithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authMiddleware requires a valid bearer token and stores its session
func authMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || token == "" {
			abortWithError(c, apperror.NewUnauthorizedError("missing bearer token"))
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			abortWithError(c, apperror.NewUnauthorizedError("invalid or expired token"))
			return
		}

		c.Set(ctxKeySession, claims.User)
		c.Next()
	}
}

// requireRole admits sessions holding any of roles
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionFrom(c)
		if !ok {
			abortWithError(c, apperror.NewUnauthorizedError("no session"))
			return
		}
		for _, r := range roles {
			if session.HasRole(r) {
				c.Next()
				return
			}
		}
		abortWithError(c, apperror.NewAuthorizationError(c.Request.Method+" "+c.FullPath(), session.ID,
			"requires role "+strings.Join(roles, " or ")))
	}
}

func sessionFrom(c *gin.Context) (auth.UserSession, bool) {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return auth.UserSession{}, false
	}
	session, ok := v.(auth.UserSession)
	return session, ok
}

func abortWithError(c *gin.Context, err error) {
	status := apperror.StatusOf(err)
	resp := Response{Success: false, Error: err.Error()}
	if appErr, ok := apperror.As(err); ok {
		resp.Code = appErr.Code()
	} else {
		resp.Error = http.StatusText(status)
		resp.Code = "INTERNAL"
	}
	c.AbortWithStatusJSON(status, resp)
}
