// Package server wires the gatekeeper, the rate limiter and the transit
// handlers into a gin HTTP server.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
	"github.com/transitops/gatekeeper/internal/gatekeeper"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// Gin context keys set by the gatekeeper middleware.
const (
	ctxKeyClaims   = "gatekeeper.claims"
	ctxKeyDecision = "gatekeeper.decision"
)

// ClaimsFrom returns the validated claims stored by the gatekeeper
// middleware, or nil when the request was not authenticated.
func ClaimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// DecisionFrom returns the decision stored by the gatekeeper middleware.
func DecisionFrom(c *gin.Context) *authz.Decision {
	v, ok := c.Get(ctxKeyDecision)
	if !ok {
		return nil
	}
	decision, _ := v.(*authz.Decision)
	return decision
}

// RequestID propagates or generates the request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// Logging logs one line per request. For authorized requests the line
// carries the flattened decision context, so the log shows the caller
// and the rule that admitted the request.
func Logging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("duration", time.Since(start)),
		}

		if decision := DecisionFrom(c); decision != nil {
			wire := decision.WireContext()
			fields = append(fields,
				observability.String("caller", wire["callerId"]),
				observability.String("role", wire["role"]),
				observability.String("rule", wire["matchedRule"]),
			)
		}

		logger.WithContext(c.Request.Context()).Info("request handled", fields...)
	}
}

// Recovery recovers from handler panics and responds 500.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.Any("error", err),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}

// Gatekeeper evaluates every request through the authorization pipeline
// and aborts denied requests before any handler runs. Validated claims
// and the decision are stored on the gin context for downstream use.
func Gatekeeper(gk *gatekeeper.Gatekeeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, claims := gk.Evaluate(
			c.Request.Context(),
			c.Request.Method,
			c.Request.URL.Path,
			c.GetHeader("Authorization"),
		)

		if !decision.Allowed() {
			c.AbortWithStatusJSON(denyStatus(decision.Context.Reason), gin.H{
				"error": decision.Context.Reason,
			})
			return
		}

		c.Set(ctxKeyClaims, claims)
		c.Set(ctxKeyDecision, &decision)
		c.Next()
	}
}

// denyStatus maps a deny reason onto the caller-visible status. The
// reason itself stays generic; details live in the decision context and
// the logs.
func denyStatus(reason string) int {
	switch reason {
	case "credential missing", "credential invalid", "credential expired":
		return http.StatusUnauthorized
	case "malformed path":
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// RateLimit enforces the caller's tier bounds after authorization. The
// three X-RateLimit headers are set on every counted response; 429
// carries Retry-After when the daily quota tripped.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			// Gatekeeper did not run; nothing to key the counter on.
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), tierForRole(claims.Role), claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if !result.FailedOpen {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.Itoa(result.ResetSeconds()))
		}

		if !result.Allowed {
			if result.QuotaExhausted {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// tierForRole maps a role onto its rate limit tier.
func tierForRole(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return ratelimit.TierAdmin
	case auth.RoleOperator:
		return ratelimit.TierOperator
	default:
		return ratelimit.TierPublic
	}
}
