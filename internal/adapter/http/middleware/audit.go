package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful operator
// write operations.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath())
		if action == "" {
			return
		}

		actor := c.GetString(CtxSubject)
		if actor == "" {
			// token issuance runs before there is a subject in context
			actor = c.GetString(ctxAuditActor)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResource),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

const (
	// CtxAuditResource lets a handler name the resource it touched.
	CtxAuditResource = "audit_resource"
	ctxAuditActor    = "audit_actor"
)

// SetAuditActor records who performed an unauthenticated action.
func SetAuditActor(c *gin.Context, actor string) {
	c.Set(ctxAuditActor, actor)
}

func mapPathToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/auth/token":
		return domain.AuditActionIssueToken, "session"
	case "/api/v1/rates":
		return domain.AuditActionRateUpdate, "rate"
	case "/api/v1/admin/rebalance":
		return domain.AuditActionRebalance, "liquidity"
	}
	return "", ""
}
