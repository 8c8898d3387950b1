package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TenantHeader = "X-Tenant-ID"
	TenantCookie = "lottery_tenant"
	TenantKey    = "tenant_id"
	tenantMaxAge = 365 * 24 * 60 * 60
)

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TenantMiddleware identifies the lottery a request belongs to. The
// X-Tenant-ID header wins over the cookie; a browser without either gets
// a fresh uuid cookie, so each browser keeps its own lottery.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			tenantID, _ = c.Cookie(TenantCookie)
		}
		if tenantID == "" {
			tenantID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(TenantCookie, tenantID, tenantMaxAge, "/", "", false, true)
		}
		if !tenantPattern.MatchString(tenantID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
			c.Abort()
			return
		}

		c.Set(TenantKey, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant set by TenantMiddleware.
func TenantID(c *gin.Context) string {
	return c.GetString(TenantKey)
}
