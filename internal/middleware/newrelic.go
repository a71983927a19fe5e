package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the nrgin transaction with the caller and
// reports handler errors. It must run after nrgin.Middleware and AuthMiddleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if p, ok := GetPrincipal(c); ok {
			txn.AddAttribute("user.id", p.UserID)
			txn.AddAttribute("user.role", string(p.Role))
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("entity.id", id)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
