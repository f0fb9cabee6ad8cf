package middleware

import (
	"github.com/clubstack/memberhub/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ContextRequestID = "request_id"

// RequestID tags every request with an id and logs admin write operations
// (POST/PUT/DELETE) with the acting member, so seat decisions are traceable.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Writer.Header().Set("X-Request-ID", id)

		c.Next()

		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			return
		}
		logger.Info().
			Str("request_id", id).
			Str("member_id", GetMemberID(c)).
			Str("method", method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("write operation")
	}
}
