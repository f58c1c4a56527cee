package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/logging"

	"github.com/gin-gonic/gin"
)

// Recovery turns handler panics into 500 responses. The stack trace goes to
// the log, never to the caller.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger := logging.GetGlobalLogger()
				logger.Error("Panic handling %s %s (request %s): %v\n%s",
					c.Request.Method,
					c.Request.URL.Path,
					c.GetString("RequestID"),
					r,
					debug.Stack(),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError,
					common.NewErrorResponse(common.ErrInternal, "Internal server error", nil))
			}
		}()

		c.Next()
	}
}
