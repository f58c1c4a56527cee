package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"unicode"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminAuth guards the admin endpoints with the static admin API key.
type AdminAuth struct {
	apiKey string
}

// NewAdminAuth creates the middleware around the configured admin API key.
func NewAdminAuth(apiKey string) *AdminAuth {
	return &AdminAuth{apiKey: apiKey}
}

// ExtractAPIKey pulls the API key out of an Authorization header value. The
// accepted forms, in priority order, are "Bearer <key>", "ApiKey <key>" and
// the raw key. The scheme prefix is matched case-insensitively before any
// trailing content is trimmed, so a scheme with no key yields an empty key
// rather than the scheme word itself.
func ExtractAPIKey(header string) string {
	header = strings.TrimLeftFunc(header, unicode.IsSpace)

	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return strings.TrimSpace(header)
}

// RequireAdmin rejects requests whose Authorization header does not carry the
// admin API key. Comparison is byte-exact and constant-time.
func (m *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := logging.GetGlobalLogger()

		key := ExtractAPIKey(c.GetHeader("Authorization"))
		if key == "" {
			logger.Warn("Admin request without API key from %s to %s", utils.GetRealIP(c), c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				common.NewErrorResponse(common.ErrUnauthorized, "Missing API key", nil))
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			logger.Warn("Admin request with invalid API key from %s to %s", utils.GetRealIP(c), c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				common.NewErrorResponse(common.ErrUnauthorized, "Invalid API key", nil))
			return
		}

		c.Next()
	}
}
