package utils

import (
	"github.com/burrowgate/burrowgate/internal/api/dto/common"
	"github.com/burrowgate/burrowgate/internal/logging"

	"github.com/gin-gonic/gin"
)

// HandleAPIError is a utility function for consistent error handling across the API.
// It logs the failure and ensures sensitive error details are only exposed in
// non-production environments.
func HandleAPIError(c *gin.Context, err error, status int, errKeyword, message string) {
	logger := logging.GetGlobalLogger()
	logger.LogHTTPError(
		c.Request.Method,
		c.Request.URL.Path,
		GetRealIP(c),
		status,
		message,
		err,
	)

	// In production, don't expose error details
	var errorDetails interface{}
	if gin.Mode() != gin.ReleaseMode && err != nil {
		errorDetails = err.Error()
	}

	c.JSON(status, common.NewErrorResponse(errKeyword, message, errorDetails))
}
