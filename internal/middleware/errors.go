package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/dto"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Outside production the full wrapped chain is returned as detail.
func ErrorHandler(log *slog.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, msg := apperr.Resolve(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed", "error", err, "method", c.Request.Method, "path", c.Request.URL.Path)
		}

		body := dto.Fail(msg)
		if !production && err.Error() != msg {
			body.Detail = err.Error()
		}
		c.AbortWithStatusJSON(status, body)
	}
}
