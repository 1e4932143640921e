// Package handler holds the gin handlers. Handlers translate HTTP to service
// calls and hand failures to middleware.ErrorHandler through c.Error.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// paramID parses a path id. On failure it records notFound, since an id that
// cannot parse cannot name an existing record.
func paramID(c *gin.Context, name string, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(notFound)
		return uuid.Nil, false
	}
	return id, true
}
