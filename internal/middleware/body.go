package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/validate"
)

const bodyKey = "body"

// ValidateBody decodes the JSON body into a T, normalizes and validates it,
// and stores it for Body. An empty body decodes as an empty object.
func ValidateBody[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body T
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.Fail("Invalid request body"))
			return
		}
		if msgs := validate.Struct(&body); len(msgs) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: msgs[0], Errors: msgs})
			return
		}
		c.Set(bodyKey, &body)
		c.Next()
	}
}

// Body returns what ValidateBody[T] stored, or nil if it did not run.
func Body[T any](c *gin.Context) *T {
	v, ok := c.Get(bodyKey)
	if !ok {
		return nil
	}
	body, _ := v.(*T)
	return body
}
