package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/session"
)

const identityKey = "identity"

// Authenticator resolves a raw token to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Session, error)
}

// Identity is the authenticated caller, handed to handlers explicitly.
type Identity struct {
	UserID    uuid.UUID
	User      *model.User
	TokenID   string
	ExpiresAt time.Time
}

func (id Identity) Session() service.Session {
	return service.Session{User: id.User, TokenID: id.TokenID, ExpiresAt: id.ExpiresAt}
}

type Auth struct {
	authenticator Authenticator
	cookies       *session.Cookies
	log           *slog.Logger
}

func NewAuth(authenticator Authenticator, cookies *session.Cookies, log *slog.Logger) *Auth {
	return &Auth{authenticator: authenticator, cookies: cookies, log: log}
}

// token prefers the signed cookie and falls back to a bearer header.
func (a *Auth) token(c *gin.Context) (string, bool) {
	if t, ok := a.cookies.Token(c); ok {
		return t, true
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer") {
		return "", false
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return "", false
	}
	return fields[1], true
}

// Required rejects the request with 401 unless it carries a valid token.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := a.token(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		sess, err := a.authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, service.ErrNotAuthorized) {
				a.log.Error("authenticate request", "error", err, "path", c.Request.URL.Path)
			}
			abortUnauthorized(c)
			return
		}

		c.Set(identityKey, Identity{
			UserID:    sess.User.ID,
			User:      sess.User,
			TokenID:   sess.TokenID,
			ExpiresAt: sess.ExpiresAt,
		})
		c.Next()
	}
}

// GuestOnly answers 403 when the request already carries a token. Only
// presence is checked, not validity.
func (a *Auth) GuestOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.cookies.Token(c); ok || strings.HasPrefix(c.GetHeader("Authorization"), "Bearer") {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.Fail("User is already logged in"))
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// WithIdentity adapts a handler that needs the caller. Requests that reach it
// without passing Required get a 401.
func WithIdentity(h func(*gin.Context, Identity)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		h(c, id)
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail(service.ErrNotAuthorized.Error()))
}
