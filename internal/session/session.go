// Package session manages the signed auth cookie. Values are signed as
// "s:<value>.<base64 HMAC-SHA256>", the format used by cookie-parser, so
// cookies minted by earlier deployments keep working.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const signedPrefix = "s:"

type Signer struct{ secret []byte }

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) mac(value string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(m.Sum(nil))
}

func (s *Signer) Sign(value string) string {
	return signedPrefix + value + "." + s.mac(value)
}

// Unsign returns the original value if signed carries a valid signature.
func (s *Signer) Unsign(signed string) (string, bool) {
	if !strings.HasPrefix(signed, signedPrefix) {
		return "", false
	}
	body := signed[len(signedPrefix):]
	dot := strings.LastIndexByte(body, '.')
	if dot < 0 {
		return "", false
	}
	value, sig := body[:dot], body[dot+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(value))) {
		return "", false
	}
	return value, true
}

// Cookies reads and writes the auth cookie on gin requests.
type Cookies struct {
	signer *Signer
	name   string
	ttl    time.Duration
	secure bool
}

func NewCookies(name, secret string, ttl time.Duration, secure bool) *Cookies {
	return &Cookies{signer: NewSigner(secret), name: name, ttl: ttl, secure: secure}
}

func (c *Cookies) Name() string { return c.name }

func (c *Cookies) Set(ctx *gin.Context, token string) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.name,
		Value:    url.QueryEscape(c.signer.Sign(token)),
		Path:     "/",
		Expires:  time.Now().Add(c.ttl),
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteNoneMode,
	})
}

func (c *Cookies) Clear(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteNoneMode,
	})
}

// Token returns the verified token from the cookie. A cookie with a bad
// signature is treated as absent.
func (c *Cookies) Token(ctx *gin.Context) (string, bool) {
	raw, err := ctx.Cookie(c.name)
	if err != nil || raw == "" {
		return "", false
	}
	return c.signer.Unsign(raw)
}
