package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// actorKey is the gin context key of the authenticated caller label.
const actorKey = "actor"

// BearerAuth admits requests carrying "Authorization: Bearer <token>" equal
// to token. Comparison is constant time. An empty token rejects everything.
func BearerAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="alliancebot"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    "missing or invalid bearer token",
			})
			return
		}
		c.Set(actorKey, "admin-api")
		c.Next()
	}
}

// ActorFrom returns the caller label set by BearerAuth, or "".
func ActorFrom(c *gin.Context) string {
	v, _ := c.Get(actorKey)
	return asString(v)
}

func bearer(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
