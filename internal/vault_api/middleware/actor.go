package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ActorIDHeader names the authenticated operator. Authentication happens upstream.
	ActorIDHeader = "X-Actor-ID"
	ActorIDKey    = "actor_id"
)

// Actor copies the operator identity into the request context. Missing identities are left empty
// so the engine can reject the mutation with a typed error.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(ActorIDHeader)); actor != "" {
			c.Set(ActorIDKey, actor)
		}
		c.Next()
	}
}

func GetActor(c *gin.Context) string {
	return c.GetString(ActorIDKey)
}
