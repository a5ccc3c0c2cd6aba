package middleware

import (
	"strings"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/gin-gonic/gin"
)

// ActorMiddleware resolves the acting member from the gateway headers.
// Requests without a username stop here with "not logged in".
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := types.ParseActorKind(c.GetHeader(HeaderActorKind))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		actor := types.Actor{
			ID:       strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Username: strings.TrimSpace(c.GetHeader(HeaderActorUsername)),
			Kind:     kind,
		}
		if err := actor.Validate(); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(ActorContextKey, actor)
		c.Set(ActorKeyContextKey, actor.Key())
		c.Next()
	}
}

// GetActor returns the actor set by ActorMiddleware.
func GetActor(c *gin.Context) (types.Actor, bool) {
	v, ok := c.Get(ActorContextKey)
	if !ok {
		return types.Actor{}, false
	}
	actor, ok := v.(types.Actor)
	return actor, ok
}

// MustGetActor returns the actor or an authentication error.
func MustGetActor(c *gin.Context) (types.Actor, error) {
	actor, ok := GetActor(c)
	if !ok {
		return types.Actor{}, apperrors.AuthenticationFailed("Not logged in")
	}
	return actor, nil
}
