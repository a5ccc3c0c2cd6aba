package middleware

// Keys stored on the gin context by this package.
const (
	// ActorContextKey holds the types.Actor resolved from the gateway headers.
	ActorContextKey = "actor"
	// ActorKeyContextKey holds Actor.Key() for logging.
	ActorKeyContextKey = "actor_key"
)

// Headers set by the upstream gateway after it authenticates the member.
const (
	HeaderActorUsername = "X-Actor-Username"
	HeaderActorID       = "X-Actor-ID"
	HeaderActorKind     = "X-Actor-Kind"
)
