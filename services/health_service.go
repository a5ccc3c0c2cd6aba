package services

import (
	"context"
	"fmt"
	"time"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StorePinger is satisfied by the document store client.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	store             StorePinger
	redisClient       *redis.Client
	version           string
	startTime         time.Time
	activeConnections func() int
	log               *zap.SugaredLogger
}

// NewHealthService builds a health checker. redisClient may be nil when Redis is disabled.
func NewHealthService(store StorePinger, redisClient *redis.Client, version string) *HealthService {
	return &HealthService{
		store:       store,
		redisClient: redisClient,
		version:     version,
		startTime:   time.Now(),
		log:         logger.GetLogger().Named("health"),
	}
}

// SetActiveConnectionsGetter reports badge websocket connections in the health output.
func (h *HealthService) SetActiveConnectionsGetter(getter func() int) {
	h.activeConnections = getter
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	// The document store is required for every read and write.
	storeStatus := h.checkStore(ctx)
	components[types.HealthComponentDocumentStore] = storeStatus
	if storeStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	}

	if h.redisClient != nil {
		redisStatus := h.checkRedis(ctx)
		components[types.HealthComponentRedis] = redisStatus
		if redisStatus.Status != types.HealthStatusUp && overallStatus == types.HealthStatusUp {
			overallStatus = types.HealthStatusDegraded
		}
	}

	if h.activeConnections != nil {
		components[types.HealthComponentWebsocket] = types.HealthComponent{
			Status:  types.HealthStatusUp,
			Details: fmt.Sprintf("%d active connection(s)", h.activeConnections()),
		}
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
}

// IsReady reports whether the instance can serve traffic.
func (h *HealthService) IsReady(ctx context.Context) bool {
	return h.checkStore(ctx).Status == types.HealthStatusUp
}

func (h *HealthService) checkStore(ctx context.Context) types.HealthComponent {
	if h.store == nil {
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Document store not configured",
		}
	}

	if err := h.store.Ping(ctx); err != nil {
		h.log.Errorw("Document store health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Document store unreachable",
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Redis connection failed",
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}
