package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-wabot/domains/store"
)

const gatewayCheckTTL = 30 * time.Second

// HealthStatus is the /health detail payload.
type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Gateway   string    `json:"gateway"`
	CheckedAt time.Time `json:"checked_at"`
}

type healthService struct {
	store store.IStore
	gw    ChatGateway

	mu            sync.Mutex
	lastGateway   string
	lastGatewayAt time.Time
}

func NewHealthService(st store.IStore, gw ChatGateway) *healthService {
	return &healthService{store: st, gw: gw}
}

// Check probes the store on every call and the gateway at most once per
// TTL, so health polling cannot hammer the gateway.
func (s *healthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "ok", Database: "ok", Gateway: "ok", CheckedAt: time.Now().UTC()}

	if _, err := s.store.CountUsers(ctx); err != nil {
		status.Database = "unreachable"
		status.Status = "degraded"
	}

	status.Gateway = s.gatewayStatus(ctx)
	if status.Gateway != "ok" {
		status.Status = "degraded"
	}
	return status
}

func (s *healthService) gatewayStatus(ctx context.Context) string {
	s.mu.Lock()
	if time.Since(s.lastGatewayAt) < gatewayCheckTTL && s.lastGateway != "" {
		cached := s.lastGateway
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result := "ok"
	if _, err := s.gw.ListChats(probeCtx); err != nil {
		result = "unreachable"
	}

	s.mu.Lock()
	s.lastGateway = result
	s.lastGatewayAt = time.Now()
	s.mu.Unlock()
	return result
}
