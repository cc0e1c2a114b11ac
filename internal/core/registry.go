package core

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PluginSummary is the discovery view of one plugin.
type PluginSummary struct {
	PluginID      string   `json:"plugin_id"`
	DisplayName   string   `json:"display_name"`
	Version       string   `json:"version"`
	Services      []string `json:"services"`
	Dashboards    []string `json:"dashboards"`
	Status        string   `json:"status"`
	HealthMessage string   `json:"health_message,omitempty"`
}

// RegistryService reports plugin health through the standard gRPC health
// service, keyed by the services each plugin declares.
type RegistryService struct {
	plugins []Plugin
	health  *health.Server
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	r := &RegistryService{plugins: plugins, health: health.NewServer()}
	r.Sync()
	return r
}

func (r *RegistryService) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, r.health)
}

// ListPlugins returns plugin summaries in registration order.
func (r *RegistryService) ListPlugins() []PluginSummary {
	out := make([]PluginSummary, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifest := p.Manifest()
		summary := PluginSummary{
			PluginID:      manifest.PluginID,
			DisplayName:   manifest.DisplayName,
			Version:       manifest.Version,
			Services:      manifest.Services,
			Status:        string(p.Health()),
			HealthMessage: p.HealthMessage(),
		}
		for _, d := range p.Dashboards() {
			summary.Dashboards = append(summary.Dashboards, "/dashboards/"+manifest.PluginID+"/"+d.Name+".json")
		}
		out = append(out, summary)
	}
	return out
}

// Sync pushes current plugin health into the gRPC health server. The empty
// service name reflects the worst plugin status.
func (r *RegistryService) Sync() {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, p := range r.plugins {
		status := servingStatus(p.Health())
		if status != healthpb.HealthCheckResponse_SERVING {
			overall = status
		}
		r.health.SetServingStatus(p.ID(), status)
		for _, service := range p.Manifest().Services {
			r.health.SetServingStatus(service, status)
		}
	}
	r.health.SetServingStatus("", overall)
}

// Run re-syncs health on interval until ctx is done.
func (r *RegistryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Sync()
		}
	}
}

func servingStatus(status HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == HealthError {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
