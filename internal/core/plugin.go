package core

import (
	"context"
	"net/http"

	"github.com/brutella/hap/accessory"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// HealthStatus represents plugin health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by the plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a plugin for discovery and registry metadata.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
}

// Plugin is the compile-time contract for all bridge plugins.
type Plugin interface {
	ID() string
	Manifest() Manifest
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server)
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows plugins to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}

// AccessoryProvider allows plugins to publish HomeKit accessories on the bridge.
type AccessoryProvider interface {
	Accessories() []*accessory.A
}

// Runner is implemented by plugins with background loops. Run blocks until
// ctx is done.
type Runner interface {
	Run(ctx context.Context)
}

// CollectAccessories gathers accessories from every provider, in plugin order.
func CollectAccessories(plugins []Plugin) []*accessory.A {
	var out []*accessory.A
	for _, plugin := range plugins {
		if provider, ok := plugin.(AccessoryProvider); ok {
			out = append(out, provider.Accessories()...)
		}
	}
	return out
}
