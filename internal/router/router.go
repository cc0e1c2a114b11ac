package router

import (
	"google.golang.org/grpc"

	"github.com/joshp123/indego-homekit/internal/core"
)

// RegisterPlugins registers plugin services and the health service on the
// gRPC server.
func RegisterPlugins(server *grpc.Server, plugins []core.Plugin) *core.RegistryService {
	registry := core.NewRegistryService(plugins)
	registry.Register(server)

	for _, p := range plugins {
		p.RegisterGRPC(server)
	}
	return registry
}
