package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brutella/hap/accessory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	health        HealthStatus
	healthMessage string
	accessories   []*accessory.A
}

func (s *stubPlugin) ID() string { return s.id }

func (s *stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
	}
}

func (s *stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s *stubPlugin) RegisterGRPC(*grpc.Server) {}

func (s *stubPlugin) Collectors() []prometheus.Collector { return nil }

func (s *stubPlugin) Health() HealthStatus { return s.health }

func (s *stubPlugin) HealthMessage() string { return s.healthMessage }

func (s *stubPlugin) Accessories() []*accessory.A { return s.accessories }

func newStubPlugin(id string) *stubPlugin {
	return &stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"demo.v1.DemoService"},
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func checkHealth(t *testing.T, svc *RegistryService, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := svc.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestRegistryListPlugins(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	plugins := svc.ListPlugins()
	require.Len(t, plugins, 1)

	got := plugins[0]
	assert.Equal(t, "demo", got.PluginID)
	assert.Equal(t, "Demo", got.DisplayName)
	assert.Equal(t, "0.1.0", got.Version)
	assert.Equal(t, string(HealthHealthy), got.Status)
	assert.Equal(t, []string{"/dashboards/demo/demo.json"}, got.Dashboards)
}

func TestRegistrySyncHealth(t *testing.T) {
	plugin := newStubPlugin("demo")
	svc := NewRegistryService([]Plugin{plugin})

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, svc, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, svc, "demo.v1.DemoService"))

	plugin.health = HealthDegraded
	svc.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkHealth(t, svc, "demo"))

	plugin.health = HealthError
	svc.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, svc, "demo"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkHealth(t, svc, ""))
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	require.Len(t, active, 1)
	assert.Equal(t, "demo", active[0].ID())

	active = FilterPlugins(compiled, map[string]bool{}, true)
	assert.Len(t, active, 2)
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	require.NoError(t, ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false))
	require.EqualError(t, ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false),
		"enabled plugins not compiled in: missing")
}

func TestValidatePlugins(t *testing.T) {
	require.NoError(t, ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("other")}))
	require.EqualError(t, ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("demo")}), "duplicate plugin id: demo")
	require.Error(t, ValidatePlugins([]Plugin{newStubPlugin("Demo")}))
}

func TestDashboards(t *testing.T) {
	plugins := []Plugin{newStubPlugin("demo")}

	dashboards := DashboardsMap(plugins)
	assert.Equal(t, []byte("{}"), dashboards["/dashboards/demo/demo.json"])
	assert.JSONEq(t, `{"dashboards":["/dashboards/demo/demo.json"]}`, string(dashboards[DashboardIndexPath]))

	dir := t.TempDir()
	require.NoError(t, WriteDashboards(dir, plugins))
	path := filepath.Join(dir, "demo", "demo.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	before, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, WriteDashboards(dir, plugins))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.NoFileExists(t, path+".tmp")

	require.NoError(t, WriteDashboards("", plugins))
}

func TestMetricsRegistry(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "demo_extra_total", Help: "extra"})
	extra.Inc()

	registry := MetricsRegistry("1.2.3", []Plugin{newStubPlugin("demo")}, extra)
	families, err := registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["indego_build_info"])
	assert.True(t, names["demo_extra_total"])
	assert.True(t, names["go_goroutines"])
}

func TestCollectAccessories(t *testing.T) {
	plugin := newStubPlugin("demo")
	plugin.accessories = []*accessory.A{
		accessory.New(accessory.Info{Name: "One"}, accessory.TypeSwitch),
		accessory.New(accessory.Info{Name: "Two"}, accessory.TypeSensor),
	}

	accs := CollectAccessories([]Plugin{plugin, newStubPlugin("empty")})
	require.Len(t, accs, 2)
	assert.Equal(t, "One", accs[0].Info.Name.Value())
}
