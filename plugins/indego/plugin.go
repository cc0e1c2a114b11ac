package indego

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/brutella/hap/accessory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/joshp123/indego-homekit/internal/core"
)

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the bridge plugin contract for Bosch Indego mowers.
type Plugin struct {
	mowers        []*Mower
	messenger     Messenger
	topicPrefix   string
	log           zerolog.Logger
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin builds one mower per configured accessory. A nil messenger
// disables MQTT.
func NewPlugin(cfg Config, messenger Messenger, topicPrefix string, logger zerolog.Logger) Plugin {
	log := logger.With().Str("plugin", "indego").Logger()
	if len(cfg.Mowers) == 0 {
		return Plugin{log: log, health: core.HealthError, healthMessage: "no mowers configured"}
	}

	client := NewClient(cfg.BaseURL, cfg.HTTPClient())
	p := Plugin{
		messenger:   messenger,
		topicPrefix: topicPrefix,
		log:         log,
		health:      core.HealthHealthy,
	}
	for _, mowerCfg := range cfg.Mowers {
		p.mowers = append(p.mowers, NewMower(mowerCfg, client, log))
	}
	return p
}

func (p Plugin) ID() string {
	return "indego"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "indego",
		DisplayName: "Bosch Indego",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "indego-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterGRPC(server *grpc.Server) {
	if err := RegisterIndegoService(server, p.mowers); err != nil {
		p.log.Error().Err(err).Msg("register indego service")
	}
}

func (p Plugin) Collectors() []prometheus.Collector {
	if len(p.mowers) == 0 {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.mowers)}
}

// Accessories returns the HomeKit accessories, one per mower.
func (p Plugin) Accessories() []*accessory.A {
	out := make([]*accessory.A, 0, len(p.mowers))
	for _, mower := range p.mowers {
		out = append(out, mower.HomeKit.A)
	}
	return out
}

func (p Plugin) Mowers() []*Mower {
	return p.mowers
}

// Run starts the MQTT bridge and every mower timer, then blocks until ctx is
// done and dispatched requests settle.
func (p Plugin) Run(ctx context.Context) {
	if p.messenger != nil {
		for _, mower := range p.mowers {
			unsubscribe, err := BridgeMQTT(p.messenger, p.topicPrefix, mower)
			if err != nil {
				p.log.Warn().Err(err).Str("mower", mower.Name).Msg("mqtt bridge disabled")
				continue
			}
			defer unsubscribe()
		}
	}

	var wg sync.WaitGroup
	for _, mower := range p.mowers {
		wg.Add(1)
		go func(mower *Mower) {
			defer wg.Done()
			mower.Accessory.Run(ctx)
		}(mower)
	}
	wg.Wait()
	<-ctx.Done()
	for _, mower := range p.mowers {
		mower.Accessory.Wait()
	}
}

// Health degrades when any mower's last exchange failed for a reason other
// than a dropped or unmapped request.
func (p Plugin) Health() core.HealthStatus {
	if p.health != core.HealthHealthy {
		return p.health
	}
	if len(p.failures()) > 0 {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (p Plugin) HealthMessage() string {
	if p.health != core.HealthHealthy {
		return p.healthMessage
	}
	failures := p.failures()
	if len(failures) == 0 {
		return fmt.Sprintf("%d mower(s) ok", len(p.mowers))
	}
	return strings.Join(failures, "; ")
}

func (p Plugin) failures() []string {
	var out []string
	for _, mower := range p.mowers {
		err := mower.Poller.Snapshot().LastError
		if err == nil || errors.Is(err, ErrBusy) || errors.Is(err, ErrUnknownStatus) {
			continue
		}
		out = append(out, mower.Name+": "+err.Error())
	}
	return out
}
