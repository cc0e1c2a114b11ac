package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	haplog "github.com/brutella/hap/log"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/indego-homekit/internal/config"
	"github.com/joshp123/indego-homekit/internal/core"
	"github.com/joshp123/indego-homekit/internal/hapstore"
	"github.com/joshp123/indego-homekit/internal/mqtt"
	"github.com/joshp123/indego-homekit/internal/plugins"
	"github.com/joshp123/indego-homekit/internal/rate"
	"github.com/joshp123/indego-homekit/internal/router"
	"github.com/joshp123/indego-homekit/internal/server"
)

const healthSyncInterval = 30 * time.Second

var version = "0.1.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "check-config":
			checkConfigCmd(os.Args[2:])
			return
		case "login":
			loginCmd(os.Args[2:])
			return
		}
	}

	flags := flag.NewFlagSet("indego-bridge", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("INDEGO_CONFIG", config.DefaultPath), "Path to config.yaml")
	debug := flags.Bool("debug", false, "Enable debug logging")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.Core.GRPCAddr = envOrDefault("INDEGO_GRPC_ADDR", cfg.Core.GRPCAddr)
	cfg.Core.HTTPAddr = envOrDefault("INDEGO_HTTP_ADDR", cfg.Core.HTTPAddr)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug || viewLogEnabled(cfg) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		haplog.Debug.Enable()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("indego bridge")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	deps := plugins.Deps{Logger: log.Logger}
	if cfg.MQTT != nil {
		client, err := mqtt.Dial(cfg.MQTT, log.Logger.With().Str("component", "mqtt").Logger())
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer client.Close()
		deps.MQTT = client
	}

	enabled := config.EnabledPlugins(cfg)
	compiled := plugins.Compiled(cfg, deps)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	if len(active) == 0 {
		log.Warn().Msg("no plugins enabled; only the bridge accessory will be published")
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, log.Logger.With().Str("component", "grpc").Logger())
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	registry := router.RegisterPlugins(grpcServer.Server, active)

	metricsRegistry := core.MetricsRegistry(version, active, rate.MetricsCollectors()...)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warn().Err(err).Msg("write dashboards")
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/health", server.HealthHandler(registry))
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/plugins", server.PluginsHandler(registry))
	httpMux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	for _, p := range active {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(httpMux)
		}
	}
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)

	hapServer, err := newHAPServer(cfg.HomeKit, core.CollectAccessories(active))
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- grpcServer.Serve()
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	go func() {
		errCh <- hapServer.ListenAndServe(ctx)
	}()
	go registry.Run(ctx, healthSyncInterval)

	done := make(chan struct{})
	runners := 0
	for _, p := range active {
		if runner, ok := p.(core.Runner); ok {
			runners++
			go func(r core.Runner) {
				r.Run(ctx)
				done <- struct{}{}
			}(runner)
		}
	}

	log.Info().
		Str("grpc_addr", cfg.Core.GRPCAddr).
		Str("http_addr", cfg.Core.HTTPAddr).
		Int("plugins", len(active)).
		Msg("indego bridge started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("server stopped")
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.Stop(shutdownCtx)
	if ctx.Err() != nil {
		for ; runners > 0; runners-- {
			<-done
		}
	}
	return nil
}

// newHAPServer publishes the bridge and plugin accessories. Pairing data is
// mirrored to object storage when homekit.blob is configured.
func newHAPServer(cfg *config.HomeKitConfig, accessories []*accessory.A) (*hap.Server, error) {
	var store hap.Store = hap.NewFsStore(cfg.StoreDir)
	if cfg.Blob != nil {
		remote, err := hapstore.NewS3Store(cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("hap blob store: %w", err)
		}
		store = hapstore.NewMirror(store, remote, log.Logger.With().Str("component", "hapstore").Logger())
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         cfg.BridgeName,
		Manufacturer: "indego-homekit",
		Model:        "Bridge",
		Firmware:     version,
	})

	hapServer, err := hap.NewServer(store, bridge.A, accessories...)
	if err != nil {
		return nil, fmt.Errorf("hap server: %w", err)
	}
	hapServer.Pin = cfg.Pin
	hapServer.Addr = cfg.Addr
	return hapServer, nil
}

func viewLogEnabled(cfg *config.Config) bool {
	if cfg.Indego == nil {
		return false
	}
	for _, acc := range cfg.Indego.Accessories {
		if acc.ViewLog {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
