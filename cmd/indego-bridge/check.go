package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joshp123/indego-homekit/internal/config"
	"github.com/joshp123/indego-homekit/plugins/indego"
)

type mowerCheck struct {
	Name           string `json:"name"`
	Model          string `json:"model"`
	Email          string `json:"email"`
	UpdateInterval string `json:"update_interval"`
	ViewLog        bool   `json:"view_log"`
	AwaitLogin     bool   `json:"await_login"`
	Serial         string `json:"serial,omitempty"`
	Error          string `json:"error,omitempty"`
}

func checkConfigCmd(args []string) {
	flags := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("INDEGO_CONFIG", config.DefaultPath), "Path to config.yaml")
	_ = flags.Parse(args)

	pluginCfg := loadPluginConfig(*configPath)
	out := make([]mowerCheck, 0, len(pluginCfg.Mowers))
	for _, mower := range pluginCfg.Mowers {
		out = append(out, describeMower(mower))
	}
	emitJSON(out)
}

// loginCmd performs one login per mower to verify credentials.
func loginCmd(args []string) {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("INDEGO_CONFIG", config.DefaultPath), "Path to config.yaml")
	timeout := flags.Duration("timeout", 10*time.Second, "Timeout for all logins")
	_ = flags.Parse(args)

	pluginCfg := loadPluginConfig(*configPath)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := indego.NewClient(pluginCfg.BaseURL, pluginCfg.HTTPClient())
	failed := false
	out := make([]mowerCheck, 0, len(pluginCfg.Mowers))
	for _, mowerCfg := range pluginCfg.Mowers {
		check := describeMower(mowerCfg)
		session := indego.NewSession(mowerCfg.Credentials, client, log.Logger)
		info, err := session.Authenticate(ctx)
		if err != nil {
			check.Error = err.Error()
			failed = true
		} else {
			check.Serial = info.Serial
		}
		out = append(out, check)
	}
	emitJSON(out)
	if failed {
		os.Exit(1)
	}
}

func loadPluginConfig(path string) indego.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal("load config", err)
	}
	pluginCfg, err := indego.ConfigFromFile(cfg.Indego)
	if err != nil {
		fatal("indego config", err)
	}
	return pluginCfg
}

func describeMower(mower indego.MowerConfig) mowerCheck {
	interval := "disabled"
	if mower.UpdateInterval > 0 {
		interval = mower.UpdateInterval.String()
	}
	return mowerCheck{
		Name:           mower.Name,
		Model:          mower.Model,
		Email:          mower.Credentials.Email,
		UpdateInterval: interval,
		ViewLog:        mower.ViewLog,
		AwaitLogin:     mower.AwaitLogin,
	}
}

func emitJSON(value any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		fatal("encode", err)
	}
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
