package plugins

import (
	"github.com/joshp123/indego-homekit/internal/config"
	"github.com/joshp123/indego-homekit/internal/core"
	"github.com/joshp123/indego-homekit/plugins/indego"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		if cfg.Indego == nil {
			return nil, false
		}
		pluginCfg, err := indego.ConfigFromFile(cfg.Indego)
		if err != nil {
			deps.Logger.Error().Err(err).Msg("indego config")
			return indego.NewPlugin(indego.Config{}, nil, "", deps.Logger), true
		}
		var messenger indego.Messenger
		prefix := ""
		if deps.MQTT != nil && cfg.MQTT != nil {
			messenger = deps.MQTT
			prefix = cfg.MQTT.TopicPrefix
		}
		return indego.NewPlugin(pluginCfg, messenger, prefix, deps.Logger), true
	})
}
