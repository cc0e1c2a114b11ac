package indego

import (
	"github.com/rs/zerolog"
)

// Mower bundles the session, poller and accessory for one configured mower.
type Mower struct {
	Name      string
	Model     string
	Session   *Session
	Poller    *Poller
	Accessory *Accessory
	HomeKit   *HomeKit

	log zerolog.Logger
}

// NewMower wires a mower to its HomeKit accessory. The logger is lowered to
// debug when view_log is set.
func NewMower(cfg MowerConfig, client *Client, logger zerolog.Logger) *Mower {
	log := logger.With().Str("mower", cfg.Name).Logger()
	if cfg.ViewLog {
		log = log.Level(zerolog.DebugLevel)
	} else if log.GetLevel() < zerolog.InfoLevel {
		log = log.Level(zerolog.InfoLevel)
	}

	session := NewSession(cfg.Credentials, client, log)
	poller := NewPoller(session, client, cfg.AwaitLogin, log)
	homeKit := NewHomeKit(cfg.Name, cfg.Model, session.Snapshot().Serial)
	accessory := NewAccessory(cfg.Name, poller, session, homeKit, cfg.UpdateInterval, log)
	homeKit.Bind(accessory)

	return &Mower{
		Name:      cfg.Name,
		Model:     cfg.Model,
		Session:   session,
		Poller:    poller,
		Accessory: accessory,
		HomeKit:   homeKit,
		log:       log,
	}
}
