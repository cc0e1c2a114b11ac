package plugins

import (
	"github.com/rs/zerolog"

	"github.com/joshp123/indego-homekit/internal/mqtt"
)

// Deps carries shared infrastructure into plugin factories.
type Deps struct {
	Logger zerolog.Logger
	// MQTT is nil when no broker is configured.
	MQTT *mqtt.Client
}
