package indego

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/joshp123/indego-homekit/internal/mqtt"
)

// Messenger is the broker surface the plugin needs.
type Messenger interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, cb func([]byte)) (func(), error)
}

type mqttState struct {
	Mower         string `json:"mower"`
	State         string `json:"state"`
	Mowing        bool   `json:"mowing"`
	Code          *int   `json:"code,omitempty"`
	Status        string `json:"status,omitempty"`
	Serial        string `json:"serial"`
	Authenticated bool   `json:"authenticated"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// mqttBridge publishes mower state and accepts commands for one mower.
type mqttBridge struct {
	messenger Messenger
	mower     *Mower
	prefix    string
}

// BridgeMQTT publishes retained <prefix>/<mower>/mowing and /state on every
// learned value and routes <prefix>/<mower>/set payloads to the poller.
func BridgeMQTT(messenger Messenger, prefix string, mower *Mower) (func(), error) {
	b := &mqttBridge{messenger: messenger, mower: mower, prefix: prefix}
	mower.Poller.OnUpdate(func(bool) { b.publish() })
	mower.Session.OnLogin(func(SessionInfo) { b.publish() })
	return messenger.Subscribe(b.topic("set"), b.handleCommand)
}

func (b *mqttBridge) topic(leaf string) string {
	return mqtt.Topic(b.prefix, b.mower.Name, leaf)
}

func (b *mqttBridge) publish() {
	snap := b.mower.Poller.Snapshot()
	log := b.mower.log

	mowing := "false"
	if snap.State.Mowing() {
		mowing = "true"
	}
	if snap.State.Known() {
		if err := b.messenger.Publish(b.topic("mowing"), []byte(mowing), true); err != nil {
			log.Warn().Err(err).Msg("mqtt publish failed")
			return
		}
	}

	state := mqttState{
		Mower:         b.mower.Name,
		State:         snap.State.String(),
		Mowing:        snap.State.Mowing(),
		Serial:        snap.Session.Serial,
		Authenticated: snap.Session.Authenticated,
	}
	if snap.HasRawCode {
		code := snap.RawCode
		state.Code = &code
		state.Status = StatusName(code)
	}
	if !snap.LastSuccess.IsZero() {
		state.UpdatedAt = snap.LastSuccess.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(state)
	if err != nil {
		log.Warn().Err(err).Msg("mqtt encode state failed")
		return
	}
	if err := b.messenger.Publish(b.topic("state"), payload, true); err != nil {
		log.Warn().Err(err).Msg("mqtt publish failed")
	}
}

func (b *mqttBridge) handleCommand(payload []byte) {
	command := strings.TrimSpace(string(payload))
	var action Action
	if strings.EqualFold(command, "toggle") {
		action = b.mower.Poller.NextAction()
	} else {
		parsed, err := ParseAction(command)
		if err != nil {
			b.mower.log.Warn().Err(err).Msg("mqtt command ignored")
			return
		}
		action = parsed
	}
	b.mower.log.Debug().Str("action", string(action)).Msg("mqtt command")
	b.mower.Accessory.dispatch(func(ctx context.Context) {
		_ = b.mower.Poller.SetDesiredState(ctx, action)
	})
}
