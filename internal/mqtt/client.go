package mqtt

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/joshp123/indego-homekit/internal/config"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Client is a shared broker connection with topic fan-out to callbacks.
type Client struct {
	client      paho.Client
	statusTopic string
	log         zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
}

// Dial connects to the configured broker. The bridge status topic carries a
// retained "online" and a last-will "offline".
func Dial(cfg *config.MQTTConfig, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing mqtt config")
	}
	broker, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker: %w", err)
	}

	opts := paho.NewClientOptions()
	if broker.Scheme == "ssl" || broker.Scheme == "tls" || broker.Scheme == "mqtts" {
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	if cfg.PasswordFile != "" {
		password, err := config.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(password)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	statusTopic := Topic(cfg.TopicPrefix, "bridge", "status")
	opts.SetWill(statusTopic, "offline", qos, true)

	mc := &Client{
		statusTopic: statusTopic,
		log:         logger,
		subs:        make(map[string]map[int]func([]byte)),
	}
	opts.SetDefaultPublishHandler(mc.dispatch)
	opts.OnConnect = func(client paho.Client) {
		mc.log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		client.Publish(statusTopic, qos, true, "online")
		mc.resubscribeAll(client)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		mc.log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return nil, token.Error()
	}
	mc.client = client
	return mc, nil
}

// Subscribe registers cb for topic and returns a function that removes it.
func (c *Client) Subscribe(topic string, cb func([]byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, qos, nil); token.WaitTimeout(publishTimeout) && token.Error() != nil {
			return nil, token.Error()
		}
	}

	return func() {
		c.mu.Lock()
		callbacks := c.subs[topic]
		if callbacks == nil {
			c.mu.Unlock()
			return
		}
		delete(callbacks, id)
		shouldUnsub := len(callbacks) == 0
		if shouldUnsub {
			delete(c.subs, topic)
		}
		c.mu.Unlock()
		if shouldUnsub {
			_ = c.client.Unsubscribe(topic).WaitTimeout(publishTimeout)
		}
	}, nil
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	return token.Error()
}

// Close marks the bridge offline and disconnects.
func (c *Client) Close() {
	_ = c.client.Publish(c.statusTopic, qos, true, "offline").WaitTimeout(publishTimeout)
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func([]byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Payload())
	}
}

func (c *Client) resubscribeAll(client paho.Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		_ = client.Subscribe(topic, qos, nil).WaitTimeout(publishTimeout)
	}
}

// Topic joins non-empty segments with "/", replacing characters that are
// reserved in MQTT topic names.
func Topic(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/ ")
		if part == "" {
			continue
		}
		part = strings.NewReplacer("+", "_", "#", "_", " ", "_").Replace(part)
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}

func randomClientID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("indego-homekit-%d", time.Now().UnixNano())
	}
	return "indego-homekit-" + hex.EncodeToString(buf)
}
