package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/indego-homekit/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/indego-homekit/dashboards"
	DefaultHomeKitPin   = "00102003"
	DefaultHomeKitStore = "/var/lib/indego-homekit/hap"
	DefaultBridgeName   = "Indego Bridge"
	DefaultBlobPrefix   = "indego-homekit/hap"
	DefaultTopicPrefix  = "indego"

	// DefaultUpdateIntervalMillis is twenty minutes.
	DefaultUpdateIntervalMillis int64 = 1200000

	// homebridgeAccessory is the accessory type used by homebridge-style configs.
	homebridgeAccessory = "BoschIndego"
)

// Config is the bridge configuration file.
type Config struct {
	SchemaVersion int            `yaml:"schema_version"`
	Core          *CoreConfig    `yaml:"core"`
	HomeKit       *HomeKitConfig `yaml:"homekit"`
	MQTT          *MQTTConfig    `yaml:"mqtt"`
	Indego        *IndegoConfig  `yaml:"indego"`

	// Accessories accepts a homebridge accessories list verbatim; entries of
	// type BoschIndego are merged into Indego.Accessories.
	Accessories []AccessoryConfig `yaml:"accessories"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

type HomeKitConfig struct {
	Pin        string      `yaml:"pin"`
	Addr       string      `yaml:"addr"`
	StoreDir   string      `yaml:"store_dir"`
	BridgeName string      `yaml:"bridge_name"`
	Blob       *BlobConfig `yaml:"blob"`
}

// BlobConfig mirrors the HomeKit pairing store to S3-compatible storage.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	ClientID     string `yaml:"client_id"`
	TopicPrefix  string `yaml:"topic_prefix"`
}

type IndegoConfig struct {
	BaseURL           string            `yaml:"base_url"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
	Accessories       []AccessoryConfig `yaml:"accessories"`
}

// AccessoryConfig describes one mower. Keys follow the homebridge plugin.
type AccessoryConfig struct {
	Accessory      string `yaml:"accessory"`
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	Pass           string `yaml:"pass"`
	Model          string `yaml:"model"`
	UpdateInterval *int64 `yaml:"update_interval"`
	ViewLog        bool   `yaml:"view_log"`
	AwaitLogin     bool   `yaml:"await_login"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	var (
		data []byte
		err  error
	)

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML (or JSON) config bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = SchemaVersion
	}

	if cfg.Core == nil {
		cfg.Core = &CoreConfig{}
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if cfg.HomeKit == nil {
		cfg.HomeKit = &HomeKitConfig{}
	}
	if cfg.HomeKit.Pin == "" {
		cfg.HomeKit.Pin = DefaultHomeKitPin
	}
	if cfg.HomeKit.StoreDir == "" {
		cfg.HomeKit.StoreDir = DefaultHomeKitStore
	}
	if cfg.HomeKit.BridgeName == "" {
		cfg.HomeKit.BridgeName = DefaultBridgeName
	}
	if cfg.HomeKit.Blob != nil && cfg.HomeKit.Blob.Prefix == "" {
		cfg.HomeKit.Blob.Prefix = DefaultBlobPrefix
	}

	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	for _, acc := range cfg.Accessories {
		if acc.Accessory != homebridgeAccessory {
			continue
		}
		if cfg.Indego == nil {
			cfg.Indego = &IndegoConfig{}
		}
		cfg.Indego.Accessories = append(cfg.Indego.Accessories, acc)
	}
	cfg.Accessories = nil

	if cfg.Indego == nil {
		return
	}
	for i := range cfg.Indego.Accessories {
		acc := &cfg.Indego.Accessories[i]
		if acc.Password == "" {
			acc.Password = acc.Pass
		}
		if acc.UpdateInterval == nil {
			interval := DefaultUpdateIntervalMillis
			acc.UpdateInterval = &interval
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core == nil {
		return fmt.Errorf("core config is required")
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	if cfg.HomeKit == nil {
		return fmt.Errorf("homekit config is required")
	}
	if err := validatePin(cfg.HomeKit.Pin); err != nil {
		return err
	}
	if blob := cfg.HomeKit.Blob; blob != nil {
		if blob.Endpoint == "" {
			return fmt.Errorf("homekit.blob.endpoint is required")
		}
		if blob.Bucket == "" {
			return fmt.Errorf("homekit.blob.bucket is required")
		}
		if blob.AccessKeyFile == "" {
			return fmt.Errorf("homekit.blob.access_key_file is required")
		}
		if blob.SecretKeyFile == "" {
			return fmt.Errorf("homekit.blob.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	if cfg.Indego != nil {
		if cfg.Indego.RequestsPerMinute < 0 {
			return fmt.Errorf("indego.requests_per_minute must not be negative")
		}
		seen := make(map[string]bool)
		var errs []error
		for i, acc := range cfg.Indego.Accessories {
			field := fmt.Sprintf("indego.accessories[%d]", i)
			switch {
			case strings.TrimSpace(acc.Name) == "":
				errs = append(errs, fmt.Errorf("%s.name is required", field))
			case seen[acc.Name]:
				errs = append(errs, fmt.Errorf("%s.name %q is duplicated", field, acc.Name))
			}
			seen[acc.Name] = true
			if acc.Email == "" {
				errs = append(errs, fmt.Errorf("%s.email is required", field))
			}
			if acc.Password == "" {
				errs = append(errs, fmt.Errorf("%s.password is required", field))
			}
			if acc.UpdateInterval != nil && *acc.UpdateInterval < 0 {
				errs = append(errs, fmt.Errorf("%s.update_interval must not be negative", field))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	return nil
}

func validatePin(pin string) error {
	if len(pin) != 8 {
		return fmt.Errorf("homekit.pin must be 8 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("homekit.pin must be 8 digits")
		}
	}
	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Indego != nil && len(cfg.Indego.Accessories) > 0 {
		enabled["indego"] = true
	}
	return enabled
}

// ReadSecretFile returns the trimmed contents of a credential file.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
