package indego

import (
	"fmt"
	"net/http"
	"time"

	"github.com/joshp123/indego-homekit/internal/config"
	"github.com/joshp123/indego-homekit/internal/rate"
)

// Config holds runtime settings for the Indego plugin.
type Config struct {
	BaseURL           string
	RequestsPerMinute int
	Mowers            []MowerConfig
}

// MowerConfig describes one configured mower accessory.
type MowerConfig struct {
	Name           string
	Model          string
	Credentials    Credentials
	UpdateInterval time.Duration
	ViewLog        bool
	AwaitLogin     bool
}

// ConfigFromFile converts the file config into runtime settings.
func ConfigFromFile(cfg *config.IndegoConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("indego config is required")
	}
	if len(cfg.Accessories) == 0 {
		return Config{}, fmt.Errorf("indego.accessories is empty")
	}

	out := Config{
		BaseURL:           cfg.BaseURL,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	for _, acc := range cfg.Accessories {
		password := acc.Password
		if password == "" {
			password = acc.Pass
		}
		interval := DefaultUpdateInterval
		if acc.UpdateInterval != nil {
			interval = time.Duration(*acc.UpdateInterval) * time.Millisecond
		}
		model := acc.Model
		if model == "" {
			model = "Indego"
		}
		out.Mowers = append(out.Mowers, MowerConfig{
			Name:           acc.Name,
			Model:          model,
			Credentials:    Credentials{Email: acc.Email, Password: password},
			UpdateInterval: interval,
			ViewLog:        acc.ViewLog,
			AwaitLogin:     acc.AwaitLogin,
		})
	}
	return out, nil
}

// HTTPClient returns the vendor client. With a request budget configured the
// client refuses calls over it and honours Retry-After; with none every call
// goes out and responses are only recorded.
func (c Config) HTTPClient() *http.Client {
	decl := rate.Provider("indego")
	if c.RequestsPerMinute > 0 {
		decl = decl.
			MaxRequestsPer(rate.Minute, c.RequestsPerMinute).
			ReadHeaders(rate.StandardHeaders())
	}
	return rate.WrapHTTP(decl, &http.Client{Timeout: requestTimeout})
}
