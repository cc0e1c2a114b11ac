package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joshp123/indego-homekit/internal/core"
)

// HealthHandler answers ok while no plugin reports an error, and 503 naming
// the failing plugins otherwise.
func HealthHandler(registry *core.RegistryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var failing []string
		for _, summary := range registry.ListPlugins() {
			if summary.Status == string(core.HealthError) {
				failing = append(failing, summary.PluginID)
			}
		}
		if len(failing) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("error: " + strings.Join(failing, ", ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// PluginsHandler lists plugin summaries as JSON.
func PluginsHandler(registry *core.RegistryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"plugins": registry.ListPlugins()})
	})
}
