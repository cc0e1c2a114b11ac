package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DashboardIndexPath lists every served dashboard path.
const DashboardIndexPath = "/dashboards/index.json"

func dashboardURL(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap materializes dashboard content to URL paths, plus an index.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	paths := []string{}
	for _, plugin := range plugins {
		id := plugin.Manifest().PluginID
		for _, dash := range plugin.Dashboards() {
			path := dashboardURL(id, dash.Name)
			result[path] = dash.JSON
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	index, _ := json.Marshal(map[string][]string{"dashboards": paths})
	result[DashboardIndexPath] = index
	return result
}

// WriteDashboards writes dashboards to disk for Grafana provisioning. Files
// whose content already matches are left untouched so Grafana does not
// reload them on every bridge restart.
func WriteDashboards(dir string, plugins []Plugin) error {
	if dir == "" {
		return nil
	}

	for _, plugin := range plugins {
		pluginDir := filepath.Join(dir, plugin.Manifest().PluginID)
		for _, dash := range plugin.Dashboards() {
			if err := os.MkdirAll(pluginDir, 0o755); err != nil {
				return fmt.Errorf("create dashboard dir: %w", err)
			}
			path := filepath.Join(pluginDir, dash.Name+".json")
			if err := writeIfChanged(path, dash.JSON); err != nil {
				return fmt.Errorf("write dashboard %s: %w", path, err)
			}
		}
	}

	return nil
}

func writeIfChanged(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
