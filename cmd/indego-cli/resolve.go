package main

import (
	"fmt"
	"sort"
	"strings"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_", "/", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolveMowerName matches input against configured mower names, ignoring
// case, spaces and dashes.
func resolveMowerName(input string, names []string) (string, error) {
	needle := normalizeName(input)
	for _, name := range names {
		if normalizeName(name) == needle {
			return name, nil
		}
	}
	available := append([]string(nil), names...)
	sort.Strings(available)
	return "", fmt.Errorf("mower %q not found. Available: %s", input, strings.Join(available, ", "))
}
