// Package plugin runs external outcome hooks. A plugin is a directory with a
// plugin.json manifest and an executable that reads one JSON request on stdin
// and writes one JSON response on stdout.
package plugin

import (
	"encoding/json"
	"slices"
)

// ManifestFile is the manifest looked up in every plugin directory.
const ManifestFile = "plugin.json"

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
}

// Request is sent to a plugin for one event.
type Request struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Response is what a plugin writes back.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the plugin subscribed to event.
func (p *Plugin) Handles(event string) bool {
	return slices.Contains(p.Manifest.Events, event)
}
