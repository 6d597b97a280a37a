// Package config defines the origin-map configuration tree consumed by the
// orchestrator and loads it from YAML files.
//
// The origin map describes every virtual host the engine serves: the domain
// patterns that select it, the origin rules that tell the engine where to
// pull media from, and the application settings embedded in each origin.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OriginMap is the root of the origin-map file.
type OriginMap struct {
	Hosts []Host `yaml:"hosts"`
}

// Host describes a single virtual host: its name, the domain patterns that
// route to it, and the origin rules it serves.
type Host struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
	Origins []Origin `yaml:"origins"`
}

// Origin binds a URL-path location to a list of upstream media URLs sharing a
// scheme, together with the application settings the orchestrator uses when it
// materializes the rule.
type Origin struct {
	Location    string      `yaml:"location"`
	Pass        Pass        `yaml:"pass"`
	Application Application `yaml:"application"`
}

// Pass carries the upstream scheme and the ordered URL list for an origin.
// URLs are stored as written in the file; the scheme is prepended at dispatch
// time when an entry omits it.
type Pass struct {
	Scheme string   `yaml:"scheme"`
	URLs   []string `yaml:"urls"`
}

// Application holds the per-application settings embedded in an origin rule.
type Application struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// AppName returns the application name for the origin. When the embedded
// application carries no explicit name, the first path segment of the
// location is used, so an origin at "/live" creates an application "live".
func (o Origin) AppName() string {
	if name := strings.TrimSpace(o.Application.Name); name != "" {
		return name
	}
	trimmed := strings.Trim(o.Location, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

// Load reads and validates an origin-map file.
func Load(path string) (OriginMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return OriginMap{}, fmt.Errorf("read origin map: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates origin-map YAML.
func Parse(raw []byte) (OriginMap, error) {
	var m OriginMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return OriginMap{}, fmt.Errorf("parse origin map: %w", err)
	}
	if err := m.Validate(); err != nil {
		return OriginMap{}, err
	}
	return m, nil
}

// Validate checks structural invariants the orchestrator relies on: host
// names are present and unique, locations start with a slash, and every
// origin names at least one upstream URL.
func (m OriginMap) Validate() error {
	seen := make(map[string]struct{}, len(m.Hosts))
	for _, host := range m.Hosts {
		name := strings.TrimSpace(host.Name)
		if name == "" {
			return fmt.Errorf("origin map: host name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("origin map: duplicate host %q", name)
		}
		seen[name] = struct{}{}
		for _, origin := range host.Origins {
			if !strings.HasPrefix(origin.Location, "/") {
				return fmt.Errorf("origin map: host %q: location %q must start with '/'", name, origin.Location)
			}
			if strings.TrimSpace(origin.Pass.Scheme) == "" {
				return fmt.Errorf("origin map: host %q: origin %q requires a scheme", name, origin.Location)
			}
			if len(origin.Pass.URLs) == 0 {
				return fmt.Errorf("origin map: host %q: origin %q requires at least one URL", name, origin.Location)
			}
			if origin.AppName() == "" {
				return fmt.Errorf("origin map: host %q: origin %q does not yield an application name", name, origin.Location)
			}
		}
	}
	return nil
}
