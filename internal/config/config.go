// Package config parses the demo binary's JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = "127.0.0.1:9180"
	defaultStaleAfter    = 5 * time.Second
	defaultEvictionGrace = 5 * time.Minute
)

type Config struct {
	ListenAddr      string     `json:"listen_addr"`
	APIBaseURL      string     `json:"api_base_url"`
	EvictionGraceMS int        `json:"eviction_grace_ms"`
	Resources       []Resource `json:"resources"`
}

type Resource struct {
	Name              string `json:"name"`
	Path              string `json:"path"`
	StaleAfterMS      int    `json:"stale_after_ms"`
	RefetchIntervalMS int    `json:"refetch_interval_ms"`
}

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_base_url is empty")
	}
	if len(c.Resources) == 0 {
		return errors.New("no resources configured")
	}
	seen := make(map[string]struct{}, len(c.Resources))
	for _, res := range c.Resources {
		if res.Name == "" {
			return errors.New("resource name is empty")
		}
		if _, ok := seen[res.Name]; ok {
			return fmt.Errorf("resource name %q is not unique", res.Name)
		}
		seen[res.Name] = struct{}{}
		if !strings.HasPrefix(res.Path, "/") {
			return fmt.Errorf("resource %q path must start with /", res.Name)
		}
	}
	return nil
}

func (c *Config) Listen() string {
	return stringOrDefault(c.ListenAddr, defaultListenAddr)
}

func (c *Config) EvictionGrace() time.Duration {
	return durationOrDefault(c.EvictionGraceMS, defaultEvictionGrace)
}

func (r Resource) StaleAfter() time.Duration {
	return durationOrDefault(r.StaleAfterMS, defaultStaleAfter)
}

func (r Resource) RefetchInterval() time.Duration {
	if r.RefetchIntervalMS <= 0 {
		return 0
	}
	return time.Duration(r.RefetchIntervalMS) * time.Millisecond
}

func durationOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func stringOrDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
