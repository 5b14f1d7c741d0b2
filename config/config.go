// Package config loads and validates the watcher configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/buffwatch/models"
)

// File mirrors the on-disk YAML layout.
type File struct {
	Items   []ItemConfig  `yaml:"items"`
	Watcher WatcherConfig `yaml:"watcher"`
}

// ItemConfig is one tracked item record as written by the operator.
type ItemConfig struct {
	DisplayName string `yaml:"display_name"`
	URL         string `yaml:"url"`
	AlarmPrice  string `yaml:"alarm_price"`
}

// WatcherConfig holds optional runtime settings.
type WatcherConfig struct {
	CycleDelaySeconds   int    `yaml:"cycle_delay_seconds"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	ReadyPollMs         int    `yaml:"ready_poll_ms"`
	SoundCommand        string `yaml:"sound_command"`
	MetricsAddr         string `yaml:"metrics_addr"`
	Verbose             bool   `yaml:"verbose"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Items        []models.TrackedItem
	CycleDelay   time.Duration
	FetchTimeout time.Duration
	ReadyPoll    time.Duration
	SoundCommand string
	MetricsAddr  string
	UserAgent    string
	Verbose      bool
}

// Default returns the watcher defaults applied when the file leaves the
// corresponding settings unset.
func Default() *Config {
	return &Config{
		CycleDelay:   10 * time.Second,
		FetchTimeout: 15 * time.Second,
		ReadyPoll:    500 * time.Millisecond,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Load reads, parses, and validates the configuration file. Any failure here
// is fatal to the process; there is no degraded mode without an item list.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg, err := file.Resolve()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve converts the file form into a validated runtime Config.
func (f *File) Resolve() (*Config, error) {
	cfg := Default()

	if len(f.Items) == 0 {
		return nil, fmt.Errorf("item list cannot be empty")
	}

	seen := make(map[string]struct{}, len(f.Items))
	for i, item := range f.Items {
		if item.DisplayName == "" {
			return nil, fmt.Errorf("item %d: display_name cannot be empty", i)
		}
		if _, ok := seen[item.DisplayName]; ok {
			return nil, fmt.Errorf("item %d: duplicate display_name %q", i, item.DisplayName)
		}
		seen[item.DisplayName] = struct{}{}

		parsed, err := url.Parse(item.URL)
		if err != nil {
			return nil, fmt.Errorf("item %q: invalid url: %w", item.DisplayName, err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("item %q: url must include a host", item.DisplayName)
		}

		threshold, err := decimal.NewFromString(item.AlarmPrice)
		if err != nil {
			return nil, fmt.Errorf("item %q: invalid alarm_price %q: %w", item.DisplayName, item.AlarmPrice, err)
		}
		if !threshold.IsPositive() {
			return nil, fmt.Errorf("item %q: alarm_price must be positive, got %s", item.DisplayName, threshold)
		}

		cfg.Items = append(cfg.Items, models.TrackedItem{
			Name:           item.DisplayName,
			SourceURL:      item.URL,
			AlarmThreshold: threshold,
		})
	}

	if f.Watcher.CycleDelaySeconds < 0 {
		return nil, fmt.Errorf("cycle_delay_seconds cannot be negative")
	}
	if f.Watcher.CycleDelaySeconds > 0 {
		cfg.CycleDelay = time.Duration(f.Watcher.CycleDelaySeconds) * time.Second
	}
	if f.Watcher.FetchTimeoutSeconds < 0 {
		return nil, fmt.Errorf("fetch_timeout_seconds cannot be negative")
	}
	if f.Watcher.FetchTimeoutSeconds > 0 {
		cfg.FetchTimeout = time.Duration(f.Watcher.FetchTimeoutSeconds) * time.Second
	}
	if f.Watcher.ReadyPollMs < 0 {
		return nil, fmt.Errorf("ready_poll_ms cannot be negative")
	}
	if f.Watcher.ReadyPollMs > 0 {
		cfg.ReadyPoll = time.Duration(f.Watcher.ReadyPollMs) * time.Millisecond
	}
	cfg.SoundCommand = f.Watcher.SoundCommand
	cfg.MetricsAddr = f.Watcher.MetricsAddr
	cfg.Verbose = f.Watcher.Verbose

	return cfg, nil
}
