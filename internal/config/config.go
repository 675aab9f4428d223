package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nit-coder/leaflet.offline/internal/enumerate"
)

// Config defines configuration for the tilesave CLI.
type Config struct {
	URLTemplate    string           `yaml:"url_template"`
	Subdomains     []string         `yaml:"subdomains"`
	Store          string           `yaml:"store"`
	Bounds         enumerate.Bounds `yaml:"bounds"`
	ZoomLevels     []int            `yaml:"zoom_levels"`
	SaveWhatYouSee bool             `yaml:"save_what_you_see"`
	CurrentZoom    int              `yaml:"current_zoom"`
	MaxZoom        int              `yaml:"max_zoom"`
	MinZoom        int              `yaml:"min_zoom"`
	MaxParallel    int              `yaml:"max_parallel"`
	Progress       bool             `yaml:"progress"`
	Fetch          FetchConfig      `yaml:"fetch"`
}

// FetchConfig defines tile download behavior.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryMaxBackoff time.Duration `yaml:"retry_max_backoff"`
	UserAgent       string        `yaml:"user_agent"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxZoom:     19,
		MinZoom:     5,
		MaxParallel: 50,
		Fetch: FetchConfig{
			Timeout:         30 * time.Second,
			RetryAttempts:   5,
			RetryBackoff:    time.Second,
			RetryMaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	URLTemplate    string            `yaml:"url_template"`
	Subdomains     []string          `yaml:"subdomains"`
	Store          string            `yaml:"store"`
	Bounds         *enumerate.Bounds `yaml:"bounds"`
	ZoomLevels     []int             `yaml:"zoom_levels"`
	SaveWhatYouSee bool              `yaml:"save_what_you_see"`
	CurrentZoom    int               `yaml:"current_zoom"`
	MaxZoom        int               `yaml:"max_zoom"`
	MinZoom        int               `yaml:"min_zoom"`
	MaxParallel    int               `yaml:"max_parallel"`
	Progress       bool              `yaml:"progress"`
	Fetch          yamlFetchConfig   `yaml:"fetch"`
}

type yamlFetchConfig struct {
	Timeout         string `yaml:"timeout"`
	RetryAttempts   int    `yaml:"retry_attempts"`
	RetryBackoff    string `yaml:"retry_backoff"`
	RetryMaxBackoff string `yaml:"retry_max_backoff"`
	UserAgent       string `yaml:"user_agent"`
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URLTemplate != "" {
		cfg.URLTemplate = yc.URLTemplate
	}
	if len(yc.Subdomains) > 0 {
		cfg.Subdomains = yc.Subdomains
	}
	if yc.Store != "" {
		cfg.Store = yc.Store
	}
	if yc.Bounds != nil {
		cfg.Bounds = *yc.Bounds
	}
	if len(yc.ZoomLevels) > 0 {
		cfg.ZoomLevels = yc.ZoomLevels
	}
	cfg.SaveWhatYouSee = yc.SaveWhatYouSee
	cfg.Progress = yc.Progress
	if yc.CurrentZoom != 0 {
		cfg.CurrentZoom = yc.CurrentZoom
	}
	if yc.MaxZoom != 0 {
		cfg.MaxZoom = yc.MaxZoom
	}
	if yc.MinZoom != 0 {
		cfg.MinZoom = yc.MinZoom
	}
	if yc.MaxParallel != 0 {
		cfg.MaxParallel = yc.MaxParallel
	}
	if yc.Fetch.Timeout != "" {
		d, err := time.ParseDuration(yc.Fetch.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.timeout: %w", err)
		}
		cfg.Fetch.Timeout = d
	}
	if yc.Fetch.RetryAttempts != 0 {
		cfg.Fetch.RetryAttempts = yc.Fetch.RetryAttempts
	}
	if yc.Fetch.RetryBackoff != "" {
		d, err := time.ParseDuration(yc.Fetch.RetryBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.retry_backoff: %w", err)
		}
		cfg.Fetch.RetryBackoff = d
	}
	if yc.Fetch.RetryMaxBackoff != "" {
		d, err := time.ParseDuration(yc.Fetch.RetryMaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse fetch.retry_max_backoff: %w", err)
		}
		cfg.Fetch.RetryMaxBackoff = d
	}
	if yc.Fetch.UserAgent != "" {
		cfg.Fetch.UserAgent = yc.Fetch.UserAgent
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TILESAVE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TILESAVE_URL_TEMPLATE"); v != "" {
		c.URLTemplate = v
	}
	if v := os.Getenv("TILESAVE_SUBDOMAINS"); v != "" {
		c.Subdomains = strings.Split(v, ",")
	}
	if v := os.Getenv("TILESAVE_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("TILESAVE_BOUNDS"); v != "" {
		b, err := ParseBounds(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_BOUNDS: %w", err)
		}
		c.Bounds = b
	}
	if v := os.Getenv("TILESAVE_ZOOM_LEVELS"); v != "" {
		zooms, err := ParseZoomLevels(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_ZOOM_LEVELS: %w", err)
		}
		c.ZoomLevels = zooms
	}
	if v := os.Getenv("TILESAVE_SAVE_WHAT_YOU_SEE"); v != "" {
		c.SaveWhatYouSee = v == "true" || v == "1"
	}
	if v := os.Getenv("TILESAVE_CURRENT_ZOOM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_CURRENT_ZOOM: %w", err)
		}
		c.CurrentZoom = n
	}
	if v := os.Getenv("TILESAVE_MAX_ZOOM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_MAX_ZOOM: %w", err)
		}
		c.MaxZoom = n
	}
	if v := os.Getenv("TILESAVE_MIN_ZOOM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_MIN_ZOOM: %w", err)
		}
		c.MinZoom = n
	}
	if v := os.Getenv("TILESAVE_MAX_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_MAX_PARALLEL: %w", err)
		}
		c.MaxParallel = n
	}
	if v := os.Getenv("TILESAVE_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("TILESAVE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse TILESAVE_FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout = d
	}
	if v := os.Getenv("TILESAVE_USER_AGENT"); v != "" {
		c.Fetch.UserAgent = v
	}

	return nil
}

// Validate validates the configuration for a save run.
func (c *Config) Validate() error {
	if c.URLTemplate == "" {
		return errors.New("config: url_template is required")
	}
	if !strings.Contains(c.URLTemplate, "{z}") ||
		!strings.Contains(c.URLTemplate, "{x}") ||
		!strings.Contains(c.URLTemplate, "{y}") {
		return errors.New("config: url_template must contain {z}, {x} and {y}")
	}
	if c.Store == "" {
		return errors.New("config: store is required")
	}
	if c.MaxParallel <= 0 {
		return errors.New("config: max_parallel must be positive")
	}
	if !c.Bounds.Valid() {
		return errors.New("config: bounds out of range")
	}
	if !c.SaveWhatYouSee && len(c.ZoomLevels) == 0 {
		return errors.New("config: zoom_levels is required unless save_what_you_see is set")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URLTemplate != "" {
		c.URLTemplate = override.URLTemplate
	}
	if len(override.Subdomains) > 0 {
		c.Subdomains = override.Subdomains
	}
	if override.Store != "" {
		c.Store = override.Store
	}
	if override.Bounds != (enumerate.Bounds{}) {
		c.Bounds = override.Bounds
	}
	if len(override.ZoomLevels) > 0 {
		c.ZoomLevels = override.ZoomLevels
	}
	if override.SaveWhatYouSee {
		c.SaveWhatYouSee = override.SaveWhatYouSee
	}
	if override.CurrentZoom != 0 {
		c.CurrentZoom = override.CurrentZoom
	}
	if override.MaxZoom != 0 {
		c.MaxZoom = override.MaxZoom
	}
	if override.MinZoom != 0 {
		c.MinZoom = override.MinZoom
	}
	if override.MaxParallel != 0 {
		c.MaxParallel = override.MaxParallel
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Fetch.Timeout != 0 {
		c.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.RetryAttempts != 0 {
		c.Fetch.RetryAttempts = override.Fetch.RetryAttempts
	}
	if override.Fetch.RetryBackoff != 0 {
		c.Fetch.RetryBackoff = override.Fetch.RetryBackoff
	}
	if override.Fetch.RetryMaxBackoff != 0 {
		c.Fetch.RetryMaxBackoff = override.Fetch.RetryMaxBackoff
	}
	if override.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = override.Fetch.UserAgent
	}
	return c
}

// ParseBounds parses a "north,west,south,east" string.
func ParseBounds(s string) (enumerate.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return enumerate.Bounds{}, fmt.Errorf("expected north,west,south,east, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return enumerate.Bounds{}, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		vals[i] = f
	}
	return enumerate.Bounds{North: vals[0], West: vals[1], South: vals[2], East: vals[3]}, nil
}

// ParseZoomLevels parses a comma-separated list of zoom levels.
func ParseZoomLevels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	zooms := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid zoom level %q: %w", p, err)
		}
		zooms = append(zooms, n)
	}
	return zooms, nil
}
