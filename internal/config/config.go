package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.yaml
var exampleConf []byte

const envPrefix = "PLAYLISTFILL_"

// Config holds all configuration for playlistfill
type Config struct {
	Site      string         `yaml:"site"`
	Browser   BrowserConfig  `yaml:"browser"`
	Timing    TimingConfig   `yaml:"timing"`
	Selectors SelectorConfig `yaml:"selectors"`
	Labels    LabelConfig    `yaml:"labels"`
	Logging   LoggingConfig  `yaml:"logging"`
	History   HistoryConfig  `yaml:"history"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
}

// BrowserConfig controls how the browser is launched or attached to
type BrowserConfig struct {
	ControlURL  string        `yaml:"control_url"`
	ProfileDir  string        `yaml:"profile_dir"`
	Bin         string        `yaml:"bin"`
	Headless    bool          `yaml:"headless"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	URL         string        `yaml:"url"`
	ListTimeout time.Duration `yaml:"list_timeout"`
}

// TimingConfig holds the settle delays of the per-item interaction and the scroll loop
type TimingConfig struct {
	MenuSettle     time.Duration `yaml:"menu_settle"`
	PickerSettle   time.Duration `yaml:"picker_settle"`
	PostAction     time.Duration `yaml:"post_action"`
	ScrollDelay    time.Duration `yaml:"scroll_delay"`
	MaxProbes      int           `yaml:"max_probes"`
	ScrollFraction float64       `yaml:"scroll_fraction"`
}

// SelectorConfig holds the CSS selectors used to read and drive the list page
type SelectorConfig struct {
	Item          string `yaml:"item"`
	TrackLink     string `yaml:"track_link"`
	Title         string `yaml:"title"`
	Artist        string `yaml:"artist"`
	IndexAttr     string `yaml:"index_attr"`
	MenuButton    string `yaml:"menu_button"`
	MenuEntry     string `yaml:"menu_entry"`
	PresentMarker string `yaml:"present_marker"`
}

// LabelConfig holds visible texts matched in menus
type LabelConfig struct {
	AddAction string `yaml:"add_action"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// HistoryConfig controls the run journal
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SnapshotConfig controls failure screenshots
type SnapshotConfig struct {
	Dir      string `yaml:"dir"`
	MaxWidth uint   `yaml:"max_width"`
}

// Default returns the configuration from the embedded example file
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "playlistfill.yaml"
	}
	return filepath.Join(dir, "playlistfill", "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path (if it exists),
// a .env file in the working directory and PLAYLISTFILL_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("SITE"); ok {
		c.Site = v
	}
	if v, ok := lookup("CONTROL_URL"); ok {
		c.Browser.ControlURL = v
	}
	if v, ok := lookup("PROFILE"); ok {
		c.Browser.ProfileDir = v
	}
	if v, ok := lookup("BROWSER_BIN"); ok {
		c.Browser.Bin = v
	}
	if v, ok := lookup("URL"); ok {
		c.Browser.URL = v
	}
	if v, ok := lookup("HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sHEADLESS: %w", envPrefix, err)
		}
		c.Browser.Headless = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.Logging.File = v
	}
	if v, ok := lookup("HISTORY_PATH"); ok {
		c.History.Path = v
	}
	if v, ok := lookup("SNAPSHOT_DIR"); ok {
		c.Snapshots.Dir = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate checks the configuration for values the engine cannot work with
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Site) == "" {
		errs = append(errs, errors.New("site must not be empty"))
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		errs = append(errs, fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.Width, c.Browser.Height))
	}
	if c.Timing.MenuSettle < 0 || c.Timing.PickerSettle < 0 || c.Timing.PostAction < 0 || c.Timing.ScrollDelay < 0 {
		errs = append(errs, errors.New("timing delays must not be negative"))
	}
	if c.Timing.MaxProbes <= 0 {
		errs = append(errs, fmt.Errorf("timing.max_probes must be positive, got %d", c.Timing.MaxProbes))
	}
	if c.Timing.ScrollFraction <= 0 || c.Timing.ScrollFraction > 1 {
		errs = append(errs, fmt.Errorf("timing.scroll_fraction must be in (0, 1], got %v", c.Timing.ScrollFraction))
	}
	if c.Selectors.Item == "" || c.Selectors.MenuButton == "" || c.Selectors.MenuEntry == "" {
		errs = append(errs, errors.New("selectors.item, selectors.menu_button and selectors.menu_entry are required"))
	}
	if strings.TrimSpace(c.Labels.AddAction) == "" {
		errs = append(errs, errors.New("labels.add_action must not be empty"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// HistoryPath returns the run journal location, falling back to the user config dir
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(filepath.Dir(DefaultPath()), "history.db")
}

// WriteExample writes the embedded example configuration to path.
// It refuses to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
