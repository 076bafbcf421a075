package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/strrl/brightspots/internal/survey"
)

const DefaultPath = "brightspots.yaml"

// Config holds the dashboard session and server settings.
type Config struct {
	// Record and theme sources: http(s) URLs or local paths.
	DataSource   string `yaml:"data_source"`
	ThemesSource string `yaml:"themes_source"`

	// Delta session scope. Both must be set for pulls and pushes to happen.
	DeltasFolder string `yaml:"deltas_folder"`
	RecordID     string `yaml:"record_id"`

	Admin bool `yaml:"admin"`

	Server  ServerConfig  `yaml:"server"`
	Journal JournalConfig `yaml:"journal"`

	Timeout  string `yaml:"timeout"`
	Location string `yaml:"location"`

	Fields survey.FieldMap `yaml:"fields"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// DeltasDir makes the server act as the remote delta folder when set.
	DeltasDir    string   `yaml:"deltas_dir"`
	AllowOrigins []string `yaml:"allow_origins"`
	ReadTimeout  string   `yaml:"read_timeout"`
	WriteTimeout string   `yaml:"write_timeout"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		DataSource:   "data/brightspots.json",
		ThemesSource: "data/main-themes.json",
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
			ReadTimeout:  "15s",
			WriteTimeout: "60s",
		},
		Timeout:  "30s",
		Location: "Local",
		Fields:   survey.DefaultFields(),
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.Fields = cfg.Fields.WithDefaults()
	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BRIGHTSPOTS_DATA_SOURCE"); v != "" {
		c.DataSource = v
	}
	if v := os.Getenv("BRIGHTSPOTS_THEMES_SOURCE"); v != "" {
		c.ThemesSource = v
	}
	if v := os.Getenv("BRIGHTSPOTS_DELTAS_FOLDER"); v != "" {
		c.DeltasFolder = v
	}
	if v := os.Getenv("BRIGHTSPOTS_RECORD_ID"); v != "" {
		c.RecordID = v
	}
	if v := os.Getenv("BRIGHTSPOTS_ADMIN"); v != "" {
		c.Admin = parseBool(v)
	}
	if v := os.Getenv("BRIGHTSPOTS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BRIGHTSPOTS_DELTAS_DIR"); v != "" {
		c.Server.DeltasDir = v
	}
	if v := os.Getenv("BRIGHTSPOTS_JOURNAL"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("BRIGHTSPOTS_TIMEOUT"); v != "" {
		c.Timeout = v
	}
}

// parseBool accepts the admin=yes convention as well as strconv forms.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "yes" || v == "y" || v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

func (c *Config) GetWriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetLocation resolves the zone used to read survey start times.
func (c *Config) GetLocation() (*time.Location, error) {
	switch c.Location {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	return loc, nil
}

// DeltaScoped reports whether the session is bound to a single record.
func (c *Config) DeltaScoped() bool {
	return c.DeltasFolder != "" && c.RecordID != ""
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataSource) == "" {
		return fmt.Errorf("data source not configured (set --data or BRIGHTSPOTS_DATA_SOURCE)")
	}
	if (c.DeltasFolder == "") != (c.RecordID == "") {
		return fmt.Errorf("deltas folder and record id must be set together")
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}
	if _, err := c.GetLocation(); err != nil {
		return err
	}
	return nil
}
