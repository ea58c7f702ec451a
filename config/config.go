package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"brick-catalog/api"
	"brick-catalog/catalog"
	"brick-catalog/loader"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full runtime configuration
type Config struct {
	// DataPath is a local directory or an http(s) URL holding the CSV files
	DataPath         string       `toml:"data_path"`
	Files            loader.Files `toml:"files"`
	SplitConcurrency int          `toml:"split_concurrency"`

	Server     ServerConfig     `toml:"server"`
	API        APIConfig        `toml:"api"`
	Cache      CacheConfig      `toml:"cache"`
	Validation ValidationConfig `toml:"validation"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type APIConfig struct {
	BaseURL            string   `toml:"base_url"`
	Keys               []string `toml:"keys"`
	Proxies            []string `toml:"proxies"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	CooldownSeconds    int      `toml:"cooldown_seconds"`
	RateLimitMs        int      `toml:"rate_limit_ms"`
	RetryAfter429Ms    int      `toml:"retry_after_429_ms"`
	BackoffMs          int      `toml:"backoff_ms"`
	Retries            int      `toml:"retries"`
	TimeoutMs          int      `toml:"timeout_ms"`
	PreloadConcurrency int      `toml:"preload_concurrency"`
	ThumbnailSize      int      `toml:"thumbnail_size"`
}

type CacheConfig struct {
	DBPath   string `toml:"db_path"`
	TTLHours int    `toml:"ttl_hours"`
	MaxMB    int    `toml:"max_mb"`
}

type ValidationConfig struct {
	YearMin              int    `toml:"year_min"`
	YearMax              int    `toml:"year_max"`
	CategoryMin          int    `toml:"category_min"`
	CategoryMax          int    `toml:"category_max"`
	AllowLocalImages     bool   `toml:"allow_local_images"`
	SetImageTemplate     string `toml:"set_image_template"`
	MinifigImageTemplate string `toml:"minifig_image_template"`
	PartImageTemplate    string `toml:"part_image_template"`
}

// DefaultProxies are public CORS relays, each taking the url-encoded target appended
var DefaultProxies = []string{
	"https://corsproxy.io/?",
	"https://api.codetabs.com/v1/proxy?quest=",
	"https://yacdn.org/proxy/",
	"https://thingproxy.freeboard.io/fetch/",
	"https://cors-anywhere.herokuapp.com/",
	"https://corsproxy.org/?",
	"https://api.allorigins.win/raw?url=",
}

// Default returns the configuration used when no file is present
func Default() Config {
	rules := catalog.DefaultRules()
	engine := api.DefaultConfig()
	return Config{
		DataPath:         "data/",
		Files:            loader.DefaultFiles(),
		SplitConcurrency: 4,
		Server:           ServerConfig{Addr: ":8080"},
		API: APIConfig{
			BaseURL:            engine.BaseURL,
			Proxies:            append([]string(nil), DefaultProxies...),
			ProxyEnabled:       true,
			CooldownSeconds:    int(api.DefaultCooldown / time.Second),
			RateLimitMs:        int(engine.RateLimitDelay / time.Millisecond),
			RetryAfter429Ms:    int(engine.RetryAfter429 / time.Millisecond),
			BackoffMs:          int(engine.BackoffUnit / time.Millisecond),
			Retries:            engine.DefaultRetries,
			TimeoutMs:          int(engine.DefaultTimeout / time.Millisecond),
			PreloadConcurrency: api.DefaultPreloadConcurrency,
			ThumbnailSize:      engine.ThumbnailSize,
		},
		Cache: CacheConfig{
			DBPath:   "catalog.db",
			TTLHours: 24,
			MaxMB:    50,
		},
		Validation: ValidationConfig{
			YearMin:              rules.YearMin,
			YearMax:              rules.YearMax,
			CategoryMin:          rules.CategoryMin,
			CategoryMax:          rules.CategoryMax,
			SetImageTemplate:     rules.SetImageTemplate,
			MinifigImageTemplate: rules.MinifigImageTemplate,
			PartImageTemplate:    rules.PartImageTemplate,
		},
	}
}

// Load reads a TOML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	file, err := os.Open(expandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv loads an optional .env file and applies environment overrides.
// Variables already set in the environment win over the file.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("REBRICKABLE_API_KEYS")); v != "" {
		cfg.API.Keys = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("CATALOG_DATA_PATH")); v != "" {
		cfg.DataPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CATALOG_DB_PATH")); v != "" {
		cfg.Cache.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("CATALOG_PROXY_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CATALOG_PROXY_ENABLED: %w", err)
		}
		cfg.API.ProxyEnabled = enabled
	}
	return cfg.Validate()
}

// Validate rejects settings the loader or engine cannot run with
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataPath) == "" {
		return errors.New("data_path is required")
	}
	if c.Validation.YearMin > c.Validation.YearMax {
		return fmt.Errorf("validation.year_min %d exceeds year_max %d", c.Validation.YearMin, c.Validation.YearMax)
	}
	if c.Validation.CategoryMin > c.Validation.CategoryMax {
		return fmt.Errorf("validation.category_min %d exceeds category_max %d", c.Validation.CategoryMin, c.Validation.CategoryMax)
	}
	if c.Files.SplitPattern != "" && !strings.Contains(c.Files.SplitPattern, "%") {
		return fmt.Errorf("files.split_pattern %q needs a number verb", c.Files.SplitPattern)
	}
	return nil
}

// IsRemoteData reports whether DataPath is a URL rather than a directory
func (c Config) IsRemoteData() bool {
	return strings.HasPrefix(c.DataPath, "http://") || strings.HasPrefix(c.DataPath, "https://")
}

// DataDir returns DataPath as a local directory path
func (c Config) DataDir() string {
	return expandPath(c.DataPath)
}

// Rules converts the validation section for the catalog store
func (c Config) Rules() catalog.Rules {
	v := c.Validation
	return catalog.Rules{
		YearMin:              v.YearMin,
		YearMax:              v.YearMax,
		CategoryMin:          v.CategoryMin,
		CategoryMax:          v.CategoryMax,
		AllowLocalImages:     v.AllowLocalImages,
		SetImageTemplate:     v.SetImageTemplate,
		MinifigImageTemplate: v.MinifigImageTemplate,
		PartImageTemplate:    v.PartImageTemplate,
	}
}

// Engine converts the api section for the request engine
func (c Config) Engine() api.Config {
	a := c.API
	return api.Config{
		BaseURL:        a.BaseURL,
		RateLimitDelay: time.Duration(a.RateLimitMs) * time.Millisecond,
		RetryAfter429:  time.Duration(a.RetryAfter429Ms) * time.Millisecond,
		BackoffUnit:    time.Duration(a.BackoffMs) * time.Millisecond,
		DefaultRetries: a.Retries,
		DefaultTimeout: time.Duration(a.TimeoutMs) * time.Millisecond,
		ThumbnailSize:  a.ThumbnailSize,
		UserAgent:      "brick-catalog",
	}
}

// Cooldown is how long a failed proxy is skipped
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.API.CooldownSeconds) * time.Second
}

// CacheTTL is the lifetime of a cached API response
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// CacheMaxBytes is the cap on cached response bytes
func (c Config) CacheMaxBytes() int64 {
	return int64(c.Cache.MaxMB) * 1024 * 1024
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
		}
	}
	return trimmed
}
