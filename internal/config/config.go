package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/john/livewatch/internal/language"
	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/transport"
)

// Config holds the application configuration
type Config struct {
	Language  string          `yaml:"language"`
	LogLevel  string          `yaml:"log_level"`
	Poll      PollConfig      `yaml:"poll"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	Twitch    TwitchConfig    `yaml:"twitch"`
	Kick      KickConfig      `yaml:"kick"`
	Tracked   TrackedConfig   `yaml:"tracked"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	S3        S3Config        `yaml:"s3"`
	Uploader  UploaderConfig  `yaml:"uploader"`
}

// PollConfig holds the status poll schedule
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DiscoveryConfig holds suggestion ranking parameters
type DiscoveryConfig struct {
	Interval           time.Duration `yaml:"interval"` // 0 disables periodic refresh
	Limit              int           `yaml:"limit"`
	FeaturedPages      int           `yaml:"featured_pages"`
	MinLanguageMatches int           `yaml:"min_language_matches"`
	TopPageSize        int           `yaml:"top_page_size"`
}

// TransportConfig selects the outbound HTTP client
type TransportConfig struct {
	Mode       string        `yaml:"mode"` // auto, standard or browser
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// TwitchConfig holds Twitch GraphQL settings
type TwitchConfig struct {
	GQLURL   string `yaml:"gql_url"`
	ClientID string `yaml:"client_id"`
}

// KickConfig holds Kick API settings
type KickConfig struct {
	APIBaseURL        string  `yaml:"api_base_url"`
	FeaturedURL       string  `yaml:"featured_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TrackedConfig seeds the tracked lists
type TrackedConfig struct {
	Favorites []live.ChannelRef `yaml:"favorites"`
	Recents   []live.ChannelRef `yaml:"recents"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig holds the snapshot store settings
type RedisConfig struct {
	URL string        `yaml:"url"` // empty keeps snapshots in memory only
	TTL time.Duration `yaml:"ttl"`
}

// RecorderConfig holds transition recorder configuration
type RecorderConfig struct {
	Enabled         bool   `yaml:"enabled"`
	OutputDir       string `yaml:"output_dir"`
	RotateMinutes   int    `yaml:"rotate_minutes"`
	RotateMegabytes int    `yaml:"rotate_megabytes"`
	BufferSize      int    `yaml:"buffer_size"`
}

// S3Config holds S3 upload configuration. Uploads are disabled when Bucket is empty.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	RoleARN         string `yaml:"role_arn"`          // IAM role ARN for OIDC authentication
	AccessKeyID     string `yaml:"access_key_id"`     // Legacy: static credentials
	SecretAccessKey string `yaml:"secret_access_key"` // Legacy: static credentials
	Endpoint        string `yaml:"endpoint"`          // For S3-compatible services
}

// UploaderConfig holds uploader configuration
type UploaderConfig struct {
	DeleteAfterUpload bool `yaml:"delete_after_upload"`
	MaxRetries        int  `yaml:"max_retries"`
}

// UploadEnabled reports whether rotated recordings are shipped to S3.
func (c *Config) UploadEnabled() bool {
	return c.Recorder.Enabled && c.S3.Bucket != ""
}

// Load loads configuration from a .env file, the YAML file at path and the
// environment, in that order of increasing precedence. A missing YAML file is
// not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv applies environment variable overrides
func (c *Config) applyEnv() {
	c.Language = env.Str("PREFERRED_LANGUAGE", c.Language)
	c.LogLevel = env.Str("LOG_LEVEL", c.LogLevel)
	c.Poll.Interval = env.Duration("POLL_INTERVAL", c.Poll.Interval)
	c.Discovery.Interval = env.Duration("DISCOVERY_INTERVAL", c.Discovery.Interval)
	c.Transport.Mode = env.Str("TRANSPORT_MODE", c.Transport.Mode)
	c.Transport.Timeout = env.Duration("TRANSPORT_TIMEOUT", c.Transport.Timeout)
	c.Transport.MaxRetries = env.Int("TRANSPORT_MAX_RETRIES", c.Transport.MaxRetries)
	c.Kick.RequestsPerSecond = env.Float("KICK_REQUESTS_PER_SECOND", c.Kick.RequestsPerSecond)
	c.Server.Addr = env.Str("SERVER_ADDR", c.Server.Addr)
	c.Redis.URL = env.Str("REDIS_URL", c.Redis.URL)
	c.S3.Bucket = env.Str("S3_BUCKET", c.S3.Bucket)
	c.S3.RoleARN = env.Str("AWS_ROLE_ARN", c.S3.RoleARN)
	c.S3.AccessKeyID = env.Str("S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = env.Str("S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
}

// applyDefaults sets defaults
func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = language.Default
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 30 * time.Second
	}
	if c.Discovery.Limit == 0 {
		c.Discovery.Limit = 8
	}
	if c.Discovery.FeaturedPages == 0 {
		c.Discovery.FeaturedPages = 3
	}
	if c.Discovery.MinLanguageMatches == 0 {
		c.Discovery.MinLanguageMatches = 4
	}
	if c.Discovery.TopPageSize == 0 {
		c.Discovery.TopPageSize = 30
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = string(transport.ModeAuto)
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 10 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 15 * time.Minute
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = 100
	}
	if c.Recorder.RotateMinutes == 0 {
		c.Recorder.RotateMinutes = 60
	}
	if c.Recorder.RotateMegabytes == 0 {
		c.Recorder.RotateMegabytes = 100
	}
	if c.Recorder.OutputDir == "" {
		c.Recorder.OutputDir = "./data"
	}
	if c.Uploader.MaxRetries == 0 {
		c.Uploader.MaxRetries = 3
	}
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if _, ok := language.Lookup(c.Language); !ok {
		return fmt.Errorf("language %q is not supported (want one of %v)", c.Language, language.Codes())
	}
	switch transport.Mode(c.Transport.Mode) {
	case transport.ModeAuto, transport.ModeStandard, transport.ModeBrowser:
	default:
		return fmt.Errorf("transport.mode %q is invalid (want auto, standard or browser)", c.Transport.Mode)
	}
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", c.Poll.Interval)
	}
	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("transport.max_retries must not be negative")
	}

	for name, refs := range map[string][]live.ChannelRef{
		"tracked.favorites": c.Tracked.Favorites,
		"tracked.recents":   c.Tracked.Recents,
	} {
		for i, ref := range refs {
			if _, ok := live.ParsePlatform(string(ref.Platform)); !ok {
				return fmt.Errorf("%s[%d]: unknown platform %q", name, i, ref.Platform)
			}
			if live.NormalizeChannel(ref.Channel) == "" {
				return fmt.Errorf("%s[%d]: channel is required", name, i)
			}
		}
	}

	if !c.UploadEnabled() {
		return nil
	}
	if c.S3.Region == "" {
		return fmt.Errorf("s3.region is required")
	}
	// Either OIDC role or static credentials required
	if c.S3.RoleARN == "" && c.S3.AccessKeyID == "" {
		return fmt.Errorf("either s3.role_arn (OIDC) or s3.access_key_id (legacy) is required")
	}
	if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
		return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
	}
	return nil
}

// Favorites returns the configured favorites with normalized platforms.
func (c *Config) Favorites() []live.ChannelRef { return normalizeRefs(c.Tracked.Favorites) }

// Recents returns the configured recents with normalized platforms.
func (c *Config) Recents() []live.ChannelRef { return normalizeRefs(c.Tracked.Recents) }

func normalizeRefs(refs []live.ChannelRef) []live.ChannelRef {
	out := make([]live.ChannelRef, 0, len(refs))
	for _, ref := range refs {
		p, _ := live.ParsePlatform(string(ref.Platform))
		out = append(out, live.ChannelRef{Channel: ref.Channel, Platform: p})
	}
	return out
}
