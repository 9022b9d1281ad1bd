package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level" env:"STRIKELAB_LOG_LEVEL"`

	// LogFormat selects the log handler: "text", "json" or "tint"
	LogFormat string `yaml:"log_format" env:"STRIKELAB_LOG_FORMAT"`

	// TempPath is where uploaded videos are written while an analysis is pending
	TempPath string `yaml:"temp_path" env:"STRIKELAB_TEMP_PATH"`

	// ReferencePath is the root directory of the professional reference library.
	// Empty disables the library; references must then be uploaded.
	ReferencePath string `yaml:"reference_path" env:"STRIKELAB_REFERENCE_PATH"`

	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path" env:"STRIKELAB_FFMPEG_PATH"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path" env:"STRIKELAB_FFPROBE_PATH"`

	// Workers is the number of concurrent analyses (default 1)
	Workers int `yaml:"workers" env:"STRIKELAB_WORKERS"`

	// FrameCount is the number of frames sampled per video when a request omits it
	FrameCount int `yaml:"frame_count" env:"STRIKELAB_FRAME_COUNT"`

	// MaxFrameCount caps the frame count a request may ask for
	MaxFrameCount int `yaml:"max_frame_count" env:"STRIKELAB_MAX_FRAME_COUNT"`

	// SeekTimeout bounds the wait for a single seek before a best-effort capture
	SeekTimeout time.Duration `yaml:"seek_timeout" env:"STRIKELAB_SEEK_TIMEOUT"`

	// SettleDelay is an extra pause after a seek completes, before capture
	SettleDelay time.Duration `yaml:"settle_delay" env:"STRIKELAB_SETTLE_DELAY"`

	// DefaultWidth and DefaultHeight size frame buffers when the source has no known dimensions
	DefaultWidth  int `yaml:"default_width" env:"STRIKELAB_DEFAULT_WIDTH"`
	DefaultHeight int `yaml:"default_height" env:"STRIKELAB_DEFAULT_HEIGHT"`

	// Signals selects the power/explosiveness signal provider: "kinematic", "random" or "fixed"
	Signals string `yaml:"signals" env:"STRIKELAB_SIGNALS"`

	// SignalSeed seeds the "random" provider so runs are reproducible
	SignalSeed int64 `yaml:"signal_seed" env:"STRIKELAB_SIGNAL_SEED"`

	// Differences selects the region analyzer: "placeholder" or "deviation"
	Differences string `yaml:"differences" env:"STRIKELAB_DIFFERENCES"`

	// BackendURL is the base URL of the external analysis service
	BackendURL string `yaml:"backend_url" env:"STRIKELAB_BACKEND_URL"`

	// BackendTimeout bounds a single proxied request
	BackendTimeout time.Duration `yaml:"backend_timeout" env:"STRIKELAB_BACKEND_TIMEOUT"`

	// MaxUploadMB caps the size of a multipart upload
	MaxUploadMB int64 `yaml:"max_upload_mb" env:"STRIKELAB_MAX_UPLOAD_MB"`

	// HandoffBackend selects the handoff store: "sqlite" or "redis"
	HandoffBackend string `yaml:"handoff_backend" env:"STRIKELAB_HANDOFF_BACKEND"`

	// HandoffDSN is the SQLite DSN for the handoff store (default: in-memory)
	HandoffDSN string `yaml:"handoff_dsn" env:"STRIKELAB_HANDOFF_DSN"`

	// HandoffTTL is how long an upload stays claimable by an analysis
	HandoffTTL time.Duration `yaml:"handoff_ttl" env:"STRIKELAB_HANDOFF_TTL"`

	RedisAddr     string `yaml:"redis_addr" env:"STRIKELAB_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"STRIKELAB_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STRIKELAB_REDIS_DB"`

	// TracingEndpoint is an OTLP/HTTP trace endpoint; empty disables tracing
	TracingEndpoint string `yaml:"tracing_endpoint" env:"STRIKELAB_TRACING_ENDPOINT"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		TempPath:       filepath.Join(os.TempDir(), "strikelab"),
		ReferencePath:  "",
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		Workers:        1,
		FrameCount:     5,
		MaxFrameCount:  60,
		SeekTimeout:    time.Second,
		SettleDelay:    100 * time.Millisecond,
		DefaultWidth:   640,
		DefaultHeight:  480,
		Signals:        "kinematic",
		SignalSeed:     1,
		Differences:    "placeholder",
		BackendURL:     "http://127.0.0.1:8000",
		BackendTimeout: 2 * time.Minute,
		MaxUploadMB:    512,
		HandoffBackend: "sqlite",
		HandoffDSN:     ":memory:",
		HandoffTTL:     30 * time.Minute,
		RedisAddr:      "localhost:6379",
	}
}

// Load reads config from a YAML file, applying defaults for missing values.
// Environment variables override values from the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left behind by a sparse file.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.TempPath == "" {
		c.TempPath = def.TempPath
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = def.FFprobePath
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxFrameCount < 1 {
		c.MaxFrameCount = def.MaxFrameCount
	}
	if c.FrameCount < 1 {
		c.FrameCount = def.FrameCount
	}
	if c.FrameCount > c.MaxFrameCount {
		c.FrameCount = c.MaxFrameCount
	}
	if c.SeekTimeout <= 0 {
		c.SeekTimeout = def.SeekTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.DefaultWidth <= 0 || c.DefaultHeight <= 0 {
		c.DefaultWidth = def.DefaultWidth
		c.DefaultHeight = def.DefaultHeight
	}
	if c.Signals == "" {
		c.Signals = def.Signals
	}
	if c.Differences == "" {
		c.Differences = def.Differences
	}
	if c.BackendURL == "" {
		c.BackendURL = def.BackendURL
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = def.BackendTimeout
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = def.MaxUploadMB
	}
	if c.HandoffBackend == "" {
		c.HandoffBackend = def.HandoffBackend
	}
	if c.HandoffDSN == "" {
		c.HandoffDSN = def.HandoffDSN
	}
	if c.HandoffTTL <= 0 {
		c.HandoffTTL = def.HandoffTTL
	}
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// UploadDir returns the directory where uploaded videos are stored.
func (c *Config) UploadDir() string {
	return filepath.Join(c.TempPath, "uploads")
}

// MaxUploadBytes returns the multipart size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
