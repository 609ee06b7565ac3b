package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Detection DetectionConfig `yaml:"detection"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type DetectionConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type MonitorConfig struct {
	FrameInterval   time.Duration `yaml:"frame_interval"`   // spacing between extracted frames
	FrameWidth      int           `yaml:"frame_width"`      // downscale width for extracted frames
	DedupCapacity   int           `yaml:"dedup_capacity"`   // seen-segment cache size
	StartStagger    time.Duration `yaml:"start_stagger"`    // delay between session starts
	ErrorBackoff    time.Duration `yaml:"error_backoff"`    // stream loop sleep after a failed cycle
	PollInterval    time.Duration `yaml:"poll_interval"`    // extra sleep between stream cycles
	ManifestTimeout time.Duration `yaml:"manifest_timeout"` // playlist fetch timeout
	SegmentTimeout  time.Duration `yaml:"segment_timeout"`  // segment download timeout
	CaptureInterval time.Duration `yaml:"capture_interval"` // periodic-capture tick
	CaptureDuration time.Duration `yaml:"capture_duration"` // recorded clip length
	ProbeInterval   time.Duration `yaml:"probe_interval"`   // health probe cadence
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`    // health probe timeout
	ClipRetention   int           `yaml:"clip_retention"`   // clips kept per camera, 0 disables cleanup
	WorkerCount     int           `yaml:"worker_count"`     // capture-job consumer concurrency
	TempDir         string        `yaml:"temp_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Detection.Timeout == 0 {
		cfg.Detection.Timeout = 30 * time.Second
	}
	if cfg.Monitor.FrameInterval == 0 {
		cfg.Monitor.FrameInterval = 2 * time.Second
	}
	if cfg.Monitor.FrameWidth == 0 {
		cfg.Monitor.FrameWidth = 640
	}
	if cfg.Monitor.DedupCapacity == 0 {
		cfg.Monitor.DedupCapacity = 50
	}
	if cfg.Monitor.StartStagger == 0 {
		cfg.Monitor.StartStagger = 2 * time.Second
	}
	if cfg.Monitor.ErrorBackoff == 0 {
		cfg.Monitor.ErrorBackoff = 10 * time.Second
	}
	if cfg.Monitor.ManifestTimeout == 0 {
		cfg.Monitor.ManifestTimeout = 5 * time.Second
	}
	if cfg.Monitor.SegmentTimeout == 0 {
		cfg.Monitor.SegmentTimeout = 10 * time.Second
	}
	if cfg.Monitor.CaptureInterval == 0 {
		cfg.Monitor.CaptureInterval = 5 * time.Minute
	}
	if cfg.Monitor.CaptureDuration == 0 {
		cfg.Monitor.CaptureDuration = 30 * time.Second
	}
	if cfg.Monitor.ProbeInterval == 0 {
		cfg.Monitor.ProbeInterval = time.Minute
	}
	if cfg.Monitor.ProbeTimeout == 0 {
		cfg.Monitor.ProbeTimeout = 5 * time.Second
	}
	if cfg.Monitor.WorkerCount == 0 {
		cfg.Monitor.WorkerCount = 4
	}
	if cfg.Monitor.TempDir == "" {
		cfg.Monitor.TempDir = os.TempDir()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("RW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("RW_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("RW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("RW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("RW_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("RW_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("RW_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("RW_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("RW_DETECTION_URL"); v != "" {
		cfg.Detection.ServiceURL = v
	}
	if v := os.Getenv("RW_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.WorkerCount = n
		}
	}
}
