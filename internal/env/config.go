package env

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 4222
	DefaultHTTPPort       = 8222
	DefaultMaxPayload     = 1024 * 1024
	DefaultMaxControlLine = 4096
	DefaultLogLevel       = "info"
)

type Config struct {
	Host      string `yaml:"host" env:"NATSCODEC_HOST"`
	Port      int    `yaml:"port" env:"NATSCODEC_PORT"`
	HTTPPort  int    `yaml:"http_port" env:"NATSCODEC_HTTP_PORT"`
	DebugHTTP bool   `yaml:"debug_http" env:"NATSCODEC_DEBUG_HTTP"`

	// ServerName is sent as the INFO server_id, random when empty
	ServerName     string `yaml:"server_name" env:"NATSCODEC_SERVER_NAME"`
	MaxPayload     int64  `yaml:"max_payload" env:"NATSCODEC_MAX_PAYLOAD"`
	MaxControlLine int    `yaml:"max_control_line" env:"NATSCODEC_MAX_CONTROL_LINE"`
	NumListeners   int    `yaml:"num_listeners" env:"NATSCODEC_NUM_LISTENERS"`

	LogLevel string `yaml:"log_level" env:"NATSCODEC_LOG_LEVEL"`
	Trace    bool   `yaml:"trace" env:"NATSCODEC_TRACE"`
}

// LoadConfig reads .env.local and the environment, then the yaml file at
// path when one is given. Keys set in the file win over the environment.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Failed to load .env.local: %w", err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Failed to read config '%s': %w", path, err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("Failed to parse config '%s': %w", path, err)
		}
	}

	config.SetDefaults()

	return &config, nil
}

func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}

	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}

	if c.MaxPayload <= 0 {
		c.MaxPayload = DefaultMaxPayload
	}

	if c.MaxControlLine <= 0 {
		c.MaxControlLine = DefaultMaxControlLine
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}
