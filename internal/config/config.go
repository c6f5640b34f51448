package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores server configuration parameters. The same file drives both
// the HTTP server and the local CLI predictor.
type Config struct {
	// web server parts
	Port    int    `yaml:"port" json:"port"`         // server port number
	LogFile string `yaml:"log_file" json:"log_file"` // server log file
	Verbose int    `yaml:"verbose" json:"verbose"`   // verbose output
	Rate    string `yaml:"rate" json:"rate"`         // limiter rate value, e.g. "100-S"

	// model parts
	Model        string  `yaml:"model" json:"model"`                 // path to the ONNX model artifact
	Labels       string  `yaml:"labels" json:"labels"`               // path to the class-names manifest
	DataDir      string  `yaml:"data_dir" json:"data_dir"`           // dataset root, alternative label source
	ImageSize    int     `yaml:"image_size" json:"image_size"`       // target H and W of the input tensor
	PixelScale   float32 `yaml:"pixel_scale" json:"pixel_scale"`     // multiplier applied to raw 0-255 samples
	MaxTopN      int     `yaml:"max_top_n" json:"max_top_n"`         // upper bound on requested predictions
	DefaultTopN  int     `yaml:"default_top_n" json:"default_top_n"` // predictions returned when n is omitted
	MaxInFlight  int     `yaml:"max_concurrent" json:"max_concurrent"`
	ScoreTimeout string  `yaml:"score_timeout" json:"score_timeout"`
}

// Load parses the configuration file at path. YAML and JSON are both
// accepted; files ending in .json are parsed as JSON, everything else as
// YAML. Missing values receive defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	cfg.fillDefaults()
	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	var cfg Config
	cfg.fillDefaults()
	return &cfg
}

func (c *Config) fillDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.Rate == "" {
		c.Rate = "100-S"
	}
	if c.Model == "" {
		c.Model = "mushroom_model.onnx"
	}
	if c.ImageSize == 0 {
		c.ImageSize = 128
	}
	if c.PixelScale == 0 {
		c.PixelScale = 1.0
	}
	if c.MaxTopN == 0 {
		c.MaxTopN = 10
	}
	if c.DefaultTopN == 0 {
		c.DefaultTopN = 3
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 4
	}
	if c.ScoreTimeout == "" {
		c.ScoreTimeout = "30s"
	}
}

// ScoreTimeoutDuration parses the score_timeout value.
func (c *Config) ScoreTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ScoreTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse score_timeout: %w", err)
	}
	return d, nil
}
