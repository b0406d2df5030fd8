// Package config loads runtime settings from config.yaml, VISIONSKILLS_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/born-ml/vision/internal/device"
)

// EnvPrefix prefixes every environment override, e.g. VISIONSKILLS_LOG_LEVEL.
const EnvPrefix = "VISIONSKILLS"

// Config is the full runtime configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Models struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"models"`
	Device struct {
		MinFeatureLevel string `mapstructure:"min_feature_level"`
		Index           int    `mapstructure:"index"`
	} `mapstructure:"device"`
	Pipeline struct {
		MaxInFlight int `mapstructure:"max_in_flight"`
	} `mapstructure:"pipeline"`
	Tracker struct {
		MaxHistory         int `mapstructure:"max_history"`
		ReinitializePeriod int `mapstructure:"reinitialize_period"`
		MaxTrackers        int `mapstructure:"max_trackers"`
	} `mapstructure:"tracker"`
	FaceSentiment struct {
		EnlargeFactor float64 `mapstructure:"enlarge_factor"`
		FaceThreshold float64 `mapstructure:"face_threshold"`
	} `mapstructure:"facesentiment"`
	ObjectDetector struct {
		ScoreThreshold float64 `mapstructure:"score_threshold"`
		IoUThreshold   float64 `mapstructure:"iou_threshold"`
	} `mapstructure:"objectdetector"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("models.dir", "./models")
	v.SetDefault("device.min_feature_level", "12_0")
	v.SetDefault("device.index", 0)
	v.SetDefault("pipeline.max_in_flight", 1)
	v.SetDefault("tracker.max_history", 20)
	v.SetDefault("tracker.reinitialize_period", 0)
	v.SetDefault("tracker.max_trackers", 5)
	v.SetDefault("facesentiment.enlarge_factor", 1.5)
	v.SetDefault("facesentiment.face_threshold", 0.7)
	v.SetDefault("objectdetector.score_threshold", 0.25)
	v.SetDefault("objectdetector.iou_threshold", 0.45)
	v.SetDefault("server.addr", ":8080")
}

// New returns a viper instance with defaults, environment overrides and
// the config search path. An explicit configFile replaces the search path.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.visionskills")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects non-positive caps and factors.
func (c *Config) Validate() error {
	switch {
	case c.Pipeline.MaxInFlight <= 0:
		return fmt.Errorf("pipeline.max_in_flight must be positive, got %d", c.Pipeline.MaxInFlight)
	case c.Tracker.MaxHistory <= 0:
		return fmt.Errorf("tracker.max_history must be positive, got %d", c.Tracker.MaxHistory)
	case c.Tracker.MaxTrackers <= 0:
		return fmt.Errorf("tracker.max_trackers must be positive, got %d", c.Tracker.MaxTrackers)
	case c.Tracker.ReinitializePeriod < 0:
		return fmt.Errorf("tracker.reinitialize_period must not be negative, got %d", c.Tracker.ReinitializePeriod)
	case c.FaceSentiment.EnlargeFactor <= 0:
		return fmt.Errorf("facesentiment.enlarge_factor must be positive, got %v", c.FaceSentiment.EnlargeFactor)
	case c.Device.Index < 0:
		return fmt.Errorf("device.index must not be negative, got %d", c.Device.Index)
	}
	if _, err := c.MinFeatureLevel(); err != nil {
		return err
	}
	return nil
}

// MinFeatureLevel parses device.min_feature_level.
func (c *Config) MinFeatureLevel() (device.FeatureLevel, error) {
	level, err := device.ParseFeatureLevel(c.Device.MinFeatureLevel)
	if err != nil {
		return 0, fmt.Errorf("device.min_feature_level: %w", err)
	}
	return level, nil
}
