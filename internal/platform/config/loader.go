package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "pestscan-server/internal/platform/errors"
)

const (
	EnvConfigPath     = "PESTSCAN_CONFIG"
	EnvPort           = "PESTSCAN_PORT"
	EnvModelPath      = "PESTSCAN_MODEL_PATH"
	EnvModelRuntime   = "PESTSCAN_MODEL_RUNTIME"
	EnvRemoteURL      = "PESTSCAN_REMOTE_URL"
	EnvLogLevel       = "PESTSCAN_LOG_LEVEL"
	EnvDatabaseDSN    = "PESTSCAN_DB_DSN"
	defaultConfigPath = "config.yaml"
)

// Loader resolves configuration from defaults, an optional YAML file and
// environment overrides, in that order.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading .env and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the YAML file, taking precedence over PESTSCAN_CONFIG.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithLookupEnv overrides environment access (useful for tests).
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookupEnv = fn
	}
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when no file was found and only defaults apply.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// .env 文件可选
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.resolvePath()
	origin := ""
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "parse "+path, err)
		}
		origin = path
	case os.IsNotExist(err) && l.path == "":
		// 未找到配置文件，使用默认配置
	default:
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "config.load", "read "+path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: origin}, nil
}

func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if v, ok := l.lookupEnv(EnvConfigPath); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.env(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, "config.env", EnvPort+" must be an integer", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.env(EnvModelPath); ok {
		cfg.Model.Path = v
	}
	if v, ok := l.env(EnvModelRuntime); ok {
		cfg.Model.Runtime = strings.ToLower(v)
	}
	if v, ok := l.env(EnvRemoteURL); ok {
		cfg.Model.Remote.URL = v
	}
	if v, ok := l.env(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env(EnvDatabaseDSN); ok {
		cfg.Storage.DSN = v
	}
	return nil
}

func (l *Loader) env(key string) (string, bool) {
	v, ok := l.lookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.Newf(platformerrors.KindConfig, "config.validate", "invalid server port %d", cfg.Server.Port)
	}

	switch cfg.Model.Runtime {
	case "tflite", "remote":
	default:
		return platformerrors.Newf(platformerrors.KindConfig, "config.validate", "unknown model runtime %q", cfg.Model.Runtime)
	}
	if cfg.Model.InputSize <= 0 {
		return platformerrors.Newf(platformerrors.KindConfig, "config.validate", "model input size must be positive, got %d", cfg.Model.InputSize)
	}

	p := cfg.Pipeline
	unit := map[string]float64{
		"confidence_threshold":       p.ConfidenceThreshold,
		"nms_iou_threshold":          p.NMSIoUThreshold,
		"min_avg_margin":             p.MinAvgMargin,
		"noise_class_min_confidence": p.NoiseClassMinConfidence,
		"meaningful_confidence":      p.MeaningfulConfidence,
		"max_class_spread_ratio":     p.MaxClassSpreadRatio,
		"score_similarity_ratio":     p.ConfusionPair.ScoreSimilarityRatio,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return platformerrors.Newf(platformerrors.KindConfig, "config.validate", "pipeline.%s must be within [0,1], got %v", name, v)
		}
	}
	percent := map[string]float64{
		"min_aggregate_percent":  p.MinAggregatePercent,
		"detected_percent":       p.DetectedPercent,
		"uncertain_percent":      p.UncertainPercent,
		"precaution_max_percent": p.ConfusionPair.PrecautionMaxPercent,
	}
	for name, v := range percent {
		if v < 0 || v > 100 {
			return platformerrors.Newf(platformerrors.KindConfig, "config.validate", "pipeline.%s must be within [0,100], got %v", name, v)
		}
	}
	if p.UncertainPercent > p.DetectedPercent {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", "pipeline.uncertain_percent must not exceed detected_percent")
	}
	if p.TopK <= 0 || p.MinAnchorCount <= 0 || p.MinAgreement <= 0 || p.MaxSimultaneousClasses <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", "pipeline counts must be positive")
	}
	if p.MinBoxSize < 0 || p.MaxBoxSize <= p.MinBoxSize {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", "pipeline box size bounds are inverted")
	}
	if p.ConfusionPair.Preferred == "" || p.ConfusionPair.Other == "" || p.ConfusionPair.Preferred == p.ConfusionPair.Other {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", "pipeline.confusion_pair needs two distinct labels")
	}

	if cfg.Storage.Enabled && strings.TrimSpace(cfg.Storage.DSN) == "" {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", "storage.dsn is required when storage is enabled")
	}
	if cfg.Security.MaxFileSize <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "config.validate", fmt.Sprintf("invalid security.max_file_size %d", cfg.Security.MaxFileSize))
	}
	return nil
}
