package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Model         ModelConfig         `yaml:"model" mapstructure:"model"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type ServerConfig struct {
	IP             string        `yaml:"ip" mapstructure:"ip"`
	Port           int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// ModelConfig selects the tensor runtime and the weights it loads.
type ModelConfig struct {
	Runtime    string       `yaml:"runtime" mapstructure:"runtime"`
	Path       string       `yaml:"path" mapstructure:"path"`
	LabelsPath string       `yaml:"labels_path" mapstructure:"labels_path"`
	InputSize  int          `yaml:"input_size" mapstructure:"input_size"`
	Threads    int          `yaml:"threads" mapstructure:"threads"`
	Remote     RemoteConfig `yaml:"remote" mapstructure:"remote"`
}

// RemoteConfig points the remote runtime at an HTTP tensor server.
type RemoteConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PipelineConfig holds every tuned constant of the detection pipeline.
// Confidences named *Percent are on the 0-100 scale, the rest are 0-1.
type PipelineConfig struct {
	ConfidenceThreshold     float64             `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	NMSIoUThreshold         float64             `yaml:"nms_iou_threshold" mapstructure:"nms_iou_threshold"`
	TopK                    int                 `yaml:"top_k" mapstructure:"top_k"`
	MinAnchorCount          int                 `yaml:"min_anchor_count" mapstructure:"min_anchor_count"`
	MinAvgMargin            float64             `yaml:"min_avg_margin" mapstructure:"min_avg_margin"`
	NoiseClassMinConfidence float64             `yaml:"noise_class_min_confidence" mapstructure:"noise_class_min_confidence"`
	MeaningfulConfidence    float64             `yaml:"meaningful_confidence" mapstructure:"meaningful_confidence"`
	MaxSimultaneousClasses  int                 `yaml:"max_simultaneous_classes" mapstructure:"max_simultaneous_classes"`
	MaxClassSpreadRatio     float64             `yaml:"max_class_spread_ratio" mapstructure:"max_class_spread_ratio"`
	MinBoxSize              float64             `yaml:"min_box_size" mapstructure:"min_box_size"`
	MaxBoxSize              float64             `yaml:"max_box_size" mapstructure:"max_box_size"`
	MinAgreement            int                 `yaml:"min_agreement" mapstructure:"min_agreement"`
	MinAggregatePercent     float64             `yaml:"min_aggregate_percent" mapstructure:"min_aggregate_percent"`
	DetectedPercent         float64             `yaml:"detected_percent" mapstructure:"detected_percent"`
	UncertainPercent        float64             `yaml:"uncertain_percent" mapstructure:"uncertain_percent"`
	ConfusionPair           ConfusionPairConfig `yaml:"confusion_pair" mapstructure:"confusion_pair"`
}

// ConfusionPairConfig names the two visually identical classes. Preferred is
// the class kept when the evidence is ambiguous.
type ConfusionPairConfig struct {
	Preferred            string  `yaml:"preferred" mapstructure:"preferred"`
	Other                string  `yaml:"other" mapstructure:"other"`
	PrecautionMaxPercent float64 `yaml:"precaution_max_percent" mapstructure:"precaution_max_percent"`
	ScoreSimilarityRatio float64 `yaml:"score_similarity_ratio" mapstructure:"score_similarity_ratio"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth       int      `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight      int      `yaml:"max_height" mapstructure:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
}

type ObservabilityConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	MetricsPath string `yaml:"metrics_path" mapstructure:"metrics_path"`
}
