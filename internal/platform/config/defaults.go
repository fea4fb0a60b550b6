package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:             "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "pestscan.log",
		},
		Model: ModelConfig{
			Runtime:   "tflite",
			Path:      "assets/model/best_float16.tflite",
			InputSize: 640,
			Threads:   4,
			Remote: RemoteConfig{
				URL:     "http://127.0.0.1:8501/v1/invoke",
				Timeout: 15 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold:     0.55,
			NMSIoUThreshold:         0.5,
			TopK:                    3,
			MinAnchorCount:          3,
			MinAvgMargin:            0.09,
			NoiseClassMinConfidence: 0.68,
			MeaningfulConfidence:    0.55,
			MaxSimultaneousClasses:  3,
			MaxClassSpreadRatio:     0.85,
			MinBoxSize:              0.01,
			MaxBoxSize:              2.0,
			MinAgreement:            2,
			MinAggregatePercent:     55,
			DetectedPercent:         60,
			UncertainPercent:        45,
			ConfusionPair: ConfusionPairConfig{
				Preferred:            "APW Larvae",
				Other:                "White Grub",
				PrecautionMaxPercent: 80,
				ScoreSimilarityRatio: 0.85,
			},
		},
		Storage: StorageConfig{
			Enabled: true,
			DSN:     "data/pestscan.db",
		},
		Security: SecurityConfig{
			MaxFileSize:    10 * 1024 * 1024,
			MaxPixels:      16777216,
			MaxWidth:       4096,
			MaxHeight:      4096,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp"},
		},
		Observability: ObservabilityConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
		},
	}
}
