// Package inference owns the detection model handle and runs the full
// classification pipeline over an uploaded photograph.
package inference

import (
	"context"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

const (
	RuntimeTFLite = "tflite"
	RuntimeRemote = "remote"
)

// Predictor runs the detection network on one NHWC input tensor. It is not
// required to be safe for concurrent use.
type Predictor interface {
	Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error)
	InputShape() []int
	OutputShape() []int
	Close() error
}

// Opener creates a Predictor for the configured runtime.
type Opener func(cfg config.ModelConfig, logger *logging.Logger) (Predictor, error)

// OpenRuntime picks the runtime named by cfg.Runtime.
func OpenRuntime(cfg config.ModelConfig, logger *logging.Logger) (Predictor, error) {
	switch cfg.Runtime {
	case RuntimeTFLite, "":
		return openTFLite(cfg, logger)
	case RuntimeRemote:
		return NewRemotePredictor(cfg, logger)
	default:
		return nil, errors.Newf(errors.KindConfig, "inference.open", "unknown model runtime %q", cfg.Runtime)
	}
}

// LoadLabels returns the labels file content, or the built-in label set
// when no path is configured.
func LoadLabels(cfg config.ModelConfig) ([]string, error) {
	if cfg.LabelsPath == "" {
		return append([]string(nil), detection.DefaultLabels...), nil
	}
	return detection.LoadLabels(cfg.LabelsPath)
}

func cloneShape(shape []int) []int {
	if shape == nil {
		return nil
	}
	return append([]int(nil), shape...)
}
