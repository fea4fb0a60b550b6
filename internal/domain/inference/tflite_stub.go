//go:build !tflite

package inference

import (
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

func openTFLite(cfg config.ModelConfig, _ *logging.Logger) (Predictor, error) {
	return nil, errors.Newf(errors.KindModel, "tflite.open",
		"cannot load %s: binary built without tflite support (rebuild with -tags tflite or use the remote runtime)", cfg.Path)
}
