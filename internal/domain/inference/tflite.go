//go:build tflite

package inference

import (
	"context"
	"os"

	"github.com/mattn/go-tflite"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

// TFLitePredictor runs the model in-process through the TensorFlow Lite C
// API. Build with -tags tflite.
type TFLitePredictor struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputShape  []int
	outputShape []int
}

func openTFLite(cfg config.ModelConfig, logger *logging.Logger) (Predictor, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, errors.Wrap(errors.KindModel, "tflite.open", "Model file not found", err)
	}

	model := tflite.NewModelFromFile(cfg.Path)
	if model == nil {
		return nil, errors.Newf(errors.KindModel, "tflite.open", "cannot load model %s", cfg.Path)
	}

	options := tflite.NewInterpreterOptions()
	if cfg.Threads > 0 {
		options.SetNumThread(cfg.Threads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.ErrorTag("MODEL", "tflite: %s", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New(errors.KindModel, "tflite.open", "cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.Newf(errors.KindModel, "tflite.open", "allocate tensors: status %v", status)
	}

	p := &TFLitePredictor{
		model:       model,
		options:     options,
		interpreter: interpreter,
		inputShape:  tensorShape(interpreter.GetInputTensor(0)),
		outputShape: tensorShape(interpreter.GetOutputTensor(0)),
	}
	if in := interpreter.GetInputTensor(0); in.Type() != tflite.Float32 {
		p.Close()
		return nil, errors.Newf(errors.KindModel, "tflite.open", "input tensor type %v, want float32", in.Type())
	}
	return p, nil
}

func (p *TFLitePredictor) Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := p.interpreter.GetInputTensor(0)
	dst := in.Float32s()
	if len(dst) != len(input.Data) {
		return nil, errors.Newf(errors.KindInference, "tflite.invoke",
			"input has %d elements, model expects %v", len(input.Data), p.inputShape)
	}
	copy(dst, input.Data)

	if status := p.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf(errors.KindInference, "tflite.invoke", "invoke: status %v", status)
	}

	out := p.interpreter.GetOutputTensor(0)
	data := append([]float32(nil), out.Float32s()...)
	return detection.NewTensor(tensorShape(out), data)
}

func (p *TFLitePredictor) InputShape() []int  { return cloneShape(p.inputShape) }
func (p *TFLitePredictor) OutputShape() []int { return cloneShape(p.outputShape) }

func (p *TFLitePredictor) Close() error {
	p.interpreter.Delete()
	p.options.Delete()
	p.model.Delete()
	return nil
}

func tensorShape(t *tflite.Tensor) []int {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	return shape
}
