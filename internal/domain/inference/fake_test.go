package inference

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/eventbus"
	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/logging"
	"pestscan-server/internal/platform/observability"
)

const testInputSize = 32

// fakePredictor answers every call through script, which sees the
// zero-based call index.
type fakePredictor struct {
	mu     sync.Mutex
	calls  int
	shapes [][]int
	closed bool
	script func(call int) (*detection.Tensor, error)
}

func (f *fakePredictor) Invoke(_ context.Context, input *detection.Tensor) (*detection.Tensor, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.shapes = append(f.shapes, append([]int(nil), input.Shape...))
	f.mu.Unlock()
	return f.script(call)
}

func (f *fakePredictor) InputShape() []int  { return []int{1, testInputSize, testInputSize, 3} }
func (f *fakePredictor) OutputShape() []int { return []int{1, 43, 96} }

func (f *fakePredictor) Close() error {
	f.closed = true
	return nil
}

func (f *fakePredictor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func always(t *detection.Tensor) func(int) (*detection.Tensor, error) {
	return func(int) (*detection.Tensor, error) { return t, nil }
}

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.ClassificationEvent
}

func (c *capturePublisher) PublishAsync(topic string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic != eventbus.EventClassificationCompleted || len(args) == 0 {
		return
	}
	if ev, ok := args[0].(eventbus.ClassificationEvent); ok {
		c.events = append(c.events, ev)
	}
}

func testModelConfig() config.ModelConfig {
	cfg := config.DefaultConfig().Model
	cfg.InputSize = testInputSize
	return cfg
}

func loadedModel(t *testing.T, predictor Predictor) *Model {
	t.Helper()
	m := NewModel(testModelConfig(), detection.DefaultLabels, logging.NewNop(),
		WithOpener(func(config.ModelConfig, *logging.Logger) (Predictor, error) { return predictor, nil }))
	require.NoError(t, m.Load(context.Background()))
	return m
}

type classifierDeps struct {
	metrics *observability.PipelineMetrics
	events  eventbus.Publisher
}

func newTestClassifier(t *testing.T, model Invoker, deps classifierDeps) *Classifier {
	t.Helper()
	security := config.DefaultConfig().Security
	images, err := image.NewPipeline(image.Options{Security: &security, Logger: logging.NewNop()})
	require.NoError(t, err)

	c, err := NewClassifier(ClassifierOptions{
		Model:     model,
		Images:    images,
		Params:    detection.DefaultParams(),
		InputSize: testInputSize,
		Logger:    logging.NewNop(),
		Metrics:   deps.metrics,
		Events:    deps.events,
	})
	require.NoError(t, err)
	return c
}
