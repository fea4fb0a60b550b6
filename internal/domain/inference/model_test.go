package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/detection/detectiontest"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

func TestModel_LoadOnce(t *testing.T) {
	opens := 0
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())}
	m := NewModel(testModelConfig(), detection.DefaultLabels, logging.NewNop(),
		WithOpener(func(config.ModelConfig, *logging.Logger) (Predictor, error) {
			opens++
			return fake, nil
		}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Load(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opens)
	assert.True(t, m.Loaded())
	assert.NoError(t, m.Err())
}

func TestModel_LoadFailureIsPermanent(t *testing.T) {
	opens := 0
	m := NewModel(testModelConfig(), detection.DefaultLabels, logging.NewNop(),
		WithOpener(func(config.ModelConfig, *logging.Logger) (Predictor, error) {
			opens++
			return nil, errors.New(errors.KindModel, "test.open", "Model file not found")
		}))

	require.Error(t, m.Load(context.Background()))
	require.Error(t, m.Load(context.Background()))

	assert.Equal(t, 1, opens)
	assert.False(t, m.Loaded())

	_, err := m.Invoke(context.Background(), &detection.Tensor{})
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	info := m.Info()
	assert.False(t, info.ModelLoaded)
	assert.Equal(t, "Model file not found", info.Error)
	assert.Equal(t, 7, info.NumClasses)
}

func TestModel_InfoWhenLoaded(t *testing.T) {
	m := loadedModel(t, &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())})

	info := m.Info()

	assert.True(t, info.ModelLoaded)
	assert.Equal(t, RuntimeTFLite, info.Runtime)
	assert.Equal(t, []int{1, testInputSize, testInputSize, 3}, info.InputShape)
	assert.Equal(t, []int{1, 43, 96}, info.OutputShape)
	assert.Equal(t, detection.DefaultLabels, info.Labels)
	assert.Empty(t, info.Error)
}

func TestModel_InvokeAndClose(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())}
	m := loadedModel(t, fake)

	out, err := m.Invoke(context.Background(), &detection.Tensor{Shape: []int{1}, Data: []float32{0}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 43, detectiontest.DefaultAnchors}, out.Shape)

	require.NoError(t, m.Close())
	assert.True(t, fake.closed)
	assert.False(t, m.Loaded())

	_, err = m.Invoke(context.Background(), &detection.Tensor{})
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestModel_InfoAfterClose(t *testing.T) {
	m := loadedModel(t, &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = m.Info()
		}
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, m.Close())
	}()
	wg.Wait()

	info := m.Info()
	assert.False(t, info.ModelLoaded)
	assert.Nil(t, info.OutputShape)
	assert.Empty(t, info.Error)
}

// exclusivePredictor fails any call that overlaps another one.
type exclusivePredictor struct {
	fakePredictor
	inFlight atomic.Int32
	overlaps atomic.Int32
}

func (e *exclusivePredictor) Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error) {
	if e.inFlight.Add(1) > 1 {
		e.overlaps.Add(1)
	}
	defer e.inFlight.Add(-1)
	time.Sleep(time.Millisecond)
	return e.fakePredictor.Invoke(ctx, input)
}

func TestModel_InvokeIsSerialized(t *testing.T) {
	fake := &exclusivePredictor{fakePredictor: fakePredictor{script: always(detectiontest.NewBuilder().Tensor())}}
	m := loadedModel(t, fake)

	const workers, perWorker = 8, 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := m.Invoke(context.Background(), &detection.Tensor{Shape: []int{1}, Data: []float32{0}})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, fake.overlaps.Load())
	assert.Equal(t, workers*perWorker, fake.Calls())
}

func TestModel_InvokeCancelled(t *testing.T) {
	m := loadedModel(t, &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Invoke(ctx, &detection.Tensor{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenRuntime(t *testing.T) {
	cfg := testModelConfig()
	cfg.Runtime = "onnx"
	_, err := OpenRuntime(cfg, logging.NewNop())
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	cfg.Runtime = RuntimeRemote
	cfg.Remote.URL = ""
	_, err = OpenRuntime(cfg, logging.NewNop())
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadLabels_Default(t *testing.T) {
	labels, err := LoadLabels(config.ModelConfig{})

	require.NoError(t, err)
	assert.Equal(t, detection.DefaultLabels, labels)
}
