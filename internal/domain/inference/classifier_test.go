package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/detection/detectiontest"
	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
	"pestscan-server/internal/platform/observability"
	testhelpers "pestscan-server/internal/platform/testing"
)

const brontispa = 2

func samplePNG(t *testing.T) []byte {
	return testhelpers.EncodePNG(t, testhelpers.GradientImage(120, 90))
}

func TestClassifier_DetectsAgreedPest(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Spread(brontispa, 5, 0.70).Tensor())}
	events := &capturePublisher{}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{events: events})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, detection.StatusDetected, res.Status)
	assert.Equal(t, "Coconut pest detected: Brontispa", res.StatusMessage)
	assert.Equal(t, image.ViewCount, res.TTAAugmentations)
	require.Len(t, res.Predictions, 1)

	pred := res.Predictions[0]
	assert.Equal(t, "Brontispa", pred.PestType)
	assert.Equal(t, brontispa, pred.ClassID)
	assert.Equal(t, 70.0, pred.WeightedConfidence)
	assert.Equal(t, 5, pred.AnchorCount)
	assert.Equal(t, 5, pred.TTAAgreement)
	assert.Equal(t, 5, pred.TTATotal)
	assert.Equal(t, 1, res.TotalDetections)
	require.NotNil(t, res.BestMatch)
	assert.Equal(t, "Brontispa", res.BestMatch.PestType)
	require.NotNil(t, res.Quality)
	assert.Equal(t, [2]int{120, 90}, res.Quality.Resolution)
	assert.Len(t, res.Views, image.ViewCount)

	assert.Equal(t, image.ViewCount, fake.Calls())
	for _, shape := range fake.shapes {
		assert.Equal(t, []int{1, testInputSize, testInputSize, 3}, shape)
	}

	require.Len(t, events.events, 1)
	assert.Equal(t, "DETECTED", events.events[0].Status)
	assert.Equal(t, "Brontispa", events.events[0].PestType)
	assert.Equal(t, res.RequestID, events.events[0].RequestID)
}

func TestClassifier_Deterministic(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Spread(brontispa, 5, 0.70).Tensor())}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})
	data := samplePNG(t)

	first := c.Classify(context.Background(), data, DefaultConfidenceThreshold)
	second := c.Classify(context.Background(), data, DefaultConfidenceThreshold)

	require.True(t, first.Success, first.Error)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Predictions, second.Predictions)
	assert.Equal(t, first.BestMatch, second.BestMatch)
	assert.Equal(t, first.Quality, second.Quality)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestClassifier_Uncertain(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Spread(brontispa, 5, 0.57).Tensor())}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	require.True(t, res.Success)
	assert.Equal(t, detection.StatusUncertain, res.Status)
	assert.Equal(t, detection.RetakeGuidance, res.RetakeGuidance)
	assert.Equal(t, "Possible pest: Brontispa (57.0%) - retake recommended", res.StatusMessage)
}

func TestClassifier_OutOfScopeWhenNothingAgrees(t *testing.T) {
	fake := &fakePredictor{script: func(call int) (*detection.Tensor, error) {
		if call == 0 {
			return detectiontest.NewBuilder().Spread(brontispa, 5, 0.90).Tensor(), nil
		}
		return detectiontest.NewBuilder().Tensor(), nil
	}}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	require.True(t, res.Success)
	assert.Equal(t, detection.StatusOutOfScope, res.Status)
	assert.Empty(t, res.Predictions)
	assert.NotNil(t, res.Predictions)
	assert.Nil(t, res.BestMatch)
	assert.Equal(t, "Out-of-Scope Pest Instance", res.StatusMessage)
}

func TestClassifier_ModelNotLoaded(t *testing.T) {
	m := NewModel(testModelConfig(), detection.DefaultLabels, logging.NewNop())
	c := newTestClassifier(t, m, classifierDeps{})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	assert.False(t, res.Success)
	assert.Equal(t, "Model not loaded", res.Error)
	assert.Equal(t, errors.KindModel, res.ErrorKind)
	assert.Empty(t, res.Predictions)
	assert.Nil(t, res.Quality)
}

func TestClassifier_InvalidThreshold(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	for _, threshold := range []float64{-0.01, 1.01, math.NaN()} {
		t.Run(fmt.Sprint(threshold), func(t *testing.T) {
			res := c.Classify(context.Background(), samplePNG(t), threshold)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, "confidence_threshold")
		})
	}
	assert.Zero(t, fake.Calls())
}

func TestClassifier_DecodeFailure(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Tensor())}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	res := c.Classify(context.Background(), []byte("definitely not an image"), DefaultConfidenceThreshold)

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "Failed to load image: "), res.Error)
	assert.Zero(t, fake.Calls())
}

func TestClassifier_AllViewsFail(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakePredictor{script: func(int) (*detection.Tensor, error) {
		return nil, errors.New(errors.KindInference, "test.invoke", "interpreter crashed")
	}}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{metrics: observability.NewPipelineMetrics(reg)})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	assert.False(t, res.Success)
	assert.Equal(t, "inference failed on all 5 views: interpreter crashed", res.Error)
	require.NotNil(t, res.Quality)

	expected := `
# HELP pestscan_view_failures_total Augmented views whose evaluation failed
# TYPE pestscan_view_failures_total counter
pestscan_view_failures_total 5
# HELP pestscan_classifications_total Classification calls by final status
# TYPE pestscan_classifications_total counter
pestscan_classifications_total{status="FAILED"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"pestscan_view_failures_total", "pestscan_classifications_total"))
}

func TestClassifier_RecoversFromPanickingView(t *testing.T) {
	tensor := detectiontest.NewBuilder().Spread(brontispa, 5, 0.70).Tensor()
	fake := &fakePredictor{script: func(call int) (*detection.Tensor, error) {
		if call == 1 {
			panic("cgo binding exploded")
		}
		return tensor, nil
	}}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	require.True(t, res.Success)
	require.Len(t, res.Predictions, 1)
	assert.Equal(t, 4, res.Predictions[0].TTAAgreement)
	assert.Equal(t, 5, res.Predictions[0].TTATotal)
	assert.Contains(t, res.Views[1].Error, "cgo binding exploded")
}

func TestClassifier_ShapeMismatchYieldsNoDetections(t *testing.T) {
	reg := prometheus.NewRegistry()
	bad := &detection.Tensor{Shape: []int{1, 8, 4}, Data: make([]float32, 32)}
	fake := &fakePredictor{script: always(bad)}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{metrics: observability.NewPipelineMetrics(reg)})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)

	require.True(t, res.Success)
	assert.Equal(t, detection.StatusOutOfScope, res.Status)
	assert.Empty(t, res.Predictions)

	expected := `
# HELP pestscan_guard_rejections_total Anti-false-positive guard rejections by stage
# TYPE pestscan_guard_rejections_total counter
pestscan_guard_rejections_total{stage="shape"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pestscan_guard_rejections_total"))
}

func TestClassifier_ResultJSON(t *testing.T) {
	fake := &fakePredictor{script: always(detectiontest.NewBuilder().Spread(brontispa, 5, 0.70).Tensor())}
	c := newTestClassifier(t, loadedModel(t, fake), classifierDeps{})

	res := c.Classify(context.Background(), samplePNG(t), DefaultConfidenceThreshold)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["success"])
	assert.Nil(t, body["error"])
	assert.Contains(t, body, "error")
	assert.EqualValues(t, 5, body["tta_augmentations"])
	assert.Equal(t, "DETECTED", body["status"])

	preds := body["predictions"].([]interface{})
	require.Len(t, preds, 1)
	pred := preds[0].(map[string]interface{})
	assert.Equal(t, "Brontispa", pred["pest_type"])
	assert.EqualValues(t, 70, pred["confidence"])
	bbox := pred["bbox"].(map[string]interface{})
	assert.Contains(t, bbox, "width")
}

func TestClassifier_FailureJSONCarriesError(t *testing.T) {
	raw, err := json.Marshal(failure("req", errors.KindModel, "Model not loaded"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"request_id":"req","predictions":[],"total_detections":0,
		"quality":null,"tta_augmentations":0,"best_match":null,"error":"Model not loaded"}`, string(raw))
}

func TestNewClassifier_Validation(t *testing.T) {
	security := config.DefaultConfig().Security
	images, err := image.NewPipeline(image.Options{Security: &security})
	require.NoError(t, err)
	model := NewModel(testModelConfig(), detection.DefaultLabels, logging.NewNop())

	_, err = NewClassifier(ClassifierOptions{Images: images, Params: detection.DefaultParams(), InputSize: 32})
	assert.Error(t, err)
	_, err = NewClassifier(ClassifierOptions{Model: model, Params: detection.DefaultParams(), InputSize: 32})
	assert.Error(t, err)
	_, err = NewClassifier(ClassifierOptions{Model: model, Images: images, Params: detection.DefaultParams()})
	assert.Error(t, err)
	_, err = NewClassifier(ClassifierOptions{Model: model, Images: images, InputSize: 32})
	assert.Error(t, err)
}
