package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/eventbus"
	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
	"pestscan-server/internal/platform/observability"
)

// DefaultConfidenceThreshold is the per-anchor retention threshold used
// when a caller does not pick one.
const DefaultConfidenceThreshold = 0.55

// Invoker is the model surface the classifier needs.
type Invoker interface {
	Loaded() bool
	Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error)
}

// ClassifierOptions wires a Classifier. Metrics and Events are optional.
type ClassifierOptions struct {
	Model     Invoker
	Images    *image.Pipeline
	Params    detection.Params
	InputSize int
	Logger    *logging.Logger
	Metrics   *observability.PipelineMetrics
	Events    eventbus.Publisher
}

// Classifier runs quality assessment, test-time augmentation, decoding,
// aggregation and the final verdict for one photograph.
type Classifier struct {
	model     Invoker
	images    *image.Pipeline
	decoder   *detection.Decoder
	params    detection.Params
	inputSize int
	logger    *logging.Logger
	metrics   *observability.PipelineMetrics
	events    eventbus.Publisher
}

// Request is one classification call.
type Request struct {
	Data      []byte
	Format    string
	Source    string
	Threshold float64
}

func NewClassifier(opts ClassifierOptions) (*Classifier, error) {
	if opts.Model == nil {
		return nil, errors.New(errors.KindConfig, "inference.classifier", "model is required")
	}
	if opts.Images == nil {
		return nil, errors.New(errors.KindConfig, "inference.classifier", "image pipeline is required")
	}
	if opts.InputSize <= 0 {
		return nil, errors.Newf(errors.KindConfig, "inference.classifier", "invalid input size %d", opts.InputSize)
	}
	if opts.Params.NumClasses() == 0 {
		return nil, errors.New(errors.KindConfig, "inference.classifier", "label set is empty")
	}
	if opts.Events == nil {
		opts.Events = eventbus.Nop{}
	}

	return &Classifier{
		model:     opts.Model,
		images:    opts.Images,
		decoder:   detection.NewDecoder(opts.Params, opts.Logger),
		params:    opts.Params,
		inputSize: opts.InputSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		events:    opts.Events,
	}, nil
}

// Params returns the pipeline configuration.
func (c *Classifier) Params() detection.Params {
	return c.params
}

// Classify runs the full pipeline over imageBytes. It never returns nil and
// reports failures through Success and Error.
func (c *Classifier) Classify(ctx context.Context, imageBytes []byte, threshold float64) *ClassificationResult {
	return c.Run(ctx, Request{Data: imageBytes, Threshold: threshold})
}

func (c *Classifier) Run(ctx context.Context, req Request) *ClassificationResult {
	start := time.Now()
	ctx, finish := observability.StartSpan(ctx, "inference", "classify")

	result := c.run(ctx, req)
	result.Duration = time.Since(start)

	var spanErr error
	if !result.Success {
		spanErr = fmt.Errorf("%s", result.Error)
	}
	finish(spanErr)

	c.metrics.ObserveClassification(result.StatusLabel(), result.Duration)
	c.publish(req, result)
	return result
}

func (c *Classifier) run(ctx context.Context, req Request) *ClassificationResult {
	requestID := uuid.NewString()

	if math.IsNaN(req.Threshold) || req.Threshold < 0 || req.Threshold > 1 {
		return failure(requestID, errors.KindDomain, fmt.Sprintf("confidence_threshold must be within [0, 1], got %v", req.Threshold))
	}
	if !c.model.Loaded() {
		return failure(requestID, errors.KindModel, errors.Message(ErrModelNotLoaded))
	}

	raw, err := c.images.Decode(req.Data, req.Format)
	if err != nil {
		c.logger.WarnTag("QUALITY", "decode failed for %s: %v", sourceName(req), err)
		return failure(requestID, errors.KindDecode, errors.Message(err))
	}

	quality := image.AssessQuality(raw)
	if !quality.Acceptable {
		c.logger.WarnTag("QUALITY", "%s: %v (continuing)", sourceName(req), quality.Issues)
	} else if len(quality.Warnings) > 0 {
		c.logger.DebugTag("QUALITY", "%s: %v", sourceName(req), quality.Warnings)
	}

	augs := image.GenerateAugmentations(raw)
	views := make([]detection.ViewResult, 0, len(augs))
	var lastErr error
	failed := 0
	for _, aug := range augs {
		view := c.evaluate(ctx, aug, req.Threshold)
		if view.Failed() {
			failed++
			lastErr = view.Err
			c.metrics.IncViewFailure()
			c.logger.WarnTag("TTA", "view %s failed: %v", aug.Name, view.Err)
		}
		c.countRejections(view)
		views = append(views, view)
	}

	if failed == len(augs) {
		res := failure(requestID, errors.KindInference, fmt.Sprintf("inference failed on all %d views: %s", len(augs), errors.Message(lastErr)))
		res.Quality = &quality
		res.Views = summaries(views)
		return res
	}

	preds, resolution := detection.Aggregate(views, len(augs), c.params)
	if resolution.Kind != detection.ResolutionNone {
		c.logger.InfoTag("DISAMBIG", "aggregate: %s", resolution)
	}
	if preds == nil {
		preds = []detection.ClassAggregate{}
	}

	decision := detection.Classify(preds, c.params)
	c.logger.InfoTag("TTA", "%s: %s, %d/%d views ok", sourceName(req), decision.Notes, len(augs)-failed, len(augs))

	return &ClassificationResult{
		Success:          true,
		RequestID:        requestID,
		Predictions:      preds,
		TotalDetections:  len(preds),
		Quality:          &quality,
		TTAAugmentations: len(augs),
		Status:           decision.Status,
		StatusMessage:    decision.StatusMessage,
		BestMatch:        decision.BestMatch,
		RetakeGuidance:   decision.RetakeGuidance,
		Notes:            decision.Notes,
		Views:            summaries(views),
	}
}

// evaluate runs one view. A panic inside the runtime binding becomes a
// view failure.
func (c *Classifier) evaluate(ctx context.Context, aug image.Augmentation, threshold float64) (view detection.ViewResult) {
	defer func() {
		if r := recover(); r != nil {
			view = detection.ViewResult{
				Name:       aug.Name,
				NoiseClass: detection.NoClass,
				Err:        errors.Newf(errors.KindInference, "inference.view", "panic during %s: %v", aug.Name, r),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return detection.ViewResult{Name: aug.Name, NoiseClass: detection.NoClass,
			Err: errors.Wrap(errors.KindInference, "inference.view", "cancelled", err)}
	}

	input, err := detection.NewTensor([]int{1, c.inputSize, c.inputSize, 3}, image.Letterbox(aug.Image, c.inputSize))
	if err != nil {
		return detection.ViewResult{Name: aug.Name, NoiseClass: detection.NoClass,
			Err: errors.Wrap(errors.KindInference, "inference.view", "build input", err)}
	}

	output, err := c.model.Invoke(ctx, input)
	if err != nil {
		return detection.ViewResult{Name: aug.Name, NoiseClass: detection.NoClass, Err: err}
	}
	return c.decoder.Evaluate(aug.Name, output, threshold)
}

func (c *Classifier) countRejections(view detection.ViewResult) {
	if view.Rejection != nil {
		c.metrics.IncGuardRejection(string(view.Rejection.Stage))
	}
	for _, rej := range view.ClassRejections {
		c.metrics.IncGuardRejection(string(rej.Stage))
	}
}

func (c *Classifier) publish(req Request, result *ClassificationResult) {
	event := eventbus.ClassificationEvent{
		RequestID:       result.RequestID,
		Source:          req.Source,
		Status:          result.StatusLabel(),
		Duration:        result.Duration,
		TotalDetections: result.TotalDetections,
		Predictions:     result.Predictions,
		Error:           result.Error,
	}
	if result.BestMatch != nil {
		event.PestType = result.BestMatch.PestType
		event.Confidence = result.BestMatch.WeightedConfidence
	}
	if result.Quality != nil {
		event.Quality = result.Quality
		event.QualityAcceptable = result.Quality.Acceptable
	}
	c.events.PublishAsync(eventbus.EventClassificationCompleted, event)
}

func summaries(views []detection.ViewResult) []ViewSummary {
	out := make([]ViewSummary, len(views))
	for i, v := range views {
		out[i] = summarize(v)
	}
	return out
}

func sourceName(req Request) string {
	if req.Source == "" {
		return "upload"
	}
	return req.Source
}
