package detection

import (
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
)

// Params carries every tuned constant of decoding, aggregation and the
// final decision. Percent fields are on the 0-100 scale.
type Params struct {
	Labels []string

	NMSIoUThreshold         float64
	TopK                    int
	MinAnchorCount          int
	MinAvgMargin            float64
	NoiseClassMinConfidence float64
	MeaningfulConfidence    float64
	MaxSimultaneousClasses  int
	MaxClassSpreadRatio     float64
	MinBoxSize              float64
	MaxBoxSize              float64

	MinAgreement        int
	MinAggregatePercent float64

	DetectedPercent  float64
	UncertainPercent float64

	Pair ConfusionPair
}

// ConfusionPair identifies two classes the model confuses. Preferred wins
// every ambiguous call.
type ConfusionPair struct {
	Preferred            int
	Other                int
	PrecautionMaxPercent float64
	ScoreSimilarityRatio float64
}

// Contains reports whether classID is one of the pair.
func (c ConfusionPair) Contains(classID int) bool {
	return classID == c.Preferred || classID == c.Other
}

// Partner returns the other member of the pair.
func (c ConfusionPair) Partner(classID int) int {
	if classID == c.Preferred {
		return c.Other
	}
	return c.Preferred
}

// DefaultParams resolves the built-in pipeline defaults against
// DefaultLabels. Both are compiled in, so a failure is a programming error
// and panics.
func DefaultParams() Params {
	p, err := ParamsFromConfig(config.DefaultConfig().Pipeline, DefaultLabels)
	if err != nil {
		panic("detection: default params: " + err.Error())
	}
	return p
}

// ParamsFromConfig resolves the confusion pair labels against labels.
func ParamsFromConfig(cfg config.PipelineConfig, labels []string) (Params, error) {
	if len(labels) == 0 {
		return Params{}, errors.New(errors.KindConfig, "detection.params", "label set is empty")
	}

	preferred := indexOf(labels, cfg.ConfusionPair.Preferred)
	other := indexOf(labels, cfg.ConfusionPair.Other)

	p := Params{
		Labels:                  append([]string(nil), labels...),
		NMSIoUThreshold:         cfg.NMSIoUThreshold,
		TopK:                    cfg.TopK,
		MinAnchorCount:          cfg.MinAnchorCount,
		MinAvgMargin:            cfg.MinAvgMargin,
		NoiseClassMinConfidence: cfg.NoiseClassMinConfidence,
		MeaningfulConfidence:    cfg.MeaningfulConfidence,
		MaxSimultaneousClasses:  cfg.MaxSimultaneousClasses,
		MaxClassSpreadRatio:     cfg.MaxClassSpreadRatio,
		MinBoxSize:              cfg.MinBoxSize,
		MaxBoxSize:              cfg.MaxBoxSize,
		MinAgreement:            cfg.MinAgreement,
		MinAggregatePercent:     cfg.MinAggregatePercent,
		DetectedPercent:         cfg.DetectedPercent,
		UncertainPercent:        cfg.UncertainPercent,
		Pair: ConfusionPair{
			Preferred:            preferred,
			Other:                other,
			PrecautionMaxPercent: cfg.ConfusionPair.PrecautionMaxPercent,
			ScoreSimilarityRatio: cfg.ConfusionPair.ScoreSimilarityRatio,
		},
	}
	if preferred < 0 || other < 0 {
		return p, errors.Newf(errors.KindConfig, "detection.params",
			"confusion pair %q/%q not in label set", cfg.ConfusionPair.Preferred, cfg.ConfusionPair.Other)
	}
	return p, nil
}

// NumClasses is the number of class rows decoded from the tensor.
func (p Params) NumClasses() int {
	return len(p.Labels)
}

// Label returns the name of classID, or Unknown(id).
func (p Params) Label(classID int) string {
	return labelFor(p.Labels, classID)
}

// IsValidLabel reports whether name belongs to the configured label set.
func (p Params) IsValidLabel(name string) bool {
	return indexOf(p.Labels, name) >= 0
}
