package inference

import (
	"context"
	"sync"
	"sync/atomic"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

// ErrModelNotLoaded is returned by Invoke until a Load has succeeded.
var ErrModelNotLoaded = errors.New(errors.KindModel, "model.invoke", "Model not loaded")

// ModelInfo describes the model handle for the model-info endpoint.
type ModelInfo struct {
	ModelLoaded bool     `json:"model_loaded"`
	Runtime     string   `json:"runtime"`
	ModelPath   string   `json:"model_path"`
	LabelsPath  string   `json:"labels_path,omitempty"`
	Labels      []string `json:"labels"`
	NumClasses  int      `json:"num_classes"`
	InputShape  []int    `json:"input_shape"`
	OutputShape []int    `json:"output_shape"`
	Error       string   `json:"error,omitempty"`
}

// Model is the process-wide detection model handle. Load runs at most once;
// a failed load is permanent. Invoke calls are serialized because the
// underlying interpreter is not reentrant.
type Model struct {
	cfg    config.ModelConfig
	labels []string
	open   Opener
	logger *logging.Logger

	once      sync.Once
	loaded    atomic.Bool
	loadErr   error
	mu        sync.Mutex
	predictor Predictor
}

// ModelOption customizes a Model.
type ModelOption func(*Model)

// WithOpener replaces the runtime selection, mainly for tests.
func WithOpener(open Opener) ModelOption {
	return func(m *Model) { m.open = open }
}

func NewModel(cfg config.ModelConfig, labels []string, logger *logging.Logger, opts ...ModelOption) *Model {
	m := &Model{
		cfg:    cfg,
		labels: append([]string(nil), labels...),
		open:   OpenRuntime,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load opens the predictor. Later calls return the first outcome.
func (m *Model) Load(ctx context.Context) error {
	m.once.Do(func() {
		if err := ctx.Err(); err != nil {
			m.loadErr = err
			return
		}
		m.logger.InfoTag("MODEL", "loading %s model from %s", m.runtime(), m.location())

		predictor, err := m.open(m.cfg, m.logger)
		if err != nil {
			m.loadErr = errors.Wrap(errors.KindModel, "model.load", "Model not loaded", err)
			m.logger.ErrorTag("MODEL", "load failed: %v", err)
			return
		}

		m.mu.Lock()
		m.predictor = predictor
		m.mu.Unlock()
		m.loaded.Store(true)
		m.logger.InfoTag("MODEL", "model ready, input %v output %v, %d labels",
			predictor.InputShape(), predictor.OutputShape(), len(m.labels))
	})
	return m.loadErr
}

func (m *Model) Loaded() bool {
	return m != nil && m.loaded.Load()
}

// Err is the load failure, nil while loaded or before Load.
func (m *Model) Err() error {
	if m.Loaded() {
		return nil
	}
	return m.loadErr
}

func (m *Model) Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error) {
	if !m.Loaded() {
		return nil, ErrModelNotLoaded
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictor == nil {
		return nil, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInference, "model.invoke", "cancelled", err)
	}
	return m.predictor.Invoke(ctx, input)
}

// InputSize is the square edge of the model input.
func (m *Model) InputSize() int {
	return m.cfg.InputSize
}

func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

func (m *Model) Info() ModelInfo {
	info := ModelInfo{
		ModelLoaded: m.Loaded(),
		Runtime:     m.runtime(),
		ModelPath:   m.cfg.Path,
		LabelsPath:  m.cfg.LabelsPath,
		Labels:      m.Labels(),
		NumClasses:  len(m.labels),
		InputShape:  []int{1, m.cfg.InputSize, m.cfg.InputSize, 3},
	}
	if info.ModelLoaded {
		m.mu.Lock()
		// Close may have run since the Loaded check
		if m.predictor != nil {
			info.InputShape = m.predictor.InputShape()
			info.OutputShape = m.predictor.OutputShape()
		} else {
			info.ModelLoaded = false
		}
		m.mu.Unlock()
	}
	if !info.ModelLoaded {
		if err := m.Err(); err != nil {
			info.Error = errors.Message(err)
		}
	}
	return info
}

// Close releases the predictor. The model stays unloaded afterwards.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded.Store(false)
	if m.predictor == nil {
		return nil
	}
	err := m.predictor.Close()
	m.predictor = nil
	return err
}

func (m *Model) runtime() string {
	if m.cfg.Runtime == "" {
		return RuntimeTFLite
	}
	return m.cfg.Runtime
}

func (m *Model) location() string {
	if m.runtime() == RuntimeRemote {
		return m.cfg.Remote.URL
	}
	return m.cfg.Path
}
