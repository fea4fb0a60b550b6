package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
)

const defaultRemoteTimeout = 15 * time.Second

// tensorPayload is the wire form of a tensor on the remote runtime.
type tensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// RemotePredictor forwards tensors to a model server over HTTP. The server
// accepts {"shape","data"} and answers in the same form.
type RemotePredictor struct {
	url        string
	client     *http.Client
	logger     *logging.Logger
	inputShape []int

	mu          sync.RWMutex
	outputShape []int
}

func NewRemotePredictor(cfg config.ModelConfig, logger *logging.Logger) (*RemotePredictor, error) {
	if cfg.Remote.URL == "" {
		return nil, errors.New(errors.KindConfig, "inference.remote", "remote runtime requires model.remote.url")
	}
	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemotePredictor{
		url:        cfg.Remote.URL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		inputShape: []int{1, cfg.InputSize, cfg.InputSize, 3},
	}, nil
}

func (p *RemotePredictor) Invoke(ctx context.Context, input *detection.Tensor) (*detection.Tensor, error) {
	body, err := sonic.Marshal(tensorPayload{Shape: input.Shape, Data: input.Data})
	if err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", "model server unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.KindInference, "remote.invoke", "unexpected status code: %d", resp.StatusCode)
	}

	var out tensorPayload
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", "decode response", err)
	}
	tensor, err := detection.NewTensor(out.Shape, out.Data)
	if err != nil {
		return nil, errors.Wrap(errors.KindInference, "remote.invoke", fmt.Sprintf("malformed output from %s", p.url), err)
	}

	p.mu.Lock()
	p.outputShape = cloneShape(tensor.Shape)
	p.mu.Unlock()
	return tensor, nil
}

func (p *RemotePredictor) InputShape() []int {
	return cloneShape(p.inputShape)
}

// OutputShape is unknown until the first successful call.
func (p *RemotePredictor) OutputShape() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneShape(p.outputShape)
}

func (p *RemotePredictor) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
