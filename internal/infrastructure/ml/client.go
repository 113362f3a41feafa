package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"VelocityForecast/internal/regression"
)

// KindRemote names the learner hosted by an external ML service.
const KindRemote = "remote"

// Client talks to an external ML service that fits and serves regressors.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Fit uploads a training matrix and returns the id of the fitted model.
func (c *Client) Fit(ctx context.Context, learner string, params map[string]any, features [][]float64, targets []float64) (string, error) {
	payload := map[string]any{
		"learner":  learner,
		"params":   params,
		"features": features,
		"targets":  targets,
	}

	var resp struct {
		ModelID string `json:"model_id"`
	}
	if err := c.post(ctx, "/fit", payload, &resp); err != nil {
		return "", err
	}
	if resp.ModelID == "" {
		return "", errors.New("fit response carries no model_id")
	}
	return resp.ModelID, nil
}

// Predict scores rows against a previously fitted model.
func (c *Client) Predict(ctx context.Context, modelID string, features [][]float64) ([]float64, error) {
	payload := map[string]any{
		"model_id": modelID,
		"features": features,
	}

	var resp struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := c.post(ctx, "/predict", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) != len(features) {
		return nil, fmt.Errorf("service returned %d predictions for %d rows", len(resp.Predictions), len(features))
	}
	return resp.Predictions, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	if c == nil || c.http == nil || c.endpoint == "" {
		return errors.New("ml client is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

// Remote is a regressor whose fitted state lives in the ML service; only the
// model id is persisted.
type Remote struct {
	client  *Client
	learner string
	params  map[string]any
	modelID string
	width   int
}

var _ regression.ContextRegressor = (*Remote)(nil)

// Register adds the remote learner to the registry. Hyperparameters may name
// the service-side learner under "learner"; the rest are forwarded as is.
func Register(registry *regression.Registry, client *Client) {
	registry.Register(KindRemote, func(params map[string]any) (regression.Regressor, error) {
		learner := "default"
		forwarded := make(map[string]any, len(params))
		for k, v := range params {
			if k == "learner" {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("remote learner name must be a string, got %T", v)
				}
				learner = s
				continue
			}
			forwarded[k] = v
		}
		return &Remote{client: client, learner: learner, params: forwarded}, nil
	})
}

// Kind reports KindRemote.
func (r *Remote) Kind() string { return KindRemote }

// InputWidth reports the feature count seen at Fit.
func (r *Remote) InputWidth() int { return r.width }

// Fit trains a fresh service-side model without a deadline.
func (r *Remote) Fit(features [][]float64, targets []float64) error {
	return r.FitContext(context.Background(), features, targets)
}

// FitContext trains a fresh service-side model; the previous id, if any, is
// replaced. The request is aborted when ctx is done.
func (r *Remote) FitContext(ctx context.Context, features [][]float64, targets []float64) error {
	if len(features) == 0 || len(features) != len(targets) {
		return fmt.Errorf("fit needs matching non-empty rows, got %d features and %d targets", len(features), len(targets))
	}
	id, err := r.client.Fit(ctx, r.learner, r.params, features, targets)
	if err != nil {
		return fmt.Errorf("remote fit: %w", err)
	}
	r.modelID = id
	r.width = len(features[0])
	return nil
}

// Predict scores rows without a deadline.
func (r *Remote) Predict(features [][]float64) ([]float64, error) {
	return r.PredictContext(context.Background(), features)
}

// PredictContext scores rows with the fitted service-side model.
func (r *Remote) PredictContext(ctx context.Context, features [][]float64) ([]float64, error) {
	if r.modelID == "" {
		return nil, regression.ErrNotFitted
	}
	for i, row := range features {
		if len(row) != r.width {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), r.width)
		}
	}
	preds, err := r.client.Predict(ctx, r.modelID, features)
	if err != nil {
		return nil, fmt.Errorf("remote predict: %w", err)
	}
	return preds, nil
}

type remoteState struct {
	ModelID string `json:"model_id"`
	Learner string `json:"learner"`
	Width   int    `json:"width"`
}

// MarshalJSON persists the model reference.
func (r *Remote) MarshalJSON() ([]byte, error) {
	return json.Marshal(remoteState{ModelID: r.modelID, Learner: r.learner, Width: r.width})
}

// UnmarshalJSON restores the model reference; the client comes from Register.
func (r *Remote) UnmarshalJSON(data []byte) error {
	var st remoteState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	r.modelID, r.learner, r.width = st.ModelID, st.Learner, st.Width
	return nil
}
