package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com"
	defaultOpenAIModel    = "tts-1-hd"
	maxErrorBody          = 4096
)

// OpenAIProvider calls the OpenAI speech endpoint.
type OpenAIProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider. Empty endpoint or model fall back to
// the public API and tts-1-hd; a nil client uses a fresh http.Client.
func NewOpenAIProvider(endpoint, model string, client *http.Client) *OpenAIProvider {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{endpoint: endpoint, model: model, httpClient: client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if req.Credential == "" {
		return nil, NewFailure(AuthMissing, ErrAuthMissing)
	}
	body, err := json.Marshal(speechRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          string(req.Voice),
		ResponseFormat: req.Format,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai returned an empty body")
	}
	return data, nil
}
