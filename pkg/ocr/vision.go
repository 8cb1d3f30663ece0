package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/koyakei/wind-meter-server/internal/httpc"
)

// VisionConfig holds configuration for the vision-model recognizer.
type VisionConfig struct {
	// BaseURL is the OpenAI-compatible API base (e.g., ".../v1").
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey authenticates requests. Required.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model is the vision-capable model name.
	Model string `yaml:"model" json:"model"`

	// Timeout bounds each recognition request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultVisionConfig returns a VisionConfig with sensible defaults.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *VisionConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("ocr: base_url required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("ocr: api_key required")
	}
	if c.Model == "" {
		return fmt.Errorf("ocr: model required")
	}
	return nil
}

// VisionRecognizer recognizes text via an OpenAI-compatible vision chat
// endpoint. Each call sends the image region inline and asks for the
// digits it shows; the best candidate is the trimmed message content.
type VisionRecognizer struct {
	cfg  VisionConfig
	http *http.Client
}

// NewVisionRecognizer creates a recognizer against the configured endpoint.
func NewVisionRecognizer(cfg VisionConfig) (*VisionRecognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultVisionConfig().Timeout
	}
	return &VisionRecognizer{
		cfg:  cfg,
		http: httpc.NewClient(timeout),
	}, nil
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Recognize sends the image to the vision model and returns its best
// candidate, filtered to digits.
func (r *VisionRecognizer) Recognize(ctx context.Context, img []byte, hint string) (string, error) {
	prompt := "Read the single value shown in this image. Reply with the value only, no explanation."
	if hint != "" {
		prompt = fmt.Sprintf("Read the %s shown in this image. Reply with the value only, no explanation.", hint)
	}

	payload := map[string]interface{}{
		"model": r.cfg.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
						},
					},
				},
			},
		},
		"max_tokens":  8,
		"temperature": 0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	url := strings.TrimSuffix(r.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: API error %d", resp.StatusCode)
	}

	var result visionChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrNoCandidates
	}

	return Digits(result.Choices[0].Message.Content), nil
}

// Close releases idle connections.
func (r *VisionRecognizer) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

// Ensure VisionRecognizer implements Recognizer.
var _ Recognizer = (*VisionRecognizer)(nil)
