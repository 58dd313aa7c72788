package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linguacast/api/internal/config"
)

// ImageClient talks to the image-generation microservice and returns raw
// PNG bytes.
type ImageClient struct {
	httpClient *http.Client
	baseURL    string
}

type imageGenerateRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func NewImageClient(cfg *config.ImageConfig) *ImageClient {
	return &ImageClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	bodyBytes, err := json.Marshal(imageGenerateRequest{Prompt: prompt, Width: 1024, Height: 576})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image service returned status %d: %s", resp.StatusCode, string(msg))
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("image service returned empty body")
	}
	return img, nil
}
