package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linguacast/api/internal/config"
)

// TranslitClient fetches reading annotations (furigana for Japanese, pinyin
// for Chinese) from the transliteration microservice. Languages without a
// reading system are skipped by the caller.
type TranslitClient struct {
	httpClient *http.Client
	baseURL    string
}

type translitRequest struct {
	Text string `json:"text"`
}

type translitResponse struct {
	Reading string `json:"reading"`
}

func NewTranslitClient(cfg *config.TranslitConfig) *TranslitClient {
	return &TranslitClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Supports reports whether the language has a reading endpoint.
func (c *TranslitClient) Supports(languageCode string) bool {
	return translitPath(languageCode) != ""
}

// Reading returns the transliteration for text in the given language.
func (c *TranslitClient) Reading(ctx context.Context, text, languageCode string) (string, error) {
	path := translitPath(languageCode)
	if path == "" {
		return "", fmt.Errorf("no transliteration for language %s", languageCode)
	}

	bodyBytes, err := json.Marshal(translitRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transliteration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transliteration service returned status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed translitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return parsed.Reading, nil
}

func translitPath(languageCode string) string {
	switch {
	case strings.HasPrefix(languageCode, "ja"):
		return "/furigana"
	case strings.HasPrefix(languageCode, "zh"):
		return "/pinyin"
	default:
		return ""
	}
}
