package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linguacast/api/internal/config"
)

// CloudProvider talks to a commercial text-to-speech REST API
// (Google-compatible request/response shapes).
type CloudProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	resolver   *VoiceResolver
}

type cloudSynthesizeRequest struct {
	Input struct {
		Text string `json:"text,omitempty"`
		SSML string `json:"ssml,omitempty"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
		Pitch         float64 `json:"pitch,omitempty"`
	} `json:"audioConfig"`
}

type cloudSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func NewCloudProvider(cfg *config.TTSConfig, resolver *VoiceResolver) *CloudProvider {
	return &CloudProvider{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:  cfg.CloudURL,
		apiKey:   cfg.CloudAPIKey,
		resolver: resolver,
	}
}

func (p *CloudProvider) Name() string { return "cloud-tts" }

func (p *CloudProvider) SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	voice := p.resolver.Resolve(req.VoiceID, req.LanguageCode)
	lang := req.LanguageCode
	if lang == "" {
		lang = languagePrefix(voice)
	}

	var body cloudSynthesizeRequest
	if req.SSML {
		body.Input.SSML = req.Text
	} else {
		body.Input.Text = req.Text
	}
	body.Voice.LanguageCode = lang
	body.Voice.Name = voice
	body.AudioConfig.AudioEncoding = "MP3"
	if req.Speed > 0 {
		body.AudioConfig.SpeakingRate = req.Speed
	}
	body.AudioConfig.Pitch = clampPitch(req.Pitch)

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/text:synthesize", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cloud tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cloud tts returned status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed cloudSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode synthesis response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("cloud tts returned empty audio for voice %s", voice)
	}
	return audio, nil
}
