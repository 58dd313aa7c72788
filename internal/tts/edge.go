package tts

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

// EdgeProvider talks to the self-hosted edge-tts microservice. It is the
// default mode: free, good enough for dialogue narration.
type EdgeProvider struct {
	httpClient *http.Client
	baseURL    string
	resolver   *VoiceResolver
}

type edgeSynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
	Pitch string `json:"pitch,omitempty"`
	SSML  bool   `json:"ssml,omitempty"`
}

func NewEdgeProvider(cfg *config.TTSConfig, resolver *VoiceResolver) *EdgeProvider {
	return &EdgeProvider{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:  cfg.EdgeURL,
		resolver: resolver,
	}
}

func (p *EdgeProvider) Name() string { return "edge-tts" }

// SynthesizeSpeech resolves the voice, then posts to the service and reads
// back raw MP3 bytes.
func (p *EdgeProvider) SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	voice := p.resolver.Resolve(req.VoiceID, req.LanguageCode)

	body := edgeSynthesizeRequest{
		Text:  req.Text,
		Voice: voice,
		Rate:  ratePercent(req.Speed),
		SSML:  req.SSML,
	}
	if req.Pitch != 0 {
		body.Pitch = fmt.Sprintf("%+.0fHz", clampPitch(req.Pitch)*10)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/synthesize", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("edge-tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("edge-tts returned status %d: %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("edge-tts returned empty audio for voice %s", voice)
	}
	return audio, nil
}
