// Package tts abstracts speech synthesis behind a single provider
// interface. Callers never see which implementation is active; selection
// happens once, at construction, from configuration.
package tts

import (
	"context"
	"fmt"
)

// SpeechRequest describes one synthesis call. Speed is a linear multiplier
// (1.0 = normal); each provider translates it to its native rate
// representation. Pitch is clamped to [-10, 10].
type SpeechRequest struct {
	Text         string
	VoiceID      string
	LanguageCode string
	Speed        float64
	Pitch        float64
	SSML         bool
}

// Provider converts text to one fixed container/codec (MP3).
type Provider interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
	Name() string
}

// Provider modes.
const (
	ModeEdge  = "edge"
	ModeCloud = "cloud"
)

// NewProvider selects the synthesis implementation for the configured mode.
// The set is closed; an unknown mode is a startup error, not a per-call one.
func NewProvider(mode string, edge *EdgeProvider, cloud *CloudProvider) (Provider, error) {
	switch mode {
	case ModeEdge:
		return edge, nil
	case ModeCloud:
		return cloud, nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", mode)
	}
}

func clampPitch(pitch float64) float64 {
	if pitch < -10 {
		return -10
	}
	if pitch > 10 {
		return 10
	}
	return pitch
}

// ratePercent converts the linear speed multiplier to a signed percentage
// delta from normal, e.g. 0.7 -> "-30%", 1.0 -> "+0%".
func ratePercent(speed float64) string {
	if speed <= 0 {
		speed = 1.0
	}
	delta := int((speed - 1.0) * 100)
	if delta >= 0 {
		return fmt.Sprintf("+%d%%", delta)
	}
	return fmt.Sprintf("%d%%", delta)
}
