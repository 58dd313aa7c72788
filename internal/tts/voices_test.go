package tts

import "testing"

func TestResolveExactMapping(t *testing.T) {
	r := NewVoiceResolver("")
	if got := r.Resolve("ja-JP-Wavenet-B", "ja-JP"); got != "ja-JP-NanamiNeural" {
		t.Fatalf("Resolve(ja-JP-Wavenet-B) = %q, want ja-JP-NanamiNeural", got)
	}
	if got := r.Resolve("zh-CN-Yaoyao", "zh-CN"); got != "zh-CN-XiaoxiaoNeural" {
		t.Fatalf("Resolve(zh-CN-Yaoyao) = %q, want zh-CN-XiaoxiaoNeural", got)
	}
}

func TestResolveNeuralPassThrough(t *testing.T) {
	r := NewVoiceResolver("")
	// A well-formed neural id not in the mapping table is used as-is.
	if got := r.Resolve("fr-FR-HenriNeural", "fr-FR"); got != "fr-FR-HenriNeural" {
		t.Fatalf("Resolve passed-through neural id mangled: %q", got)
	}
}

func TestResolveLanguagePrefixDefault(t *testing.T) {
	r := NewVoiceResolver("")
	// Unmapped non-neural id degrades to the default for its own prefix.
	if got := r.Resolve("ja-JP-Wavenet-Z", "en-US"); got != "ja-JP-NanamiNeural" {
		t.Fatalf("Resolve(ja-JP-Wavenet-Z) = %q, want ja-JP default", got)
	}
}

func TestResolveLanguageCodeDefault(t *testing.T) {
	r := NewVoiceResolver("")
	// Id carries no usable prefix, so the explicit language code decides.
	if got := r.Resolve("nonsense-voice", "ko-KR"); got != "ko-KR-SunHiNeural" {
		t.Fatalf("Resolve(nonsense-voice, ko-KR) = %q, want ko-KR default", got)
	}
}

func TestResolveLastResort(t *testing.T) {
	r := NewVoiceResolver("")
	if got := r.Resolve("nonsense-voice", "xx-XX"); got != lastResortVoice {
		t.Fatalf("Resolve last resort = %q, want %q", got, lastResortVoice)
	}

	custom := NewVoiceResolver("de-DE-ConradNeural")
	if got := custom.Resolve("nonsense-voice", "xx-XX"); got != "de-DE-ConradNeural" {
		t.Fatalf("configured last resort ignored, got %q", got)
	}
}

func TestLanguagePrefix(t *testing.T) {
	cases := []struct {
		voiceID string
		want    string
	}{
		{"ja-JP-NanamiNeural", "ja-JP"},
		{"fil-PH-BlessicaNeural", "fil-PH"},
		{"nonsense-voice", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := languagePrefix(tc.voiceID); got != tc.want {
			t.Errorf("languagePrefix(%q) = %q, want %q", tc.voiceID, got, tc.want)
		}
	}
}

func TestRatePercent(t *testing.T) {
	cases := []struct {
		speed float64
		want  string
	}{
		{0.7, "-30%"},
		{0.85, "-15%"},
		{1.0, "+0%"},
		{1.25, "+25%"},
		{0, "+0%"}, // zero means unset, treated as normal speed
	}
	for _, tc := range cases {
		if got := ratePercent(tc.speed); got != tc.want {
			t.Errorf("ratePercent(%v) = %q, want %q", tc.speed, got, tc.want)
		}
	}
}

func TestClampPitch(t *testing.T) {
	if got := clampPitch(-25); got != -10 {
		t.Errorf("clampPitch(-25) = %v, want -10", got)
	}
	if got := clampPitch(25); got != 10 {
		t.Errorf("clampPitch(25) = %v, want 10", got)
	}
	if got := clampPitch(3.5); got != 3.5 {
		t.Errorf("clampPitch(3.5) = %v, want 3.5", got)
	}
}

func TestNewProviderUnknownMode(t *testing.T) {
	if _, err := NewProvider("shout", nil, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	p, err := NewProvider(ModeEdge, &EdgeProvider{}, nil)
	if err != nil {
		t.Fatalf("NewProvider(edge) returned error: %v", err)
	}
	if p.Name() != "edge-tts" {
		t.Fatalf("provider name = %q, want edge-tts", p.Name())
	}
}
