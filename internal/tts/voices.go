package tts

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

// lastResortVoice is the final fallback when every lookup misses. Synthesis
// in the wrong voice beats a failed job.
const lastResortVoice = "en-US-JennyNeural"

// voiceFallbacks maps retired or provider-specific voice ids to a concrete
// replacement. Immutable at runtime.
var voiceFallbacks = map[string]string{
	// Wavenet ids from the cloud provider, mapped onto neural equivalents
	"en-US-Wavenet-A": "en-US-GuyNeural",
	"en-US-Wavenet-C": "en-US-JennyNeural",
	"es-ES-Wavenet-B": "es-ES-AlvaroNeural",
	"es-MX-Wavenet-A": "es-MX-DaliaNeural",
	"ja-JP-Wavenet-B": "ja-JP-NanamiNeural",
	"ja-JP-Wavenet-C": "ja-JP-KeitaNeural",
	"zh-CN-Wavenet-A": "zh-CN-XiaoxiaoNeural",
	// Retired voices
	"ja-JP-Ayumi":  "ja-JP-NanamiNeural",
	"zh-CN-Yaoyao": "zh-CN-XiaoxiaoNeural",
}

// languageDefaults maps a language-region code to its default narration
// voice. Immutable at runtime.
var languageDefaults = map[string]string{
	"en-US": "en-US-JennyNeural",
	"en-GB": "en-GB-SoniaNeural",
	"es-ES": "es-ES-ElviraNeural",
	"es-MX": "es-MX-DaliaNeural",
	"ja-JP": "ja-JP-NanamiNeural",
	"zh-CN": "zh-CN-XiaoxiaoNeural",
	"zh-TW": "zh-TW-HsiaoChenNeural",
	"fr-FR": "fr-FR-DeniseNeural",
	"de-DE": "de-DE-KatjaNeural",
	"ko-KR": "ko-KR-SunHiNeural",
}

var langPrefixRe = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}`)

// languagePrefix derives the language-region code from a voice id's naming
// convention ("ja-JP-NanamiNeural" -> "ja-JP"). Returns "" on a miss; the
// caller decides what that means.
func languagePrefix(voiceID string) string {
	return langPrefixRe.FindString(voiceID)
}

// VoiceResolver maps an abstract voice request to a concrete synthesis
// voice. Lookups are read-only; the resolver is safe for concurrent use.
type VoiceResolver struct {
	defaultVoice string
}

// NewVoiceResolver creates a resolver whose last-resort voice defaults to
// lastResortVoice when cfg leaves it empty.
func NewVoiceResolver(defaultVoice string) *VoiceResolver {
	if defaultVoice == "" {
		defaultVoice = lastResortVoice
	}
	return &VoiceResolver{defaultVoice: defaultVoice}
}

// Resolve walks the fallback chain, first match wins:
//
//  1. exact mapping table entry for the requested id
//  2. a well-formed neural id passes through unchanged
//  3. the default voice for the id's derived language-region prefix
//  4. the default voice for the explicitly supplied language code
//  5. the hard-coded last resort
//
// Every step beyond the first logs, so operators can see synthesis drift
// without the caller ever failing. Resolve is total: it always returns a
// usable voice id.
func (r *VoiceResolver) Resolve(voiceID, languageCode string) string {
	if mapped, ok := voiceFallbacks[voiceID]; ok {
		return mapped
	}

	// Neural ids are directly usable; anything else degrades to a default.
	if strings.HasSuffix(voiceID, "Neural") && languagePrefix(voiceID) != "" {
		return voiceID
	}

	if prefix := languagePrefix(voiceID); prefix != "" {
		if def, ok := languageDefaults[prefix]; ok {
			log.Warn("unmapped voice, using language default", "voice", voiceID, "fallback", def)
			return def
		}
	}

	if def, ok := languageDefaults[languageCode]; ok {
		log.Warn("unresolvable voice, using language-code default", "voice", voiceID, "languageCode", languageCode, "fallback", def)
		return def
	}

	log.Error("no fallback voice found, using last resort", "voice", voiceID, "languageCode", languageCode, "fallback", r.defaultVoice)
	return r.defaultVoice
}
