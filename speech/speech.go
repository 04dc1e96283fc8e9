// Package speech wraps speech-to-text and text-to-speech behind small
// capability interfaces. Production binds to platform or networked
// providers; tests bind to fakes.
package speech

import (
	"context"
	"fmt"
	"strings"
)

// CapabilityFailure classifies why a speech capability is unavailable or a
// recognition attempt failed.
type CapabilityFailure string

const (
	FailureUnsupported      CapabilityFailure = "unsupported"
	FailurePermissionDenied CapabilityFailure = "permission_denied"
	FailureRecognition      CapabilityFailure = "recognition_error"
)

// CapabilityError is a typed speech failure. It is surfaced to the user as a
// one-shot notification; the dialogue itself is unaffected.
type CapabilityError struct {
	Kind CapabilityFailure
	Err  error
}

func (e *CapabilityError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Recognizer is a speech-to-text provider binding. Recognize blocks until a
// single transcript is produced, the provider errors, or ctx is cancelled.
type Recognizer interface {
	Supported() bool
	Recognize(ctx context.Context, locale string) (string, error)
}

// Voice describes a synthesis voice offered by a local engine.
type Voice struct {
	Name   string
	Gender string
}

// Playback is a handle on one in-flight audio playback.
type Playback interface {
	// Stop cancels the playback. Safe to call more than once.
	Stop()
	// Done is closed when playback finishes or is stopped.
	Done() <-chan struct{}
}

// Synthesizer produces audio for text. The networked high-quality provider
// implements this.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Player plays synthesized audio.
type Player interface {
	Play(ctx context.Context, audio []byte) (Playback, error)
}

// LocalEngine is the platform synthesis binding used as the fallback tier.
type LocalEngine interface {
	Voices() []Voice
	Speak(ctx context.Context, text string, voice Voice) (Playback, error)
}

// PickVoice selects a voice matching the preferred gender, falling back to
// the first available voice.
func PickVoice(voices []Voice, preferredGender string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, v := range voices {
		if strings.EqualFold(v.Gender, preferredGender) {
			return v, true
		}
	}
	return voices[0], true
}
