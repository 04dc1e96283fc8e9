package speech

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Output is the text-to-speech adapter: a networked high-quality provider
// with the platform's local engine as fallback. Exactly one playback is
// active at a time; starting new speech cancels any in-flight playback
// first.
type Output struct {
	synth           Synthesizer
	player          Player
	local           LocalEngine
	preferredGender string

	mu      sync.Mutex
	current Playback
	gen     uint64
	closed  bool
}

// NewOutput creates a new speech output adapter. synth and player form the
// primary tier and may be nil together; local is the fallback tier and may
// also be nil, in which case Speak reports FailureUnsupported.
func NewOutput(synth Synthesizer, player Player, local LocalEngine, preferredGender string) *Output {
	return &Output{
		synth:           synth,
		player:          player,
		local:           local,
		preferredGender: preferredGender,
	}
}

// Speak synthesizes and plays text, cancelling any in-flight playback
// first. The primary provider is attempted first; on any failure the local
// engine takes over.
func (o *Output) Speak(ctx context.Context, text, voice string) error {
	clean := Flatten(text)
	if clean == "" {
		return nil
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.gen++
	gen := o.gen
	current := o.current
	o.current = nil
	o.mu.Unlock()

	if current != nil {
		current.Stop()
	}

	pb, err := o.play(ctx, clean, voice)
	if err != nil {
		return err
	}

	o.mu.Lock()
	// A newer Speak or Stop won the race while we were synthesizing.
	if o.closed || gen != o.gen {
		o.mu.Unlock()
		pb.Stop()
		return nil
	}
	o.current = pb
	o.mu.Unlock()
	return nil
}

func (o *Output) play(ctx context.Context, text, voice string) (Playback, error) {
	if o.synth != nil && o.player != nil {
		audio, err := o.synth.Synthesize(ctx, text, voice)
		if err == nil {
			pb, playErr := o.player.Play(ctx, audio)
			if playErr == nil {
				return pb, nil
			}
			err = playErr
		}
		log.Printf("WARN: speech provider failed, falling back to local engine: %v", err)
	}

	if o.local == nil {
		return nil, &CapabilityError{Kind: FailureUnsupported}
	}
	v, ok := PickVoice(o.local.Voices(), o.preferredGender)
	if !ok {
		return nil, &CapabilityError{Kind: FailureUnsupported, Err: fmt.Errorf("local engine has no voices")}
	}
	return o.local.Speak(ctx, text, v)
}

// Stop cancels the in-flight playback, if any. This covers the explicit
// stop-speaking control and the auto-cancel on a new user submission.
func (o *Output) Stop() {
	o.mu.Lock()
	o.gen++
	current := o.current
	o.current = nil
	o.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}

// Close stops playback and rejects further Speak calls. Teardown must not
// leak an in-flight playback.
func (o *Output) Close() {
	o.mu.Lock()
	o.closed = true
	o.gen++
	current := o.current
	o.current = nil
	o.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}
