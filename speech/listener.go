package speech

import (
	"context"
	"errors"
	"sync"
)

// InputState is the speech-recognition lifecycle state.
type InputState string

const (
	StateIdle      InputState = "idle"
	StateListening InputState = "listening"
)

// ErrAlreadyListening is returned when Start is called while a listen
// session is active. Concurrent starts are guarded, never overlapped.
var ErrAlreadyListening = errors.New("speech: already listening")

// Listener drives non-continuous, single-result recognition against the
// first supported provider in its chain.
type Listener struct {
	rec    Recognizer
	locale string

	mu     sync.Mutex
	state  InputState
	cancel context.CancelFunc
}

// NewListener picks the first supported provider. With no supported
// provider, Start reports FailureUnsupported and stays idle.
func NewListener(locale string, providers ...Recognizer) *Listener {
	l := &Listener{locale: locale, state: StateIdle}
	for _, p := range providers {
		if p != nil && p.Supported() {
			l.rec = p
			break
		}
	}
	return l
}

// State returns the current lifecycle state.
func (l *Listener) State() InputState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins a single listen session. Exactly one of onResult or onErr is
// called, after which the listener is idle again. There is no automatic
// retry.
func (l *Listener) Start(ctx context.Context, onResult func(text string), onErr func(err error)) error {
	l.mu.Lock()
	if l.rec == nil {
		l.mu.Unlock()
		return &CapabilityError{Kind: FailureUnsupported}
	}
	if l.state == StateListening {
		l.mu.Unlock()
		return ErrAlreadyListening
	}
	recCtx, cancel := context.WithCancel(ctx)
	l.state = StateListening
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		text, err := l.rec.Recognize(recCtx, l.locale)
		cancel()

		l.mu.Lock()
		l.state = StateIdle
		l.cancel = nil
		l.mu.Unlock()

		if err != nil {
			if onErr != nil {
				onErr(asCapabilityError(err))
			}
			return
		}
		if onResult != nil {
			onResult(text)
		}
	}()

	return nil
}

// Stop cancels an active listen session, if any.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func asCapabilityError(err error) error {
	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return err
	}
	return &CapabilityError{Kind: FailureRecognition, Err: err}
}
