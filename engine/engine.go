// Package engine owns the dialogue state machine: it sequences onboarding
// steps, dispatches to the assist and classify services, updates the
// transcript, and persists progress after every accepted mutation.
package engine

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voyago/concierge/catalog"
	"github.com/voyago/concierge/classify"
	"github.com/voyago/concierge/domain"
	"github.com/voyago/concierge/store"
)

// Guard sentinels. The validation ones are silent no-ops at the transcript
// level: no state mutation, no message appended.
var (
	ErrClosed          = errors.New("engine: closed")
	ErrBusy            = errors.New("engine: a turn is already in flight")
	ErrSessionNotFound = errors.New("engine: session not found")
	ErrSessionComplete = errors.New("engine: session is complete")
	ErrWrongKind       = errors.New("engine: input kind does not match the expected response")
	ErrEmptyInput      = errors.New("engine: empty input")
	ErrInvalidEmail    = errors.New("engine: invalid email")
	ErrEmptySelection  = errors.New("engine: no options selected")
	ErrUnknownMessage  = errors.New("engine: message is not awaiting a response")
	ErrUnknownOption   = errors.New("engine: unknown option")
)

// IsValidationError reports whether err is one of the silent no-op guards.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrUnknownOption)
}

// RFC-lite, the same shape the signup form enforces.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Responder answers free-form chat turns. Implementations never fail; they
// degrade internally.
type Responder interface {
	Reply(ctx context.Context, input string, history []domain.Message, personality string) string
}

// Classifier finalizes a session. Implementations always produce an outcome.
type Classifier interface {
	Finalize(ctx context.Context, session *domain.Session) classify.Outcome
}

// Notifier receives transcript events for connected clients.
type Notifier interface {
	Publish(event domain.Event)
}

// SpeechCanceller stops in-flight speech playback. A new user submission
// auto-cancels active speech.
type SpeechCanceller interface {
	Stop()
}

// CompletionFunc is invoked exactly once when a session reaches Complete.
type CompletionFunc func(session *domain.Session)

// Scheduler runs f after d and returns a cancel func. The engine owns every
// scheduled task so teardown can cancel them.
type Scheduler func(d time.Duration, f func()) (cancel func())

func defaultScheduler(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Engine is the dialogue orchestrator.
type Engine struct {
	store       store.Store
	responder   Responder
	classifier  Classifier
	notifier    Notifier
	speech      SpeechCanceller
	onComplete  CompletionFunc
	delay       time.Duration
	personality string
	schedule    Scheduler

	mu      sync.Mutex
	busy    map[string]bool
	cancels map[string]func()
	closed  bool
	wg      sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithThinkingDelay sets the fixed pause before an assistant reply.
func WithThinkingDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithScheduler replaces the timer-backed scheduler, used by tests to run
// scheduled turns synchronously.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.schedule = s }
}

// WithNotifier wires transcript event publication.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSpeech wires speech auto-cancellation on new submissions.
func WithSpeech(s SpeechCanceller) Option {
	return func(e *Engine) { e.speech = s }
}

// WithCompletion sets the completion callback.
func WithCompletion(fn CompletionFunc) Option {
	return func(e *Engine) { e.onComplete = fn }
}

// WithPersonality sets the default assistant personality tag.
func WithPersonality(p string) Option {
	return func(e *Engine) { e.personality = p }
}

// New creates a new dialogue engine.
func New(st store.Store, responder Responder, classifier Classifier, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		responder:   responder,
		classifier:  classifier,
		delay:       1200 * time.Millisecond,
		personality: "friendly",
		schedule:    defaultScheduler,
		busy:        make(map[string]bool),
		cancels:     make(map[string]func()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close cancels every scheduled task and waits for in-flight turns. Further
// operations return ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancels := make([]func(), 0, len(e.cancels))
	for _, c := range e.cancels {
		cancels = append(cancels, c)
	}
	e.cancels = make(map[string]func())
	e.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	if e.speech != nil {
		e.speech.Stop()
	}
	e.wg.Wait()
}

// StartSession creates a new onboarding session, or resumes an existing one
// by id. The returned messages are the full transcript.
func (e *Engine) StartSession(ctx context.Context, sessionID string) (*domain.Session, []domain.Message, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, nil, ErrClosed
	}
	e.mu.Unlock()

	if sessionID != "" {
		sess, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
		if sess != nil {
			messages, err := e.store.GetMessages(ctx, sessionID, 0, 0)
			if err != nil {
				return nil, nil, err
			}
			e.recoverIfStalled(sess, messages)
			return sess, messages, nil
		}
	}

	now := time.Now()
	sess := &domain.Session{
		SessionID: newID("sess"),
		Phase:     domain.PhaseName,
		Answers:   make(map[string][]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sessionID != "" {
		sess.SessionID = sessionID
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, nil, err
	}

	greeting := &domain.Message{
		SessionID:       sess.SessionID,
		Role:            domain.RoleAssistant,
		Content:         "Hi there! I'm your travel concierge. Let's set up your travel profile. What's your name?",
		ExpectsResponse: true,
		ResponseKind:    domain.ResponseFreeText,
	}
	if err := e.appendMessage(ctx, greeting); err != nil {
		return nil, nil, err
	}

	return sess, []domain.Message{*greeting}, nil
}

// recoverIfStalled reschedules the assistant turn for a resumed session that
// was interrupted between a user submission and the assistant's reply.
func (e *Engine) recoverIfStalled(sess *domain.Session, messages []domain.Message) {
	if sess.Phase == domain.PhaseComplete || sess.Phase == domain.PhaseChat || len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser && !last.Pending {
		return
	}

	e.mu.Lock()
	stalled := !e.busy[sess.SessionID] && !e.closed
	if stalled {
		e.busy[sess.SessionID] = true
	}
	e.mu.Unlock()
	if stalled {
		e.scheduleNext(sess.SessionID)
	}
}

// SubmitFreeText handles a typed, spoken, or pasted reply. Valid only while
// the expected response kind is text-based.
func (e *Engine) SubmitFreeText(ctx context.Context, sessionID, text string) error {
	release, err := e.acquire(sessionID)
	if err != nil {
		return err
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		release()
		return err
	}
	if sess == nil {
		release()
		return ErrSessionNotFound
	}

	value := strings.TrimSpace(text)
	var advance func() error

	switch sess.Phase {
	case domain.PhaseName:
		if value == "" {
			release()
			return ErrEmptyInput
		}
		advance = func() error {
			sess.Name = value
			sess.Phase = domain.PhaseEmail
			return nil
		}
	case domain.PhaseEmail:
		if value == "" {
			release()
			return ErrEmptyInput
		}
		if !emailRe.MatchString(value) {
			release()
			return ErrInvalidEmail
		}
		advance = func() error {
			sess.Email = value
			sess.Phase = domain.PhaseSteps
			return nil
		}
	case domain.PhaseSteps:
		step, ok := catalog.At(sess.Cursor)
		if !ok || !step.Kind.TextBased() {
			release()
			return ErrWrongKind
		}
		values := splitList(value)
		if len(values) == 0 {
			release()
			return ErrEmptyInput
		}
		advance = func() error {
			sess.Answers[step.ID] = values
			sess.Cursor++
			return nil
		}
	case domain.PhaseFinalizing, domain.PhaseComplete:
		release()
		return ErrSessionComplete
	default:
		release()
		return ErrWrongKind
	}

	if e.speech != nil {
		e.speech.Stop()
	}

	if err := e.settlePrompt(ctx, sessionID, nil); err != nil {
		release()
		return err
	}

	userMsg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   value,
	}
	if err := e.appendMessage(ctx, userMsg); err != nil {
		release()
		return err
	}

	if err := advance(); err != nil {
		release()
		return err
	}
	if err := e.store.SaveSession(ctx, sess); err != nil {
		release()
		return err
	}

	e.scheduleNext(sessionID)
	return nil
}

// ToggleOption toggles a selection on the current expecting assistant
// message. Toggling the same option twice returns selections to their prior
// value; historical messages are never affected.
func (e *Engine) ToggleOption(ctx context.Context, sessionID, messageID, optionID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.busy[sessionID] {
		e.mu.Unlock()
		return ErrBusy
	}
	e.mu.Unlock()

	msg, err := e.currentPrompt(ctx, sessionID, messageID)
	if err != nil {
		return err
	}
	if !msg.ResponseKind.SelectionBased() {
		return ErrWrongKind
	}
	if !msg.HasOption(optionID) {
		return ErrUnknownOption
	}

	if msg.Selected(optionID) {
		kept := msg.Selections[:0]
		for _, id := range msg.Selections {
			if id != optionID {
				kept = append(kept, id)
			}
		}
		msg.Selections = kept
	} else if msg.ResponseKind == domain.ResponseSingleSelect {
		msg.Selections = []string{optionID}
	} else {
		msg.Selections = append(msg.Selections, optionID)
	}

	if err := e.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}
	e.publish(domain.Event{Type: domain.EventTypeMessageUpdated, SessionID: sessionID, Message: msg})
	return nil
}

// SubmitSelections commits the toggled options of the current prompt. With
// no selections it is a deliberate no-op, not an error message.
func (e *Engine) SubmitSelections(ctx context.Context, sessionID, messageID string) error {
	release, err := e.acquire(sessionID)
	if err != nil {
		return err
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		release()
		return err
	}
	if sess == nil {
		release()
		return ErrSessionNotFound
	}
	if sess.Phase != domain.PhaseSteps {
		release()
		return ErrWrongKind
	}

	msg, err := e.currentPrompt(ctx, sessionID, messageID)
	if err != nil {
		release()
		return err
	}
	if !msg.ResponseKind.SelectionBased() {
		release()
		return ErrWrongKind
	}
	if len(msg.Selections) == 0 {
		release()
		return ErrEmptySelection
	}

	step, ok := catalog.At(sess.Cursor)
	if !ok {
		release()
		return ErrWrongKind
	}

	if e.speech != nil {
		e.speech.Stop()
	}

	// Record ids and echo labels in catalog option order.
	var ids, labels []string
	for _, opt := range msg.Options {
		if msg.Selected(opt.ID) {
			ids = append(ids, opt.ID)
			labels = append(labels, opt.Label)
		}
	}

	if err := e.settlePrompt(ctx, sessionID, msg); err != nil {
		release()
		return err
	}

	userMsg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   strings.Join(labels, ", "),
	}
	if err := e.appendMessage(ctx, userMsg); err != nil {
		release()
		return err
	}

	sess.Answers[step.ID] = ids
	sess.Cursor++
	if err := e.store.SaveSession(ctx, sess); err != nil {
		release()
		return err
	}

	e.scheduleNext(sessionID)
	return nil
}

// Chat answers a free-form assistant turn outside the onboarding flow. The
// reply is synchronous; the one-pending-call guard still applies.
func (e *Engine) Chat(ctx context.Context, sessionID, text, personality string) (string, error) {
	value := strings.TrimSpace(text)
	if value == "" {
		return "", ErrEmptyInput
	}

	release, err := e.acquire(sessionID)
	if err != nil {
		return "", err
	}
	defer release()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		now := time.Now()
		sess = &domain.Session{
			SessionID: sessionID,
			Phase:     domain.PhaseChat,
			Answers:   make(map[string][]string),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.CreateSession(ctx, sess); err != nil {
			return "", err
		}
	}

	if e.speech != nil {
		e.speech.Stop()
	}

	history, err := e.store.GetMessages(ctx, sessionID, 0, 0)
	if err != nil {
		return "", err
	}

	userMsg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   value,
	}
	if err := e.appendMessage(ctx, userMsg); err != nil {
		return "", err
	}

	if personality == "" {
		personality = e.personality
	}
	reply := e.responder.Reply(ctx, value, history, personality)

	assistantMsg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   reply,
	}
	if err := e.appendMessage(ctx, assistantMsg); err != nil {
		return "", err
	}

	return reply, nil
}

// acquire marks the session busy, enforcing the one-in-flight-turn
// invariant at the engine layer.
func (e *Engine) acquire(sessionID string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.busy[sessionID] {
		return nil, ErrBusy
	}
	e.busy[sessionID] = true
	return func() {
		e.mu.Lock()
		delete(e.busy, sessionID)
		e.mu.Unlock()
	}, nil
}

// scheduleNext schedules the assistant's next turn after the thinking
// delay. The session stays busy until the turn completes.
func (e *Engine) scheduleNext(sessionID string) {
	e.mu.Lock()
	if e.closed {
		delete(e.busy, sessionID)
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(e.wg.Done) }
	e.mu.Unlock()

	cancelTimer := e.schedule(e.delay, func() {
		defer done()
		e.nextTurn(sessionID)
	})

	e.mu.Lock()
	// Skip registration when the task already ran (synchronous scheduler).
	if e.busy[sessionID] {
		e.cancels[sessionID] = func() {
			cancelTimer()
			done()
		}
	}
	e.mu.Unlock()
}

// nextTurn appends the assistant's next message for the session's phase.
func (e *Engine) nextTurn(sessionID string) {
	defer func() {
		e.mu.Lock()
		delete(e.busy, sessionID)
		delete(e.cancels, sessionID)
		e.mu.Unlock()
	}()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx := context.Background()
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		log.Printf("ERROR: failed to load session %s for next turn: %v", sessionID, err)
		return
	}

	switch sess.Phase {
	case domain.PhaseEmail:
		e.appendPrompt(ctx, sess, &domain.Message{
			SessionID:       sessionID,
			Role:            domain.RoleAssistant,
			Content:         "Nice to meet you, " + sess.Name + "! What's your email address?",
			ExpectsResponse: true,
			ResponseKind:    domain.ResponseEmail,
		})
	case domain.PhaseSteps:
		step, ok := catalog.At(sess.Cursor)
		if !ok {
			e.finalize(ctx, sess)
			return
		}
		content := step.Title
		if step.Description != "" {
			content += "\n" + step.Description
		}
		e.appendPrompt(ctx, sess, &domain.Message{
			SessionID:       sessionID,
			Role:            domain.RoleAssistant,
			Content:         content,
			ExpectsResponse: true,
			ResponseKind:    step.Kind,
			Options:         step.Options,
		})
	case domain.PhaseFinalizing:
		// Interrupted finalization: run it again. The local code generator
		// is stable, so a retry issues the same code.
		e.finalize(ctx, sess)
	}
}

func (e *Engine) appendPrompt(ctx context.Context, sess *domain.Session, msg *domain.Message) {
	if err := e.appendMessage(ctx, msg); err != nil {
		log.Printf("ERROR: failed to append prompt for session %s: %v", sess.SessionID, err)
	}
}

// finalize classifies the answers, issues the code, and completes the
// session. The fallback chain guarantees this always reaches Complete.
func (e *Engine) finalize(ctx context.Context, sess *domain.Session) {
	if sess.Phase != domain.PhaseFinalizing {
		sess.Phase = domain.PhaseFinalizing
		if err := e.store.SaveSession(ctx, sess); err != nil {
			log.Printf("ERROR: failed to save finalizing session %s: %v", sess.SessionID, err)
		}
	}

	waiting := &domain.Message{
		SessionID: sess.SessionID,
		Role:      domain.RoleAssistant,
		Content:   "Give me a moment while I put together your travel profile...",
		Pending:   true,
	}
	if err := e.appendMessage(ctx, waiting); err != nil {
		log.Printf("ERROR: failed to append waiting message for session %s: %v", sess.SessionID, err)
	}

	outcome := e.classifier.Finalize(ctx, sess)

	waiting.Pending = false
	if err := e.store.UpdateMessage(ctx, waiting); err != nil {
		log.Printf("ERROR: failed to clear pending message for session %s: %v", sess.SessionID, err)
	}
	e.publish(domain.Event{Type: domain.EventTypeMessageUpdated, SessionID: sess.SessionID, Message: waiting})

	final := &domain.Message{
		SessionID: sess.SessionID,
		Role:      domain.RoleAssistant,
		Content: "You're all set, " + sess.Name + "! Your travel profile says: " + outcome.Category +
			". Your travel code is " + outcome.Code + " - keep it handy for exclusive deals.",
		Code:     outcome.Code,
		Category: outcome.Category,
	}
	if err := e.appendMessage(ctx, final); err != nil {
		log.Printf("ERROR: failed to append final message for session %s: %v", sess.SessionID, err)
	}

	sess.IssuedCode = outcome.Code
	sess.Category = outcome.Category
	sess.Summary = outcome.Summary
	sess.CodeImageURL = outcome.ImageURL
	sess.Phase = domain.PhaseComplete
	if err := e.store.SaveSession(ctx, sess); err != nil {
		log.Printf("ERROR: failed to save completed session %s: %v", sess.SessionID, err)
	}

	e.publish(domain.Event{Type: domain.EventTypeSessionFinalized, SessionID: sess.SessionID, Session: sess})

	if e.onComplete != nil {
		e.onComplete(sess)
	}
}

// settlePrompt clears ExpectsResponse on the current prompt so at most one
// message awaits a reply. msg may be nil to look up the last message.
func (e *Engine) settlePrompt(ctx context.Context, sessionID string, msg *domain.Message) error {
	if msg == nil {
		last, err := e.store.LastMessage(ctx, sessionID)
		if err != nil {
			return err
		}
		if last == nil || last.Role != domain.RoleAssistant || !last.ExpectsResponse {
			return nil
		}
		msg = last
	}
	msg.ExpectsResponse = false
	if err := e.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}
	e.publish(domain.Event{Type: domain.EventTypeMessageUpdated, SessionID: sessionID, Message: msg})
	return nil
}

// currentPrompt loads the most recent message and checks it is the
// expecting assistant prompt identified by messageID.
func (e *Engine) currentPrompt(ctx context.Context, sessionID, messageID string) (*domain.Message, error) {
	last, err := e.store.LastMessage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.Role != domain.RoleAssistant || !last.ExpectsResponse || last.MessageID != messageID {
		return nil, ErrUnknownMessage
	}
	return last, nil
}

// appendMessage assigns identity and sequence, persists, and publishes.
func (e *Engine) appendMessage(ctx context.Context, msg *domain.Message) error {
	seq, err := e.store.NextSeq(ctx, msg.SessionID)
	if err != nil {
		return err
	}
	msg.Seq = seq
	msg.MessageID = newID("msg")
	msg.CreatedAt = time.Now()
	if msg.ResponseKind == "" {
		msg.ResponseKind = domain.ResponseNone
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return err
	}
	e.publish(domain.Event{Type: domain.EventTypeMessageAppended, SessionID: msg.SessionID, Message: msg})
	return nil
}

func (e *Engine) publish(event domain.Event) {
	if e.notifier == nil {
		return
	}
	event.Ts = time.Now().UnixMilli()
	e.notifier.Publish(event)
}

// splitList splits a comma-separated destination list, trimming entries and
// dropping empties.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
