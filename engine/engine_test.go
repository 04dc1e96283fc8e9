package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voyago/concierge/classify"
	"github.com/voyago/concierge/domain"
	"github.com/voyago/concierge/store"
	"github.com/voyago/concierge/tests/helpers"
)

// syncScheduler runs scheduled turns inline so tests observe their effects
// immediately.
func syncScheduler(d time.Duration, f func()) func() {
	f()
	return func() {}
}

type stubResponder struct {
	reply string
	calls int
}

func (r *stubResponder) Reply(ctx context.Context, input string, history []domain.Message, personality string) string {
	r.calls++
	return r.reply
}

type stubSpeech struct {
	mu    sync.Mutex
	stops int
}

func (s *stubSpeech) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *stubSpeech) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Publish(event domain.Event) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) ByType(t domain.EventType) []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.SQLiteStore) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	base := []Option{WithScheduler(syncScheduler), WithThinkingDelay(0)}
	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil), append(base, opts...)...)
	t.Cleanup(eng.Close)
	return eng, st
}

func lastMessage(t *testing.T, st store.Store, sessionID string) *domain.Message {
	t.Helper()
	msg, err := st.LastMessage(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message")
	}
	return msg
}

func countExpecting(t *testing.T, st store.Store, sessionID string) int {
	t.Helper()
	messages, err := st.GetMessages(context.Background(), sessionID, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	n := 0
	for _, m := range messages {
		if m.ExpectsResponse {
			n++
		}
	}
	return n
}

// selectAndSubmit toggles the given options on the current prompt and
// commits them.
func selectAndSubmit(t *testing.T, eng *Engine, st store.Store, sessionID string, optionIDs ...string) {
	t.Helper()
	ctx := context.Background()
	prompt := lastMessage(t, st, sessionID)
	for _, id := range optionIDs {
		if err := eng.ToggleOption(ctx, sessionID, prompt.MessageID, id); err != nil {
			t.Fatalf("ToggleOption(%s) failed: %v", id, err)
		}
	}
	if err := eng.SubmitSelections(ctx, sessionID, prompt.MessageID); err != nil {
		t.Fatalf("SubmitSelections failed: %v", err)
	}
}

func TestOnboardingFlow(t *testing.T) {
	ctx := context.Background()
	var completions int
	eng, st := newTestEngine(t, WithCompletion(func(sess *domain.Session) { completions++ }))

	sess, messages, err := eng.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sess.Phase != domain.PhaseName {
		t.Fatalf("new session should start at the name phase, got %s", sess.Phase)
	}
	if len(messages) != 1 || !messages[0].ExpectsResponse || messages[0].ResponseKind != domain.ResponseFreeText {
		t.Fatalf("unexpected greeting: %+v", messages)
	}

	// Name.
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Ana"); err != nil {
		t.Fatalf("name submission failed: %v", err)
	}
	prompt := lastMessage(t, st, sess.SessionID)
	if prompt.ResponseKind != domain.ResponseEmail || !strings.Contains(prompt.Content, "Ana") {
		t.Fatalf("expected email prompt mentioning the name, got %+v", prompt)
	}
	if n := countExpecting(t, st, sess.SessionID); n != 1 {
		t.Fatalf("expected exactly one expecting message, got %d", n)
	}

	// Email.
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com"); err != nil {
		t.Fatalf("email submission failed: %v", err)
	}
	prompt = lastMessage(t, st, sess.SessionID)
	if prompt.ResponseKind != domain.ResponseMultiSelect {
		t.Fatalf("expected interests prompt, got %+v", prompt)
	}

	// Steps: interests, travel style, budget.
	selectAndSubmit(t, eng, st, sess.SessionID, "food", "history")
	selectAndSubmit(t, eng, st, sess.SessionID, "comfort")
	selectAndSubmit(t, eng, st, sess.SessionID, "1000_3000")

	// Destinations is typed, not toggled.
	prompt = lastMessage(t, st, sess.SessionID)
	if prompt.ResponseKind != domain.ResponseDestinationList {
		t.Fatalf("expected destinations prompt, got %+v", prompt)
	}
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Lisbon, Kyoto, "); err != nil {
		t.Fatalf("destinations submission failed: %v", err)
	}

	// Trip length is the last step; submitting it finalizes.
	selectAndSubmit(t, eng, st, sess.SessionID, "one_week")

	final, err := st.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !final.Finalized() {
		t.Fatalf("session should be complete, got %s", final.Phase)
	}
	if final.Name != "Ana" || final.Email != "ana@example.com" {
		t.Fatalf("identity lost: %+v", final)
	}
	if got := final.Answers["interests"]; len(got) != 2 || got[0] != "food" || got[1] != "history" {
		t.Fatalf("unexpected interests: %v", got)
	}
	if got := final.Answers["destinations"]; len(got) != 2 || got[0] != "Lisbon" || got[1] != "Kyoto" {
		t.Fatalf("unexpected destinations: %v", got)
	}
	if !strings.HasPrefix(final.IssuedCode, "VOYA-") {
		t.Fatalf("expected an issued code, got %q", final.IssuedCode)
	}
	if final.Category == "" {
		t.Fatal("expected a category")
	}

	last := lastMessage(t, st, sess.SessionID)
	if last.Code != final.IssuedCode || !strings.Contains(last.Content, final.IssuedCode) {
		t.Fatalf("final message missing code: %+v", last)
	}
	if n := countExpecting(t, st, sess.SessionID); n != 0 {
		t.Fatalf("completed session should have no expecting message, got %d", n)
	}
	if completions != 1 {
		t.Fatalf("completion callback fired %d times", completions)
	}
}

func TestValidationNoOps(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	sess, _, err := eng.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	before, _ := st.GetMessages(ctx, sess.SessionID, 0, 0)

	if err := eng.SubmitFreeText(ctx, sess.SessionID, "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if !IsValidationError(ErrEmptyInput) {
		t.Fatal("ErrEmptyInput should be a validation error")
	}

	// Advance to the email phase, then submit a malformed address.
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Ana"); err != nil {
		t.Fatalf("name submission failed: %v", err)
	}
	mid, _ := st.GetMessages(ctx, sess.SessionID, 0, 0)

	for _, bad := range []string{"not-an-email", "a@b", "a b@c.com", "@x.com"} {
		if err := eng.SubmitFreeText(ctx, sess.SessionID, bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", bad, err)
		}
	}

	after, _ := st.GetMessages(ctx, sess.SessionID, 0, 0)
	if len(after) != len(mid) {
		t.Fatalf("rejected input must not touch the transcript: %d -> %d", len(mid), len(after))
	}
	if len(before) >= len(after) {
		t.Fatal("valid submission should have grown the transcript")
	}

	got, _ := st.GetSession(ctx, sess.SessionID)
	if got.Phase != domain.PhaseEmail || got.Email != "" {
		t.Fatalf("rejected email must not advance the session: %+v", got)
	}
}

func TestToggleOption(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")
	eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com")

	prompt := lastMessage(t, st, sess.SessionID)

	if err := eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "food"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if err := eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "history"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	got := lastMessage(t, st, sess.SessionID)
	if len(got.Selections) != 2 {
		t.Fatalf("expected 2 selections, got %v", got.Selections)
	}

	// Toggling again removes.
	if err := eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "history"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	got = lastMessage(t, st, sess.SessionID)
	if len(got.Selections) != 1 || got.Selections[0] != "food" {
		t.Fatalf("expected re-toggle to remove, got %v", got.Selections)
	}

	// Unknown options are rejected without touching state.
	if err := eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "skydiving"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
	// Stale message ids are rejected.
	if err := eng.ToggleOption(ctx, sess.SessionID, "msg_nope", "food"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestToggleSingleSelectReplaces(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")
	eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com")
	selectAndSubmit(t, eng, st, sess.SessionID, "food")

	prompt := lastMessage(t, st, sess.SessionID)
	if prompt.ResponseKind != domain.ResponseSingleSelect {
		t.Fatalf("expected single-select prompt, got %+v", prompt)
	}

	eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "luxury")
	eng.ToggleOption(ctx, sess.SessionID, prompt.MessageID, "budget")
	got := lastMessage(t, st, sess.SessionID)
	if len(got.Selections) != 1 || got.Selections[0] != "budget" {
		t.Fatalf("single-select should replace, got %v", got.Selections)
	}
}

func TestSubmitSelectionsEmpty(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")
	eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com")

	prompt := lastMessage(t, st, sess.SessionID)
	if err := eng.SubmitSelections(ctx, sess.SessionID, prompt.MessageID); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
	if got, _ := st.GetSession(ctx, sess.SessionID); got.Cursor != 0 {
		t.Fatalf("empty submission must not advance the cursor: %+v", got)
	}
}

func TestOneTurnInFlight(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)

	// Capture scheduled turns instead of running them so the session stays
	// busy until we say so.
	var pending []func()
	capture := func(d time.Duration, f func()) func() {
		pending = append(pending, f)
		return func() {}
	}
	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil),
		WithScheduler(capture), WithThinkingDelay(0))

	sess, _, err := eng.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Ana"); err != nil {
		t.Fatalf("name submission failed: %v", err)
	}

	if err := eng.SubmitFreeText(ctx, sess.SessionID, "again"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := eng.ToggleOption(ctx, sess.SessionID, "any", "any"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from toggle, got %v", err)
	}
	if _, err := eng.Chat(ctx, sess.SessionID, "hi", ""); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from chat, got %v", err)
	}

	// Drain the scheduled turn; the session is usable again.
	for _, f := range pending {
		f()
	}
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com"); err != nil {
		t.Fatalf("submission after turn completed failed: %v", err)
	}
	for _, f := range pending[1:] {
		f()
	}
	eng.Close()
}

func TestResumeSession(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")

	resumed, messages, err := eng.StartSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.SessionID != sess.SessionID || resumed.Name != "Ana" {
		t.Fatalf("unexpected resumed session: %+v", resumed)
	}
	if len(messages) < 3 {
		t.Fatalf("expected full transcript on resume, got %d messages", len(messages))
	}
}

func TestResumeStalledSession(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)

	// A session interrupted right after the user's reply: the assistant
	// never responded.
	now := time.Now()
	sess := &domain.Session{
		SessionID: "sess_stall",
		Name:      "Ana",
		Phase:     domain.PhaseEmail,
		Answers:   map[string][]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := st.CreateMessage(ctx, &domain.Message{
		MessageID: "msg_user", SessionID: sess.SessionID, Seq: 1,
		Role: domain.RoleUser, Content: "Ana", CreatedAt: now,
		ResponseKind: domain.ResponseNone,
	}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil),
		WithScheduler(syncScheduler), WithThinkingDelay(0))
	t.Cleanup(eng.Close)

	if _, _, err := eng.StartSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	last := lastMessage(t, st, sess.SessionID)
	if last.Role != domain.RoleAssistant || last.ResponseKind != domain.ResponseEmail {
		t.Fatalf("stalled session should get its email prompt on resume, got %+v", last)
	}
}

func TestResumeInterruptedFinalization(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)

	now := time.Now()
	sess := &domain.Session{
		SessionID: "sess_fin",
		Name:      "Ana",
		Email:     "ana@example.com",
		Phase:     domain.PhaseFinalizing,
		Cursor:    5,
		Answers:   map[string][]string{"interests": {"food"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := st.CreateMessage(ctx, &domain.Message{
		MessageID: "msg_wait", SessionID: sess.SessionID, Seq: 1,
		Role: domain.RoleAssistant, Content: "one moment", CreatedAt: now,
		Pending: true, ResponseKind: domain.ResponseNone,
	}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil),
		WithScheduler(syncScheduler), WithThinkingDelay(0))
	t.Cleanup(eng.Close)

	if _, _, err := eng.StartSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	got, _ := st.GetSession(ctx, sess.SessionID)
	if !got.Finalized() {
		t.Fatalf("interrupted finalization should complete on resume, got %s", got.Phase)
	}
	if got.IssuedCode == "" {
		t.Fatal("expected an issued code")
	}
}

func TestCompletedSessionRejectsInput(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")
	eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com")
	selectAndSubmit(t, eng, st, sess.SessionID, "food")
	selectAndSubmit(t, eng, st, sess.SessionID, "comfort")
	selectAndSubmit(t, eng, st, sess.SessionID, "under_1000")
	eng.SubmitFreeText(ctx, sess.SessionID, "Lisbon")
	selectAndSubmit(t, eng, st, sess.SessionID, "weekend")

	if err := eng.SubmitFreeText(ctx, sess.SessionID, "more"); !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)
	responder := &stubResponder{reply: "Paris in spring is lovely."}
	eng := New(st, responder, classify.NewService(nil),
		WithScheduler(syncScheduler), WithThinkingDelay(0))
	t.Cleanup(eng.Close)

	if _, err := eng.Chat(ctx, "chat_1", "  ", ""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}

	reply, err := eng.Chat(ctx, "chat_1", "when should I visit paris?", "")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "Paris in spring is lovely." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	sess, _ := st.GetSession(ctx, "chat_1")
	if sess == nil || sess.Phase != domain.PhaseChat {
		t.Fatalf("chat session not created: %+v", sess)
	}
	messages, _ := st.GetMessages(ctx, "chat_1", 0, 0)
	if len(messages) != 2 || messages[0].Role != domain.RoleUser || messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected chat transcript: %+v", messages)
	}

	// Second turn reuses the session.
	if _, err := eng.Chat(ctx, "chat_1", "and in autumn?", ""); err != nil {
		t.Fatalf("second chat turn failed: %v", err)
	}
	if responder.calls != 2 {
		t.Fatalf("responder called %d times", responder.calls)
	}
}

func TestSpeechCancelledOnSubmit(t *testing.T) {
	ctx := context.Background()
	speech := &stubSpeech{}
	eng, _ := newTestEngine(t, WithSpeech(speech))

	sess, _, _ := eng.StartSession(ctx, "")
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Ana"); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if speech.Stops() == 0 {
		t.Fatal("a new submission should cancel in-flight speech")
	}

	// Rejected input leaves speech alone.
	before := speech.Stops()
	eng.SubmitFreeText(ctx, sess.SessionID, "not-an-email")
	if speech.Stops() != before {
		t.Fatal("rejected input must not cancel speech")
	}
}

func TestNotifierEvents(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	eng, st := newTestEngine(t, WithNotifier(notifier))

	sess, _, _ := eng.StartSession(ctx, "")
	eng.SubmitFreeText(ctx, sess.SessionID, "Ana")
	eng.SubmitFreeText(ctx, sess.SessionID, "ana@example.com")
	selectAndSubmit(t, eng, st, sess.SessionID, "food")
	selectAndSubmit(t, eng, st, sess.SessionID, "comfort")
	selectAndSubmit(t, eng, st, sess.SessionID, "under_1000")
	eng.SubmitFreeText(ctx, sess.SessionID, "Lisbon")
	selectAndSubmit(t, eng, st, sess.SessionID, "weekend")

	if got := notifier.ByType(domain.EventTypeSessionFinalized); len(got) != 1 {
		t.Fatalf("expected one finalized event, got %d", len(got))
	}
	if got := notifier.ByType(domain.EventTypeMessageAppended); len(got) == 0 {
		t.Fatal("expected appended events")
	}
	for _, e := range notifier.ByType(domain.EventTypeMessageAppended) {
		if e.SessionID != sess.SessionID || e.Message == nil || e.Ts == 0 {
			t.Fatalf("malformed event: %+v", e)
		}
	}
}

func TestClose(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil),
		WithScheduler(syncScheduler), WithThinkingDelay(0))

	eng.Close()
	if _, _, err := eng.StartSession(context.Background(), ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := eng.SubmitFreeText(context.Background(), "s", "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Idempotent.
	eng.Close()
}

func TestClosePendingTurn(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)

	var cancelled bool
	capture := func(d time.Duration, f func()) func() {
		return func() { cancelled = true }
	}
	eng := New(st, &stubResponder{reply: "ok"}, classify.NewService(nil),
		WithScheduler(capture), WithThinkingDelay(time.Hour))

	sess, _, _ := eng.StartSession(ctx, "")
	if err := eng.SubmitFreeText(ctx, sess.SessionID, "Ana"); err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		eng.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung on a pending scheduled turn")
	}
	if !cancelled {
		t.Fatal("Close should cancel the scheduled turn")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" Lisbon , Kyoto ,, ")
	if len(got) != 2 || got[0] != "Lisbon" || got[1] != "Kyoto" {
		t.Fatalf("unexpected split: %v", got)
	}
	if splitList("  ,  ") != nil {
		t.Fatal("expected nil for empty list")
	}
}
