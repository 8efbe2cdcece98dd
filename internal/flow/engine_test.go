package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hustleforge/hustleforge/internal/models"
	"github.com/hustleforge/hustleforge/internal/retry"
	"github.com/hustleforge/hustleforge/internal/store"
)

type sentMessage struct {
	chatID string
	text   string
	menu   *models.Menu
}

// fakeService records outbound messages and can fail a number of initial
// sends.
type fakeService struct {
	mu       sync.Mutex
	sent     []sentMessage
	failNext int
	events   chan models.Event
}

func newFakeService() *fakeService {
	return &fakeService{events: make(chan models.Event, 16)}
}

func (s *fakeService) SendText(ctx context.Context, chatID, text string, menu *models.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return models.Transient(errors.New("send failed"))
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text, menu: menu})
	return nil
}

func (s *fakeService) SetMenuButton(ctx context.Context, chatID string) error { return nil }
func (s *fakeService) Start(ctx context.Context) error                        { return nil }
func (s *fakeService) Stop() error                                            { return nil }
func (s *fakeService) Events() <-chan models.Event                            { return s.events }

func (s *fakeService) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeService) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	msgs := s.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

type genReply struct {
	out string
	err error
}

// fakeGen replays scripted replies in order; once the script runs out it
// returns a canned reply.
type fakeGen struct {
	mu      sync.Mutex
	replies []genReply
	prompts []string
}

func (g *fakeGen) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.replies) == 0 {
		return "*Canned reply* here you go.", nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.out, r.err
}

func (g *fakeGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func noSleep(time.Duration) {}

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, Sleep: noSleep}
}

func newTestEngine(gen *fakeGen, opts ...Option) (*Engine, *store.InMemorySessionStore, *fakeService) {
	st := store.NewInMemorySessionStore()
	svc := newFakeService()
	opts = append([]Option{WithRetryPolicy(testPolicy())}, opts...)
	return New(st, gen, svc, opts...), st, svc
}

func textEvent(userID, text string) models.Event {
	return models.Event{Kind: models.EventText, UserID: userID, ChatID: userID, Text: text, Time: time.Now().Unix()}
}

func commandEvent(userID string, cmd models.Command) models.Event {
	return models.Event{Kind: models.EventCommand, UserID: userID, ChatID: userID, Command: cmd, Time: time.Now().Unix()}
}

func menuEvent(userID, selection string) models.Event {
	return models.Event{Kind: models.EventMenu, UserID: userID, ChatID: userID, Selection: selection, Time: time.Now().Unix()}
}

func menuTokens(m *models.Menu) []string {
	if m == nil {
		return nil
	}
	var tokens []string
	for _, row := range m.Rows {
		for _, b := range row {
			tokens = append(tokens, b.Selection)
		}
	}
	return tokens
}

func hasToken(m *models.Menu, token string) bool {
	for _, got := range menuTokens(m) {
		if got == token {
			return true
		}
	}
	return false
}

const ideasScript = "**1. Mitumba Reselling**\nBuy and resell clothes.\n\n**2. Phone Repair**\nFix phones locally.\n\n**3. Design Gigs**\nFreelance design work."

// seedSession puts a session in the idea-selection state with three
// generated headings.
func seedSession(st *store.InMemorySessionStore, userID string) *models.Session {
	sess := models.NewSession(userID, userID)
	sess.Skills = "graphic design"
	sess.Location = "Nairobi"
	sess.Budget = "5000"
	sess.Goals = "earn 20,000/month"
	sess.GeneratedIdeas = ideasScript
	sess.IdeaHeadings = []string{"1. Mitumba Reselling", "2. Phone Repair", "3. Design Gigs"}
	sess.State = models.StateSelectIdea
	st.Put(sess)
	return sess
}

func TestHappyPathCollection(t *testing.T) {
	gen := &fakeGen{replies: []genReply{{out: ideasScript}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	eng.Dispatch(ctx, textEvent("u1", "graphic design"))
	eng.Dispatch(ctx, textEvent("u1", "Nairobi"))
	eng.Dispatch(ctx, textEvent("u1", "5000"))
	eng.Dispatch(ctx, textEvent("u1", "earn 20,000/month"))

	sess, ok := st.Get("u1")
	if !ok {
		t.Fatal("session missing after collection")
	}
	if sess.State != models.StateSelectIdea {
		t.Fatalf("state = %q, want %q", sess.State, models.StateSelectIdea)
	}
	if sess.Skills != "graphic design" || sess.Location != "Nairobi" || sess.Budget != "5000" {
		t.Fatalf("attributes not captured: %+v", sess)
	}
	if len(sess.IdeaHeadings) != 3 {
		t.Fatalf("headings = %v, want 3", sess.IdeaHeadings)
	}
	if len(sess.Explored) != 0 {
		t.Fatalf("expected nothing explored yet, got %v", sess.Explored)
	}

	last := svc.lastMessage(t)
	if last.text != msgPickIdea {
		t.Fatalf("last message = %q, want pick prompt", last.text)
	}
	for n := 1; n <= 3; n++ {
		if !hasToken(last.menu, models.ExploreIdeaToken(n)) {
			t.Fatalf("idea menu missing token for idea %d: %v", n, menuTokens(last.menu))
		}
	}
}

func TestIdeaGenerationFailureEndsConversation(t *testing.T) {
	gen := &fakeGen{replies: []genReply{{err: errors.New("model unavailable")}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	eng.Dispatch(ctx, textEvent("u1", "cooking"))
	eng.Dispatch(ctx, textEvent("u1", "Mombasa"))
	eng.Dispatch(ctx, textEvent("u1", "3000"))
	eng.Dispatch(ctx, textEvent("u1", "extra income"))

	if _, ok := st.Get("u1"); ok {
		t.Fatal("session should be removed after generation failure")
	}
	apologies := 0
	for _, m := range svc.messages() {
		if m.text == msgIdeasFailed {
			apologies++
		}
	}
	if apologies != 1 {
		t.Fatalf("apology count = %d, want 1", apologies)
	}

	// Starting over works.
	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	sess, ok := st.Get("u1")
	if !ok || sess.State != models.StateCollectSkills {
		t.Fatalf("restart did not recreate a fresh session: %+v", sess)
	}
}

func TestOutputSanitizingToNothingIsFailure(t *testing.T) {
	// "***" is non-blank but normalizes to an empty message, which the
	// transport would reject. It must take the generation-failure path.
	gen := &fakeGen{replies: []genReply{{out: "***"}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	eng.Dispatch(ctx, textEvent("u1", "cooking"))
	eng.Dispatch(ctx, textEvent("u1", "Kisumu"))
	eng.Dispatch(ctx, textEvent("u1", "2000"))
	eng.Dispatch(ctx, textEvent("u1", "extra income"))

	if _, ok := st.Get("u1"); ok {
		t.Fatal("session should be removed when output sanitizes to nothing")
	}
	if svc.lastMessage(t).text != msgIdeasFailed {
		t.Fatalf("last message = %q, want the ideas apology", svc.lastMessage(t).text)
	}

	// The recoverable paths offer their retry button instead.
	gen = &fakeGen{replies: []genReply{{out: "  ***  "}}}
	eng, st, svc = newTestEngine(gen)
	seedSession(st, "u2")
	eng.Dispatch(ctx, menuEvent("u2", models.ExploreIdeaToken(1)))

	sess, ok := st.Get("u2")
	if !ok || sess.Explored[1] {
		t.Fatal("detail failure should keep the session and the idea unexplored")
	}
	last := svc.lastMessage(t)
	if last.text != msgDetailFailed || !hasToken(last.menu, models.RetryExploreToken(1)) {
		t.Fatalf("expected detail failure with retry, got %q %v", last.text, menuTokens(last.menu))
	}
}

func TestExploreIdeaMarksOnSuccess(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	seedSession(st, "u1")

	eng.Dispatch(ctx, menuEvent("u1", models.ExploreIdeaToken(1)))

	sess, _ := st.Get("u1")
	if !sess.Explored[1] {
		t.Fatal("idea 1 not marked explored")
	}
	if sess.State != models.StateAskQuestion {
		t.Fatalf("state = %q, want %q", sess.State, models.StateAskQuestion)
	}
	last := svc.lastMessage(t)
	if last.text != msgWhatNext {
		t.Fatalf("last message = %q, want continuation prompt", last.text)
	}
	if hasToken(last.menu, models.ExploreIdeaToken(1)) {
		t.Fatal("explored idea should not be offered again")
	}
	if !hasToken(last.menu, models.ExploreIdeaToken(2)) || !hasToken(last.menu, models.ExploreIdeaToken(3)) {
		t.Fatalf("remaining ideas missing from menu: %v", menuTokens(last.menu))
	}

	// A second tap on the same idea is a no-op notice, no generation.
	before := gen.calls()
	eng.Dispatch(ctx, menuEvent("u1", models.ExploreIdeaToken(1)))
	if gen.calls() != before {
		t.Fatal("repeated selection should not regenerate")
	}
	if svc.lastMessage(t).text != msgAlreadyExplored {
		t.Fatalf("last message = %q, want already-explored notice", svc.lastMessage(t).text)
	}
}

func TestExploreFailureOffersRetry(t *testing.T) {
	gen := &fakeGen{replies: []genReply{{err: errors.New("timeout")}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	seedSession(st, "u1")

	eng.Dispatch(ctx, menuEvent("u1", models.ExploreIdeaToken(2)))

	sess, ok := st.Get("u1")
	if !ok {
		t.Fatal("session should survive a detail failure")
	}
	if sess.Explored[2] {
		t.Fatal("failed idea must not be marked explored")
	}
	last := svc.lastMessage(t)
	if last.text != msgDetailFailed {
		t.Fatalf("last message = %q, want detail failure notice", last.text)
	}
	if !hasToken(last.menu, models.RetryExploreToken(2)) {
		t.Fatalf("retry button missing: %v", menuTokens(last.menu))
	}

	eng.Dispatch(ctx, menuEvent("u1", models.RetryExploreToken(2)))
	sess, _ = st.Get("u1")
	if !sess.Explored[2] {
		t.Fatal("retry should mark the idea explored on success")
	}
}

func TestAllExploredOffersCustomIdea(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	sess := seedSession(st, "u1")
	sess.Explored = map[int]bool{1: true, 2: true}
	st.Put(sess)

	eng.Dispatch(ctx, menuEvent("u1", models.ExploreIdeaToken(3)))

	sess, _ = st.Get("u1")
	if !sess.AllExplored() {
		t.Fatal("all ideas should be explored")
	}
	if sess.State != models.StateCustomIdea {
		t.Fatalf("state = %q, want %q", sess.State, models.StateCustomIdea)
	}
	last := svc.lastMessage(t)
	if !hasToken(last.menu, models.TokenCustomIdea) {
		t.Fatalf("custom idea option missing: %v", menuTokens(last.menu))
	}
	for n := 1; n <= 3; n++ {
		if hasToken(last.menu, models.ExploreIdeaToken(n)) {
			t.Fatalf("no explore buttons should remain: %v", menuTokens(last.menu))
		}
	}
}

func TestQuestionFailureRemembersQuestion(t *testing.T) {
	gen := &fakeGen{replies: []genReply{{err: errors.New("timeout")}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	sess := seedSession(st, "u1")
	sess.State = models.StateAskQuestion
	st.Put(sess)

	eng.Dispatch(ctx, textEvent("u1", "How much can I earn from mitumba?"))

	sess, _ = st.Get("u1")
	if sess.LastQuestion != "How much can I earn from mitumba?" {
		t.Fatalf("LastQuestion = %q", sess.LastQuestion)
	}
	last := svc.lastMessage(t)
	if last.text != msgAnswerFailed || !hasToken(last.menu, models.TokenRetryQuestion) {
		t.Fatalf("expected answer failure with retry, got %q %v", last.text, menuTokens(last.menu))
	}

	eng.Dispatch(ctx, menuEvent("u1", models.TokenRetryQuestion))
	if svc.lastMessage(t).text != msgWhatNext {
		t.Fatalf("retry should answer and continue, got %q", svc.lastMessage(t).text)
	}
}

func TestCustomIdeaFailureEndsConversation(t *testing.T) {
	gen := &fakeGen{replies: []genReply{{err: errors.New("model unavailable")}}}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	sess := seedSession(st, "u1")
	sess.State = models.StateCustomIdea
	st.Put(sess)

	eng.Dispatch(ctx, textEvent("u1", "selling smokies outside campus"))

	if _, ok := st.Get("u1"); ok {
		t.Fatal("session should be removed after custom idea failure")
	}
	if svc.lastMessage(t).text != msgCustomFailed {
		t.Fatalf("last message = %q", svc.lastMessage(t).text)
	}
}

func TestCancelThenTextGetsOnboarding(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	eng.Dispatch(ctx, textEvent("u1", "cooking"))
	eng.Dispatch(ctx, commandEvent("u1", models.CommandCancel))

	if _, ok := st.Get("u1"); ok {
		t.Fatal("cancel should remove the session")
	}

	eng.Dispatch(ctx, textEvent("u1", "hello?"))
	last := svc.lastMessage(t)
	if last.text != msgOnboarding || !hasToken(last.menu, models.TokenStartNew) {
		t.Fatalf("expected onboarding with start button, got %q %v", last.text, menuTokens(last.menu))
	}
	if _, ok := st.Get("u1"); ok {
		t.Fatal("onboarding reply must not create a session")
	}
}

func TestSkillsRejectsCommandLookalike(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	eng.Dispatch(ctx, textEvent("u1", "/help"))

	sess, _ := st.Get("u1")
	if sess.State != models.StateCollectSkills || sess.Skills != "" {
		t.Fatalf("command lookalike should not be captured as skills: %+v", sess)
	}
	if svc.lastMessage(t).text != msgSkillsNotCommand {
		t.Fatalf("last message = %q", svc.lastMessage(t).text)
	}
}

func TestClosingUpsell(t *testing.T) {
	for _, tc := range []struct {
		goals string
		want  string
	}{
		{"earn 20,000 per month", msgClosingUpsell},
		{"earn 50000 shillings monthly", msgClosingUpsell},
		{"a bit of pocket money", msgClosing},
	} {
		gen := &fakeGen{}
		eng, st, svc := newTestEngine(gen)
		ctx := context.Background()
		sess := seedSession(st, "u1")
		sess.Goals = tc.goals
		st.Put(sess)

		eng.Dispatch(ctx, menuEvent("u1", models.TokenEndConversation))
		last := svc.lastMessage(t)
		if last.text != tc.want {
			t.Fatalf("goals %q: closing = %q, want %q", tc.goals, last.text, tc.want)
		}
		if !hasToken(last.menu, models.TokenPremiumStrategy) || !hasToken(last.menu, models.TokenFinalEnd) {
			t.Fatalf("closing menu incomplete: %v", menuTokens(last.menu))
		}
	}
}

func TestFinalEndRemovesSession(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	seedSession(st, "u1")

	eng.Dispatch(ctx, menuEvent("u1", models.TokenFinalEnd))
	if _, ok := st.Get("u1"); ok {
		t.Fatal("final end should remove the session")
	}
	if svc.lastMessage(t).text != msgGoodbye {
		t.Fatalf("last message = %q", svc.lastMessage(t).text)
	}
}

func TestUnknownSelection(t *testing.T) {
	gen := &fakeGen{}
	eng, st, svc := newTestEngine(gen)
	ctx := context.Background()
	seedSession(st, "u1")

	eng.Dispatch(ctx, menuEvent("u1", "mystery_token"))
	if svc.lastMessage(t).text != msgSomethingWrong {
		t.Fatalf("last message = %q", svc.lastMessage(t).text)
	}
	if _, ok := st.Get("u1"); !ok {
		t.Fatal("unknown selection must not drop the session")
	}
}

func TestLongResponseIsChunked(t *testing.T) {
	long := strings.Repeat("line of detail\n", 20)
	gen := &fakeGen{replies: []genReply{{out: long}}}
	eng, st, svc := newTestEngine(gen, WithMaxMessageLen(80))
	ctx := context.Background()
	seedSession(st, "u1")

	eng.Dispatch(ctx, menuEvent("u1", models.ExploreIdeaToken(1)))

	var parts, numbered int
	for _, m := range svc.messages() {
		if strings.Contains(m.text, "line of detail") {
			parts++
			if strings.HasPrefix(m.text, "Part ") {
				numbered++
			}
		}
	}
	if parts < 2 {
		t.Fatalf("expected multiple parts, got %d", parts)
	}
	if numbered != parts-1 {
		t.Fatalf("all parts after the first should be numbered: %d of %d", numbered, parts)
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	gen := &fakeGen{}
	eng, _, svc := newTestEngine(gen)
	ctx := context.Background()
	svc.failNext = 1

	eng.Dispatch(ctx, commandEvent("u1", models.CommandStart))
	if svc.lastMessage(t).text != msgWelcome {
		t.Fatalf("welcome not delivered after retry: %q", svc.lastMessage(t).text)
	}
}
