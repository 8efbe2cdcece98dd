// Package flow implements the conversation state machine that drives a user
// from onboarding through idea generation, exploration and the question loop.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hustleforge/hustleforge/internal/chunk"
	"github.com/hustleforge/hustleforge/internal/genai"
	"github.com/hustleforge/hustleforge/internal/markup"
	"github.com/hustleforge/hustleforge/internal/messaging"
	"github.com/hustleforge/hustleforge/internal/models"
	"github.com/hustleforge/hustleforge/internal/retry"
	"github.com/hustleforge/hustleforge/internal/store"
)

// DefaultGenTimeout bounds a single generation call.
const DefaultGenTimeout = 30 * time.Second

// DefaultUpsellTriggers are goal substrings that switch the closing message
// to the strategy upsell. Matching is case-insensitive.
var DefaultUpsellTriggers = []string{"20,000", "20000", "30,000", "30000", "50,000", "50000"}

// Engine routes inbound events to conversation handlers. Events for
// different users run independently; events for the same user are
// serialized.
type Engine struct {
	store    store.SessionStore
	gen      genai.Client
	msg      messaging.Service
	policy   retry.Policy
	timeout  time.Duration
	triggers []string
	maxLen   int

	locks sync.Map // user ID -> *sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy overrides the delivery retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithGenTimeout overrides the per-generation timeout.
func WithGenTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithUpsellTriggers overrides the goal substrings that enable the closing
// upsell.
func WithUpsellTriggers(triggers []string) Option {
	return func(e *Engine) { e.triggers = triggers }
}

// WithMaxMessageLen overrides the outbound chunking limit.
func WithMaxMessageLen(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLen = n
		}
	}
}

// New creates an Engine wired to a session store, a generation client and a
// messaging service.
func New(st store.SessionStore, gen genai.Client, msg messaging.Service, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		gen:      gen,
		msg:      msg,
		policy:   retry.Default(),
		timeout:  DefaultGenTimeout,
		triggers: DefaultUpsellTriggers,
		maxLen:   chunk.DefaultMaxLen,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes events from the messaging service until the context is
// cancelled or the event channel closes.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("flow: engine running")
	for {
		select {
		case <-ctx.Done():
			slog.Info("flow: engine stopping", "reason", ctx.Err())
			return
		case ev, ok := <-e.msg.Events():
			if !ok {
				slog.Info("flow: event channel closed")
				return
			}
			go e.Dispatch(ctx, ev)
		}
	}
}

// Dispatch handles a single event. Unexpected faults end the conversation
// with a notice rather than leaving the user in a broken state.
func (e *Engine) Dispatch(ctx context.Context, ev models.Event) {
	mu := e.userLock(ev.UserID)
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("flow: panic recovered", "user_id", ev.UserID, "panic", r)
			e.failConversation(ctx, ev.UserID, ev.ChatID, fmt.Sprint(r))
		}
	}()

	slog.Debug("flow: dispatching event", "kind", ev.Kind, "user_id", ev.UserID)

	var err error
	switch ev.Kind {
	case models.EventCommand:
		err = e.handleCommand(ctx, ev)
	case models.EventText:
		err = e.handleText(ctx, ev)
	case models.EventMenu:
		err = e.handleMenu(ctx, ev)
	default:
		slog.Warn("flow: ignoring event of unknown kind", "kind", ev.Kind, "user_id", ev.UserID)
		return
	}
	if err != nil {
		slog.Error("flow: event handling failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		e.failConversation(ctx, ev.UserID, ev.ChatID, err.Error())
	}
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (e *Engine) handleCommand(ctx context.Context, ev models.Event) error {
	switch ev.Command {
	case models.CommandStart:
		return e.startConversation(ctx, ev.UserID, ev.ChatID)
	case models.CommandCancel:
		e.store.Delete(ev.UserID)
		return e.send(ctx, ev.ChatID, msgCancelled, nil)
	default:
		slog.Warn("flow: ignoring unknown command", "command", ev.Command, "user_id", ev.UserID)
		return nil
	}
}

// startConversation resets any prior session and begins attribute
// collection.
func (e *Engine) startConversation(ctx context.Context, userID, chatID string) error {
	e.store.Delete(userID)
	sess := models.NewSession(userID, chatID)
	e.store.Put(sess)
	slog.Info("flow: conversation started", "user_id", userID)

	if err := e.msg.SetMenuButton(ctx, chatID); err != nil {
		slog.Warn("flow: menu button reset failed", "error", err, "user_id", userID)
	}
	return e.send(ctx, chatID, msgWelcome, nil)
}

func (e *Engine) handleText(ctx context.Context, ev models.Event) error {
	sess, ok := e.store.Get(ev.UserID)
	if !ok {
		// No conversation in progress; greet without creating one.
		return e.send(ctx, ev.ChatID, msgOnboarding, onboardingMenu())
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		if prompt := collectionPrompt(sess.State); prompt != "" {
			return e.send(ctx, sess.ChatID, prompt, nil)
		}
		return e.send(ctx, sess.ChatID, msgSomethingWrong, nil)
	}

	switch sess.State {
	case models.StateCollectSkills:
		if strings.HasPrefix(text, "/") {
			return e.send(ctx, sess.ChatID, msgSkillsNotCommand, nil)
		}
		sess.Skills = text
		return e.advance(ctx, sess, models.StateCollectLocation, msgAskLocation)
	case models.StateCollectLocation:
		sess.Location = text
		return e.advance(ctx, sess, models.StateCollectBudget, msgAskBudget)
	case models.StateCollectBudget:
		sess.Budget = text
		return e.advance(ctx, sess, models.StateCollectGoals, msgAskGoals)
	case models.StateCollectGoals:
		return e.generateIdeas(ctx, sess, text)
	case models.StateSelectIdea:
		return e.send(ctx, sess.ChatID, msgPickIdea, ideaMenu(sess))
	case models.StateAskQuestion:
		return e.answerQuestion(ctx, sess, text)
	case models.StateCustomIdea:
		return e.evaluateCustomIdea(ctx, sess, text)
	default:
		return fmt.Errorf("unhandled conversation state %q", sess.State)
	}
}

// advance stores the updated session in the given state and sends the next
// collection prompt.
func (e *Engine) advance(ctx context.Context, sess *models.Session, next models.State, prompt string) error {
	sess.State = next
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)
	return e.send(ctx, sess.ChatID, prompt, nil)
}

// collectionPrompt returns the question for a collection state, or "" when
// the state is past collection.
func collectionPrompt(s models.State) string {
	switch s {
	case models.StateCollectSkills:
		return msgAskSkills
	case models.StateCollectLocation:
		return msgAskLocation
	case models.StateCollectBudget:
		return msgAskBudget
	case models.StateCollectGoals:
		return msgAskGoals
	}
	return ""
}

// generateIdeas produces the initial idea batch. A generation failure here
// ends the conversation: there is nothing to fall back to.
func (e *Engine) generateIdeas(ctx context.Context, sess *models.Session, goals string) error {
	sess.Goals = goals
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)

	raw, err := e.generate(ctx, ideasPrompt(sess))
	if err != nil {
		slog.Error("flow: idea generation failed", "error", err, "user_id", sess.UserID)
		e.store.Delete(sess.UserID)
		return e.send(ctx, sess.ChatID, msgIdeasFailed, nil)
	}

	clean := markup.Sanitize(raw)
	sess.GeneratedIdeas = clean
	sess.IdeaHeadings = markup.ExtractHeadings(clean, models.MaxIdeas)
	sess.Explored = make(map[int]bool)
	sess.State = models.StateSelectIdea
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)
	slog.Info("flow: ideas generated", "user_id", sess.UserID, "headings", len(sess.IdeaHeadings))

	if err := e.deliver(ctx, sess.ChatID, msgIdeasIntro+"\n\n"+clean, nil); err != nil {
		return err
	}
	return e.send(ctx, sess.ChatID, msgPickIdea, ideaMenu(sess))
}

// exploreIdea generates the detail breakdown for one idea. The idea is
// marked explored only after a successful generation so a retry stays
// available on failure.
func (e *Engine) exploreIdea(ctx context.Context, sess *models.Session, idea int) error {
	if idea < 1 || idea > len(sess.IdeaHeadings) {
		slog.Warn("flow: idea selection out of range", "idea", idea, "user_id", sess.UserID)
		return e.send(ctx, sess.ChatID, msgSomethingWrong, nil)
	}
	if sess.Explored[idea] {
		return e.send(ctx, sess.ChatID, msgAlreadyExplored, nil)
	}

	heading := sess.IdeaHeadings[idea-1]
	raw, err := e.generate(ctx, ideaDetailPrompt(sess, heading))
	if err != nil {
		slog.Error("flow: idea detail failed", "error", err, "idea", idea, "user_id", sess.UserID)
		return e.send(ctx, sess.ChatID, msgDetailFailed, retryExploreMenu(idea))
	}

	if sess.Explored == nil {
		sess.Explored = make(map[int]bool)
	}
	sess.Explored[idea] = true
	sess.State = models.StateAskQuestion
	if sess.AllExplored() {
		sess.State = models.StateCustomIdea
	}
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)

	if err := e.deliver(ctx, sess.ChatID, markup.Sanitize(raw), nil); err != nil {
		return err
	}
	return e.send(ctx, sess.ChatID, msgWhatNext, continuationMenu(sess))
}

// answerQuestion answers a follow-up question. The question is remembered
// so a failed answer can be retried from a button.
func (e *Engine) answerQuestion(ctx context.Context, sess *models.Session, question string) error {
	sess.LastQuestion = question
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)

	raw, err := e.generate(ctx, questionPrompt(sess, question))
	if err != nil {
		slog.Error("flow: answer generation failed", "error", err, "user_id", sess.UserID)
		return e.send(ctx, sess.ChatID, msgAnswerFailed, retryQuestionMenu())
	}

	sess.State = models.StateAskQuestion
	if sess.AllExplored() {
		sess.State = models.StateCustomIdea
	}
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)

	if err := e.deliver(ctx, sess.ChatID, markup.Sanitize(raw), nil); err != nil {
		return err
	}
	return e.send(ctx, sess.ChatID, msgWhatNext, continuationMenu(sess))
}

// evaluateCustomIdea assesses a user-supplied idea. Like the initial batch,
// a failure here ends the conversation.
func (e *Engine) evaluateCustomIdea(ctx context.Context, sess *models.Session, idea string) error {
	raw, err := e.generate(ctx, customIdeaPrompt(sess, idea))
	if err != nil {
		slog.Error("flow: custom idea evaluation failed", "error", err, "user_id", sess.UserID)
		e.store.Delete(sess.UserID)
		return e.send(ctx, sess.ChatID, msgCustomFailed, nil)
	}

	sess.State = models.StateAskQuestion
	sess.UpdatedAt = time.Now()
	e.store.Put(sess)

	if err := e.deliver(ctx, sess.ChatID, markup.Sanitize(raw), nil); err != nil {
		return err
	}
	return e.send(ctx, sess.ChatID, msgWhatNext, continuationMenu(sess))
}

func (e *Engine) handleMenu(ctx context.Context, ev models.Event) error {
	sel := models.ParseSelection(ev.Selection)
	sess, hasSession := e.store.Get(ev.UserID)

	switch sel.Kind {
	case models.SelectionStartNew:
		return e.startConversation(ctx, ev.UserID, ev.ChatID)
	case models.SelectionLearnMore:
		return e.send(ctx, ev.ChatID, msgLearnMore, onboardingMenu())
	case models.SelectionExploreIdea, models.SelectionRetryExplore:
		if !hasSession {
			return e.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		}
		return e.exploreIdea(ctx, sess, sel.Idea)
	case models.SelectionAskQuestion:
		if !hasSession {
			return e.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		}
		sess.State = models.StateAskQuestion
		sess.UpdatedAt = time.Now()
		e.store.Put(sess)
		return e.send(ctx, sess.ChatID, msgAskPrompt, nil)
	case models.SelectionRetryQuestion:
		if !hasSession || sess.LastQuestion == "" {
			return e.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		}
		return e.answerQuestion(ctx, sess, sess.LastQuestion)
	case models.SelectionCustomIdea:
		if !hasSession {
			return e.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		}
		sess.State = models.StateCustomIdea
		sess.UpdatedAt = time.Now()
		e.store.Put(sess)
		return e.send(ctx, sess.ChatID, msgCustomPrompt, nil)
	case models.SelectionEndConversation:
		text := msgClosing
		if hasSession && e.upsellEligible(sess.Goals) {
			text = msgClosingUpsell
		}
		return e.send(ctx, ev.ChatID, text, closingMenu())
	case models.SelectionPremiumStrategy:
		return e.send(ctx, ev.ChatID, msgPremium, nil)
	case models.SelectionTalkExpert:
		return e.send(ctx, ev.ChatID, msgTalkExpert, nil)
	case models.SelectionShareFriends:
		return e.send(ctx, ev.ChatID, msgShare, nil)
	case models.SelectionFinalEnd:
		e.store.Delete(ev.UserID)
		slog.Info("flow: conversation ended", "user_id", ev.UserID)
		return e.send(ctx, ev.ChatID, msgGoodbye, nil)
	default:
		slog.Warn("flow: unknown menu selection", "selection", ev.Selection, "user_id", ev.UserID)
		return e.send(ctx, ev.ChatID, msgSomethingWrong, nil)
	}
}

// upsellEligible reports whether the user's stated goals contain one of the
// configured upsell trigger substrings.
func (e *Engine) upsellEligible(goals string) bool {
	lowered := strings.ToLower(goals)
	for _, trigger := range e.triggers {
		if trigger == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// generate runs one generation call under the engine timeout. Output that
// is blank, or that sanitizes down to nothing, is an error: delivering it
// would hand the transport an empty message.
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	slog.Debug("flow: generating", "prompt_length", len(prompt))
	out, err := e.gen.Generate(gctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" || markup.Sanitize(out) == "" {
		return "", models.ErrEmptyGeneration
	}
	return out, nil
}

// deliver splits long text into transport-sized parts. Later parts carry a
// part number and only the final part carries the menu.
func (e *Engine) deliver(ctx context.Context, chatID, text string, menu *models.Menu) error {
	parts := chunk.Split(text, e.maxLen)
	for i, part := range parts {
		if len(parts) > 1 && i > 0 {
			part = fmt.Sprintf("Part %d:\n%s", i+1, part)
		}
		var m *models.Menu
		if i == len(parts)-1 {
			m = menu
		}
		if err := e.send(ctx, chatID, part, m); err != nil {
			return err
		}
	}
	return nil
}

// send delivers one message under the retry policy.
func (e *Engine) send(ctx context.Context, chatID, text string, menu *models.Menu) error {
	return e.policy.Do(ctx, "send message", func() error {
		return e.msg.SendText(ctx, chatID, text, menu)
	})
}

// failConversation drops the session and tells the user something broke.
func (e *Engine) failConversation(ctx context.Context, userID, chatID, detail string) {
	e.store.Delete(userID)
	notice := fmt.Sprintf(msgInternalError, detail)
	if err := e.send(ctx, chatID, notice, nil); err != nil {
		slog.Error("flow: failed to deliver error notice", "error", err, "user_id", userID)
	}
}
