package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/hustleforge/hustleforge/internal/models"
)

// DefaultPollTimeout is the long-poll timeout used when none is configured.
const DefaultPollTimeout = 60 * time.Second

// TelegramService implements Service over the Telegram Bot API using long
// polling. Inbound commands, free text and inline-button presses are
// converted into models.Event values.
type TelegramService struct {
	bot    *tele.Bot
	events chan models.Event
	done   chan struct{}

	stopOnce   sync.Once
	pollerOnce sync.Once
}

// NewTelegramService creates a Telegram transport for the given bot token.
func NewTelegramService(token string, pollTimeout time.Duration) (*TelegramService, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:     token,
		Poller:    &tele.LongPoller{Timeout: pollTimeout},
		ParseMode: tele.ModeMarkdown,
		OnError: func(err error, c tele.Context) {
			slog.Error("TelegramService poller error", "error", err)
		},
	})
	if err != nil {
		slog.Error("TelegramService failed to create bot", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	s := &TelegramService{
		bot:    bot,
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
	s.registerHandlers()
	slog.Info("TelegramService created", "poll_timeout", pollTimeout)
	return s, nil
}

func (s *TelegramService) registerHandlers() {
	s.bot.Handle("/start", func(c tele.Context) error {
		s.emit(commandEvent(c, models.CommandStart))
		return nil
	})
	s.bot.Handle("/cancel", func(c tele.Context) error {
		s.emit(commandEvent(c, models.CommandCancel))
		return nil
	})
	s.bot.Handle(tele.OnText, func(c tele.Context) error {
		ev := baseEvent(c)
		ev.Kind = models.EventText
		ev.Text = c.Text()
		s.emit(ev)
		return nil
	})
	s.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		ev := baseEvent(c)
		ev.Kind = models.EventMenu
		ev.Selection = strings.TrimSpace(strings.TrimPrefix(cb.Data, "\f"))
		s.emit(ev)
		// Acknowledge so the client stops showing a spinner.
		return c.Respond(&tele.CallbackResponse{})
	})
}

// Start begins the long-poll loop in the background. The loop stops when
// ctx is cancelled or Stop is called.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Debug("TelegramService Start invoked")
	go s.bot.Start()
	go func() {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService stopping poller due to context cancellation")
			s.stopPoller()
		case <-s.done:
		}
	}()
	return nil
}

// Stop halts polling. The event channel stays open: a poller handler may
// still be mid-delivery, and emit drains against done instead.
func (s *TelegramService) Stop() error {
	slog.Info("TelegramService Stop invoked")
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.stopPoller()
	return nil
}

// stopPoller shuts the long-poll loop down exactly once; both Stop and the
// context watcher may race to it.
func (s *TelegramService) stopPoller() {
	s.pollerOnce.Do(s.bot.Stop)
}

// Events returns the inbound event stream.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// SendText sends a message, attaching menu as an inline keyboard when set.
func (s *TelegramService) SendText(ctx context.Context, chatID string, text string, menu *models.Menu) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	slog.Debug("TelegramService SendText", "chat_id", chatID, "body_length", len(text), "has_menu", menu != nil)
	var opts []interface{}
	if markup := toReplyMarkup(menu); markup != nil {
		opts = append(opts, markup)
	}
	if _, err := s.bot.Send(tele.ChatID(id), text, opts...); err != nil {
		slog.Error("TelegramService SendText failed", "error", err, "chat_id", chatID)
		return classifyTelegramErr(err)
	}
	slog.Debug("TelegramService SendText succeeded", "chat_id", chatID)
	return nil
}

// SetMenuButton resets the chat's persistent menu button to the default.
func (s *TelegramService) SetMenuButton(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	_, err = s.bot.Raw("setChatMenuButton", map[string]interface{}{
		"chat_id":     id,
		"menu_button": map[string]string{"type": "default"},
	})
	if err != nil {
		slog.Warn("TelegramService SetMenuButton failed", "error", err, "chat_id", chatID)
		return classifyTelegramErr(err)
	}
	return nil
}

// emit forwards an inbound event without blocking the poller goroutine.
// Events arriving during or after shutdown are dropped.
func (s *TelegramService) emit(ev models.Event) {
	select {
	case s.events <- ev:
		slog.Debug("TelegramService event forwarded", "kind", ev.Kind, "user_id", ev.UserID)
	case <-s.done:
		slog.Debug("TelegramService dropping event after stop", "kind", ev.Kind, "user_id", ev.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TelegramService event channel blocked, dropping event", "kind", ev.Kind, "user_id", ev.UserID)
	}
}

func baseEvent(c tele.Context) models.Event {
	ev := models.Event{Time: time.Now().Unix()}
	if sender := c.Sender(); sender != nil {
		ev.UserID = strconv.FormatInt(sender.ID, 10)
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = strconv.FormatInt(chat.ID, 10)
	}
	return ev
}

func commandEvent(c tele.Context, cmd models.Command) models.Event {
	ev := baseEvent(c)
	ev.Kind = models.EventCommand
	ev.Command = cmd
	return ev
}

// toReplyMarkup converts a menu into a Telegram inline keyboard. Nil or
// empty menus convert to nil so no keyboard is attached.
func toReplyMarkup(menu *models.Menu) *tele.ReplyMarkup {
	if menu == nil || len(menu.Rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tele.InlineButton{Text: b.Label, Data: b.Selection})
		}
		keyboard = append(keyboard, buttons)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

// classifyTelegramErr wraps retryable Bot API failures as transient.
// Rate-limit and server-side errors retry; bad-request class errors do not.
func classifyTelegramErr(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return models.Transient(err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return models.Transient(err)
		}
		return err
	}
	// Anything else is a network-level failure.
	return models.Transient(err)
}
