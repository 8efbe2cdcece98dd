package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/hustleforge/hustleforge/internal/models"
)

// messageCreator is the slice of the Twilio REST client the service needs;
// tests substitute a recording fake.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioOpts holds configuration options for the Twilio transport.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// TwilioOption defines a configuration option for the Twilio transport.
type TwilioOption func(*TwilioOpts)

// WithTwilioAccountSID sets the account SID.
func WithTwilioAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithTwilioAuthToken sets the auth token.
func WithTwilioAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithTwilioFrom sets the sending number.
func WithTwilioFrom(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// TwilioService implements Service over Twilio SMS/WhatsApp messaging.
//
// The channel has no inline buttons, so menus degrade to numbered text
// options; a numeric reply selects the matching option from the most recent
// menu sent to that chat. Inbound messages arrive through HandleInbound,
// which the webhook layer calls.
type TwilioService struct {
	api    messageCreator
	from   string
	events chan models.Event

	mu      sync.Mutex
	pending map[string][]string // chatID -> selection tokens of the last menu
}

// NewTwilioService creates a Twilio transport. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio transport config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{
		api:     rest.Api,
		from:    cfg.From,
		events:  make(chan models.Event, DefaultChannelBufferSize),
		pending: make(map[string][]string),
	}, nil
}

// Start is a no-op: inbound traffic arrives via webhook, not polling.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService Start invoked (webhook-driven, nothing to poll)")
	return nil
}

// Stop closes the event channel.
func (s *TwilioService) Stop() error {
	slog.Info("TwilioService Stop invoked")
	close(s.events)
	return nil
}

// Events returns the inbound event stream.
func (s *TwilioService) Events() <-chan models.Event {
	return s.events
}

// SendText sends a message. When a menu is attached its options are rendered
// as numbered lines and remembered so the next numeric reply from that chat
// maps back to a selection.
func (s *TwilioService) SendText(ctx context.Context, chatID string, text string, menu *models.Menu) error {
	body := text
	tokens := flattenMenu(menu)
	if len(tokens) > 0 {
		var lines []string
		i := 0
		for _, row := range menu.Rows {
			for _, b := range row {
				i++
				lines = append(lines, fmt.Sprintf("%d. %s", i, b.Label))
			}
		}
		body = body + "\n\nReply with a number:\n" + strings.Join(lines, "\n")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(chatID)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendText failed", "error", err, "chat_id", chatID)
		return classifyTwilioErr(err)
	}

	if len(tokens) > 0 {
		s.mu.Lock()
		s.pending[chatID] = tokens
		s.mu.Unlock()
	}
	slog.Debug("TwilioService SendText succeeded", "chat_id", chatID, "options", len(tokens))
	return nil
}

// SetMenuButton is a no-op: the channel has no persistent menu button.
func (s *TwilioService) SetMenuButton(ctx context.Context, chatID string) error {
	slog.Debug("TwilioService SetMenuButton ignored (unsupported)", "chat_id", chatID)
	return nil
}

// HandleInbound converts one inbound webhook message into an event. A body
// that is a valid option number for the chat's last menu becomes a menu
// selection; "/start" and "/cancel" become commands; everything else is
// free text.
func (s *TwilioService) HandleInbound(from, body string) {
	body = strings.TrimSpace(body)
	ev := models.Event{UserID: from, ChatID: from, Time: time.Now().Unix()}

	switch {
	case strings.EqualFold(body, "/start"):
		ev.Kind = models.EventCommand
		ev.Command = models.CommandStart
	case strings.EqualFold(body, "/cancel"):
		ev.Kind = models.EventCommand
		ev.Command = models.CommandCancel
	default:
		if token, ok := s.takeSelection(from, body); ok {
			ev.Kind = models.EventMenu
			ev.Selection = token
			break
		}
		ev.Kind = models.EventText
		ev.Text = body
	}

	select {
	case s.events <- ev:
		slog.Debug("TwilioService inbound event forwarded", "kind", ev.Kind, "from", from)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService event channel blocked, dropping event", "kind", ev.Kind, "from", from)
	}
}

// takeSelection resolves a numeric reply against the chat's last menu.
func (s *TwilioService) takeSelection(chatID, body string) (string, bool) {
	n, err := strconv.Atoi(body)
	if err != nil || n < 1 {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := s.pending[chatID]
	if n > len(tokens) {
		return "", false
	}
	return tokens[n-1], true
}

func flattenMenu(menu *models.Menu) []string {
	if menu == nil {
		return nil
	}
	var tokens []string
	for _, row := range menu.Rows {
		for _, b := range row {
			tokens = append(tokens, b.Selection)
		}
	}
	return tokens
}

// classifyTwilioErr wraps retryable REST failures as transient. Rate limits
// and server-side errors retry; other API rejections do not.
func classifyTwilioErr(err error) error {
	if err == nil {
		return nil
	}
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status == 429 || restErr.Status >= 500 {
			return models.Transient(err)
		}
		return err
	}
	return models.Transient(err)
}
