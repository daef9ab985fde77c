// Package telegram implements the cloud session over a Telegram bot: chat
// text becomes inbound messages, "/<command> ..." becomes a command and
// outbound messages are posted to the chat.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"serialbridge/pkg/bus"
	"serialbridge/pkg/config"
	"serialbridge/pkg/logger"
	"serialbridge/pkg/session"
)

const sessionName = "telegram"
const messagePreviewLimit = 240

// Session bridges a Telegram bot into the session handlers.
type Session struct {
	bus.Router

	cfg       config.TelegramConfig
	input     string
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu      sync.RWMutex
	bot     *telego.Bot
	polling atomic.Bool

	lastChatID atomic.Int64
}

var _ session.Session = (*Session)(nil)

// New validates Telegram configuration. Chat text is delivered to input.
func New(cfg config.TelegramConfig, input string, log *slog.Logger) (*Session, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if input == "" {
		input = config.DefaultInput
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		cfg:       cfg,
		input:     input,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "session.telegram"),
	}
	s.lastChatID.Store(cfg.ChatID)
	return s, nil
}

func (s *Session) Name() string {
	return sessionName
}

// Connect creates the bot and checks the token with getMe.
func (s *Session) Connect(ctx context.Context) error {
	bot, err := telego.NewBot(strings.TrimSpace(s.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	s.mu.Lock()
	s.bot = bot
	s.mu.Unlock()

	s.log.Info("Telegram bot connected", "username", me.Username)
	return nil
}

// Run long-polls updates and dispatches them until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	bot := s.currentBot()
	if bot == nil {
		return session.ErrNotConnected
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	s.polling.Store(true)
	defer s.polling.Store(false)
	s.log.Info("Telegram session started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			s.handleUpdate(ctx, bot, update)
		}
	}
}

func (s *Session) handleUpdate(ctx context.Context, bot *telego.Bot, update telego.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !s.senderAllowed(senderID) {
		s.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID := message.Chat.ID
	if s.cfg.ChatID == 0 {
		s.lastChatID.Store(chatID)
	}

	if name, arg, ok := parseCommand(text); ok {
		s.handleCommand(ctx, bot, chatID, name, arg)
		return
	}

	var props bus.Properties
	props.Add("chat_id", strconv.FormatInt(chatID, 10))
	props.Add("sender_id", senderID)
	props.Add("update_id", strconv.Itoa(update.UpdateID))
	handler, ok := s.MessageHandler(s.input)
	if !ok {
		s.log.Warn("No handler for input", "input", s.input)
		return
	}

	s.log.Info("Received message", "chat_id", chatID, "sender_id", senderID, "content", previewText(text))
	disposition := handler(ctx, bus.Message{Payload: []byte(text), Properties: props})
	s.log.Debug("Message handled", "chat_id", chatID, "disposition", disposition.String())
}

func (s *Session) handleCommand(ctx context.Context, bot *telego.Bot, chatID int64, name, arg string) {
	result := bus.CommandResult{Status: bus.StatusNotFound}
	if handler, ok := s.CommandHandler(name); ok {
		result = handler(ctx, bus.Command{Name: name, Payload: commandPayload(arg)})
	}

	reply := fmt.Sprintf("%s: %d", name, result.Status)
	if len(result.Payload) > 0 {
		reply += "\n" + string(result.Payload)
	}
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), reply)); err != nil {
		s.log.Error("Failed to send command result", "command", name, "error", err)
	}
}

// Send posts the payload text to the configured chat, or to the chat that
// spoke last when none is configured.
func (s *Session) Send(ctx context.Context, output string, msg bus.Message) error {
	bot := s.currentBot()
	if bot == nil {
		return session.ErrNotConnected
	}

	chatID := s.lastChatID.Load()
	if chatID == 0 {
		return fmt.Errorf("send to %s: no telegram chat known yet", output)
	}

	text := string(msg.Payload)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("send to %s: telegram rejects empty messages", output)
	}

	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("send to %s: %w", output, err)
	}
	return nil
}

func (s *Session) Ready() bool {
	return s.currentBot() != nil && s.polling.Load()
}

func (s *Session) currentBot() *telego.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bot
}

// parseCommand splits "/name args" and "/name@bot args" into name and args.
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, arg, _ := strings.Cut(text[1:], " ")
	name, _, _ := strings.Cut(head, "@")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(arg), true
}

// commandPayload passes a JSON object through untouched and wraps anything
// else as {"message": arg}.
func commandPayload(arg string) []byte {
	if strings.HasPrefix(arg, "{") && json.Valid([]byte(arg)) {
		return []byte(arg)
	}
	payload, _ := json.Marshal(map[string]string{"message": arg})
	return payload
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (s *Session) senderAllowed(senderID string) bool {
	if len(s.allowFrom) == 0 {
		return true
	}

	_, ok := s.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	return logger.Preview(strings.TrimSpace(text), messagePreviewLimit)
}
