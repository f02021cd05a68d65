package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"school-payments/internal/config"
	"school-payments/internal/domain/ports/adapter"
)

var _ adapter.AlertNotifier = (*AlertNotifier)(nil)

// sender is the part of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AlertNotifier posts operator alerts to one Telegram chat. Repeats of the
// same subject inside quiet are dropped so a webhook storm sends one message.
type AlertNotifier struct {
	bot    sender
	chatID int64
	quiet  time.Duration
	log    *zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewAlertNotifier(cfg config.AlertsConfig, logger *zerolog.Logger) (*AlertNotifier, error) {
	if cfg.TelegramToken == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram alerts need a token and a chat id")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newAlertNotifier(bot, cfg.ChatID, logger), nil
}

func newAlertNotifier(bot sender, chatID int64, logger *zerolog.Logger) *AlertNotifier {
	l := logger.With().Str("component", "telegram_alerts").Logger()
	return &AlertNotifier{
		bot:    bot,
		chatID: chatID,
		quiet:  5 * time.Minute,
		log:    &l,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

func (n *AlertNotifier) Alert(ctx context.Context, subject, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.suppressed(subject) {
		n.log.Debug().Str("subject", subject).Msg("alert suppressed")
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("⚠️ %s\n\n%s", subject, text))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		n.forget(subject)
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

func (n *AlertNotifier) suppressed(subject string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if at, ok := n.last[subject]; ok && now.Sub(at) < n.quiet {
		return true
	}
	n.last[subject] = now
	return false
}

func (n *AlertNotifier) forget(subject string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.last, subject)
}

var _ adapter.AlertNotifier = (*LogNotifier)(nil)

// LogNotifier writes alerts to the log. Used when no Telegram chat is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "alerts").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Alert(_ context.Context, subject, text string) error {
	n.log.Warn().Str("subject", subject).Msg(text)
	return nil
}
