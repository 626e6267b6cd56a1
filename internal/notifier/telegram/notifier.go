// Package telegram delivers watcher messages to Telegram chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/summary"
	"github.com/Alias1177/RateWatcher/models"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	ChatIDs     []int64
	AdminChatID int64
	// Local disables quiet hours.
	Local bool
	// SendDelay spaces consecutive sends to stay under Telegram's rate limit.
	SendDelay time.Duration
	Logger    zerolog.Logger
}

type Notifier struct {
	sender  Sender
	chatIDs []int64
	admin   int64
	local   bool
	delay   time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewNotifier(sender Sender, opts Options) *Notifier {
	return &Notifier{
		sender:  sender,
		chatIDs: opts.ChatIDs,
		admin:   opts.AdminChatID,
		local:   opts.Local,
		delay:   opts.SendDelay,
		now:     time.Now,
		logger:  opts.Logger.With().Str("component", "telegram").Logger(),
	}
}

// Quiet reports whether messages are currently held back.
func (n *Notifier) Quiet() bool {
	return !n.local && models.IsSleepTime(n.now())
}

// Broadcast sends a Markdown message to every subscribed chat.
func (n *Notifier) Broadcast(ctx context.Context, text string) error {
	if n.Quiet() {
		n.logger.Debug().Msg("Quiet hours, message dropped")
		return nil
	}
	return n.send(ctx, n.chatIDs, text)
}

// Admin sends a message to the admin chat only; quiet hours still apply.
func (n *Notifier) Admin(ctx context.Context, text string) error {
	if n.admin == 0 || n.Quiet() {
		return nil
	}
	return n.send(ctx, []int64{n.admin}, text)
}

func (n *Notifier) NotifyDecision(ctx context.Context, d models.DecisionResult) error {
	return n.Broadcast(ctx, FormatDecision(d))
}

func (n *Notifier) NotifySignals(ctx context.Context, signals []models.StructuredSignal) error {
	var errs []error
	for _, s := range signals {
		if err := n.Broadcast(ctx, FormatSignal(s)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) NotifyOutcome(ctx context.Context, summary models.OutcomeSummary) error {
	return n.Broadcast(ctx, FormatOutcome(summary))
}

func (n *Notifier) NotifyRange(ctx context.Context, r models.ExpectedRange) error {
	return n.Broadcast(ctx, FormatRange(r))
}

func (n *Notifier) NotifySummary(ctx context.Context, s summary.Summary) error {
	return n.Broadcast(ctx, FormatSummary(s))
}

func (n *Notifier) NotifyStreak(ctx context.Context, a models.StreakAdvisory) error {
	return n.Broadcast(ctx, FormatStreak(a))
}

func (n *Notifier) NotifyStart(ctx context.Context, interval time.Duration) error {
	return n.Admin(ctx, FormatStart(interval))
}

func (n *Notifier) send(ctx context.Context, chatIDs []int64, text string) error {
	var errs []error
	for i, id := range chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", id).Msg("Failed to send message")
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}

		if n.delay > 0 && i < len(chatIDs)-1 {
			time.Sleep(n.delay)
		}
	}
	return errors.Join(errs...)
}
