// Package bot is the Telegram transport adapter: it long-polls for updates,
// filters eligible messages into queue tasks, answers commands, and exposes
// the four send/edit/delete primitives the delivery layer needs.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/grabbitapp/grabbit/internal/queue"
	"github.com/grabbitapp/grabbit/internal/resolver"
	"github.com/grabbitapp/grabbit/internal/users"
)

const greeting = "🐰 Send me a TikTok link to download!"

// Submitter admits eligible messages into the download queue.
type Submitter interface {
	Submit(task queue.Task) error
}

// Bot wraps the Telegram API client.
type Bot struct {
	logger    *slog.Logger
	api       *tgbotapi.BotAPI
	resolver  *resolver.Resolver
	users     *users.Service
	submitter Submitter
}

func New(log *slog.Logger, token string, res *resolver.Resolver, usersSvc *users.Service) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b := &Bot{
		logger:   log.With(slog.String("component", "bot")),
		api:      api,
		resolver: res,
		users:    usersSvc,
	}
	b.logger.Info("authorized", slog.String("username", api.Self.UserName))
	return b, nil
}

// SetSubmitter wires the download queue in after construction; the queue's
// task handler needs the bot as its transport, so the two cannot be built
// in one pass.
func (b *Bot) SetSubmitter(s Submitter) {
	b.submitter = s
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			// Drain so the library's polling goroutine can exit.
			for range updates {
			}
			return
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("updates channel closed")
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	b.logger.Debug("inbound message",
		slog.Int64("chat_id", msg.Chat.ID),
		slog.String("text", summarize(msg.Text)),
	)
	b.touchUser(ctx, msg)

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		if _, err := b.SendText(ctx, msg.Chat.ID, greeting); err != nil {
			b.logger.Warn("send greeting failed", slog.Any("error", err))
		}
		return
	case strings.HasPrefix(text, "/stats"):
		b.sendStats(ctx, msg.Chat.ID)
		return
	}

	if _, ok := b.resolver.ExtractLink(text); !ok {
		return
	}
	task := queue.Task{
		ID:         uuid.NewString(),
		ChatID:     msg.Chat.ID,
		Text:       text,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if b.submitter == nil {
		b.logger.Error("no submitter configured, dropping task", slog.String("task_id", task.ID))
		return
	}
	if err := b.submitter.Submit(task); err != nil {
		b.logger.Warn("submit task failed", slog.String("task_id", task.ID), slog.Any("error", err))
	}
}

// touchUser upserts the sender's activity record. Best effort: persistence
// trouble never blocks the download path.
func (b *Bot) touchUser(ctx context.Context, msg *tgbotapi.Message) {
	if b.users == nil {
		return
	}
	touchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.users.Touch(touchCtx, msg.From.ID, msg.From.FirstName, msg.From.LastName); err != nil {
		b.logger.Warn("touch user failed", slog.Int64("user_id", msg.From.ID), slog.Any("error", err))
	}
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	text := fmt.Sprintf(
		"📊 <b>Process Memory Status</b>\n\n"+
			"🧠 <b>Alloc:</b> <code>%.2f MB</code>\n"+
			"📦 <b>Sys:</b> <code>%.2f MB</code>\n"+
			"♻️ <b>GC runs:</b> <code>%d</code>\n"+
			"🧵 <b>Goroutines:</b> <code>%d</code>",
		float64(stats.Alloc)/1024/1024,
		float64(stats.Sys)/1024/1024,
		stats.NumGC,
		runtime.NumGoroutine(),
	)
	message := tgbotapi.NewMessage(chatID, text)
	message.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(message); err != nil {
		b.logger.Warn("send stats failed", slog.Any("error", err))
	}
}

// SendText implements delivery.Transport.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// SendVideo implements delivery.Transport.
func (b *Bot) SendVideo(ctx context.Context, chatID int64, path string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.SupportsStreaming = true
	_, err := b.api.Send(video)
	return err
}

// EditText implements delivery.Transport. "message is not modified" is
// silenced; animation frames can legitimately repeat.
func (b *Bot) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil && isMessageNotModified(err) {
		return nil
	}
	return err
}

// DeleteMessage implements delivery.Transport.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func isMessageNotModified(err error) bool {
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && strings.Contains(apiErr.Message, "message is not modified")
	}
	return false
}

func summarize(text string) string {
	const max = 20
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
