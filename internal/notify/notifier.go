package notify

import (
	"context"
	"fmt"

	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — канал уведомлений о сделках и сбоях. Доставка
// best-effort: ошибка уведомления не валит торговый цикл.
type Notifier interface {
	Send(ctx context.Context, msg string)
	Sendf(ctx context.Context, format string, args ...any)
}

// Telegram шлёт сообщения в один чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID}, nil
}

func (t *Telegram) Send(ctx context.Context, msg string) {
	go func() {
		if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
			logger.Warn("[TG] не удалось отправить сообщение: %v", err)
		}
	}()
}

func (t *Telegram) Sendf(ctx context.Context, format string, args ...any) {
	t.Send(ctx, fmt.Sprintf(format, args...))
}

// Stdout — запасной нотификатор, когда телеграм не настроен.
type Stdout struct{}

func (Stdout) Send(_ context.Context, msg string) {
	logger.Info("[NOTIFY] %s", msg)
}

func (s Stdout) Sendf(ctx context.Context, format string, args ...any) {
	s.Send(ctx, fmt.Sprintf(format, args...))
}

// New выбирает Telegram при заданном токене, иначе Stdout.
func New(cfg *config.Config) Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Info("[NOTIFY] телеграм не настроен, уведомления в лог")
		return Stdout{}
	}
	tg, err := NewTelegram(cfg)
	if err != nil {
		logger.Warn("[NOTIFY] телеграм недоступен (%v), уведомления в лог", err)
		return Stdout{}
	}
	return tg
}
