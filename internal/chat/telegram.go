package chat

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"botd/internal/lifecycle"
	"botd/pkg/types"
)

const maxTelegramMessage = 4096

// Sink receives normalized inbound actions; the kernel handle satisfies it.
type Sink interface {
	Act(id types.UserID, action lifecycle.Action)
}

// Telegram bridges Telegram to the user lifecycle: long-polled updates
// become NewMessage actions, and SendDM delivers outbound text.
type Telegram struct {
	bot  *tgbotapi.BotAPI
	sink Sink
	log  zerolog.Logger
}

// NewTelegram authenticates the bot. An invalid token fails here, at
// bootstrap, not at first message.
func NewTelegram(token string, sink Sink, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, sink: sink, log: log}, nil
}

// Start begins long-polling for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.bot.GetUpdatesChan(u)
	t.log.Info().Str("bot", t.bot.Self.UserName).Msg("telegram polling started")

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			t.handleMessage(update.Message)
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		}
	}
}

func (t *Telegram) handleMessage(msg *tgbotapi.Message) {
	// DMs and mentions start a conversation; everything else is ambient
	// chatter the lifecycle drops.
	start := msg.Chat.IsPrivate() || Mentions(msg.Text, t.bot.Self.UserName)

	text := Normalize(msg.Text, t.bot.Self.UserName)
	if text == "" {
		return
	}
	id := types.UserID{
		Channel:    types.ChannelTelegram,
		ExternalID: strconv.FormatInt(msg.Chat.ID, 10),
	}
	t.sink.Act(id, lifecycle.NewMessage(text, start))
}

// SendDM delivers text to a user, splitting at the Telegram message limit.
// Satisfies lifecycle.Sender.
func (t *Telegram) SendDM(ctx context.Context, id types.UserID, text string) error {
	if id.Channel != types.ChannelTelegram {
		return fmt.Errorf("unsupported channel: %s", id.Channel)
	}
	chatID, err := strconv.ParseInt(id.ExternalID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram id %q: %w", id.ExternalID, err)
	}
	for _, part := range splitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
