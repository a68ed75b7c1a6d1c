package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	DefaultTelegramURL = "https://api.telegram.org"

	maxCaptionRunes = 1024
	maxTextRunes    = 4096
	// Telegram albums hold 2 to 10 items.
	maxAlbumItems = 10
)

var ErrNoToken = errors.New("telegram bot token is empty")

// TelegramSink posts to Telegram channels through the Bot API.
type TelegramSink struct {
	bot     *bot.Bot
	timeout time.Duration
	logger  *slog.Logger
}

func NewTelegramSink(baseURL, token string, timeout time.Duration, logger *slog.Logger) (*TelegramSink, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b, err := bot.New(token, bot.WithServerURL(baseURL), bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramSink{
		bot:     b,
		timeout: timeout,
		logger:  logger.With("component", "telegram"),
	}, nil
}

// Send posts a text message, a captioned photo or an album depending on how
// many images msg carries.
func (s *TelegramSink) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		method string
		err    error
	)
	switch len(msg.Media) {
	case 0:
		method = "sendMessage"
		err = s.sendMessage(ctx, msg.Channel, msg.Text)
	case 1:
		method = "sendPhoto"
		err = s.sendPhoto(ctx, msg.Channel, msg.Text, msg.Media[0])
	default:
		method = "sendMediaGroup"
		err = s.sendMediaGroup(ctx, msg.Channel, msg.Text, msg.Media)
	}
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	s.logger.Debug("telegram call succeeded", "method", method, "channel", msg.Channel)
	return nil
}

func (s *TelegramSink) sendMessage(ctx context.Context, chatID, text string) error {
	disabled := true
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               truncateRunes(text, maxTextRunes),
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{IsDisabled: &disabled},
	})
	return err
}

func (s *TelegramSink) sendPhoto(ctx context.Context, chatID, caption string, m Media) error {
	_, err := s.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &tgmodels.InputFileUpload{Filename: m.Filename, Data: bytes.NewReader(m.Data)},
		Caption: truncateRunes(caption, maxCaptionRunes),
	})
	return err
}

func (s *TelegramSink) sendMediaGroup(ctx context.Context, chatID, caption string, media []Media) error {
	if len(media) > maxAlbumItems {
		media = media[:maxAlbumItems]
	}

	items := make([]tgmodels.InputMedia, len(media))
	for i, m := range media {
		photo := &tgmodels.InputMediaPhoto{
			Media:           fmt.Sprintf("attach://photo%d", i),
			MediaAttachment: bytes.NewReader(m.Data),
		}
		// Telegram shows the first item's caption for the whole album.
		if i == 0 {
			photo.Caption = truncateRunes(caption, maxCaptionRunes)
		}
		items[i] = photo
	}

	_, err := s.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: chatID,
		Media:  items,
	})
	return err
}
