package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/realty-crawler/internal/models"
)

var ErrNoChannel = errors.New("no channel configured for property type")

const (
	DefaultMaxImages           = 3
	DefaultDownloadConcurrency = 3
	maxDescriptionRunes        = 600
)

// Media is a downloaded image ready to be attached to a message.
type Media struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one post to an output channel.
type Message struct {
	Channel string
	Text    string
	Media   []Media
	Listing *models.Listing
}

// Sink delivers messages to an output channel.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

type Downloader interface {
	Download(ctx context.Context, url string) (Media, error)
}

type Config struct {
	// Channels maps a property type to an output channel id.
	Channels            map[string]string
	DefaultChannel      string
	MaxImages           int
	DownloadConcurrency int
}

// Publisher posts persisted listings to their category channel.
type Publisher struct {
	sink        Sink
	downloader  Downloader
	channels    map[string]string
	fallback    string
	maxImages   int
	concurrency int
	logger      *slog.Logger
}

func NewPublisher(sink Sink, downloader Downloader, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = DefaultDownloadConcurrency
	}
	return &Publisher{
		sink:        sink,
		downloader:  downloader,
		channels:    cfg.Channels,
		fallback:    cfg.DefaultChannel,
		maxImages:   cfg.MaxImages,
		concurrency: cfg.DownloadConcurrency,
		logger:      logger.With("component", "event_publisher"),
	}
}

// ChannelFor returns the output channel of a property type.
func (p *Publisher) ChannelFor(propertyType string) (string, error) {
	if ch, ok := p.channels[propertyType]; ok && ch != "" {
		return ch, nil
	}
	if p.fallback != "" {
		return p.fallback, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoChannel, propertyType)
}

// Publish sends the listing with up to MaxImages photos. When no photo can be
// downloaded, or the photo message is rejected, the same text goes out alone.
func (p *Publisher) Publish(ctx context.Context, l *models.Listing) error {
	channel, err := p.ChannelFor(l.PropertyType)
	if err != nil {
		return err
	}

	msg := Message{Channel: channel, Text: FormatMessage(l), Listing: l}

	if media := p.downloadImages(ctx, l.Images); len(media) > 0 {
		msg.Media = media
		err := p.sink.Send(ctx, msg)
		if err == nil {
			p.logger.Info("listing published", "url", l.ExternalURL, "channel", channel, "images", len(media))
			return nil
		}
		p.logger.Warn("media message failed, sending text only",
			"fault", "publish",
			"url", l.ExternalURL,
			"error", err)
		msg.Media = nil
	} else if p.downloader != nil && len(l.Images) > 0 {
		p.logger.Warn("no images downloaded, sending text only",
			"fault", "external_service",
			"url", l.ExternalURL)
	}

	if err := p.sink.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish listing %s: %w", l.ExternalURL, err)
	}

	p.logger.Info("listing published", "url", l.ExternalURL, "channel", channel, "images", 0)
	return nil
}

// downloadImages fetches up to maxImages images with bounded concurrency.
// Failed downloads are dropped; order follows the listing's image order.
func (p *Publisher) downloadImages(ctx context.Context, urls []string) []Media {
	if p.downloader == nil || len(urls) == 0 {
		return nil
	}
	if len(urls) > p.maxImages {
		urls = urls[:p.maxImages]
	}

	results := make([]*Media, len(urls))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			m, err := p.downloader.Download(ctx, u)
			if err != nil {
				p.logger.Debug("image download failed", "image", u, "error", err)
				return nil
			}
			results[i] = &m
			return nil
		})
	}
	g.Wait()

	var media []Media
	for _, m := range results {
		if m != nil {
			media = append(media, *m)
		}
	}
	return media
}

// FormatMessage renders the listing as the text of a channel post.
func FormatMessage(l *models.Listing) string {
	var lines []string

	if l.Title != "" {
		lines = append(lines, "🏠 "+l.Title)
	}

	switch {
	case l.Canonical != nil:
		lines = append(lines, fmt.Sprintf("💰 %s $ | %s грн | %s €",
			groupDigits(l.Canonical.USD), groupDigits(l.Canonical.UAH), groupDigits(l.Canonical.EUR)))
	case l.Price != nil:
		lines = append(lines, fmt.Sprintf("💰 %s %s", strconv.FormatFloat(l.Price.Amount, 'f', -1, 64), l.Price.Currency))
	}

	var facts []string
	if l.Area != nil {
		facts = append(facts, strconv.FormatFloat(*l.Area, 'f', -1, 64)+" м²")
	}
	if l.Rooms != nil {
		facts = append(facts, strconv.Itoa(*l.Rooms)+" кімн.")
	}
	if l.Floor != nil {
		floor := "поверх " + strconv.Itoa(*l.Floor)
		if l.Floors != nil {
			floor += "/" + strconv.Itoa(*l.Floors)
		}
		facts = append(facts, floor)
	}
	if len(facts) > 0 {
		lines = append(lines, "📐 "+strings.Join(facts, " · "))
	}

	if l.Location != nil {
		lines = append(lines, "📍 "+*l.Location)
	}
	if l.Phone != nil {
		lines = append(lines, "📞 "+*l.Phone)
	}
	if l.Description != "" {
		lines = append(lines, "", truncateRunes(l.Description, maxDescriptionRunes))
	}
	lines = append(lines, "", "🔗 "+l.ExternalURL)

	return strings.Join(lines, "\n")
}

func groupDigits(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
