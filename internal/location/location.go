package location

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// NotFound is the sentinel the completion model is told to answer with.
const NotFound = "NOT_FOUND"

const (
	maxPromptRunes  = 1500
	maxAddressRunes = 120
)

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const (
	// District names are adjectives: Печерський, Дарницький, Голосеевский.
	districtName = `\p{Lu}[\p{L}'’\-]*[сцз]ь?к(?:ий|ій)`
	namePart     = `\p{Lu}[\p{L}'’\-]*(?:\s+\p{Lu}[\p{L}'’\-]*)?`
	housePart    = `(?:,?\s*(?:буд\.\s*)?\d+[\p{L}]?(?:/\d+)?)?`
	lead         = `(?:^|[\s,(;:])`
)

func marker(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(lead + `((?:` + alternatives + `)\s*` + namePart + housePart + `)`)
}

// addressPatterns are tried in order; the first match wins.
var addressPatterns = []*regexp.Regexp{
	marker(`[Вв]улиця|[Вв]ул\.|[Уу]лица|[Уу]л\.`),
	marker(`[Пп]роспект|[Пп]росп\.|[Пп]р-т`),
	marker(`[Бб]ульвар|[Бб]ульв\.|[Бб]-р`),
	marker(`[Пп]ровулок|[Пп]ров\.|[Пп]ереулок|[Пп]ер\.`),
	marker(`[Пп]лоща|[Пп]лощадь|[Пп]л\.`),
	regexp.MustCompile(lead + `(` + districtName + `\s+(?:район|р-н))`),
	regexp.MustCompile(lead + `((?:[Рр]айон|[Рр]-н)\s+\p{Lu}[\p{L}'’\-]*)`),
}

var spaces = regexp.MustCompile(`\s+`)

const systemPrompt = "You extract the street address of a real-estate listing in Ukraine. " +
	"Reply with the bare address only (street or district, house number if present), " +
	"without the city and without any other words. If no address is mentioned, reply exactly " + NotFound + "."

type Resolver struct {
	city      string
	completer Completer
	logger    *slog.Logger
}

// NewResolver creates a resolver that qualifies results with city. A nil
// completer disables the model fallback.
func NewResolver(city string, completer Completer, logger *slog.Logger) *Resolver {
	return &Resolver{
		city:      city,
		completer: completer,
		logger:    logger.With("component", "location"),
	}
}

// Resolve never fails; a nil result means no location could be inferred.
func (r *Resolver) Resolve(ctx context.Context, addressText, description string) *string {
	text := strings.TrimSpace(addressText + " " + description)
	if text == "" {
		return nil
	}

	if addr := Match(text); addr != "" {
		loc := r.qualify(addr)
		return &loc
	}

	if r.completer == nil {
		return nil
	}

	reply, err := r.completer.Complete(ctx, systemPrompt, truncate(text, maxPromptRunes))
	if err != nil {
		r.logger.Warn("location fallback failed", "fault", "external_service", "error", err)
		return nil
	}

	addr, ok := parseReply(reply)
	if !ok {
		r.logger.Debug("location fallback found nothing", "reply", truncate(reply, 80))
		return nil
	}

	loc := r.qualify(addr)
	return &loc
}

// Match returns the first address-like fragment of text, or "".
func Match(text string) string {
	for _, re := range addressPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return clean(m[1])
		}
	}
	return ""
}

func parseReply(reply string) (string, bool) {
	reply = strings.Trim(strings.TrimSpace(reply), `"'«»`)
	if reply == "" || strings.Contains(strings.ToUpper(reply), NotFound) {
		return "", false
	}
	if strings.Contains(reply, "\n") || utf8.RuneCountInString(reply) > maxAddressRunes {
		return "", false
	}
	return clean(reply), true
}

func (r *Resolver) qualify(addr string) string {
	if r.city == "" || strings.Contains(strings.ToLower(addr), strings.ToLower(r.city)) {
		return addr
	}
	return fmt.Sprintf("%s, %s", addr, r.city)
}

func clean(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,.;:")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
