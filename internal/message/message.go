package message

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"marketmate/backend/internal/domain"
)

var ErrUnknownTemplate = errors.New("unknown message template")

// Picker returns an index in [0, n).
type Picker func(n int) int

type Generator struct {
	pick Picker
}

// NewGenerator builds a generator; a nil picker selects uniformly at random.
func NewGenerator(pick Picker) *Generator {
	if pick == nil {
		pick = rand.IntN
	}
	return &Generator{pick: pick}
}

var defaultGenerator = NewGenerator(nil)

// Generate fills a random template using the default generator.
func Generate(intent domain.Intent, style domain.Style, amount float64) (domain.SuggestedMessage, error) {
	return defaultGenerator.Generate(intent, style, amount)
}

// Generate picks one template for (intent, style) and substitutes amount for the
// offer placeholder. amount <= 0 means no amount; templates that need one are
// then avoided when the pair has any that don't.
func (g *Generator) Generate(intent domain.Intent, style domain.Style, amount float64) (domain.SuggestedMessage, error) {
	byStyle, ok := templates[intent]
	if !ok {
		return domain.SuggestedMessage{}, fmt.Errorf("%w: intent %q", ErrUnknownTemplate, intent)
	}
	candidates, ok := byStyle[style]
	if !ok || len(candidates) == 0 {
		return domain.SuggestedMessage{}, fmt.Errorf("%w: style %q", ErrUnknownTemplate, style)
	}

	hasAmount := amount > 0
	if !hasAmount {
		candidates = withoutPlaceholder(candidates)
	}

	text := candidates[g.index(len(candidates))]
	if hasAmount {
		text = strings.Replace(text, offerPlaceholder, FormatAmount(amount), 1)
	}

	msg := domain.SuggestedMessage{
		Text:       text,
		Type:       intent,
		Confidence: confidenceByIntent[intent],
	}
	if hasAmount {
		msg.OfferAmount = amount
	}
	return msg, nil
}

func (g *Generator) index(n int) int {
	i := g.pick(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// FormatAmount renders a price as "$95" or "$95.50".
func FormatAmount(amount float64) string {
	d := decimal.NewFromFloat(amount)
	if d.Equal(d.Truncate(0)) {
		return "$" + d.StringFixed(0)
	}
	return "$" + d.StringFixed(2)
}

func withoutPlaceholder(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !strings.Contains(c, offerPlaceholder) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}
