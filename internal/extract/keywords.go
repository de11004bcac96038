package extract

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type conditionClass struct {
	label    string
	keywords []string
}

// Checked in order; the first keyword hit decides the class.
var conditionKeywords = []conditionClass{
	{label: "excellent", keywords: []string{"like new", "mint", "excellent", "perfect", "pristine", "brand new", "sealed"}},
	{label: "good", keywords: []string{"good", "great", "works perfectly", "fully functional", "clean"}},
	{label: "fair", keywords: []string{"fair", "used", "some wear", "minor scratches", "small dent"}},
	{label: "poor", keywords: []string{"broken", "damaged", "parts only", "for parts", "not working", "needs repair"}},
}

var urgencyKeywords = []string{
	"must sell",
	"moving",
	"need gone",
	"obo",
	"or best offer",
	"negotiable",
	"make offer",
	"asap",
	"quick sale",
	"desperate",
	"price drop",
	"reduced",
	"firm",
	"no lowballers",
}

var knownConditions = map[string]struct{}{
	"excellent": {}, "good": {}, "fair": {}, "poor": {}, "used": {}, "mixed": {},
}

var (
	priceNumberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	dollarOnlyRe  = regexp.MustCompile(`^\$[\d,]+$`)
	daysRe        = regexp.MustCompile(`(\d+)\s*days?`)
	weeksRe       = regexp.MustCompile(`(\d+)\s*weeks?`)
	monthsRe      = regexp.MustCompile(`(\d+)\s*months?`)
	listedAgoRe   = regexp.MustCompile(`(?i)Listed\s+(\d+)\s+(day|week|month)s?\s+ago`)
	conditionRe   = regexp.MustCompile(`(?i)^Condition\b\s*[:\-]?[ \t]*([\w \-]*)$`)
	locationRe    = regexp.MustCompile(`(?:in\s+)?([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,\s*[A-Z]{2})\b`)
	listingIDRe   = regexp.MustCompile(`/marketplace/item/(\d+)`)
)

// ParsePrice reads the first number out of text such as "$1,250.00". It
// returns 0 when nothing parses.
func ParsePrice(text string) float64 {
	match := priceNumberRe.FindString(text)
	if match == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// ParseDaysListed turns relative listing times ("3 days ago", "2 weeks ago",
// "yesterday") into whole days. Unrecognised text counts as 0.
func ParseDaysListed(text string) int {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "just") || strings.Contains(lower, "today") || strings.Contains(lower, "hour") {
		return 0
	}
	if strings.Contains(lower, "yesterday") {
		return 1
	}
	if n, ok := firstInt(daysRe, lower); ok {
		return scaleDays(n, 1)
	}
	if n, ok := firstInt(weeksRe, lower); ok {
		return scaleDays(n, 7)
	}
	if n, ok := firstInt(monthsRe, lower); ok {
		return scaleDays(n, 30)
	}
	return 0
}

// DetectCondition classifies free text by the first condition keyword it
// contains, defaulting to "used".
func DetectCondition(text string) (string, []string) {
	lower := strings.ToLower(text)
	for _, class := range conditionKeywords {
		for _, kw := range class.keywords {
			if strings.Contains(lower, kw) {
				return class.label, []string{kw}
			}
		}
	}
	return "used", []string{}
}

// FindUrgencyIndicators lists every urgency keyword present in text.
func FindUrgencyIndicators(text string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0, 4)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// normalizeCondition maps a page's condition label ("Used - Like New") onto
// the analyzer's vocabulary when possible.
func normalizeCondition(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	if _, ok := knownConditions[lower]; ok {
		return lower
	}
	for _, class := range conditionKeywords {
		for _, kw := range class.keywords {
			if strings.Contains(lower, kw) {
				return class.label
			}
		}
	}
	return strings.TrimSpace(label)
}

// maxListedDays caps "listed N ago" so absurd page values stay positive.
const maxListedDays = 10 * 365

func parseListedAgo(text string) int {
	m := listedAgoRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := parseCount(m[1])
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "week":
		return scaleDays(n, 7)
	case "month":
		return scaleDays(n, 30)
	default:
		return scaleDays(n, 1)
	}
}

// scaleDays converts n units of daysPer days, capped at maxListedDays.
func scaleDays(n int, daysPer int) int {
	n = min(n, maxListedDays)
	return min(n*daysPer, maxListedDays)
}

// parseCount reads a non-negative count; values too large for an int
// saturate instead of failing.
func parseCount(digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		return maxListedDays, nil
	}
	return n, err
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := parseCount(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
