package pricing

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"marketmate/backend/internal/domain"
)

type categoryRate struct {
	name string
	rate float64
}

// Matched in order against the lowercased category text.
var categoryDepreciation = []categoryRate{
	{name: "electronics", rate: 0.05},
	{name: "vehicles", rate: 0.02},
	{name: "furniture", rate: 0.03},
	{name: "clothing", rate: 0.08},
	{name: "appliances", rate: 0.04},
	{name: "toys", rate: 0.06},
	{name: "sports", rate: 0.04},
	{name: "tools", rate: 0.02},
}

const defaultDepreciation = 0.04

var conditionMultipliers = map[string]float64{
	"excellent": 0.95,
	"good":      0.85,
	"fair":      0.70,
	"poor":      0.50,
	"used":      0.75,
	"mixed":     0.75,
}

var (
	urgentKeywords     = []string{"must sell", "moving", "desperate", "asap", "quick sale", "need gone"}
	firmKeywords       = []string{"firm", "no lowballers", "price is firm"}
	negotiableKeywords = []string{"obo", "or best offer", "negotiable", "make offer"}
	nonUrgentExact     = []string{"firm", "no lowballers"}
)

// Analyze estimates the fair range and an opening offer for a listing. It never
// fails: unknown categories and conditions fall back to default rates.
func Analyze(listing domain.Listing) domain.Analysis {
	asking := listing.AskingPrice
	days := listing.DaysListed
	if days < 0 {
		days = 0
	}

	factors := make([]domain.PriceFactor, 0, 5)
	adjustment := 1.0

	if days > 0 {
		timeDiscount := math.Min(float64(days)*0.005, 0.15)
		adjustment -= timeDiscount

		impact := domain.ImpactNeutral
		if days > 14 {
			impact = domain.ImpactPositive
		}
		factors = append(factors, domain.PriceFactor{
			Name:        "Time on Market",
			Impact:      impact,
			Description: fmt.Sprintf("Listed for %d days", days),
			Weight:      timeDiscount,
		})
	}

	multiplier := conditionMultiplier(listing.Condition)
	conditionDiscount := (1 - multiplier) * 0.3
	adjustment -= conditionDiscount

	// Better condition leaves the buyer less room, so it reads as negative leverage.
	conditionImpact := domain.ImpactPositive
	if multiplier >= 0.85 {
		conditionImpact = domain.ImpactNegative
	}
	factors = append(factors, domain.PriceFactor{
		Name:        "Condition",
		Impact:      conditionImpact,
		Description: fmt.Sprintf("Condition: %s", listing.Condition),
		Weight:      conditionDiscount,
	})

	monthsOld := math.Ceil(float64(days) / 30)
	categoryDiscount := math.Min(monthsOld*depreciationRate(listing.Category), 0.25)
	adjustment -= categoryDiscount * 0.2

	categoryImpact := domain.ImpactNeutral
	if categoryDiscount > 0.1 {
		categoryImpact = domain.ImpactPositive
	}
	categoryLabel := listing.Category
	if categoryLabel == "" {
		categoryLabel = "General"
	}
	factors = append(factors, domain.PriceFactor{
		Name:        "Category Depreciation",
		Impact:      categoryImpact,
		Description: fmt.Sprintf("%s items depreciate", categoryLabel),
		Weight:      categoryDiscount * 0.2,
	})

	if urgentCount := countUrgency(listing.UrgencyIndicators); urgentCount > 0 {
		urgencyDiscount := math.Min(float64(urgentCount)*0.03, 0.1)
		adjustment -= urgencyDiscount

		factors = append(factors, domain.PriceFactor{
			Name:        "Seller Urgency",
			Impact:      domain.ImpactPositive,
			Description: fmt.Sprintf("Seller shows %d urgency indicator(s)", urgentCount),
			Weight:      urgencyDiscount,
		})
	}

	if roundness := priceRoundness(asking); roundness > 0 {
		adjustment -= roundness

		factors = append(factors, domain.PriceFactor{
			Name:        "Price Psychology",
			Impact:      domain.ImpactPositive,
			Description: "Round price suggests negotiation room",
			Weight:      roundness,
		})
	}

	flexibility := Flexibility(listing)
	baseDiscount := 1 - adjustment

	fairMax := roundHalfUp(asking * (1 - baseDiscount*0.5))
	fairMin := roundHalfUp(asking * (1 - baseDiscount*1.2))

	recommended := roundHalfUp(asking * (1 - recommendedDiscount(flexibility)))

	return domain.Analysis{
		FairValueMin:     math.Max(fairMin, roundHalfUp(asking*0.5)),
		FairValueMax:     math.Min(fairMax, asking),
		RecommendedOffer: math.Max(recommended, roundHalfUp(asking*0.6)),
		Flexibility:      flexibility,
		ConfidenceScore:  confidence(listing),
		Factors:          factors,
	}
}

// Flexibility scores how far the seller is likely to move off the asking price.
func Flexibility(listing domain.Listing) domain.Flexibility {
	score := 0

	switch {
	case listing.DaysListed > 21:
		score += 3
	case listing.DaysListed > 14:
		score += 2
	case listing.DaysListed > 7:
		score++
	}

	if anyContains(listing.UrgencyIndicators, urgentKeywords) {
		score += 2
	}
	if anyContains(listing.UrgencyIndicators, firmKeywords) {
		score -= 2
	}
	if anyEquals(listing.UrgencyIndicators, negotiableKeywords) {
		score += 2
	}

	if isMultipleOf(listing.AskingPrice, 50) {
		score++
	}
	if isMultipleOf(listing.AskingPrice, 100) {
		score++
	}

	switch {
	case score >= 4:
		return domain.FlexibilityHigh
	case score >= 2:
		return domain.FlexibilityMedium
	default:
		return domain.FlexibilityLow
	}
}

// MockAnalysis is served instead of a real analysis when mock mode is on.
func MockAnalysis() domain.Analysis {
	return domain.Analysis{
		FairValueMin:     190,
		FairValueMax:     215,
		RecommendedOffer: 180,
		Flexibility:      domain.FlexibilityMedium,
		ConfidenceScore:  0.75,
		Factors: []domain.PriceFactor{
			{Name: "Time on Market", Impact: domain.ImpactPositive, Description: "Listed for 18 days", Weight: 0.09},
			{Name: "Condition", Impact: domain.ImpactNeutral, Description: "Condition: good", Weight: 0.05},
			{Name: "Seller Urgency", Impact: domain.ImpactPositive, Description: "Seller shows 2 urgency indicator(s)", Weight: 0.06},
			{Name: "Price Psychology", Impact: domain.ImpactPositive, Description: "Round price suggests negotiation room", Weight: 0.02},
		},
	}
}

func conditionMultiplier(condition string) float64 {
	if m, ok := conditionMultipliers[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return m
	}
	return conditionMultipliers["used"]
}

func depreciationRate(category string) float64 {
	lower := strings.ToLower(category)
	for _, entry := range categoryDepreciation {
		if strings.Contains(lower, entry.name) {
			return entry.rate
		}
	}
	return defaultDepreciation
}

func countUrgency(indicators []string) int {
	count := 0
	for _, ind := range indicators {
		if !slices.Contains(nonUrgentExact, strings.ToLower(ind)) {
			count++
		}
	}
	return count
}

func priceRoundness(price float64) float64 {
	switch {
	case isMultipleOf(price, 100):
		return 0.02
	case isMultipleOf(price, 50):
		return 0.01
	}
	return 0
}

func recommendedDiscount(flexibility domain.Flexibility) float64 {
	switch flexibility {
	case domain.FlexibilityHigh:
		return 0.30
	case domain.FlexibilityMedium:
		return 0.25
	default:
		return 0.20
	}
}

func confidence(listing domain.Listing) float64 {
	score := 0.5
	if listing.DaysListed > 0 {
		score += 0.1
	}
	if listing.Condition != "used" {
		score += 0.1
	}
	if len(listing.UrgencyIndicators) > 0 {
		score += 0.1
	}
	if listing.Category != "" {
		score += 0.1
	}
	return round2(math.Min(score, 0.9))
}

func anyContains(indicators []string, keywords []string) bool {
	for _, ind := range indicators {
		lower := strings.ToLower(ind)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func anyEquals(indicators []string, keywords []string) bool {
	for _, ind := range indicators {
		if slices.Contains(keywords, strings.ToLower(ind)) {
			return true
		}
	}
	return false
}

func isMultipleOf(value float64, divisor float64) bool {
	return math.Mod(value, divisor) == 0
}

func roundHalfUp(val float64) float64 {
	return math.Floor(val + 0.5)
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
