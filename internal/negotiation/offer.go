package negotiation

import (
	"math"

	"marketmate/backend/internal/domain"
)

const (
	minIncrement       = 5.0
	maxBlindIncrement  = 20.0
	maxBlindRounds     = 3
	fairCeilingFactor  = 1.1
	exhaustedThreshold = 0.95
)

// CalculateNextOffer answers a seller counter. A counter within budget is
// returned as-is; otherwise the buyer meets halfway, moves at least
// minIncrement, and never exceeds maxPrice or 110% of the fair maximum.
func CalculateNextOffer(session domain.Session, sellerCounter float64, analysis domain.Analysis) float64 {
	if sellerCounter <= session.MaxPrice {
		return sellerCounter
	}

	midpoint := roundHalfUp((session.CurrentOffer + sellerCounter) / 2)
	next := math.Min(midpoint, session.MaxPrice)
	if next <= session.CurrentOffer {
		next = math.Min(session.CurrentOffer+minIncrement, session.MaxPrice)
	}

	return math.Min(next, roundCents(analysis.FairValueMax*fairCeilingFactor))
}

// DetermineNextAction picks the buyer's move. sellerCounter and analysis are
// optional; without an analysis a fixed-increment policy applies.
func DetermineNextAction(session domain.Session, sellerCounter *float64, analysis *domain.Analysis) domain.NextAction {
	if sellerCounter == nil || *sellerCounter <= 0 {
		return domain.NextAction{
			Action: domain.ActionCounter,
			Amount: math.Min(session.InitialOffer, session.MaxPrice),
		}
	}
	counter := *sellerCounter

	if counter <= session.CurrentOffer {
		return domain.NextAction{Action: domain.ActionAccept}
	}
	if counter <= session.MaxPrice {
		return domain.NextAction{Action: domain.ActionAccept}
	}

	if analysis != nil {
		next := CalculateNextOffer(session, counter, *analysis)
		if next >= session.MaxPrice && session.CurrentOffer >= session.MaxPrice*exhaustedThreshold {
			return domain.NextAction{Action: domain.ActionWalkaway}
		}
		return domain.NextAction{Action: domain.ActionCounter, Amount: next}
	}

	if len(session.CounterHistory) >= maxBlindRounds {
		return domain.NextAction{Action: domain.ActionWalkaway}
	}

	increment := math.Min(roundHalfUp((session.MaxPrice-session.CurrentOffer)/2), maxBlindIncrement)
	if increment < minIncrement {
		return domain.NextAction{Action: domain.ActionWalkaway}
	}

	return domain.NextAction{
		Action: domain.ActionCounter,
		Amount: math.Min(session.CurrentOffer+increment, session.MaxPrice),
	}
}

// IntentFor maps an action to the message intent; a counter before anything
// was sent is the opening offer.
func IntentFor(action domain.Action, state domain.NegotiationState) domain.Intent {
	switch action {
	case domain.ActionAccept:
		return domain.IntentAccept
	case domain.ActionWalkaway:
		return domain.IntentWalkaway
	}
	if state == domain.StateInit {
		return domain.IntentInitial
	}
	return domain.IntentCounter
}

func roundHalfUp(val float64) float64 {
	return math.Floor(val + 0.5)
}

func roundCents(val float64) float64 {
	return math.Round(val*100) / 100
}
