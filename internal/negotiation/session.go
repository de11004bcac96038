package negotiation

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/xid"
)

// CreateSession opens a negotiation in INIT. initialOffer is not checked against
// maxPrice; an opening offer above budget is the caller's call.
func CreateSession(listingID string, initialOffer float64, maxPrice float64) domain.Session {
	now := time.Now().UTC()
	return domain.Session{
		ID:             "neg-" + uuid.NewString(),
		ListingID:      listingID,
		State:          domain.StateInit,
		InitialOffer:   initialOffer,
		CurrentOffer:   initialOffer,
		MaxPrice:       maxPrice,
		CounterHistory: []domain.CounterOffer{},
		Messages:       []domain.NegotiationMessage{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AddCounterOffer appends to the history. Buyer counters move CurrentOffer;
// seller counters leave it alone.
func AddCounterOffer(session domain.Session, amount float64, fromSeller bool) domain.Session {
	now := time.Now().UTC()
	next := clone(session)
	next.CounterHistory = append(next.CounterHistory, domain.CounterOffer{
		Amount:     amount,
		FromSeller: fromSeller,
		Timestamp:  now,
	})
	if !fromSeller {
		next.CurrentOffer = amount
	}
	next.UpdatedAt = now
	return next
}

func AddMessage(session domain.Session, text string, fromUser bool, sent bool) domain.Session {
	now := time.Now().UTC()
	next := clone(session)
	next.Messages = append(next.Messages, domain.NegotiationMessage{
		ID:        xid.New("msg"),
		Text:      text,
		FromUser:  fromUser,
		Timestamp: now,
		Sent:      sent,
	})
	next.UpdatedAt = now
	return next
}

// LastSellerCounter reports the newest history entry when it came from the seller.
func LastSellerCounter(session domain.Session) (float64, bool) {
	if len(session.CounterHistory) == 0 {
		return 0, false
	}
	last := session.CounterHistory[len(session.CounterHistory)-1]
	if !last.FromSeller {
		return 0, false
	}
	return last.Amount, true
}

func ShouldWalkAway(session domain.Session, sellerCounter float64) bool {
	return sellerCounter > session.MaxPrice
}

func clone(session domain.Session) domain.Session {
	next := session
	next.CounterHistory = slices.Clone(session.CounterHistory)
	next.Messages = slices.Clone(session.Messages)
	if next.CounterHistory == nil {
		next.CounterHistory = []domain.CounterOffer{}
	}
	if next.Messages == nil {
		next.Messages = []domain.NegotiationMessage{}
	}
	return next
}
