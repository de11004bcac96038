package negotiation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"marketmate/backend/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[domain.NegotiationState][]domain.NegotiationState{
	domain.StateInit:             {domain.StateOfferSent, domain.StateWalkedAway},
	domain.StateOfferSent:        {domain.StateAwaitingResponse},
	domain.StateAwaitingResponse: {domain.StateCounterReceived, domain.StateAccepted, domain.StateRejected},
	domain.StateCounterReceived:  {domain.StateCounterSent, domain.StateAccepted, domain.StateWalkedAway},
	domain.StateCounterSent:      {domain.StateAwaitingResponse},
	domain.StateAccepted:         {},
	domain.StateRejected:         {},
	domain.StateWalkedAway:       {},
}

// States lists every state in lifecycle order.
func States() []domain.NegotiationState {
	return []domain.NegotiationState{
		domain.StateInit,
		domain.StateOfferSent,
		domain.StateAwaitingResponse,
		domain.StateCounterReceived,
		domain.StateCounterSent,
		domain.StateAccepted,
		domain.StateRejected,
		domain.StateWalkedAway,
	}
}

func IsValidState(state domain.NegotiationState) bool {
	_, ok := transitions[state]
	return ok
}

func CanTransition(from domain.NegotiationState, to domain.NegotiationState) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns a copy of session moved to the target state.
func Transition(session domain.Session, to domain.NegotiationState) (domain.Session, error) {
	if !CanTransition(session.State, to) {
		return session, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.State, to)
	}

	next := clone(session)
	next.State = to
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

func IsTerminalState(state domain.NegotiationState) bool {
	switch state {
	case domain.StateAccepted, domain.StateRejected, domain.StateWalkedAway:
		return true
	}
	return false
}

// StateAfterSend is the state a session enters once a suggestion of the given
// intent has been delivered to the seller.
func StateAfterSend(intent domain.Intent) (domain.NegotiationState, bool) {
	switch intent {
	case domain.IntentInitial:
		return domain.StateOfferSent, true
	case domain.IntentCounter:
		return domain.StateCounterSent, true
	case domain.IntentAccept:
		return domain.StateAccepted, true
	case domain.IntentWalkaway:
		return domain.StateWalkedAway, true
	}
	return "", false
}
