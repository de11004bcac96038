package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/negotiation"
	"marketmate/backend/internal/store"
)

// StartNegotiation opens a session for a stored listing. A zero initial offer
// defaults to the analysis recommendation (80% of asking without one); a zero
// max price defaults to the caller's max spend, then the fair maximum, then
// the asking price.
func (s *Service) StartNegotiation(ctx context.Context, req domain.StartNegotiationRequest) (domain.Session, error) {
	req.ListingID = strings.TrimSpace(req.ListingID)
	if req.ListingID == "" {
		return domain.Session{}, fmt.Errorf("%w: listing_id is required", store.ErrInvalidInput)
	}
	if req.InitialOffer < 0 || req.MaxPrice < 0 {
		return domain.Session{}, fmt.Errorf("%w: offers must be >= 0", store.ErrInvalidInput)
	}

	listing, err := s.repo.GetListing(ctx, req.ListingID)
	if err != nil {
		return domain.Session{}, err
	}
	analysis, err := s.optionalAnalysis(ctx, listing.ID)
	if err != nil {
		return domain.Session{}, err
	}
	prefs, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	initialOffer := req.InitialOffer
	if initialOffer == 0 {
		if analysis != nil {
			initialOffer = analysis.RecommendedOffer
		} else {
			initialOffer = math.Floor(listing.AskingPrice*0.8 + 0.5)
		}
	}

	maxPrice := req.MaxPrice
	if maxPrice == 0 {
		switch {
		case prefs.MaxSpend > 0:
			maxPrice = prefs.MaxSpend
		case analysis != nil && analysis.FairValueMax > 0:
			maxPrice = analysis.FairValueMax
		default:
			maxPrice = listing.AskingPrice
		}
	}
	if initialOffer <= 0 || maxPrice <= 0 {
		return domain.Session{}, fmt.Errorf("%w: offers must be > 0", store.ErrInvalidInput)
	}

	session := negotiation.CreateSession(listing.ID, initialOffer, maxPrice)
	session.Owner = usernameFrom(ctx)
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	s.emit(ctx, EventSessionStarted, listing.ID, session.ID)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.ownedSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// ownedSession loads a session and hides it from anyone but its owner.
func (s *Service) ownedSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Owner != usernameFrom(ctx) {
		return nil, store.ErrNotFound
	}
	return session, nil
}

// AdvanceNegotiation moves a session to another state. Disallowed moves fail
// with negotiation.ErrInvalidTransition and leave the stored session as is.
func (s *Service) AdvanceNegotiation(ctx context.Context, sessionID string, to domain.NegotiationState) (domain.Session, error) {
	if !negotiation.IsValidState(to) {
		return domain.Session{}, fmt.Errorf("%w: unknown state %q", store.ErrInvalidInput, to)
	}
	return s.mutateSession(ctx, sessionID, func(session domain.Session) (domain.Session, error) {
		return negotiation.Transition(session, to)
	})
}

// RecordCounter appends a counter offer. A seller counter also walks the
// session forward to COUNTER_RECEIVED along allowed transitions.
func (s *Service) RecordCounter(ctx context.Context, sessionID string, req domain.CounterRequest) (domain.Session, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return domain.Session{}, fmt.Errorf("%w: amount must be > 0", store.ErrInvalidInput)
	}
	return s.mutateSession(ctx, sessionID, func(session domain.Session) (domain.Session, error) {
		if negotiation.IsTerminalState(session.State) {
			return domain.Session{}, fmt.Errorf("%w: session is %s", negotiation.ErrInvalidTransition, session.State)
		}

		next := negotiation.AddCounterOffer(session, req.Amount, req.FromSeller)
		if !req.FromSeller {
			return next, nil
		}
		for _, step := range []domain.NegotiationState{domain.StateAwaitingResponse, domain.StateCounterReceived} {
			if negotiation.CanTransition(next.State, step) {
				moved, err := negotiation.Transition(next, step)
				if err != nil {
					return domain.Session{}, err
				}
				next = moved
			}
		}
		return next, nil
	})
}

// NextSuggestion decides the buyer's next move and renders it with the
// caller's style. Only a trailing seller counter is treated as the one to
// answer.
func (s *Service) NextSuggestion(ctx context.Context, sessionID string) (domain.SuggestionResponse, error) {
	session, err := s.ownedSession(ctx, sessionID)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}
	analysis, err := s.optionalAnalysis(ctx, session.ListingID)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}
	prefs, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}

	var sellerCounter *float64
	if amount, ok := negotiation.LastSellerCounter(*session); ok {
		sellerCounter = &amount
	}

	next := negotiation.DetermineNextAction(*session, sellerCounter, analysis)
	intent := negotiation.IntentFor(next.Action, session.State)

	msg, err := s.messages.Generate(intent, prefs.Style, next.Amount)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}
	return domain.SuggestionResponse{NextAction: next, Message: msg}, nil
}

// SendSuggestion records a message the buyer sent and moves the session to
// the state that intent implies. A counter or opening offer with an amount
// also becomes the buyer's current offer.
func (s *Service) SendSuggestion(ctx context.Context, sessionID string, req domain.SendRequest) (domain.Session, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return domain.Session{}, fmt.Errorf("%w: text is required", store.ErrInvalidInput)
	}
	target, ok := negotiation.StateAfterSend(req.Type)
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: unknown message type %q", store.ErrInvalidInput, req.Type)
	}
	if req.Amount < 0 {
		return domain.Session{}, fmt.Errorf("%w: amount must be >= 0", store.ErrInvalidInput)
	}

	return s.mutateSession(ctx, sessionID, func(session domain.Session) (domain.Session, error) {
		moved, err := negotiation.Transition(session, target)
		if err != nil {
			return domain.Session{}, err
		}
		if req.Amount > 0 && (req.Type == domain.IntentInitial || req.Type == domain.IntentCounter) {
			moved = negotiation.AddCounterOffer(moved, req.Amount, false)
		}
		return negotiation.AddMessage(moved, req.Text, true, true), nil
	})
}

// ResetNegotiation drops the caller's newest session of a listing.
func (s *Service) ResetNegotiation(ctx context.Context, listingID string) error {
	session, err := s.repo.FindSessionByListing(ctx, listingID, usernameFrom(ctx))
	if err != nil {
		return err
	}

	unlock := s.sessionLocks.Lock(session.ID)
	defer unlock()

	if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
		return err
	}
	s.emit(ctx, EventSessionReset, listingID, session.ID)
	return nil
}

func (s *Service) mutateSession(ctx context.Context, sessionID string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	current, err := s.ownedSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	updated, err := fn(*current)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.repo.SaveSession(ctx, updated); err != nil {
		return domain.Session{}, err
	}
	s.emit(ctx, EventSessionUpdated, updated.ListingID, updated.ID)
	return updated, nil
}

func (s *Service) optionalAnalysis(ctx context.Context, listingID string) (*domain.Analysis, error) {
	analysis, err := s.repo.GetAnalysis(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return analysis, nil
}
