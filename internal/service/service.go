package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/message"
	"marketmate/backend/internal/pricing"
	"marketmate/backend/internal/store"
	"marketmate/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// LocalUser owns preferences when no authenticated actor is attached, as in
// the CLI.
const LocalUser = "local"

// ListingFetcher downloads and extracts a listing page.
type ListingFetcher interface {
	FetchListing(ctx context.Context, pageURL string) (domain.Listing, error)
}

type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ListingID string    `json:"listing_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`
}

const (
	EventListingSaved       = "listing_saved"
	EventAnalysisUpdated    = "analysis_updated"
	EventPreferencesUpdated = "preferences_updated"
	EventSessionStarted     = "session_started"
	EventSessionUpdated     = "session_updated"
	EventSessionReset       = "session_reset"
)

// Observer is called synchronously after a successful write.
type Observer func(Event)

type Service struct {
	repo     store.Repository
	analyzer *pricing.Engine
	fetcher  ListingFetcher
	messages *message.Generator

	sessionLocks keyedMutex

	obsMu     sync.RWMutex
	observers map[string]Observer
}

func New(repo store.Repository, analyzer *pricing.Engine, fetcher ListingFetcher, messages *message.Generator) *Service {
	if analyzer == nil {
		analyzer = pricing.NewEngine(nil, 0)
	}
	if fetcher == nil {
		fetcher = extract.NewFetcher(0)
	}
	if messages == nil {
		messages = message.NewGenerator(nil)
	}

	return &Service{
		repo:      repo,
		analyzer:  analyzer,
		fetcher:   fetcher,
		messages:  messages,
		observers: make(map[string]Observer),
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Service) Subscribe(obs Observer) func() {
	id := xid.New("obs")
	s.obsMu.Lock()
	s.observers[id] = obs
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Service) GetPreferences(ctx context.Context) (domain.Preferences, error) {
	username := usernameFrom(ctx)
	prefs, err := s.repo.GetPreferences(ctx, username)
	if err == nil {
		return *prefs, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Preferences{}, err
	}

	defaults := domain.DefaultPreferences()
	if err := s.repo.SavePreferences(ctx, username, defaults); err != nil {
		log.Printf("[service] WARN: failed to seed preferences user=%s: %v", username, err)
	}
	return defaults, nil
}

// UpdatePreferences merges the supplied fields over the stored preferences.
func (s *Service) UpdatePreferences(ctx context.Context, req domain.PreferencesUpdateRequest) (domain.Preferences, error) {
	current, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}

	updated := current
	if req.MaxSpend != nil {
		if *req.MaxSpend < 0 || math.IsNaN(*req.MaxSpend) || math.IsInf(*req.MaxSpend, 0) {
			return domain.Preferences{}, fmt.Errorf("%w: max_spend must be >= 0", store.ErrInvalidInput)
		}
		updated.MaxSpend = *req.MaxSpend
	}
	if req.Style != nil {
		if !isValidStyle(*req.Style) {
			return domain.Preferences{}, fmt.Errorf("%w: unknown style %q", store.ErrInvalidInput, *req.Style)
		}
		updated.Style = *req.Style
	}
	if req.AutomationLevel != nil {
		switch *req.AutomationLevel {
		case domain.AutomationSuggestOnly, domain.AutomationOneClickSend:
			updated.AutomationLevel = *req.AutomationLevel
		default:
			return domain.Preferences{}, fmt.Errorf("%w: unknown automation level %q", store.ErrInvalidInput, *req.AutomationLevel)
		}
	}
	if req.MockMode != nil {
		updated.MockMode = *req.MockMode
	}

	if err := s.repo.SavePreferences(ctx, usernameFrom(ctx), updated); err != nil {
		return domain.Preferences{}, err
	}
	s.emit(ctx, EventPreferencesUpdated, "", "")
	return updated, nil
}

// IngestListing stores a listing supplied by a client and analyzes it.
func (s *Service) IngestListing(ctx context.Context, listing domain.Listing) (domain.ListingResponse, error) {
	listing, err := normalizeListing(listing)
	if err != nil {
		return domain.ListingResponse{}, err
	}
	if err := s.repo.SaveListing(ctx, listing); err != nil {
		return domain.ListingResponse{}, err
	}
	s.emit(ctx, EventListingSaved, listing.ID, "")

	analysis, err := s.AnalyzeListing(ctx, listing.ID)
	if err != nil {
		return domain.ListingResponse{}, err
	}
	return domain.ListingResponse{Listing: listing, Analysis: analysis}, nil
}

// ExtractListing builds a listing from page HTML, or fetches the page when
// only a URL is given, then ingests it.
func (s *Service) ExtractListing(ctx context.Context, req domain.ExtractRequest) (domain.ListingResponse, error) {
	req.URL = strings.TrimSpace(req.URL)

	var (
		listing domain.Listing
		err     error
	)
	switch {
	case strings.TrimSpace(req.HTML) != "":
		listing, err = extract.Extract(strings.NewReader(req.HTML), req.URL)
	case req.URL != "":
		listing, err = s.fetcher.FetchListing(ctx, req.URL)
	default:
		return domain.ListingResponse{}, fmt.Errorf("%w: html or url is required", store.ErrInvalidInput)
	}
	if err != nil {
		return domain.ListingResponse{}, err
	}
	return s.IngestListing(ctx, listing)
}

// AnalyzeListing runs the pricing analyzer, or serves the demo analysis when
// the caller has mock mode on, and stores the result.
func (s *Service) AnalyzeListing(ctx context.Context, listingID string) (domain.Analysis, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return domain.Analysis{}, err
	}
	prefs, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.Analysis{}, err
	}

	var analysis domain.Analysis
	if prefs.MockMode {
		analysis = pricing.MockAnalysis()
	} else {
		analysis = s.analyzer.Analyze(ctx, *listing)
	}

	if err := s.repo.SaveAnalysis(ctx, listing.ID, analysis); err != nil {
		return domain.Analysis{}, err
	}
	s.emit(ctx, EventAnalysisUpdated, listing.ID, "")
	return analysis, nil
}

// GetState assembles the listing view: listing, its latest analysis, the
// caller's preferences and the caller's newest negotiation, when present.
func (s *Service) GetState(ctx context.Context, listingID string) (domain.State, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return domain.State{}, err
	}
	prefs, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.State{}, err
	}

	state := domain.State{Listing: listing, Preferences: prefs}

	analysis, err := s.repo.GetAnalysis(ctx, listingID)
	switch {
	case err == nil:
		state.Analysis = analysis
	case !errors.Is(err, store.ErrNotFound):
		return domain.State{}, err
	}

	session, err := s.repo.FindSessionByListing(ctx, listingID, usernameFrom(ctx))
	switch {
	case err == nil:
		state.Negotiation = session
	case !errors.Is(err, store.ErrNotFound):
		return domain.State{}, err
	}
	return state, nil
}

func (s *Service) GenerateMessage(ctx context.Context, req domain.GenerateMessageRequest) (domain.SuggestedMessage, error) {
	if req.Style == "" {
		prefs, err := s.GetPreferences(ctx)
		if err != nil {
			return domain.SuggestedMessage{}, err
		}
		req.Style = prefs.Style
	}
	if req.Amount < 0 {
		return domain.SuggestedMessage{}, fmt.Errorf("%w: amount must be >= 0", store.ErrInvalidInput)
	}
	return s.messages.Generate(req.Type, req.Style, req.Amount)
}

func (s *Service) emit(ctx context.Context, kind string, listingID string, sessionID string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	event := Event{
		ID:        xid.New("evt"),
		Kind:      kind,
		ListingID: listingID,
		SessionID: sessionID,
		Actor:     actor.Username,
		At:        time.Now().UTC(),
	}

	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.obsMu.RUnlock()

	for _, obs := range observers {
		obs(event)
	}
}

func normalizeListing(listing domain.Listing) (domain.Listing, error) {
	listing.ID = strings.TrimSpace(listing.ID)
	if listing.ID == "" {
		listing.ID = xid.New("listing")
	}
	if listing.AskingPrice <= 0 || math.IsNaN(listing.AskingPrice) || math.IsInf(listing.AskingPrice, 0) {
		return domain.Listing{}, fmt.Errorf("%w: asking_price must be > 0", store.ErrInvalidInput)
	}
	if listing.DaysListed < 0 {
		return domain.Listing{}, fmt.Errorf("%w: days_listed must be >= 0", store.ErrInvalidInput)
	}
	if listing.Currency == "" {
		listing.Currency = "USD"
	}
	if strings.TrimSpace(listing.Condition) == "" {
		listing.Condition = "used"
	}
	if listing.ConditionKeywords == nil {
		listing.ConditionKeywords = []string{}
	}
	if listing.UrgencyIndicators == nil {
		listing.UrgencyIndicators = []string{}
	}
	if listing.Images == nil {
		listing.Images = []string{}
	}
	return listing, nil
}

func usernameFrom(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return LocalUser
}

func isValidStyle(style domain.Style) bool {
	switch style {
	case domain.StylePolite, domain.StyleNeutral, domain.StyleFirm:
		return true
	default:
		return false
	}
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
