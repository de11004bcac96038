package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketmate/backend/internal/cache"
	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/message"
	"marketmate/backend/internal/negotiation"
	"marketmate/backend/internal/pricing"
	"marketmate/backend/internal/store"
	"marketmate/backend/internal/store/memory"
)

type stubFetcher struct {
	listing domain.Listing
	err     error
	calls   int
}

func (f *stubFetcher) FetchListing(_ context.Context, pageURL string) (domain.Listing, error) {
	f.calls++
	listing := f.listing
	listing.URL = pageURL
	return listing, f.err
}

func newTestService() *Service {
	repo := memory.New()
	analyzer := pricing.NewEngine(cache.NoopAnalysisCache{}, 5*time.Second)
	return New(repo, analyzer, &stubFetcher{}, message.NewGenerator(func(int) int { return 0 }))
}

func buyerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "buyer", Role: "buyer"})
}

func testListing() domain.Listing {
	return domain.Listing{
		ID:          "L1",
		Title:       "Road bike",
		AskingPrice: 100,
		DaysListed:  7,
		Condition:   "good",
	}
}

func TestGetPreferencesSeedsDefaults(t *testing.T) {
	svc := newTestService()

	prefs, err := svc.GetPreferences(buyerCtx())
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if prefs != domain.DefaultPreferences() {
		t.Fatalf("expected defaults, got %+v", prefs)
	}
}

func TestUpdatePreferencesMergesFields(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()

	style := domain.StyleFirm
	maxSpend := 150.0
	prefs, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{Style: &style, MaxSpend: &maxSpend})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if prefs.Style != domain.StyleFirm || prefs.MaxSpend != 150 || prefs.AutomationLevel != domain.AutomationSuggestOnly {
		t.Fatalf("unexpected merged preferences %+v", prefs)
	}

	bad := domain.Style("rude")
	if _, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{Style: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for style, got %v", err)
	}

	other, err := svc.GetPreferences(WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"}))
	if err != nil {
		t.Fatalf("get other preferences: %v", err)
	}
	if other.Style != domain.StylePolite {
		t.Fatalf("preferences leaked across users: %+v", other)
	}
}

func TestIngestListingAnalyzes(t *testing.T) {
	svc := newTestService()

	resp, err := svc.IngestListing(buyerCtx(), testListing())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Analysis.FairValueMax != 95 || resp.Analysis.RecommendedOffer != 75 {
		t.Fatalf("unexpected analysis %+v", resp.Analysis)
	}
	if resp.Listing.Currency != "USD" || resp.Listing.UrgencyIndicators == nil {
		t.Fatalf("expected normalized listing, got %+v", resp.Listing)
	}

	if _, err := svc.IngestListing(buyerCtx(), domain.Listing{ID: "bad"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero price, got %v", err)
	}
}

func TestAnalyzeListingMockMode(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()

	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	mock := true
	if _, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{MockMode: &mock}); err != nil {
		t.Fatalf("update: %v", err)
	}

	analysis, err := svc.AnalyzeListing(ctx, "L1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.FairValueMin != 190 || analysis.FairValueMax != 215 {
		t.Fatalf("expected mock analysis, got %+v", analysis)
	}
}

func TestExtractListingFromHTMLAndURL(t *testing.T) {
	fetcher := &stubFetcher{listing: domain.Listing{ID: "777", AskingPrice: 400, Condition: "fair"}}
	svc := New(memory.New(), nil, fetcher, nil)
	ctx := buyerCtx()

	page := `<html><body><h1>Desk lamp</h1><span>$40</span></body></html>`
	resp, err := svc.ExtractListing(ctx, domain.ExtractRequest{HTML: page, URL: "https://www.facebook.com/marketplace/item/31337/"})
	if err != nil {
		t.Fatalf("extract html: %v", err)
	}
	if resp.Listing.ID != "31337" || resp.Listing.AskingPrice != 40 {
		t.Fatalf("unexpected listing %+v", resp.Listing)
	}
	if fetcher.calls != 0 {
		t.Fatalf("html request should not fetch")
	}

	resp, err = svc.ExtractListing(ctx, domain.ExtractRequest{URL: "https://example.com/item"})
	if err != nil {
		t.Fatalf("extract url: %v", err)
	}
	if fetcher.calls != 1 || resp.Listing.ID != "777" {
		t.Fatalf("expected fetched listing, got %+v (calls=%d)", resp.Listing, fetcher.calls)
	}

	if _, err := svc.ExtractListing(ctx, domain.ExtractRequest{HTML: `<p>no price</p>`}); !errors.Is(err, extract.ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
	if _, err := svc.ExtractListing(ctx, domain.ExtractRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStartNegotiationDefaults(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()
	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	session, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.InitialOffer != 75 || session.MaxPrice != 95 || session.State != domain.StateInit {
		t.Fatalf("expected analysis-driven defaults, got %+v", session)
	}

	maxSpend := 90.0
	if _, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{MaxSpend: &maxSpend}); err != nil {
		t.Fatalf("update: %v", err)
	}
	session, err = svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1", InitialOffer: 70})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.InitialOffer != 70 || session.MaxPrice != 90 {
		t.Fatalf("expected max spend as ceiling, got %+v", session)
	}

	state, err := svc.GetState(ctx, "L1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Negotiation == nil || state.Negotiation.ID != session.ID || state.Analysis == nil {
		t.Fatalf("expected newest session in state view, got %+v", state)
	}

	if _, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNegotiationFlow(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()
	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	session, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1", InitialOffer: 80, MaxPrice: 100})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	suggestion, err := svc.NextSuggestion(ctx, session.ID)
	if err != nil {
		t.Fatalf("suggestion: %v", err)
	}
	if suggestion.NextAction.Action != domain.ActionCounter || suggestion.NextAction.Amount != 80 {
		t.Fatalf("expected opening counter 80, got %+v", suggestion.NextAction)
	}
	if suggestion.Message.Type != domain.IntentInitial || !strings.Contains(suggestion.Message.Text, "$80") {
		t.Fatalf("unexpected opening message %+v", suggestion.Message)
	}

	session, err = svc.SendSuggestion(ctx, session.ID, domain.SendRequest{
		Text:   suggestion.Message.Text,
		Type:   suggestion.Message.Type,
		Amount: suggestion.NextAction.Amount,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if session.State != domain.StateOfferSent || len(session.Messages) != 1 || !session.Messages[0].Sent {
		t.Fatalf("unexpected session after send %+v", session)
	}

	session, err = svc.RecordCounter(ctx, session.ID, domain.CounterRequest{Amount: 95, FromSeller: true})
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if session.State != domain.StateCounterReceived {
		t.Fatalf("expected COUNTER_RECEIVED after seller counter, got %s", session.State)
	}

	suggestion, err = svc.NextSuggestion(ctx, session.ID)
	if err != nil {
		t.Fatalf("suggestion: %v", err)
	}
	if suggestion.NextAction.Action != domain.ActionAccept || suggestion.Message.Type != domain.IntentAccept {
		t.Fatalf("expected accept, got %+v", suggestion)
	}

	session, err = svc.SendSuggestion(ctx, session.ID, domain.SendRequest{Text: suggestion.Message.Text, Type: domain.IntentAccept})
	if err != nil {
		t.Fatalf("send accept: %v", err)
	}
	if session.State != domain.StateAccepted {
		t.Fatalf("expected ACCEPTED, got %s", session.State)
	}

	if _, err := svc.RecordCounter(ctx, session.ID, domain.CounterRequest{Amount: 90, FromSeller: true}); !errors.Is(err, negotiation.ErrInvalidTransition) {
		t.Fatalf("expected counters rejected on a closed session, got %v", err)
	}
}

func TestAdvanceNegotiationRejectsInvalidTransition(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()
	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	session, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1", InitialOffer: 80, MaxPrice: 100})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.AdvanceNegotiation(ctx, session.ID, domain.StateAccepted); !errors.Is(err, negotiation.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	stored, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.StateInit {
		t.Fatalf("failed transition must not change state, got %s", stored.State)
	}

	if _, err := svc.AdvanceNegotiation(ctx, session.ID, "LOST"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown state, got %v", err)
	}

	moved, err := svc.AdvanceNegotiation(ctx, session.ID, domain.StateWalkedAway)
	if err != nil {
		t.Fatalf("walk away: %v", err)
	}
	if !negotiation.IsTerminalState(moved.State) {
		t.Fatalf("expected terminal state, got %s", moved.State)
	}
}

func TestObserversAndReset(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()

	var mu sync.Mutex
	var kinds []string
	unsubscribe := svc.Subscribe(func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})

	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.ResetNegotiation(ctx, "L1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	unsubscribe()
	if _, err := svc.AnalyzeListing(ctx, "L1"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	want := []string{EventListingSaved, EventAnalysisUpdated, EventSessionStarted, EventSessionReset}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}

	state, err := svc.GetState(ctx, "L1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Negotiation != nil {
		t.Fatalf("expected no negotiation after reset")
	}
}

func TestConcurrentCountersAreSerialized(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()
	if _, err := svc.IngestListing(ctx, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	session, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{ListingID: "L1", InitialOffer: 80, MaxPrice: 100})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			if _, err := svc.RecordCounter(ctx, session.ID, domain.CounterRequest{Amount: amount}); err != nil {
				t.Errorf("counter: %v", err)
			}
		}(float64(81 + i))
	}
	wg.Wait()

	stored, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.CounterHistory) != 20 {
		t.Fatalf("expected 20 counters, lost updates: %d", len(stored.CounterHistory))
	}
}

func TestGenerateMessageUsesPreferredStyle(t *testing.T) {
	svc := newTestService()
	ctx := buyerCtx()

	style := domain.StyleFirm
	if _, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{Style: &style}); err != nil {
		t.Fatalf("update: %v", err)
	}
	msg, err := svc.GenerateMessage(ctx, domain.GenerateMessageRequest{Type: domain.IntentCounter, Amount: 120})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if msg.Text != "$120 is my limit. Take it or leave it." {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if _, err := svc.GenerateMessage(ctx, domain.GenerateMessageRequest{Type: "haggle"}); !errors.Is(err, message.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	svc := newTestService()
	alice := WithActor(context.Background(), domain.Actor{Username: "alice", Role: "buyer"})
	bob := WithActor(context.Background(), domain.Actor{Username: "bob", Role: "buyer"})

	if _, err := svc.IngestListing(alice, testListing()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	session, err := svc.StartNegotiation(alice, domain.StartNegotiationRequest{ListingID: "L1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Owner != "alice" {
		t.Fatalf("expected session owned by alice, got %q", session.Owner)
	}

	state, err := svc.GetState(bob, "L1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Negotiation != nil {
		t.Fatalf("expected bob to see no negotiation, got %s", state.Negotiation.ID)
	}
	if _, err := svc.GetSession(bob, session.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound reading another buyer's session, got %v", err)
	}
	if _, err := svc.RecordCounter(bob, session.ID, domain.CounterRequest{Amount: 500}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound countering another buyer's session, got %v", err)
	}
	if _, err := svc.NextSuggestion(bob, session.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another buyer's suggestion, got %v", err)
	}
	if err := svc.ResetNegotiation(bob, "L1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound resetting without a session, got %v", err)
	}

	stored, err := svc.GetSession(alice, session.ID)
	if err != nil {
		t.Fatalf("alice lost her session: %v", err)
	}
	if stored.CurrentOffer != session.CurrentOffer || len(stored.CounterHistory) != 0 {
		t.Fatalf("expected alice's session untouched, got %+v", stored)
	}
}
