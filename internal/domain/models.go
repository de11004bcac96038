package domain

import "time"

type Listing struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AskingPrice       float64    `json:"asking_price"`
	Currency          string     `json:"currency"`
	Category          string     `json:"category"`
	Location          string     `json:"location"`
	TimeListed        *time.Time `json:"time_listed,omitempty"`
	DaysListed        int        `json:"days_listed"`
	Condition         string     `json:"condition"`
	ConditionKeywords []string   `json:"condition_keywords"`
	UrgencyIndicators []string   `json:"urgency_indicators"`
	SellerName        string     `json:"seller_name"`
	SellerProfileURL  string     `json:"seller_profile_url"`
	Images            []string   `json:"images"`
	URL               string     `json:"url"`
}

type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

type Flexibility string

const (
	FlexibilityLow    Flexibility = "low"
	FlexibilityMedium Flexibility = "medium"
	FlexibilityHigh   Flexibility = "high"
)

type PriceFactor struct {
	Name        string  `json:"name"`
	Impact      Impact  `json:"impact"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

type Analysis struct {
	FairValueMin     float64       `json:"fair_value_min"`
	FairValueMax     float64       `json:"fair_value_max"`
	RecommendedOffer float64       `json:"recommended_offer"`
	Flexibility      Flexibility   `json:"flexibility"`
	ConfidenceScore  float64       `json:"confidence_score"`
	Factors          []PriceFactor `json:"factors"`
}

type NegotiationState string

const (
	StateInit             NegotiationState = "INIT"
	StateOfferSent        NegotiationState = "OFFER_SENT"
	StateAwaitingResponse NegotiationState = "AWAITING_RESPONSE"
	StateCounterReceived  NegotiationState = "COUNTER_RECEIVED"
	StateCounterSent      NegotiationState = "COUNTER_SENT"
	StateAccepted         NegotiationState = "ACCEPTED"
	StateRejected         NegotiationState = "REJECTED"
	StateWalkedAway       NegotiationState = "WALKED_AWAY"
)

type CounterOffer struct {
	Amount     float64   `json:"amount"`
	FromSeller bool      `json:"from_seller"`
	Timestamp  time.Time `json:"timestamp"`
}

type NegotiationMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	FromUser  bool      `json:"from_user"`
	Timestamp time.Time `json:"timestamp"`
	Sent      bool      `json:"sent"`
}

type Session struct {
	ID             string               `json:"id"`
	ListingID      string               `json:"listing_id"`
	Owner          string               `json:"owner"`
	State          NegotiationState     `json:"state"`
	InitialOffer   float64              `json:"initial_offer"`
	CurrentOffer   float64              `json:"current_offer"`
	MaxPrice       float64              `json:"max_price"`
	CounterHistory []CounterOffer       `json:"counter_history"`
	Messages       []NegotiationMessage `json:"messages"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type Intent string

const (
	IntentInitial  Intent = "initial"
	IntentCounter  Intent = "counter"
	IntentAccept   Intent = "accept"
	IntentWalkaway Intent = "walkaway"
)

type Style string

const (
	StylePolite  Style = "polite"
	StyleNeutral Style = "neutral"
	StyleFirm    Style = "firm"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type SuggestedMessage struct {
	Text        string     `json:"text"`
	Type        Intent     `json:"type"`
	Confidence  Confidence `json:"confidence"`
	OfferAmount float64    `json:"offer_amount,omitempty"`
}

type Action string

const (
	ActionCounter  Action = "counter"
	ActionAccept   Action = "accept"
	ActionWalkaway Action = "walkaway"
)

type NextAction struct {
	Action Action  `json:"action"`
	Amount float64 `json:"amount,omitempty"`
}

type AutomationLevel string

const (
	AutomationSuggestOnly  AutomationLevel = "suggest-only"
	AutomationOneClickSend AutomationLevel = "one-click-send"
)

type Preferences struct {
	MaxSpend        float64         `json:"max_spend"`
	Style           Style           `json:"style"`
	AutomationLevel AutomationLevel `json:"automation_level"`
	MockMode        bool            `json:"mock_mode"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		MaxSpend:        0,
		Style:           StylePolite,
		AutomationLevel: AutomationSuggestOnly,
		MockMode:        false,
	}
}

type PreferencesUpdateRequest struct {
	MaxSpend        *float64         `json:"max_spend,omitempty"`
	Style           *Style           `json:"style,omitempty"`
	AutomationLevel *AutomationLevel `json:"automation_level,omitempty"`
	MockMode        *bool            `json:"mock_mode,omitempty"`
}

// State is the read view the UI renders for one listing.
type State struct {
	Listing     *Listing    `json:"listing,omitempty"`
	Analysis    *Analysis   `json:"analysis,omitempty"`
	Preferences Preferences `json:"preferences"`
	Negotiation *Session    `json:"negotiation,omitempty"`
}

type ListingResponse struct {
	Listing  Listing  `json:"listing"`
	Analysis Analysis `json:"analysis"`
}

type ExtractRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

type StartNegotiationRequest struct {
	ListingID    string  `json:"listing_id"`
	InitialOffer float64 `json:"initial_offer"`
	MaxPrice     float64 `json:"max_price"`
}

type TransitionRequest struct {
	State NegotiationState `json:"state"`
}

type CounterRequest struct {
	Amount     float64 `json:"amount"`
	FromSeller bool    `json:"from_seller"`
}

type SuggestionResponse struct {
	NextAction NextAction       `json:"next_action"`
	Message    SuggestedMessage `json:"message"`
}

type SendRequest struct {
	Text   string  `json:"text"`
	Type   Intent  `json:"type"`
	Amount float64 `json:"amount,omitempty"`
}

type GenerateMessageRequest struct {
	Type   Intent  `json:"type"`
	Style  Style   `json:"style"`
	Amount float64 `json:"amount,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
