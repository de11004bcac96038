package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	listings        map[string]domain.Listing
	analyses        map[string]domain.Analysis
	sessions        map[string]domain.Session
	preferences     map[string]domain.Preferences
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_BUYER_PASSWORD; when unset
// dev defaults are used and a warning is logged.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	buyerPwd := envOr("SEED_BUYER_PASSWORD", "buyer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_BUYER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_BUYER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"buyer", buyerPwd, "buyer"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store without any accounts.
func New() *Store {
	return &Store{
		listings:        make(map[string]domain.Listing),
		analyses:        make(map[string]domain.Analysis),
		sessions:        make(map[string]domain.Session),
		preferences:     make(map[string]domain.Preferences),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo accounts and the demo listing.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	demo := extract.MockListing()
	s.listings[demo.ID] = cloneListing(demo)
	return s
}

func (s *Store) SaveListing(_ context.Context, listing domain.Listing) error {
	if strings.TrimSpace(listing.ID) == "" || listing.AskingPrice <= 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ID] = cloneListing(listing)
	return nil
}

func (s *Store) GetListing(_ context.Context, id string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneListing(listing)
	return &out, nil
}

func (s *Store) SaveAnalysis(_ context.Context, listingID string, analysis domain.Analysis) error {
	if strings.TrimSpace(listingID) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	analysis.Factors = slices.Clone(analysis.Factors)
	s.analyses[listingID] = analysis
	return nil
}

func (s *Store) GetAnalysis(_ context.Context, listingID string) (*domain.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, ok := s.analyses[listingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	analysis.Factors = slices.Clone(analysis.Factors)
	return &analysis, nil
}

func (s *Store) SaveSession(_ context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.ListingID) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSession(session)
	return &out, nil
}

// FindSessionByListing returns the newest session owner opened for a listing.
func (s *Store) FindSessionByListing(_ context.Context, listingID string, owner string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Session
	for _, session := range s.sessions {
		if session.ListingID != listingID || session.Owner != owner {
			continue
		}
		if latest == nil || newerSession(session, *latest) {
			candidate := session
			latest = &candidate
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	out := cloneSession(*latest)
	return &out, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) GetPreferences(_ context.Context, username string) (*domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.preferences[normalizeUsername(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &prefs, nil
}

func (s *Store) SavePreferences(_ context.Context, username string, prefs domain.Preferences) error {
	username = normalizeUsername(username)
	if username == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[username] = prefs
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := normalizeUsername(user.Username)
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "buyer"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = normalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func newerSession(a domain.Session, b domain.Session) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func cloneListing(src domain.Listing) domain.Listing {
	dst := src
	dst.ConditionKeywords = slices.Clone(src.ConditionKeywords)
	dst.UrgencyIndicators = slices.Clone(src.UrgencyIndicators)
	dst.Images = slices.Clone(src.Images)
	if src.TimeListed != nil {
		listed := *src.TimeListed
		dst.TimeListed = &listed
	}
	return dst
}

func cloneSession(src domain.Session) domain.Session {
	dst := src
	dst.CounterHistory = slices.Clone(src.CounterHistory)
	dst.Messages = slices.Clone(src.Messages)
	return dst
}
