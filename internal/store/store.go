package store

import (
	"context"
	"errors"

	"marketmate/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository keeps snapshots of listings, analyses, negotiation sessions and
// per-user preferences. Values are stored and returned as copies.
type Repository interface {
	SaveListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	SaveAnalysis(ctx context.Context, listingID string, analysis domain.Analysis) error
	GetAnalysis(ctx context.Context, listingID string) (*domain.Analysis, error)
	SaveSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// FindSessionByListing returns owner's newest session for the listing.
	FindSessionByListing(ctx context.Context, listingID string, owner string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	GetPreferences(ctx context.Context, username string) (*domain.Preferences, error)
	SavePreferences(ctx context.Context, username string, prefs domain.Preferences) error
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
