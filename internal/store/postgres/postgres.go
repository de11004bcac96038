package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS analyses (
		listing_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`ALTER TABLE sessions ADD COLUMN IF NOT EXISTS owner TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS sessions_listing_owner_created_idx ON sessions (listing_id, owner, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		username TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveListing(ctx context.Context, listing domain.Listing) error {
	if strings.TrimSpace(listing.ID) == "" || listing.AskingPrice <= 0 {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(listing)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, payload, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, listing.ID, string(payload))
	return err
}

func (s *Store) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.getPayload(ctx, `SELECT payload FROM listings WHERE id = $1`, id, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *Store) SaveAnalysis(ctx context.Context, listingID string, analysis domain.Analysis) error {
	if strings.TrimSpace(listingID) == "" {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (listing_id, payload, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (listing_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, listingID, string(payload))
	return err
}

func (s *Store) GetAnalysis(ctx context.Context, listingID string) (*domain.Analysis, error) {
	var analysis domain.Analysis
	if err := s.getPayload(ctx, `SELECT payload FROM analyses WHERE listing_id = $1`, listingID, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (s *Store) SaveSession(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.ListingID) == "" {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, listing_id, owner, state, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET state = EXCLUDED.state, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, session.ID, session.ListingID, session.Owner, string(session.State), string(payload), session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	if err := s.getPayload(ctx, `SELECT payload FROM sessions WHERE id = $1`, id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) FindSessionByListing(ctx context.Context, listingID string, owner string) (*domain.Session, error) {
	var session domain.Session
	err := s.getPayload(ctx, `
		SELECT payload
		FROM sessions
		WHERE listing_id = $1 AND owner = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, listingID, &session, owner)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetPreferences(ctx context.Context, username string) (*domain.Preferences, error) {
	var prefs domain.Preferences
	if err := s.getPayload(ctx, `SELECT payload FROM preferences WHERE username = $1`, normalizeUsername(username), &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *Store) SavePreferences(ctx context.Context, username string, prefs domain.Preferences) error {
	username = normalizeUsername(username)
	if username == "" {
		return store.ErrInvalidInput
	}
	payload, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (username, payload, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (username)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, username, string(payload))
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = normalizeUsername(user.Username)
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "buyer"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = normalizeUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) getPayload(ctx context.Context, query string, key string, dst any, extra ...any) error {
	var payload []byte
	args := append([]any{key}, extra...)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
