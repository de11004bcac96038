package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketmate/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateBuyerStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	buyer, err := manager.CreateBuyer(context.Background(), domain.UserCreateRequest{
		Username: "DealHunter",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create buyer failed: %v", err)
	}
	if buyer.Username != "dealhunter" || buyer.Role != "buyer" {
		t.Fatalf("unexpected account %+v", buyer)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "dealhunter" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected buyer to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected buyer password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(context.Background(), domain.LoginRequest{
		Username: "dealhunter",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed buyer failed: %v", err)
	}
}

func TestCreateBuyerRejectsBadInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{users: map[string]domain.UserAccount{}})
	ctx := context.Background()

	if _, err := manager.CreateBuyer(ctx, domain.UserCreateRequest{Username: "abc", Password: "pass1234"}); err == nil {
		t.Fatalf("expected short username to fail")
	}
	if _, err := manager.CreateBuyer(ctx, domain.UserCreateRequest{Username: "deal hunter", Password: "pass1234"}); err == nil {
		t.Fatalf("expected username with space to fail")
	}
	if _, err := manager.CreateBuyer(ctx, domain.UserCreateRequest{Username: "dealhunter", Password: "123"}); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if _, err := manager.CreateBuyer(ctx, domain.UserCreateRequest{Username: "dealhunter", Password: "pass1234"}); err != nil {
		t.Fatalf("create buyer failed: %v", err)
	}
	if _, err := manager.CreateBuyer(ctx, domain.UserCreateRequest{Username: "DEALHUNTER", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"olduser": {
				Username: "olduser",
				Password: "pass1234",
				Role:     "buyer",
				Active:   false,
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "olduser", Password: "pass1234"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account to be rejected, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "olduser", Password: "wrong-pass"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestTokenRoundTripAndTampering(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"buyer": {Username: "buyer", Password: "buyer123", Role: "buyer", Active: true},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Buyer ", Password: "buyer123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "buyer" || actor.Role != "buyer" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("other-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}

	expired, err := manager.sign("buyer", "buyer", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(expired); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}
