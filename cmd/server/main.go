package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"marketmate/backend/internal/cache"
	"marketmate/backend/internal/config"
	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/httpapi"
	"marketmate/backend/internal/message"
	"marketmate/backend/internal/pricing"
	"marketmate/backend/internal/service"
	"marketmate/backend/internal/store"
	"marketmate/backend/internal/store/memory"
	pgstore "marketmate/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var closers []func() error

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	cacheStore, closeCache := openAnalysisCache(ctx, cfg)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	analyzer := pricing.NewEngine(cacheStore, cfg.AnalysisCacheTTL())
	svc := service.New(repo, analyzer, extract.NewFetcher(cfg.FetchTimeout(), extract.AllowPrivateHosts(cfg.FetchAllowPrivateHosts)), message.NewGenerator(nil))
	unsubscribe := svc.Subscribe(logEvent)
	defer unsubscribe()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.FetchTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("MarketMate backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set. A configured but
// unreachable database is fatal rather than silently falling back to memory.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if err := bootstrapAdmin(ctx, pg, cfg.BootstrapAdminPassword); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Println("repository: postgres")
	return pg, pg.Close, nil
}

// openAnalysisCache degrades to the noop cache when redis is absent or down.
func openAnalysisCache(ctx context.Context, cfg config.Config) (cache.AnalysisCache, func() error) {
	if cfg.RedisAddr == "" {
		log.Println("cache: noop")
		return cache.NoopAnalysisCache{}, nil
	}

	rc := cache.NewRedisAnalysisCache(cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rc.Ping(ctx); err != nil {
		log.Printf("cache: %v, using noop", err)
		_ = rc.Close()
		return cache.NoopAnalysisCache{}, nil
	}
	log.Println("cache: redis")
	return rc, rc.Close
}

func logEvent(ev service.Event) {
	log.Printf("[event] %s listing=%s session=%s actor=%s", ev.Kind, ev.ListingID, ev.SessionID, ev.Actor)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DatabaseURL != "" && cfg.BootstrapAdminPassword != "" && len(cfg.BootstrapAdminPassword) < 12 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 12 characters")
	}
	return nil
}

// bootstrapAdmin creates the admin account on an empty user table. An
// existing admin is left untouched.
func bootstrapAdmin(ctx context.Context, repo store.Repository, password string) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	if password == "" {
		log.Println("[bootstrap] WARN: no users and BOOTSTRAP_ADMIN_PASSWORD unset; nobody can sign in")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = repo.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, store.ErrInvalidInput) {
		return err
	}
	log.Println("[bootstrap] admin account created")
	return nil
}
