package pricing

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"marketmate/backend/internal/cache"
	"marketmate/backend/internal/domain"
)

// Engine memoizes Analyze results. Cache errors are logged and never surface.
type Engine struct {
	cache    cache.AnalysisCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.AnalysisCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopAnalysisCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Analyze(ctx context.Context, listing domain.Listing) domain.Analysis {
	key := buildCacheKey(listing)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached
	} else if err != nil {
		log.Printf("[pricing] WARN: cache get failed key=%s: %v", key, err)
	}

	analysis := Analyze(listing)
	if err := e.cache.Set(ctx, key, &analysis, e.cacheTTL); err != nil {
		log.Printf("[pricing] WARN: cache set failed key=%s: %v", key, err)
	}
	return analysis
}

// buildCacheKey hashes only the fields Analyze reads, so cosmetic listing edits
// (title, images) keep hitting the same entry.
func buildCacheKey(listing domain.Listing) string {
	urgency := make([]string, 0, len(listing.UrgencyIndicators))
	for _, ind := range listing.UrgencyIndicators {
		urgency = append(urgency, strings.ToLower(ind))
	}
	slices.Sort(urgency)

	parts := []string{
		fmt.Sprintf("p:%g", listing.AskingPrice),
		fmt.Sprintf("d:%d", listing.DaysListed),
		"c:" + listing.Condition,
		"cat:" + listing.Category,
		"u:" + strings.Join(urgency, ","),
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
