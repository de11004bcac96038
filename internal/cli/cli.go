// Package cli provides the marketmate command-line interface.
package cli

import (
	"marketmate/backend/internal/cache"
	"marketmate/backend/internal/config"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/message"
	"marketmate/backend/internal/pricing"
	"marketmate/backend/internal/service"
	"marketmate/backend/internal/store/memory"
)

// Version is set at build time with -ldflags "-X marketmate/backend/internal/cli.Version=...".
var Version = "dev"

// newLocalService wires an in-memory service for one CLI run. The CLI keeps
// no state between invocations.
func newLocalService(cfg config.Config, pick message.Picker) *service.Service {
	analyzer := pricing.NewEngine(cache.NoopAnalysisCache{}, cfg.AnalysisCacheTTL())
	return service.New(memory.New(), analyzer, extract.NewFetcher(cfg.FetchTimeout(), extract.AllowPrivateHosts(cfg.FetchAllowPrivateHosts)), message.NewGenerator(pick))
}
