package cli

import (
	"log/slog"

	"finreport/internal/anomaly"
	"finreport/internal/backend"
	"finreport/internal/cache"
	"finreport/internal/config"
	"finreport/internal/core"
	"finreport/internal/insights"
	"finreport/internal/services"
)

// ReportStack is the report service plus the cache manager that must be
// stopped on shutdown.
type ReportStack struct {
	Service   *services.ReportService
	Formatter core.CurrencyFormatter
	Caches    *cache.Manager
}

// NewReportStack builds the report service for cfg over b. extra options are
// applied last, typically a publisher.
func NewReportStack(cfg *config.Config, b *backend.Backend, logger *slog.Logger, extra ...services.Option) (*ReportStack, error) {
	formatter, err := core.NewCurrencyFormatter(cfg.DisplayCurrency)
	if err != nil {
		return nil, err
	}

	reportCache := cache.NewLRUCache[core.FinancialReport](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	manager := cache.NewManager(logger)
	manager.Register(reportCache)
	manager.StartCleanup(cfg.ReportCacheTTL)

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithCache(reportCache),
		services.WithFetchTimeout(cfg.FetchTimeout),
		services.WithGenerator(insights.NewGenerator(
			insights.WithFormatter(formatter),
			insights.WithLogger(logger))),
		services.WithDetector(anomaly.NewDetector(
			anomaly.WithThreshold(cfg.AnomalyThreshold),
			anomaly.WithLookbackMonths(cfg.AnomalyLookbackMonths),
			anomaly.WithLogger(logger))),
	}
	opts = append(opts, extra...)

	return &ReportStack{
		Service:   services.NewReportService(b.Ledger, b.Reports, opts...),
		Formatter: formatter,
		Caches:    manager,
	}, nil
}
