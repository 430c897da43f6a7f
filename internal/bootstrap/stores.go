// Package bootstrap opens the storage backend selected by configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fundingledger/internal/adapter/memstore"
	"fundingledger/internal/adapter/repo"
	"fundingledger/internal/infra"
	"fundingledger/internal/ledger"
)

// Backend is an opened storage backend.
type Backend struct {
	Stores ledger.Stores
	// Ping checks connectivity; nil for the memory driver.
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects the backend named by cfg.StoreDriver, applying migrations
// first when cfg.MigrateOnStart is set.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		store := memstore.New()
		return &Backend{
			Stores: ledger.Stores{
				Needs:     store.Needs(),
				Donations: store.Donations(),
				Events:    store.Events(),
				Tx:        store,
			},
			Close: func() {},
		}, nil
	case infra.StoreDriverPostgres:
		if cfg.MigrateOnStart {
			if err := infra.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, infra.Component(logger, "sql"))
		return &Backend{
			Stores: ledger.Stores{
				Needs:     repo.NewNeedRepository(runner),
				Donations: repo.NewDonationRepository(runner),
				Events:    repo.NewEventRepository(runner),
				Tx:        runner,
			},
			Ping:  pool.Ping,
			Close: pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// NewLedger builds the ledger over b with the configured retry policy.
func (b *Backend) NewLedger(cfg *infra.Config, logger zerolog.Logger) *ledger.Ledger {
	return ledger.New(b.Stores, ledger.Options{
		MaxAttempts: cfg.LedgerMaxAttempts,
		Backoff:     cfg.LedgerRetryBackoff,
	}, infra.Component(logger, "ledger"))
}
