package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/slogx"
)

// ErrMigrationIncomplete reports a data migration left inProgress by a
// previous run. This is fatal to startup and requires manual
// intervention, the runner never re-runs or skips a stuck migration.
var ErrMigrationIncomplete = errors.New("data migration incomplete")

// DataMigration is one named, ordered transformation over stored
// records. Run must be safe to apply exactly once.
type DataMigration struct {
	Name string
	Run  func(ctx context.Context, s store.Store) error
}

// MigrationService executes the declared data migrations strictly in
// order before the process starts serving traffic.
type MigrationService struct {
	Store      store.Store
	Migrations []DataMigration
}

// Run walks the migration list in declaration order. Completed entries
// are skipped, unknown entries are marked inProgress, executed and
// flipped to done. The run stops at the first failure, later migrations
// are never attempted.
func (s *MigrationService) Run(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	for _, m := range s.Migrations {
		record, err := s.Store.Migrations().GetMigrationByName(ctx, m.Name)
		switch {
		case err == nil:
			if record.Status == domain.MigrationDone {
				continue
			}
			// A record still inProgress means a previous run died
			// mid-migration. State is unknown, stop everything.
			log.Error("data migration stuck in progress",
				slog.String("migration", m.Name),
			)
			return fmt.Errorf("%w: %s", ErrMigrationIncomplete, m.Name)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		now := time.Now().UTC()
		err = s.Store.Migrations().CreateMigration(ctx, domain.DataMigration{
			Name:        m.Name,
			Status:      domain.MigrationInProgress,
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}

		log.Info("running data migration", slog.String("migration", m.Name))
		start := time.Now()
		if err := m.Run(ctx, s.Store); err != nil {
			// The record stays inProgress on purpose, blocking future
			// startups until resolved.
			log.Error("data migration failed",
				slog.String("migration", m.Name),
				slog.Any("error", err),
			)
			return fmt.Errorf("data migration %s: %w", m.Name, err)
		}

		if err := s.Store.Migrations().MarkMigrationDone(ctx, m.Name); err != nil {
			return err
		}
		log.Info("data migration done",
			slog.String("migration", m.Name),
			slog.Duration("took", time.Since(start)),
		)
	}

	return nil
}
