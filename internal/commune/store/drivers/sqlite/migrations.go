package sqlite

import (
	"context"
	"strings"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

type migrationsRepo struct {
	db dbtx
}

func (r *migrationsRepo) GetMigrationByName(ctx context.Context, name string) (domain.DataMigration, error) {
	var m domain.DataMigration
	err := r.db.QueryRowContext(ctx, `
		SELECT name, status, processed_at FROM data_migrations WHERE name = ?`, name).
		Scan(&m.Name, &m.Status, &m.ProcessedAt)
	if err != nil {
		return domain.DataMigration{}, mapNotFound(err)
	}
	return m, nil
}

func (r *migrationsRepo) CreateMigration(ctx context.Context, m domain.DataMigration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO data_migrations (name, status, processed_at) VALUES (?, ?, ?)`,
		m.Name, m.Status, m.ProcessedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *migrationsRepo) MarkMigrationDone(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE data_migrations SET status = ?, processed_at = CURRENT_TIMESTAMP WHERE name = ?`,
		domain.MigrationDone, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
