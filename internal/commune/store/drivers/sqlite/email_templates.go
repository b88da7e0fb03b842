package sqlite

import (
	"context"
	"strings"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

type emailTemplatesRepo struct {
	db dbtx
}

const templateColumns = `id, identifier, subject, body, groups, created_at, updated_at`

func scanTemplate(row rowScanner) (domain.EmailTemplate, error) {
	var (
		t      domain.EmailTemplate
		groups string
	)
	err := row.Scan(&t.ID, &t.Identifier, &t.Subject, &t.Body, &groups, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.EmailTemplate{}, err
	}
	if t.Groups, err = unmarshalStrings(groups); err != nil {
		return domain.EmailTemplate{}, err
	}
	return t, nil
}

func (r *emailTemplatesRepo) CreateEmailTemplate(ctx context.Context, t domain.EmailTemplate) error {
	groups, err := marshalJSON(t.Groups, "[]")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO email_templates (id, identifier, subject, body, groups, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Identifier, t.Subject, t.Body, groups, t.CreatedAt, t.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *emailTemplatesRepo) GetEmailTemplateByIdentifier(ctx context.Context, identifier string) (domain.EmailTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE identifier = ?`, identifier)
	t, err := scanTemplate(row)
	if err != nil {
		return domain.EmailTemplate{}, mapNotFound(err)
	}
	return t, nil
}

func (r *emailTemplatesRepo) ListEmailTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates ORDER BY identifier ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *emailTemplatesRepo) UpdateEmailTemplate(ctx context.Context, t domain.EmailTemplate) error {
	groups, err := marshalJSON(t.Groups, "[]")
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_templates
		SET subject = ?, body = ?, groups = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		t.Subject, t.Body, groups, t.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *emailTemplatesRepo) DeleteEmailTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
