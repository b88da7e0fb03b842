package service

import (
	"context"
	"errors"
	"time"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/idx"
)

var (
	ErrTemplateExists      = errors.New("template identifier already in use")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrInvalidTemplate     = errors.New("invalid template")
	ErrImmutableIdentifier = errors.New("template identifier cannot change")
)

// TemplateService manages the admin-editable email templates. A
// template's identifier is its stable lookup key and never changes after
// creation.
type TemplateService struct {
	Store store.Store
}

// CreateTemplate validates and stores a new template.
func (s *TemplateService) CreateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	if err := validateTemplate(t); err != nil {
		return domain.EmailTemplate{}, err
	}

	now := time.Now().UTC()
	t.ID = idx.New().String()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.Store.EmailTemplates().CreateEmailTemplate(ctx, t); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.EmailTemplate{}, ErrTemplateExists
		}
		return domain.EmailTemplate{}, err
	}
	return t, nil
}

// GetTemplate looks a template up by identifier.
func (s *TemplateService) GetTemplate(ctx context.Context, identifier string) (domain.EmailTemplate, error) {
	t, err := s.Store.EmailTemplates().GetEmailTemplateByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EmailTemplate{}, ErrTemplateNotFound
		}
		return domain.EmailTemplate{}, err
	}
	return t, nil
}

// ListTemplates returns every template ordered by identifier.
func (s *TemplateService) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	return s.Store.EmailTemplates().ListEmailTemplates(ctx)
}

// UpdateTemplate changes a template's subject, body or groups. The
// identifier is immutable.
func (s *TemplateService) UpdateTemplate(ctx context.Context, identifier string, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	if t.Identifier != "" && t.Identifier != identifier {
		return domain.EmailTemplate{}, ErrImmutableIdentifier
	}
	t.Identifier = identifier
	if err := validateTemplate(t); err != nil {
		return domain.EmailTemplate{}, err
	}

	existing, err := s.GetTemplate(ctx, identifier)
	if err != nil {
		return domain.EmailTemplate{}, err
	}

	existing.Subject = t.Subject
	existing.Body = t.Body
	existing.Groups = t.Groups
	existing.UpdatedAt = time.Now().UTC()

	if err := s.Store.EmailTemplates().UpdateEmailTemplate(ctx, existing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EmailTemplate{}, ErrTemplateNotFound
		}
		return domain.EmailTemplate{}, err
	}
	return existing, nil
}

// DeleteTemplate removes a template by identifier.
func (s *TemplateService) DeleteTemplate(ctx context.Context, identifier string) error {
	existing, err := s.GetTemplate(ctx, identifier)
	if err != nil {
		return err
	}
	if err := s.Store.EmailTemplates().DeleteEmailTemplate(ctx, existing.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	return nil
}

func validateTemplate(t domain.EmailTemplate) error {
	if t.Identifier == "" || t.Subject == "" || t.Body == "" {
		return ErrInvalidTemplate
	}
	for _, g := range t.Groups {
		if !domain.IsTemplateGroup(g) {
			return ErrInvalidTemplate
		}
	}
	return nil
}
