// Package tenant holds the store-owner settings the notification pipeline
// reads: slug, locale, confirmation delay and message templates.
package tenant

import (
	"context"
	"strings"
	"time"

	"github.com/orderbot/backend/internal/domain/shared"
)

// DefaultConfirmationDelay applies when a tenant has not set its own delay
const DefaultConfirmationDelay = 5 * time.Minute

// Tenant is a store owner.
type Tenant struct {
	ID                       int64
	Slug                     string
	Name                     string
	Locale                   string
	ConfirmationDelayMinutes int
	Templates                Templates
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// ConfirmationDelay returns how long after order creation the confirmation
// prompt is due.
func (t *Tenant) ConfirmationDelay() time.Duration {
	if t.ConfirmationDelayMinutes <= 0 {
		return DefaultConfirmationDelay
	}
	return time.Duration(t.ConfirmationDelayMinutes) * time.Minute
}

// Template returns the tenant override for key, or the default.
func (t *Tenant) Template(key TemplateKey) string {
	if t.Templates != nil {
		if v := strings.TrimSpace(t.Templates[key]); v != "" {
			return t.Templates[key]
		}
	}
	return DefaultTemplate(key)
}

// UpdateTemplates replaces overrides. Empty values reset a key to its default.
func (t *Tenant) UpdateTemplates(overrides map[TemplateKey]string, delayMinutes *int) error {
	for k := range overrides {
		if !k.IsValid() {
			return shared.NewDomainError("INVALID_TEMPLATE_KEY", "Unknown template: "+string(k))
		}
	}
	if t.Templates == nil {
		t.Templates = Templates{}
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) == "" {
			delete(t.Templates, k)
			continue
		}
		t.Templates[k] = v
	}
	if delayMinutes != nil {
		if *delayMinutes < 0 || *delayMinutes > 24*60 {
			return shared.NewDomainError("INVALID_DELAY", "Confirmation delay must be between 0 and 1440 minutes")
		}
		t.ConfirmationDelayMinutes = *delayMinutes
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Repository reads and writes tenant settings.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	Save(ctx context.Context, t *Tenant) error
}
