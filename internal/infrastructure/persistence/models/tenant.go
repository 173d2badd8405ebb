package models

import (
	"time"

	"github.com/orderbot/backend/internal/domain/tenant"
)

// TenantModel is the persistence model for a store owner. Templates are
// kept in one nullable column per key; NULL means "use the default".
type TenantModel struct {
	ID                       int64   `gorm:"primaryKey;autoIncrement"`
	Slug                     string  `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name                     string  `gorm:"type:varchar(200);not null"`
	Locale                   string  `gorm:"type:varchar(20);not null;default:'en'"`
	ConfirmationDelayMinutes int     `gorm:"not null;default:5"`
	GreetingTemplate         *string `gorm:"type:text"`
	InstantOrderTemplate     *string `gorm:"type:text"`
	PinInstructionsTemplate  *string `gorm:"type:text"`
	ConfirmationTemplate     *string `gorm:"type:text"`
	PaymentTemplate          *string `gorm:"type:text"`
	ShippingTemplate         *string `gorm:"type:text"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

func (m *TenantModel) templateColumns() map[tenant.TemplateKey]**string {
	return map[tenant.TemplateKey]**string{
		tenant.TemplateGreeting:        &m.GreetingTemplate,
		tenant.TemplateInstantOrder:    &m.InstantOrderTemplate,
		tenant.TemplatePinInstructions: &m.PinInstructionsTemplate,
		tenant.TemplateConfirmation:    &m.ConfirmationTemplate,
		tenant.TemplatePayment:         &m.PaymentTemplate,
		tenant.TemplateShipping:        &m.ShippingTemplate,
	}
}

// ToDomain converts the persistence model to a domain Tenant
func (m *TenantModel) ToDomain() *tenant.Tenant {
	t := &tenant.Tenant{
		ID:                       m.ID,
		Slug:                     m.Slug,
		Name:                     m.Name,
		Locale:                   m.Locale,
		ConfirmationDelayMinutes: m.ConfirmationDelayMinutes,
		Templates:                tenant.Templates{},
		CreatedAt:                m.CreatedAt.UTC(),
		UpdatedAt:                m.UpdatedAt.UTC(),
	}
	for key, col := range m.templateColumns() {
		if *col != nil {
			t.Templates[key] = **col
		}
	}
	return t
}

// TenantModelFromDomain converts a domain Tenant to a persistence model
func TenantModelFromDomain(t *tenant.Tenant) *TenantModel {
	m := &TenantModel{
		ID:                       t.ID,
		Slug:                     t.Slug,
		Name:                     t.Name,
		Locale:                   t.Locale,
		ConfirmationDelayMinutes: t.ConfirmationDelayMinutes,
		CreatedAt:                t.CreatedAt.UTC(),
		UpdatedAt:                t.UpdatedAt.UTC(),
	}
	for key, col := range m.templateColumns() {
		if v, ok := t.Templates[key]; ok {
			value := v
			*col = &value
		}
	}
	return m
}
