package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for uuid-keyed models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt.UTC()
	m.UpdatedAt = e.UpdatedAt.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// All returns every model, in dependency order, for AutoMigrate in tests.
// Production schemas come from the SQL migrations.
func All() []any {
	return []any{
		&TenantModel{},
		&ChannelCredentialModel{},
		&OrderModel{},
		&IdentityLinkModel{},
		&PreconnectTokenModel{},
		&OrderChannelBindingModel{},
		&OutboundMessageModel{},
		&ConfirmationLinkModel{},
		&ConfirmationRecordModel{},
	}
}
