package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/channel"
)

// ChannelCredentialModel stores a tenant's settings for one channel. The
// secret column only ever holds ciphertext.
type ChannelCredentialModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          int64           `gorm:"not null;uniqueIndex:uq_channel_credentials_tenant_channel"`
	Channel           channel.Channel `gorm:"type:varchar(20);not null;uniqueIndex:uq_channel_credentials_tenant_channel"`
	Enabled           bool            `gorm:"not null;default:false"`
	Identity          string          `gorm:"type:varchar(200);not null;default:'';index"`
	SecretCiphertext  string          `gorm:"type:text;not null;default:''"`
	UsePlatformShared bool            `gorm:"not null;default:false"`
	WebhookSecretHash string          `gorm:"type:varchar(64);not null;default:'';index"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChannelCredentialModel) TableName() string {
	return "channel_credentials"
}

// ToDomain converts the model using an already decrypted secret
func (m *ChannelCredentialModel) ToDomain(secret string) *channel.TenantCredential {
	return &channel.TenantCredential{
		TenantID:          m.TenantID,
		Channel:           m.Channel,
		Enabled:           m.Enabled,
		Identity:          m.Identity,
		Secret:            secret,
		UsePlatformShared: m.UsePlatformShared,
		WebhookSecretHash: m.WebhookSecretHash,
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

// IdentityLinkModel maps (tenant, phone, channel) to a subscriber id
type IdentityLinkModel struct {
	BaseModel
	TenantID     int64           `gorm:"not null;uniqueIndex:uq_identity_links_key"`
	Phone        string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_identity_links_key"`
	Channel      channel.Channel `gorm:"type:varchar(20);not null;uniqueIndex:uq_identity_links_key"`
	SubscriberID string          `gorm:"type:varchar(128);not null;index"`
}

// TableName returns the table name for GORM
func (IdentityLinkModel) TableName() string {
	return "identity_links"
}

// ToDomain converts the persistence model to a domain IdentityLink
func (m *IdentityLinkModel) ToDomain() *channel.IdentityLink {
	return &channel.IdentityLink{
		BaseEntity:   m.BaseModel.ToDomain(),
		TenantID:     m.TenantID,
		Phone:        m.Phone,
		Channel:      m.Channel,
		SubscriberID: m.SubscriberID,
	}
}

// IdentityLinkModelFromDomain converts a domain IdentityLink to a persistence model
func IdentityLinkModelFromDomain(l *channel.IdentityLink) *IdentityLinkModel {
	m := &IdentityLinkModel{
		TenantID:     l.TenantID,
		Phone:        l.Phone,
		Channel:      l.Channel,
		SubscriberID: l.SubscriberID,
	}
	m.FromDomainBaseEntity(l.BaseEntity)
	return m
}

// PreconnectTokenModel is a single-use linking token
type PreconnectTokenModel struct {
	BaseModel
	Token       string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	TenantID    int64           `gorm:"not null;index:idx_preconnect_tokens_key"`
	Phone       string          `gorm:"type:varchar(32);not null;index:idx_preconnect_tokens_key"`
	Channel     channel.Channel `gorm:"type:varchar(20);not null;index:idx_preconnect_tokens_key"`
	OrderID     *int64
	BotIdentity string     `gorm:"type:varchar(200);not null;default:''"`
	Shared      bool       `gorm:"not null;default:false"`
	ExpiresAt   time.Time  `gorm:"not null;index"`
	UsedAt      *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (PreconnectTokenModel) TableName() string {
	return "preconnect_tokens"
}

// ToDomain converts the persistence model to a domain PreconnectToken
func (m *PreconnectTokenModel) ToDomain() *channel.PreconnectToken {
	return &channel.PreconnectToken{
		BaseEntity:  m.BaseModel.ToDomain(),
		Token:       m.Token,
		TenantID:    m.TenantID,
		Phone:       m.Phone,
		Channel:     m.Channel,
		OrderID:     m.OrderID,
		BotIdentity: m.BotIdentity,
		Shared:      m.Shared,
		ExpiresAt:   m.ExpiresAt.UTC(),
		UsedAt:      utcPtr(m.UsedAt),
	}
}

// PreconnectTokenModelFromDomain converts a domain PreconnectToken to a persistence model
func PreconnectTokenModelFromDomain(t *channel.PreconnectToken) *PreconnectTokenModel {
	m := &PreconnectTokenModel{
		Token:       t.Token,
		TenantID:    t.TenantID,
		Phone:       t.Phone,
		Channel:     t.Channel,
		OrderID:     t.OrderID,
		BotIdentity: t.BotIdentity,
		Shared:      t.Shared,
		ExpiresAt:   t.ExpiresAt.UTC(),
		UsedAt:      utcPtr(t.UsedAt),
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}

// OrderChannelBindingModel records the subscriber a confirmation prompt reached
type OrderChannelBindingModel struct {
	BaseModel
	OrderID      int64           `gorm:"not null;uniqueIndex:uq_order_channel_bindings_key"`
	Channel      channel.Channel `gorm:"type:varchar(20);not null;uniqueIndex:uq_order_channel_bindings_key"`
	TenantID     int64           `gorm:"not null;index"`
	SubscriberID string          `gorm:"type:varchar(128);not null"`
}

// TableName returns the table name for GORM
func (OrderChannelBindingModel) TableName() string {
	return "order_channel_bindings"
}

// ToDomain converts the persistence model to a domain OrderChannelBinding
func (m *OrderChannelBindingModel) ToDomain() *channel.OrderChannelBinding {
	return &channel.OrderChannelBinding{
		BaseEntity:   m.BaseModel.ToDomain(),
		OrderID:      m.OrderID,
		TenantID:     m.TenantID,
		Channel:      m.Channel,
		SubscriberID: m.SubscriberID,
	}
}

// OrderChannelBindingModelFromDomain converts a domain binding to a persistence model
func OrderChannelBindingModelFromDomain(b *channel.OrderChannelBinding) *OrderChannelBindingModel {
	m := &OrderChannelBindingModel{
		OrderID:      b.OrderID,
		Channel:      b.Channel,
		TenantID:     b.TenantID,
		SubscriberID: b.SubscriberID,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}
