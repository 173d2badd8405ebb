package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/shopspring/decimal"
)

// OrderModel is the pipeline's view of the orders table. Rows are created by
// the store backend; this service changes status and customer details only.
type OrderModel struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	TenantID      int64           `gorm:"not null;index"`
	ProductRef    string          `gorm:"type:varchar(100);not null;default:''"`
	ProductName   string          `gorm:"type:varchar(200);not null;default:''"`
	CustomerName  string          `gorm:"type:varchar(200);not null;default:''"`
	CustomerPhone string          `gorm:"type:varchar(32);not null;default:''"`
	Address       string          `gorm:"type:text;not null;default:''"`
	Quantity      int             `gorm:"not null;default:1"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status        order.Status    `gorm:"type:varchar(20);not null;default:'pending';index"`
	Version       int             `gorm:"not null;default:1"`
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *order.Order {
	return &order.Order{
		ID:            m.ID,
		TenantID:      m.TenantID,
		ProductRef:    m.ProductRef,
		ProductName:   m.ProductName,
		CustomerName:  m.CustomerName,
		CustomerPhone: m.CustomerPhone,
		Address:       m.Address,
		Quantity:      m.Quantity,
		UnitPrice:     m.UnitPrice,
		Total:         m.Total,
		Status:        m.Status,
		ConfirmedAt:   utcPtr(m.ConfirmedAt),
		CancelledAt:   utcPtr(m.CancelledAt),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

// OrderModelFromDomain converts a domain Order to a persistence model
func OrderModelFromDomain(o *order.Order) *OrderModel {
	return &OrderModel{
		ID:            o.ID,
		TenantID:      o.TenantID,
		ProductRef:    o.ProductRef,
		ProductName:   o.ProductName,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Address:       o.Address,
		Quantity:      o.Quantity,
		UnitPrice:     o.UnitPrice,
		Total:         o.Total,
		Status:        o.Status,
		Version:       1,
		ConfirmedAt:   utcPtr(o.ConfirmedAt),
		CancelledAt:   utcPtr(o.CancelledAt),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
}

// ConfirmationLinkModel is the persistence model for a confirmation link
type ConfirmationLinkModel struct {
	BaseModel
	Token          string    `gorm:"type:varchar(128);not null;uniqueIndex"`
	TenantID       int64     `gorm:"not null;index"`
	OrderID        int64     `gorm:"not null;uniqueIndex"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	AccessCount    int       `gorm:"not null;default:0"`
	LastAccessedAt *time.Time
}

// TableName returns the table name for GORM
func (ConfirmationLinkModel) TableName() string {
	return "confirmation_links"
}

// ToDomain converts the persistence model to a domain ConfirmationLink
func (m *ConfirmationLinkModel) ToDomain() *order.ConfirmationLink {
	return &order.ConfirmationLink{
		BaseEntity:     m.BaseModel.ToDomain(),
		Token:          m.Token,
		TenantID:       m.TenantID,
		OrderID:        m.OrderID,
		ExpiresAt:      m.ExpiresAt.UTC(),
		AccessCount:    m.AccessCount,
		LastAccessedAt: utcPtr(m.LastAccessedAt),
	}
}

// ConfirmationLinkModelFromDomain converts a domain link to a persistence model
func ConfirmationLinkModelFromDomain(l *order.ConfirmationLink) *ConfirmationLinkModel {
	m := &ConfirmationLinkModel{
		Token:          l.Token,
		TenantID:       l.TenantID,
		OrderID:        l.OrderID,
		ExpiresAt:      l.ExpiresAt.UTC(),
		AccessCount:    l.AccessCount,
		LastAccessedAt: utcPtr(l.LastAccessedAt),
	}
	m.FromDomainBaseEntity(l.BaseEntity)
	return m
}

// ConfirmationRecordModel is the first-write-wins decision record
type ConfirmationRecordModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OrderID   int64          `gorm:"not null;uniqueIndex"`
	TenantID  int64          `gorm:"not null;index"`
	Decision  order.Decision `gorm:"type:varchar(20);not null"`
	Source    order.Source   `gorm:"type:varchar(20);not null"`
	Actor     string         `gorm:"type:varchar(128);not null;default:''"`
	DecidedAt time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConfirmationRecordModel) TableName() string {
	return "confirmation_records"
}

// ToDomain converts the persistence model to a domain ConfirmationRecord
func (m *ConfirmationRecordModel) ToDomain() *order.ConfirmationRecord {
	return &order.ConfirmationRecord{
		ID:        m.ID,
		OrderID:   m.OrderID,
		TenantID:  m.TenantID,
		Decision:  m.Decision,
		Source:    m.Source,
		Actor:     m.Actor,
		DecidedAt: m.DecidedAt.UTC(),
	}
}

// ConfirmationRecordModelFromDomain converts a domain record to a persistence model
func ConfirmationRecordModelFromDomain(r *order.ConfirmationRecord) *ConfirmationRecordModel {
	return &ConfirmationRecordModel{
		ID:        r.ID,
		OrderID:   r.OrderID,
		TenantID:  r.TenantID,
		Decision:  r.Decision,
		Source:    r.Source,
		Actor:     r.Actor,
		DecidedAt: r.DecidedAt.UTC(),
	}
}
