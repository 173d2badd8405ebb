package models

import (
	"encoding/json"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"go.uber.org/zap"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("outbound.models")

// OutboundMessageModel is a row in the outbound queue
type OutboundMessageModel struct {
	BaseModel
	TenantID          int64            `gorm:"not null;index:idx_outbound_messages_recipient"`
	OrderID           *int64           `gorm:"index"`
	Channel           channel.Channel  `gorm:"type:varchar(20);not null;index:idx_outbound_messages_recipient"`
	RecipientPhone    string           `gorm:"type:varchar(32);not null;index:idx_outbound_messages_recipient"`
	Purpose           outbound.Purpose `gorm:"type:varchar(20);not null"`
	Body              string           `gorm:"type:text;not null"`
	ConfirmationJSON  *string          `gorm:"column:confirmation;type:jsonb"`
	DueAt             time.Time        `gorm:"not null;index:idx_outbound_messages_due"`
	Status            outbound.Status  `gorm:"type:varchar(20);not null;default:'pending';index:idx_outbound_messages_due"`
	Reason            string           `gorm:"type:varchar(500);not null;default:''"`
	Attempts          int              `gorm:"not null;default:0"`
	TransientFailures int              `gorm:"not null;default:0"`
	LockedUntil       *time.Time
	ProviderMessageID string `gorm:"type:varchar(200);not null;default:''"`
	SentAt            *time.Time
}

// TableName returns the table name for GORM
func (OutboundMessageModel) TableName() string {
	return "outbound_messages"
}

// ToDomain converts the persistence model to a domain Message
func (m *OutboundMessageModel) ToDomain() *outbound.Message {
	msg := &outbound.Message{
		BaseEntity:        m.BaseModel.ToDomain(),
		TenantID:          m.TenantID,
		OrderID:           m.OrderID,
		Channel:           m.Channel,
		RecipientPhone:    m.RecipientPhone,
		Purpose:           m.Purpose,
		Body:              m.Body,
		DueAt:             m.DueAt.UTC(),
		Status:            m.Status,
		Reason:            m.Reason,
		Attempts:          m.Attempts,
		TransientFailures: m.TransientFailures,
		LockedUntil:       utcPtr(m.LockedUntil),
		ProviderMessageID: m.ProviderMessageID,
		SentAt:            utcPtr(m.SentAt),
	}
	if m.ConfirmationJSON != nil && *m.ConfirmationJSON != "" {
		var prompt channel.ConfirmationPrompt
		if err := json.Unmarshal([]byte(*m.ConfirmationJSON), &prompt); err != nil {
			modelLogger.Warn("failed to parse confirmation JSON",
				zap.String("message_id", m.ID.String()),
				zap.Error(err))
		} else {
			msg.Confirmation = &prompt
		}
	}
	return msg
}

// OutboundMessageModelFromDomain converts a domain Message to a persistence model
func OutboundMessageModelFromDomain(msg *outbound.Message) *OutboundMessageModel {
	m := &OutboundMessageModel{
		TenantID:          msg.TenantID,
		OrderID:           msg.OrderID,
		Channel:           msg.Channel,
		RecipientPhone:    msg.RecipientPhone,
		Purpose:           msg.Purpose,
		Body:              msg.Body,
		DueAt:             msg.DueAt.UTC(),
		Status:            msg.Status,
		Reason:            msg.Reason,
		Attempts:          msg.Attempts,
		TransientFailures: msg.TransientFailures,
		LockedUntil:       utcPtr(msg.LockedUntil),
		ProviderMessageID: msg.ProviderMessageID,
		SentAt:            utcPtr(msg.SentAt),
	}
	m.FromDomainBaseEntity(msg.BaseEntity)
	if msg.Confirmation != nil {
		if raw, err := json.Marshal(msg.Confirmation); err == nil {
			s := string(raw)
			m.ConfirmationJSON = &s
		}
	}
	return m
}
