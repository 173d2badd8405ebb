package handler

import (
	"time"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/shopspring/decimal"
)

// OrderResponse is the customer-safe view of an order
type OrderResponse struct {
	ID            int64           `json:"id"`
	ProductName   string          `json:"product_name"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Address       string          `json:"address"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	Status        order.Status    `json:"status"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		ProductName:   o.ProductName,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Address:       o.Address,
		Quantity:      o.Quantity,
		UnitPrice:     o.UnitPrice,
		Total:         o.Total,
		Status:        o.Status,
		ConfirmedAt:   o.ConfirmedAt,
		CancelledAt:   o.CancelledAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// ConfirmPageResponse is what the public confirmation page renders
type ConfirmPageResponse struct {
	Store     string        `json:"store"`
	Order     OrderResponse `json:"order"`
	Editable  bool          `json:"editable"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// DecisionRequest confirms or declines a pending order
type DecisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve decline"`
}

// DecisionResponse reports the order after a decision
type DecisionResponse struct {
	Order            OrderResponse `json:"order"`
	AlreadyProcessed bool          `json:"already_processed"`
}

// UpdateOrderRequest edits customer fields. Omitted fields stay as they are.
type UpdateOrderRequest struct {
	CustomerName  *string `json:"customer_name" binding:"omitempty,min=1,max=200"`
	CustomerPhone *string `json:"customer_phone" binding:"omitempty,e164"`
	Address       *string `json:"address" binding:"omitempty,min=1,max=500"`
	Quantity      *int    `json:"quantity" binding:"omitempty,min=1,max=1000"`
}

func (r UpdateOrderRequest) toEdit() order.Edit {
	return order.Edit{
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		Address:       r.Address,
		Quantity:      r.Quantity,
	}
}

// StatusNotificationRequest queues a payment or shipping notice
type StatusNotificationRequest struct {
	Kind string `json:"kind" binding:"required,oneof=payment shipping"`
}

// StatusNotificationResponse reports how many messages were queued
type StatusNotificationResponse struct {
	OrderID  int64  `json:"order_id"`
	Kind     string `json:"kind"`
	Enqueued int    `json:"enqueued"`
}
