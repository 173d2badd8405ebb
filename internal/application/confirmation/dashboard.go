package confirmation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/event"
	"go.uber.org/zap"
)

const defaultDashboardBuffer = 32

// DashboardUpdate is pushed to a tenant's dashboard streams
type DashboardUpdate struct {
	EventType  string       `json:"event_type"`
	TenantID   int64        `json:"tenant_id"`
	OrderID    int64        `json:"order_id"`
	Status     order.Status `json:"status"`
	Source     order.Source `json:"source,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Fanout relays payloads between server instances. cache.RedisPubSub
// satisfies it.
type Fanout interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, fn func(payload []byte)) error
}

type dashboardClient struct {
	tenantID int64
	ch       chan DashboardUpdate
}

// DashboardHub keeps per-tenant subscribers for order updates. With a
// Fanout configured, broadcasts go through it and every instance delivers
// what it receives to its own clients.
type DashboardHub struct {
	mu      sync.RWMutex
	clients map[string]*dashboardClient
	fanout  Fanout
	buffer  int
	logger  *zap.Logger
}

// DashboardOption configures a DashboardHub
type DashboardOption func(*DashboardHub)

// WithFanout routes broadcasts through f
func WithFanout(f Fanout) DashboardOption {
	return func(h *DashboardHub) { h.fanout = f }
}

// WithDashboardBuffer sets the per-client buffer
func WithDashboardBuffer(n int) DashboardOption {
	return func(h *DashboardHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewDashboardHub creates a hub
func NewDashboardHub(logger *zap.Logger, opts ...DashboardOption) *DashboardHub {
	h := &DashboardHub{
		clients: make(map[string]*dashboardClient),
		buffer:  defaultDashboardBuffer,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a stream for tenantID. The returned func unregisters
// it and closes the channel.
func (h *DashboardHub) Subscribe(tenantID int64) (string, <-chan DashboardUpdate, func()) {
	id := uuid.New().String()
	c := &dashboardClient{tenantID: tenantID, ch: make(chan DashboardUpdate, h.buffer)}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	var once sync.Once
	return id, c.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(c.ch)
		})
	}
}

// ClientCount returns the number of open streams
func (h *DashboardHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast publishes u to every stream of its tenant, on every instance
func (h *DashboardHub) Broadcast(ctx context.Context, u DashboardUpdate) error {
	if h.fanout == nil {
		h.deliver(u)
		return nil
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return h.fanout.Publish(ctx, payload)
}

// Run relays fanned-out updates to local clients until ctx ends. Without a
// Fanout it returns immediately.
func (h *DashboardHub) Run(ctx context.Context) error {
	if h.fanout == nil {
		return nil
	}
	return h.fanout.Subscribe(ctx, func(payload []byte) {
		var u DashboardUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			h.logger.Warn("Dropping malformed dashboard payload", zap.Error(err))
			return
		}
		h.deliver(u)
	})
}

func (h *DashboardHub) deliver(u DashboardUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if c.tenantID != u.TenantID {
			continue
		}
		select {
		case c.ch <- u:
		default:
			h.logger.Warn("Dashboard client is slow, dropping update",
				zap.String("client_id", id), zap.Int64("order_id", u.OrderID))
		}
	}
}

// EventHandler broadcasts order status events
func (h *DashboardHub) EventHandler() *event.HandlerFunc {
	return event.NewHandlerFunc("dashboard-broadcast", func(ctx context.Context, ev shared.DomainEvent) error {
		sc, ok := ev.(*order.StatusChangedEvent)
		if !ok {
			return nil
		}
		return h.Broadcast(ctx, DashboardUpdate{
			EventType:  sc.EventType(),
			TenantID:   sc.Order.TenantID,
			OrderID:    sc.Order.ID,
			Status:     sc.Order.Status,
			Source:     sc.Source,
			OccurredAt: sc.OccurredAt(),
		})
	}, order.EventTypeConfirmed, order.EventTypeCancelled, order.EventTypeUpdated)
}
