package sender

import (
	"context"
	"fmt"
	"sync"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/internal/infrastructure/config"
	"golang.org/x/time/rate"
)

// Registry routes a send to the sender for the credential's channel and
// throttles each credential (bot, page, phone number) independently.
type Registry struct {
	mu       sync.RWMutex
	senders  map[channel.Channel]channel.Sender
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRegistry creates a registry. ratePerSecond <= 0 disables throttling.
func NewRegistry(ratePerSecond float64, burst int) *Registry {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Registry{
		senders:  make(map[channel.Channel]channel.Sender),
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// NewRegistryFromConfig wires the four provider senders
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	client := NewHTTPClient(cfg.Dispatcher.SendTimeout)
	r := NewRegistry(cfg.Dispatcher.SendRatePerSecond, cfg.Dispatcher.SendBurst)
	r.Register(NewTelegramSender(cfg.Telegram.APIBaseURL, client))
	r.Register(NewMessengerSender(cfg.Messenger.GraphBaseURL, client))
	r.Register(NewWhatsAppSender(cfg.WhatsApp.CloudBaseURL, cfg.WhatsApp.TwilioBaseURL, client))
	r.Register(NewViberSender(cfg.Viber.BaseURL, client))
	return r
}

// Register adds or replaces the sender for its channel
func (r *Registry) Register(s channel.Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Channel()] = s
}

// Get returns the sender for ch
func (r *Registry) Get(ch channel.Channel) (channel.Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: no sender for channel %s", shared.ErrNotFound, ch)
	}
	return s, nil
}

// Send waits for the credential's rate budget, then sends. A context that
// ends while waiting yields a retryable error.
func (r *Registry) Send(ctx context.Context, cred channel.Credential, recipientID string, content channel.Content) (*channel.SendResult, error) {
	s, err := r.Get(cred.Channel)
	if err != nil {
		return nil, &channel.SendError{Channel: cred.Channel, Message: err.Error(), Err: err}
	}
	if err := r.limiter(cred).Wait(ctx); err != nil {
		return nil, &channel.SendError{Channel: cred.Channel, Message: "rate limit wait: " + err.Error(), Retryable: true, Err: err}
	}
	return s.Send(ctx, cred, recipientID, content)
}

func (r *Registry) limiter(cred channel.Credential) *rate.Limiter {
	key := string(cred.Channel) + ":" + cred.Identity + ":" + cred.AccountSID
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(r.limit, r.burst)
	r.limiters[key] = l
	return l
}

// Telegram returns the registered Telegram sender for webhook replies
func (r *Registry) Telegram() (*TelegramSender, bool) {
	s, err := r.Get(channel.Telegram)
	if err != nil {
		return nil, false
	}
	t, ok := s.(*TelegramSender)
	return t, ok
}

// Messenger returns the registered Messenger sender for webhook replies
func (r *Registry) Messenger() (*MessengerSender, bool) {
	s, err := r.Get(channel.Messenger)
	if err != nil {
		return nil, false
	}
	m, ok := s.(*MessengerSender)
	return m, ok
}
