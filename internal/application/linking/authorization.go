package linking

import (
	"context"
	"errors"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/shared"
)

// Authorizer names
const (
	AuthorizerOrderBinding = "order-binding"
	AuthorizerPhoneLink    = "phone-link"
)

// Authorizer decides whether a subscriber may act on an order.
type Authorizer interface {
	Name() string
	Allows(ctx context.Context, o *order.Order, ch channel.Channel, subscriberID string) (bool, error)
}

type orderBindingAuthorizer struct {
	bindings channel.OrderBindingRepository
}

// NewOrderBindingAuthorizer accepts the subscriber that received the prompt
func NewOrderBindingAuthorizer(bindings channel.OrderBindingRepository) Authorizer {
	return &orderBindingAuthorizer{bindings: bindings}
}

func (a *orderBindingAuthorizer) Name() string { return AuthorizerOrderBinding }

func (a *orderBindingAuthorizer) Allows(ctx context.Context, o *order.Order, ch channel.Channel, subscriberID string) (bool, error) {
	b, err := a.bindings.Find(ctx, o.ID, ch)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.TenantID == o.TenantID && b.SubscriberID == subscriberID, nil
}

type phoneLinkAuthorizer struct {
	links channel.IdentityLinkRepository
}

// NewPhoneLinkAuthorizer accepts the subscriber linked to the order's phone
func NewPhoneLinkAuthorizer(links channel.IdentityLinkRepository) Authorizer {
	return &phoneLinkAuthorizer{links: links}
}

func (a *phoneLinkAuthorizer) Name() string { return AuthorizerPhoneLink }

func (a *phoneLinkAuthorizer) Allows(ctx context.Context, o *order.Order, ch channel.Channel, subscriberID string) (bool, error) {
	l, err := a.links.Find(ctx, o.TenantID, channel.NormalizePhone(o.CustomerPhone), ch)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.SubscriberID == subscriberID, nil
}

// AuthorizationChain tries authorizers in order; the first yes wins.
type AuthorizationChain []Authorizer

// Authorize returns the name of the authorizer that accepted, or "" when
// none did.
func (c AuthorizationChain) Authorize(ctx context.Context, o *order.Order, ch channel.Channel, subscriberID string) (string, error) {
	if subscriberID == "" {
		return "", nil
	}
	for _, a := range c {
		ok, err := a.Allows(ctx, o, ch, subscriberID)
		if err != nil {
			return "", err
		}
		if ok {
			return a.Name(), nil
		}
	}
	return "", nil
}
