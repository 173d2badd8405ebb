package linking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/outbound"
	"github.com/orderbot/backend/internal/domain/shared"
	"github.com/orderbot/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	stores    *testutil.Stores
	publisher *testutil.RecordingPublisher
	svc       *Service
	now       time.Time
	tenantID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := testutil.NewStores(t)
	tn := testutil.SeedTenant(t, stores.DB, "acme")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := testutil.NewRecordingPublisher()
	resolver := channel.NewCredentialResolver(stores.Credentials, testutil.SharedPlatform())
	svc := NewService(Config{}, resolver, Repositories{
		Tokens:   stores.Tokens,
		Links:    stores.Links,
		Bindings: stores.Bindings,
		Tenants:  stores.Tenants,
		Orders:   stores.Orders,
		Outbound: stores.Outbound,
	}, pub, zap.NewNop(), WithClock(testutil.FixedClock(now)))
	return &fixture{stores: stores, publisher: pub, svc: svc, now: now, tenantID: tn.ID}
}

func (f *fixture) claimAll(t *testing.T) []*outbound.Message {
	t.Helper()
	msgs, err := f.stores.Outbound.ClaimDue(context.Background(), f.now.Add(time.Hour), 50, time.Minute)
	require.NoError(t, err)
	return msgs
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("own bot deep link", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")

		res, err := f.svc.Mint(ctx, f.tenantID, "+1 555 123 4567", channel.Telegram, nil)
		require.NoError(t, err)
		assert.Equal(t, "https://t.me/acme_bot?start="+res.Token, res.DeepLink)
		assert.False(t, res.UsingPlatformShared)
		assert.Equal(t, f.now.Add(channel.DefaultPreconnectTTL), res.ExpiresAt)

		tok, err := f.stores.Tokens.FindByToken(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, "+15551234567", tok.Phone)
		assert.Equal(t, "acme_bot", tok.BotIdentity)
		assert.False(t, tok.Shared)
	})

	t.Run("shared page and viber links", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Messenger, "", "")
		f.stores.EnableChannel(t, f.tenantID, channel.Viber, "", "")

		res, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Messenger, nil)
		require.NoError(t, err)
		assert.True(t, res.UsingPlatformShared)
		assert.Equal(t, "https://m.me/900100?ref="+res.Token, res.DeepLink)

		res, err = f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Viber, nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.DeepLink, "viber://pa?chatURI=orderbotshared&context="))
	})

	t.Run("re-mint invalidates the prior token", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "", "")

		first, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)
		second, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)

		_, err = f.stores.Tokens.FindByToken(ctx, first.Token)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("disabled channel", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		assert.ErrorIs(t, err, shared.ErrChannelDisabled)
	})

	t.Run("whatsapp needs no token", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.WhatsApp, "10200300", "cloud-token")
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.WhatsApp, nil)
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "LINK_NOT_REQUIRED", de.Code)
	})
}

func TestResolveAndBind_PreconnectToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")
	o := testutil.SeedOrder(t, f.stores.DB, f.tenantID)

	minted, err := f.svc.Mint(ctx, f.tenantID, o.CustomerPhone, channel.Telegram, &o.ID)
	require.NoError(t, err)

	res, err := f.svc.ResolveAndBind(ctx, Contact{
		Channel:      channel.Telegram,
		BotIdentity:  "acme_bot",
		SubscriberID: "777",
		Token:        minted.Token,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StrategyPreconnectToken, res.Strategy)
	assert.Equal(t, o.ID, *res.OrderID)

	link, err := f.stores.Links.Find(ctx, f.tenantID, o.CustomerPhone, channel.Telegram)
	require.NoError(t, err)
	assert.Equal(t, "777", link.SubscriberID)

	b, err := f.stores.Bindings.Find(ctx, o.ID, channel.Telegram)
	require.NoError(t, err)
	assert.Equal(t, "777", b.SubscriberID)

	events := f.publisher.OfType(channel.EventTypeIdentityLinked)
	require.Len(t, events, 1)
	assert.Equal(t, StrategyPreconnectToken, events[0].(*channel.IdentityLinkedEvent).Strategy)

	greetings := f.claimAll(t)
	require.Len(t, greetings, 1)
	assert.Equal(t, outbound.PurposeGreeting, greetings[0].Purpose)
	assert.Contains(t, greetings[0].Body, "Hi Ana!")
	assert.Contains(t, greetings[0].Body, "Acme")

	t.Run("replay after consumption binds nothing", func(t *testing.T) {
		res, err := f.svc.ResolveAndBind(ctx, Contact{
			Channel:      channel.Telegram,
			BotIdentity:  "acme_bot",
			SubscriberID: "888",
			Token:        minted.Token,
		})
		require.NoError(t, err)
		assert.Nil(t, res)

		link, err := f.stores.Links.Find(ctx, f.tenantID, o.CustomerPhone, channel.Telegram)
		require.NoError(t, err)
		assert.Equal(t, "777", link.SubscriberID)
		assert.Len(t, f.publisher.OfType(channel.EventTypeIdentityLinked), 1)
	})
}

func TestResolveAndBind_TokenForAnotherBot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")

	minted, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
	require.NoError(t, err)

	res, err := f.svc.ResolveAndBind(ctx, Contact{
		Channel:      channel.Telegram,
		BotIdentity:  "other_bot",
		SubscriberID: "777",
		Token:        minted.Token,
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolveAndBind_ConcurrentReplayBindsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")
	minted, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		binds int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ResolveAndBind(ctx, Contact{
				Channel:      channel.Telegram,
				BotIdentity:  "acme_bot",
				SubscriberID: "777",
				Token:        minted.Token,
			})
			if err == nil && res != nil {
				mu.Lock()
				binds++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, binds)
	assert.Len(t, f.publisher.OfType(channel.EventTypeIdentityLinked), 1)
}

func TestResolveAndBind_FailedBindLeavesTokenUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")
	o := testutil.SeedOrder(t, f.stores.DB, f.tenantID)
	minted, err := f.svc.Mint(ctx, f.tenantID, o.CustomerPhone, channel.Telegram, &o.ID)
	require.NoError(t, err)

	var failLinks atomic.Bool
	failLinks.Store(true)
	require.NoError(t, f.stores.DB.Callback().Create().Before("gorm:create").Register("test:fail_links", func(tx *gorm.DB) {
		if failLinks.Load() && tx.Statement.Table == "identity_links" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	contact := Contact{Channel: channel.Telegram, BotIdentity: "acme_bot", SubscriberID: "777", Token: minted.Token}
	res, err := f.svc.ResolveAndBind(ctx, contact)
	require.Error(t, err)
	assert.Nil(t, res)

	tok, err := f.stores.Tokens.FindByToken(ctx, minted.Token)
	require.NoError(t, err)
	assert.True(t, tok.IsUsable(f.now), "token survives the failed link write")
	_, err = f.stores.Bindings.Find(ctx, o.ID, channel.Telegram)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.publisher.OfType(channel.EventTypeIdentityLinked))

	failLinks.Store(false)
	res, err = f.svc.ResolveAndBind(ctx, contact)
	require.NoError(t, err)
	require.NotNil(t, res, "customer can tap the deep link again")
	b, err := f.stores.Bindings.Find(ctx, o.ID, channel.Telegram)
	require.NoError(t, err)
	assert.Equal(t, "777", b.SubscriberID)
	assert.Len(t, f.publisher.OfType(channel.EventTypeIdentityLinked), 1)
}

func TestResolveAndBind_SharedSingleCandidate(t *testing.T) {
	ctx := context.Background()

	t.Run("single candidate binds without a token", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "", "")
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)

		res, err := f.svc.ResolveAndBind(ctx, Contact{
			Channel:      channel.Telegram,
			BotIdentity:  "orderbot_shared",
			SubscriberID: "4242",
		})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, StrategySharedSingleCandidate, res.Strategy)
		assert.Equal(t, "+15551234567", res.Link.Phone)

		// The greeting has no order, so the name falls back.
		greetings := f.claimAll(t)
		require.Len(t, greetings, 1)
		assert.Contains(t, greetings[0].Body, "Hi there!")
	})

	t.Run("two candidates are ambiguous", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "", "")
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)
		_, err = f.svc.Mint(ctx, f.tenantID, "+15557654321", channel.Telegram, nil)
		require.NoError(t, err)

		res, err := f.svc.ResolveAndBind(ctx, Contact{
			Channel:      channel.Telegram,
			BotIdentity:  "orderbot_shared",
			SubscriberID: "4242",
		})
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Empty(t, f.publisher.Events())
	})

	t.Run("never on a tenant-owned bot", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "acme_bot", "123:abc")
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)

		res, err := f.svc.ResolveAndBind(ctx, Contact{
			Channel:      channel.Telegram,
			BotIdentity:  "acme_bot",
			SubscriberID: "4242",
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("candidates older than the window are ignored", func(t *testing.T) {
		f := newFixture(t)
		f.stores.EnableChannel(t, f.tenantID, channel.Telegram, "", "")
		_, err := f.svc.Mint(ctx, f.tenantID, "+15551234567", channel.Telegram, nil)
		require.NoError(t, err)

		later := f.now.Add(channel.DefaultSharedWindow + time.Minute)
		f.svc.now = testutil.FixedClock(later)
		res, err := f.svc.ResolveAndBind(ctx, Contact{
			Channel:      channel.Telegram,
			BotIdentity:  "orderbot_shared",
			SubscriberID: "4242",
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestAuthorizeSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := testutil.SeedOrder(t, f.stores.DB, f.tenantID)

	_, err := f.svc.AuthorizeSender(ctx, o, channel.Messenger, "psid-1")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	f.stores.Link(t, f.tenantID, o.CustomerPhone, channel.Messenger, "psid-1")
	name, err := f.svc.AuthorizeSender(ctx, o, channel.Messenger, "psid-1")
	require.NoError(t, err)
	assert.Equal(t, AuthorizerPhoneLink, name)

	require.NoError(t, f.stores.Bindings.Bind(ctx, channel.NewOrderChannelBinding(f.tenantID, o.ID, channel.Messenger, "psid-1")))
	name, err = f.svc.AuthorizeSender(ctx, o, channel.Messenger, "psid-1")
	require.NoError(t, err)
	assert.Equal(t, AuthorizerOrderBinding, name, "order binding is consulted first")

	_, err = f.svc.AuthorizeSender(ctx, o, channel.Messenger, "psid-2")
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDeepLink(t *testing.T) {
	_, err := DeepLink(channel.Telegram, "", "tok")
	assert.Error(t, err)
	_, err = DeepLink(channel.WhatsApp, "1020", "tok")
	assert.Error(t, err)
	link, err := DeepLink(channel.Telegram, "shop_bot", "abc-_1")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/shop_bot?start=abc-_1", link)
}
