package linking

import (
	"context"
	"errors"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
	"github.com/orderbot/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Strategy names, as logged and stamped on identity.linked events
const (
	StrategyPreconnectToken       = "preconnect-token"
	StrategySharedSingleCandidate = "shared-single-candidate"
)

// Contact is a subscriber reaching a bot: a Telegram /start, a Messenger
// referral or a Viber conversation_started.
type Contact struct {
	Channel      channel.Channel
	BotIdentity  string
	SubscriberID string
	// Token is the deep-link payload, empty when the platform dropped it
	Token string
}

// BindingStrategy proposes the preconnect token a contact should consume.
// (nil, nil) means the strategy does not apply.
type BindingStrategy interface {
	Name() string
	Match(ctx context.Context, c Contact, now time.Time) (*channel.PreconnectToken, error)
}

type preconnectTokenStrategy struct {
	tokens channel.PreconnectTokenRepository
}

// NewPreconnectTokenStrategy binds through the token carried in the deep link
func NewPreconnectTokenStrategy(tokens channel.PreconnectTokenRepository) BindingStrategy {
	return &preconnectTokenStrategy{tokens: tokens}
}

func (s *preconnectTokenStrategy) Name() string { return StrategyPreconnectToken }

func (s *preconnectTokenStrategy) Match(ctx context.Context, c Contact, now time.Time) (*channel.PreconnectToken, error) {
	if c.Token == "" {
		return nil, nil
	}
	t, err := s.tokens.FindByToken(ctx, c.Token)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !t.IsUsable(now) || t.Channel != c.Channel {
		return nil, nil
	}
	// A token minted for one bot is never honoured by another.
	if t.BotIdentity != "" && c.BotIdentity != "" && t.BotIdentity != c.BotIdentity {
		return nil, nil
	}
	return t, nil
}

type sharedSingleCandidateStrategy struct {
	tokens   channel.PreconnectTokenRepository
	platform channel.PlatformCredentials
	window   time.Duration
	logger   *zap.Logger
}

// NewSharedSingleCandidateStrategy binds a contact on a platform-shared bot
// that arrived without a token, but only when exactly one recent unused
// token exists for that bot. Anything else is ambiguous and refused.
func NewSharedSingleCandidateStrategy(tokens channel.PreconnectTokenRepository, platform channel.PlatformCredentials, window time.Duration, logger *zap.Logger) BindingStrategy {
	if window <= 0 {
		window = channel.DefaultSharedWindow
	}
	return &sharedSingleCandidateStrategy{tokens: tokens, platform: platform, window: window, logger: logger}
}

func (s *sharedSingleCandidateStrategy) Name() string { return StrategySharedSingleCandidate }

func (s *sharedSingleCandidateStrategy) Match(ctx context.Context, c Contact, now time.Time) (*channel.PreconnectToken, error) {
	if s.platform == nil {
		return nil, nil
	}
	sharedCred, ok := s.platform.Shared(c.Channel)
	if !ok || sharedCred.Identity == "" || sharedCred.Identity != c.BotIdentity {
		return nil, nil
	}
	candidates, err := s.tokens.FindSharedCandidates(ctx, c.Channel, c.BotIdentity, now.Add(-s.window), now)
	if err != nil {
		return nil, err
	}
	if len(candidates) != 1 {
		if len(candidates) > 1 {
			s.logger.Info("Shared bot contact is ambiguous, not linking",
				zap.String("channel", c.Channel.String()),
				zap.Int("candidates", len(candidates)),
			)
		}
		return nil, nil
	}
	return &candidates[0], nil
}
