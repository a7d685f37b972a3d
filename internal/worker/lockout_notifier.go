package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/account-security/internal/email"
	"github.com/jwalitptl/account-security/pkg/messaging"
	"github.com/jwalitptl/account-security/pkg/metrics"
)

// EventAccountLocked matches the type the auth service publishes when a
// lockout window opens.
const EventAccountLocked = "account_lock"

type lockPayload struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	LockedUntil time.Time `json:"locked_until"`
}

type lockEvent struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// LockoutNotifier consumes security events and mails account owners when
// their account gets locked.
type LockoutNotifier struct {
	broker  messaging.Broker
	channel string
	mailer  email.Service
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewLockoutNotifier(broker messaging.Broker, channel string, mailer email.Service,
	logger zerolog.Logger, m *metrics.Metrics) *LockoutNotifier {
	return &LockoutNotifier{
		broker:  broker,
		channel: channel,
		mailer:  mailer,
		logger:  logger.With().Str("worker", "lockout_notifier").Str("channel", channel).Logger(),
		metrics: m,
	}
}

// Start blocks until ctx is done or the subscription closes.
func (n *LockoutNotifier) Start(ctx context.Context) error {
	msgs, err := n.broker.Subscribe(ctx, n.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	n.logger.Info().Msg("lockout notifier started")
	for {
		select {
		case <-ctx.Done():
			n.logger.Info().Msg("lockout notifier stopped")
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			n.handle(ctx, raw)
		}
	}
}

func (n *LockoutNotifier) handle(ctx context.Context, raw []byte) {
	var evt lockEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		n.metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		n.logger.Warn().Err(err).Msg("dropping malformed event")
		return
	}
	if evt.Type != EventAccountLocked {
		n.metrics.EventsConsumed.WithLabelValues(evt.Type, "ignored").Inc()
		return
	}

	var p lockPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Email == "" {
		n.metrics.EventsConsumed.WithLabelValues(evt.Type, "malformed").Inc()
		n.logger.Warn().Err(err).Msg("dropping lock event without recipient")
		return
	}

	if err := n.mailer.SendLockoutNotice(ctx, p.Email, p.LockedUntil); err != nil {
		n.metrics.EventsConsumed.WithLabelValues(evt.Type, "error").Inc()
		n.logger.Error().Err(err).Str("account_id", p.AccountID).Msg("failed to send lockout notice")
		return
	}

	n.metrics.EventsConsumed.WithLabelValues(evt.Type, "success").Inc()
	n.logger.Info().
		Str("account_id", p.AccountID).
		Time("locked_until", p.LockedUntil).
		Msg("lockout notice sent")
}
