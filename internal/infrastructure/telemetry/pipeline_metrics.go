package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	AttrChannel   = attribute.Key("channel")
	AttrOutcome   = attribute.Key("outcome")
	AttrResult    = attribute.Key("result")
	AttrDecision  = attribute.Key("decision")
	AttrSource    = attribute.Key("source")
	AttrReason    = attribute.Key("reason")
	AttrEventType = attribute.Key("event_type")
)

// Dispatch outcomes
const (
	OutcomeSent       = "sent"
	OutcomeWaiting    = "waiting"
	OutcomeRetry      = "retry"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeLeaseLost  = "lease_lost"
)

var latencyBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15}

// PipelineMetrics records the notification pipeline's instruments. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	dispatched      *Counter
	sendDuration    *Histogram
	tickDuration    *Histogram
	claimed         *Counter
	webhookUpdates  *Counter
	decisions       *Counter
	notifyFailures  *Counter
	backlogReleased *Counter
	handlerFailures *Counter
}

// NewPipelineMetrics creates every instrument on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	pm := &PipelineMetrics{}
	var err error

	if pm.dispatched, err = NewCounter(meter, "orderbot.outbound.dispatched",
		"Outbound messages processed by the dispatcher", "{message}"); err != nil {
		return nil, err
	}
	if pm.sendDuration, err = NewHistogram(meter, "orderbot.outbound.send.duration",
		"Provider send latency", "s", latencyBuckets...); err != nil {
		return nil, err
	}
	if pm.tickDuration, err = NewHistogram(meter, "orderbot.dispatcher.tick.duration",
		"Duration of one dispatcher pass", "s", latencyBuckets...); err != nil {
		return nil, err
	}
	if pm.claimed, err = NewCounter(meter, "orderbot.dispatcher.claimed",
		"Messages claimed by dispatcher passes", "{message}"); err != nil {
		return nil, err
	}
	if pm.webhookUpdates, err = NewCounter(meter, "orderbot.webhook.updates",
		"Inbound platform updates", "{update}"); err != nil {
		return nil, err
	}
	if pm.decisions, err = NewCounter(meter, "orderbot.order.decisions",
		"Confirm and decline attempts", "{decision}"); err != nil {
		return nil, err
	}
	if pm.notifyFailures, err = NewCounter(meter, "orderbot.notification.failures",
		"Notifications that could not be scheduled", "{notification}"); err != nil {
		return nil, err
	}
	if pm.backlogReleased, err = NewCounter(meter, "orderbot.outbound.backlog_released",
		"Parked messages released after an identity link", "{message}"); err != nil {
		return nil, err
	}
	if pm.handlerFailures, err = NewCounter(meter, "orderbot.event.handler_failures",
		"Domain event handlers that returned an error", "{failure}"); err != nil {
		return nil, err
	}
	return pm, nil
}

// MessageDispatched counts one processed message
func (pm *PipelineMetrics) MessageDispatched(ctx context.Context, channel, outcome string) {
	if pm == nil {
		return
	}
	pm.dispatched.Inc(ctx, AttrChannel.String(channel), AttrOutcome.String(outcome))
}

// SendCompleted records one provider call
func (pm *PipelineMetrics) SendCompleted(ctx context.Context, channel string, d time.Duration, err error) {
	if pm == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	pm.sendDuration.RecordDuration(ctx, d, AttrChannel.String(channel), AttrResult.String(result))
}

// TickCompleted records one dispatcher pass
func (pm *PipelineMetrics) TickCompleted(ctx context.Context, claimed int, d time.Duration) {
	if pm == nil {
		return
	}
	pm.tickDuration.RecordDuration(ctx, d)
	if claimed > 0 {
		pm.claimed.Add(ctx, int64(claimed))
	}
}

// WebhookUpdate counts one inbound update by how it was handled
func (pm *PipelineMetrics) WebhookUpdate(ctx context.Context, channel, result string) {
	if pm == nil {
		return
	}
	pm.webhookUpdates.Inc(ctx, AttrChannel.String(channel), AttrResult.String(result))
}

// OrderDecision counts one confirm or decline attempt
func (pm *PipelineMetrics) OrderDecision(ctx context.Context, decision, source, result string) {
	if pm == nil {
		return
	}
	pm.decisions.Inc(ctx, AttrDecision.String(decision), AttrSource.String(source), AttrResult.String(result))
}

// NotificationFailed counts a notification that was not queued
func (pm *PipelineMetrics) NotificationFailed(ctx context.Context, channel, reason string) {
	if pm == nil {
		return
	}
	pm.notifyFailures.Inc(ctx, AttrChannel.String(channel), AttrReason.String(reason))
}

// BacklogReleased counts messages moved out of the waiting state
func (pm *PipelineMetrics) BacklogReleased(ctx context.Context, channel string, n int64) {
	if pm == nil || n <= 0 {
		return
	}
	pm.backlogReleased.Add(ctx, n, AttrChannel.String(channel))
}

// HandlerDone satisfies the event bus observer hook
func (pm *PipelineMetrics) HandlerDone(ctx context.Context, eventType string, err error) {
	if pm == nil || err == nil {
		return
	}
	pm.handlerFailures.Inc(ctx, AttrEventType.String(eventType))
}
