package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// BrokerAdapter turns a raw byte broker into a typed event bus.
type BrokerAdapter struct {
	broker  Broker
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewBrokerAdapter(broker Broker, log *logger.Logger, m *metrics.Metrics) *BrokerAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &BrokerAdapter{broker: broker, log: log.WithModule("messaging"), metrics: m}
}

func (a *BrokerAdapter) Publish(ctx context.Context, topic string, payload interface{}) error {
	event, err := NewEvent(topic, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	err = a.broker.Publish(ctx, topic, raw)
	a.count(true, topic, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}
	return nil
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}

// Subscribe dispatches every event on topic to handler until ctx is done.
// Handler errors are logged and do not stop the subscription.
func (a *BrokerAdapter) Subscribe(ctx context.Context, topic string, handler Handler) error {
	msgChan, err := a.broker.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range msgChan {
			var event Event
			if err := json.Unmarshal(msg, &event); err != nil {
				a.log.Warn("dropping malformed event", "topic", topic, "error", err.Error())
				a.count(false, topic, err)
				continue
			}
			err := handler(ctx, event)
			a.count(false, topic, err)
			if err != nil {
				a.log.Error(err, "event handler failed", "topic", topic, "event_id", event.ID.String())
			}
		}
	}()

	return nil
}

func (a *BrokerAdapter) count(publish bool, topic string, err error) {
	if a.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	if publish {
		a.metrics.EventsPublished.WithLabelValues(topic, status).Inc()
		return
	}
	a.metrics.EventsProcessed.WithLabelValues(topic, status).Inc()
}
