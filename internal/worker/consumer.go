package worker

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
)

// Subscriber delivers decoded events from a topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler messaging.Handler) error
}

// EventConsumer routes broker topics to handlers.
type EventConsumer struct {
	subscriber Subscriber
	routes     map[string]messaging.Handler
	logger     *logger.Logger
}

func NewEventConsumer(subscriber Subscriber, log *logger.Logger) *EventConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &EventConsumer{
		subscriber: subscriber,
		routes:     make(map[string]messaging.Handler),
		logger:     log.WithModule("event_consumer"),
	}
}

// Handle registers handler for topic. It must be called before Start.
func (c *EventConsumer) Handle(topic string, handler messaging.Handler) *EventConsumer {
	c.routes[topic] = handler
	return c
}

// Start subscribes every registered topic. Delivery continues in the
// background until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	for topic, handler := range c.routes {
		if err := c.subscriber.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
		c.logger.Info("Consuming topic", "topic", topic)
	}
	return nil
}
