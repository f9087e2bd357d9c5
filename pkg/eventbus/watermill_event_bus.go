package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/barela/flowdeck/pkg/events"
	"github.com/barela/flowdeck/pkg/otelhelper"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		tracer:        otel.Tracer("flowdeck/eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if _, exists := eb.subscriptions[eventType]; exists {
		return fmt.Errorf("handler already registered for event type %s", eventType)
	}

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			msgCtx, span := otelhelper.StartSpan(ctx, eb.tracer, "eventbus.consume",
				attribute.String(otelhelper.EventIDKey, msg.UUID),
				attribute.String("event.type", string(eventType)),
			)

			event, err := decodeEvent(eventType, msg.Payload)
			if err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			if err := handler(msgCtx, event); err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			span.End()
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	return nil
}

func decodeEvent(eventType events.EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case events.ExecutionStartedEvent:
		event = &events.ExecutionStarted{}
	case events.ExecutionPausedEvent:
		event = &events.ExecutionPaused{}
	case events.ExecutionResumedEvent:
		event = &events.ExecutionResumed{}
	case events.ExecutionCompletedEvent:
		event = &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		event = &events.ExecutionFailed{}
	case events.ExecutionCancelledEvent:
		event = &events.ExecutionCancelled{}
	case events.ToolUsedEvent:
		event = &events.ToolUsed{}
	case events.ScheduleFiredEvent:
		event = &events.ScheduleFired{}
	case events.TriggerFiredEvent:
		event = &events.TriggerFired{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}

	return event, nil
}
