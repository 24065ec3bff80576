package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jamroom/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventRoomOpened     EventType = "room.opened"
	EventRoomClosed     EventType = "room.closed"
	EventSummaryChanged EventType = "room.summary_changed"
	EventSnapshotCommit EventType = "room.snapshot_committed"
)

// Event represents a distributed event
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	RoomID     domain.RoomID   `json:"room_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventBus fans room lifecycle and directory changes out to sibling
// instances over Redis pub/sub. Instances use it to invalidate directory
// caches; the engine itself stays single-writer per room.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"jamroom:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room_id", event.RoomID,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishRoomOpened publishes a room opened event
func (eb *EventBus) PublishRoomOpened(ctx context.Context, roomID domain.RoomID) error {
	return eb.Publish(ctx, &Event{
		Type:   EventRoomOpened,
		RoomID: roomID,
	})
}

// PublishRoomClosed publishes a room closed event
func (eb *EventBus) PublishRoomClosed(ctx context.Context, roomID domain.RoomID) error {
	return eb.Publish(ctx, &Event{
		Type:   EventRoomClosed,
		RoomID: roomID,
	})
}

// PublishSummaryChanged announces a directory entry update
func (eb *EventBus) PublishSummaryChanged(ctx context.Context, roomID domain.RoomID, usersLength int) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"room_id":      roomID,
		"users_length": usersLength,
	})

	return eb.Publish(ctx, &Event{
		Type:    EventSummaryChanged,
		RoomID:  roomID,
		Payload: payload,
	})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
