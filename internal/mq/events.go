package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Incident event types published on the incident feed.
const (
	EventIncidentCreated = "incident.created"
	EventIncidentUpdated = "incident.updated"
	EventIncidentDeleted = "incident.deleted"
)

// IncidentEvent is the JSON payload of the incident feed.
type IncidentEvent struct {
	Type       string    `json:"type"`
	IncidentID int       `json:"incident_id"`
	ActorID    int       `json:"actor_id"`
	City       string    `json:"city,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher serializes incident events onto one channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

func NewEventPublisher(mq *MQ, channel string) *EventPublisher {
	if channel == "" {
		channel = "incidents"
	}
	return &EventPublisher{mq: mq, channel: channel}
}

// Channel returns the channel events are published to.
func (p *EventPublisher) Channel() string {
	return p.channel
}

// Publish sends the event. The event type and incident id are duplicated
// into message attributes so consumers can filter without decoding.
func (p *EventPublisher) Publish(ctx context.Context, event IncidentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	attrs := map[string]string{
		"type":        event.Type,
		"incident_id": strconv.Itoa(event.IncidentID),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// DecodeIncidentEvent parses a message received from the incident feed.
func DecodeIncidentEvent(msg Message) (IncidentEvent, error) {
	var event IncidentEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return IncidentEvent{}, fmt.Errorf("decode incident event %s: %w", msg.ID, err)
	}
	return event, nil
}
