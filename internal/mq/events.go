package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tbledger/apiserver/types"
)

const DefaultChannel = "trial-balance.accounts"

const (
	attrEventType = "event_type"
	attrActorID   = "actor_id"
)

// AccountEvents publishes and consumes account change events as JSON.
type AccountEvents struct {
	backend Backend
	channel string
}

func NewAccountEvents(backend Backend, channel string) *AccountEvents {
	if channel == "" {
		channel = DefaultChannel
	}
	return &AccountEvents{backend: backend, channel: channel}
}

// PublishAccountEvent sends event to the account channel.
func (e *AccountEvents) PublishAccountEvent(ctx context.Context, event types.AccountEvent) error {
	if e.backend == nil {
		return errors.New("mq backend is not configured")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}

	attrs := map[string]string{
		attrEventType: string(event.Type),
		attrActorID:   strconv.Itoa(event.ActorID),
	}
	if _, err := e.backend.Publish(ctx, e.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Consume calls fn for every event on the account channel until ctx ends.
// Undecodable messages are acknowledged and dropped.
func (e *AccountEvents) Consume(ctx context.Context, fn func(ctx context.Context, event types.AccountEvent) error) error {
	if e.backend == nil {
		return errors.New("mq backend is not configured")
	}
	return e.backend.Subscribe(ctx, e.channel, func(ctx context.Context, msg Message) error {
		var event types.AccountEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}
