package main

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// nonRetryableError marks failures that will not succeed on a later attempt.
type nonRetryableError struct {
	err error
}

func (e nonRetryableError) Error() string { return e.err.Error() }
func (e nonRetryableError) Unwrap() error { return e.err }

func nonRetryable(err error) error {
	return nonRetryableError{err: err}
}

func isNonRetryable(err error) bool {
	var target nonRetryableError
	return errors.As(err, &target)
}

// resolvedEvent is an outbox row whose envelope decoded cleanly.
type resolvedEvent struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
}

type envelopeResolver struct {
	topic string
}

func (r envelopeResolver) Resolve(event models.OutboxEvent) (*resolvedEvent, error) {
	if !event.EventType.IsValid() {
		return nil, nonRetryable(fmt.Errorf("unknown event type %q", event.EventType))
	}
	if !event.AggregateType.IsValid() {
		return nil, nonRetryable(fmt.Errorf("unknown aggregate type %q", event.AggregateType))
	}
	env, err := outbox.Decode(event.Payload, nil)
	if err != nil {
		return nil, nonRetryable(err)
	}
	if err := env.Validate(); err != nil {
		return nil, nonRetryable(err)
	}
	return &resolvedEvent{Topic: r.topic, Envelope: env}, nil
}
