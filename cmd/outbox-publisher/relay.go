package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// outcome is what happened to one row of a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

// processBatch settles one batch and reports whether any rows were claimed.
// Only storage errors abort the batch; publish failures are recorded on the
// row and the batch moves on.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var tally [3]int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		for _, event := range events {
			result, err := s.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			tally[result]++
		}
		return nil
	})
	claimed := tally[outcomePublished] + tally[outcomeRetry] + tally[outcomeParked]
	if err == nil && claimed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"published": tally[outcomePublished],
			"retry":     tally[outcomeRetry],
			"parked":    tally[outcomeParked],
		}), "outbox batch settled")
	}
	return claimed > 0, err
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	})

	resolved, err := s.resolver.Resolve(event)
	if err != nil {
		return outcomeParked, s.park(logCtx, tx, event, "non_retryable", err)
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Topic,
	})

	err = s.publish(ctx, event, resolved)
	switch {
	case err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Debug(logCtx, "outbox event published")
		return outcomePublished, nil
	case isNonRetryable(err):
		return outcomeParked, s.park(logCtx, tx, event, "non_retryable", err)
	case event.AttemptCount+1 >= s.maxAttempts:
		return outcomeParked, s.park(logCtx, tx, event, "max_attempts", fmt.Errorf("max publish attempts reached: %w", err))
	}

	s.metrics.IncOutbox(string(event.EventType), false)
	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// park pushes the row to maxAttempts so it is never claimed again. Payload
// and last_error stay on the row for manual replay.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"terminal_reason": reason,
		"error":           cause.Error(),
	}), "outbox event will not be retried")
	s.metrics.IncOutbox(string(event.EventType), false)
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *resolvedEvent) error {
	pub := s.publisherFactory(resolved.Topic)
	if pub == nil {
		return nonRetryable(fmt.Errorf("publisher not configured for topic %s", resolved.Topic))
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(ctx, message(event, resolved))
	if result == nil {
		return nonRetryable(fmt.Errorf("publisher returned nil for topic %s", resolved.Topic))
	}
	_, err := result.Get(ctx)
	return err
}

// message carries the payload verbatim. Events of one aggregate share an
// ordering key.
func message(event models.OutboxEvent, resolved *resolvedEvent) *gcppubsub.Message {
	aggregate := event.AggregateID.String()
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: string(event.AggregateType) + ":" + aggregate,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   aggregate,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}
