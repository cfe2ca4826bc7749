package scan

import (
	"context"
	"log"
	"time"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

// StreamEvent is one frame of the alert stream: a new alert, or a ping
// heartbeat when a poll found nothing.
type StreamEvent struct {
	Type  string // "alert" or "ping"
	Alert *store.ThreatAlert
}

// Streamer polls the store for alerts past a cursor and fans them out to a
// consumer channel. Each consumer gets its own goroutine and cursor; an
// alert id is never re-emitted to the same consumer.
type Streamer struct {
	store        store.Store
	pollInterval time.Duration
	batchSize    int
}

// NewStreamer creates an alert streamer.
func NewStreamer(st store.Store, pollInterval time.Duration, batchSize int) *Streamer {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Streamer{store: st, pollInterval: pollInterval, batchSize: batchSize}
}

// Subscribe starts streaming alerts with id greater than sinceID. The
// returned channel closes when ctx is cancelled. Polls run immediately and
// then on every tick; an empty poll emits a ping so consumers can detect a
// live connection.
func (s *Streamer) Subscribe(ctx context.Context, sinceID int64) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		cursor := sinceID
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			cursor = s.poll(ctx, cursor, events)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return events
}

// poll fetches one batch past cursor and emits it, returning the advanced
// cursor. Emits a ping when the batch is empty. Store errors are logged and
// leave the cursor unchanged so the next tick retries.
func (s *Streamer) poll(ctx context.Context, cursor int64, events chan<- StreamEvent) int64 {
	batch, err := s.store.ListAlertsAfter(ctx, cursor, s.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[STREAM] Alert poll failed: %v", err)
		}
		return cursor
	}

	if len(batch) == 0 {
		select {
		case events <- StreamEvent{Type: "ping"}:
		case <-ctx.Done():
		}
		return cursor
	}

	for i := range batch {
		alert := batch[i]
		select {
		case events <- StreamEvent{Type: "alert", Alert: &alert}:
		case <-ctx.Done():
			return cursor
		}
		cursor = alert.ID
	}
	return cursor
}
