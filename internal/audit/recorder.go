package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"insurego-auth/internal/bucketing"
	"insurego-auth/internal/model"
	"insurego-auth/internal/util"
)

// KafkaPublisher is the slice of the Kafka producer the recorder needs.
type KafkaPublisher interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// EventStore is the slice of the ClickHouse client the recorder needs.
type EventStore interface {
	InsertAuthEvents(ctx context.Context, events []*model.AuthEvent) error
}

const (
	bufferSize    = 1024
	flushSize     = 50
	flushInterval = time.Second
)

// Recorder collects audit events and ships them to Kafka and ClickHouse in
// the background. Recording never blocks or fails the operation that emitted
// the event: a full buffer drops the event with a warning.
type Recorder struct {
	producer KafkaPublisher
	store    EventStore
	topic    string
	buckets  *bucketing.BucketingManager

	events chan *model.AuthEvent
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func NewRecorder(producer KafkaPublisher, store EventStore, topic string, buckets *bucketing.BucketingManager) *Recorder {
	r := &Recorder{
		producer: producer,
		store:    store,
		topic:    topic,
		buckets:  buckets,
		events:   make(chan *model.AuthEvent, bufferSize),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record enqueues an audit event. Safe to call from request handlers; the
// call returns immediately.
func (r *Recorder) Record(eventType, identifierHash, outcome, detail string) {
	event := &model.AuthEvent{
		EventID:        uuid.New().String(),
		EventType:      eventType,
		IdentifierHash: identifierHash,
		Outcome:        outcome,
		Detail:         detail,
		EventBucket:    r.buckets.GetEventBucket(identifierHash),
		CreatedAt:      time.Now().UTC(),
	}

	select {
	case r.events <- event:
	default:
		util.Warn("Audit buffer full, dropping event",
			zap.String("event_type", eventType),
			zap.String("outcome", outcome))
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	batch := make([]*model.AuthEvent, 0, flushSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= flushSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []*model.AuthEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group

	if r.producer != nil {
		g.Go(func() error {
			for _, event := range batch {
				payload, err := json.Marshal(event)
				if err != nil {
					util.Error("Failed to marshal audit event", zap.Error(err))
					continue
				}
				if err := r.producer.ProduceMessage(ctx, r.topic, []byte(event.IdentifierHash), payload); err != nil {
					util.Error("Failed to publish audit event",
						zap.String("event_type", event.EventType),
						zap.Error(err))
				}
			}
			return nil
		})
	}

	if r.store != nil {
		g.Go(func() error {
			if err := r.store.InsertAuthEvents(ctx, batch); err != nil {
				util.Error("Failed to store audit events",
					zap.Int("count", len(batch)),
					zap.Error(err))
			}
			return nil
		})
	}

	// Errors are logged inside the goroutines; the batch is dropped either way.
	_ = g.Wait()
}

// Close drains buffered events and stops the background worker.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
		r.wg.Wait()
	})
}
