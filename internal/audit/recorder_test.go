package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurego-auth/internal/bucketing"
	"insurego-auth/internal/config"
	"insurego-auth/internal/model"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

func (p *capturePublisher) ProduceMessage(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, value)
	return nil
}

type captureStore struct {
	mu     sync.Mutex
	events []*model.AuthEvent
}

func (s *captureStore) InsertAuthEvents(ctx context.Context, events []*model.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func newTestBuckets() *bucketing.BucketingManager {
	cfg := &config.Config{}
	cfg.Bucketing.EventBuckets = 16
	return bucketing.NewBucketingManager(cfg)
}

func TestRecorder_ShipsEvents(t *testing.T) {
	t.Parallel()

	publisher := &capturePublisher{}
	store := &captureStore{}
	recorder := NewRecorder(publisher, store, "auth-events", newTestBuckets())

	recorder.Record(model.EventLogin, "hash-1", model.OutcomeSuccess, "PATIENT")
	recorder.Record(model.EventOTPVerified, "hash-2", model.OutcomeFailure, "code mismatch")
	recorder.Close()

	require.Len(t, store.events, 2)
	assert.Equal(t, model.EventLogin, store.events[0].EventType)
	assert.Equal(t, "hash-1", store.events[0].IdentifierHash)
	assert.NotEmpty(t, store.events[0].EventID)
	assert.GreaterOrEqual(t, store.events[0].EventBucket, 0)
	assert.Less(t, store.events[0].EventBucket, 16)

	require.Len(t, publisher.messages, 2)
	var published model.AuthEvent
	require.NoError(t, json.Unmarshal(publisher.messages[0], &published))
	assert.Equal(t, model.EventLogin, published.EventType)
}

func TestRecorder_NilSinks(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder(nil, nil, "auth-events", newTestBuckets())
	recorder.Record(model.EventRegister, "hash", model.OutcomeSuccess, "")
	recorder.Close()
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder(nil, nil, "auth-events", newTestBuckets())
	recorder.Close()
	recorder.Close()
}
