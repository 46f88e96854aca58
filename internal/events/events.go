// Package events publishes lifecycle notifications on Redis pub/sub. The
// gateway forwards them to clients over SSE; the "calculating" spinner keys
// off EVENT_JOB_MATCHES_CALCULATED.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel names. The payload "type" field always equals the channel.
const (
	JobStatusChanged           = "EVENT_JOB_STATUS_CHANGED"
	JobMatchesCalculated       = "EVENT_JOB_MATCHES_CALCULATED"
	CandidateMatchesCalculated = "EVENT_CANDIDATE_MATCHES_CALCULATED"
	MatchOfferExtended         = "EVENT_MATCH_OFFER_EXTENDED"
)

// Publisher sends one event. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, channel string, fields map[string]any) error
}

// RedisPublisher publishes JSON payloads with PUBLISH.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher returns a Publisher backed by rdb.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, fields map[string]any) error {
	payload, err := encode(channel, fields)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func encode(channel string, fields map[string]any) ([]byte, error) {
	msg := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = channel
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", channel, err)
	}
	return b, nil
}

// Event is a published message as captured by Recorder.
type Event struct {
	Channel string
	Payload json.RawMessage
}

// Recorder keeps published events in memory. It backs in-memory mode and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, channel string, fields map[string]any) error {
	payload, err := encode(channel, fields)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Channel: channel, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events were published on channel.
func (r *Recorder) Count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Channel == channel {
			n++
		}
	}
	return n
}
