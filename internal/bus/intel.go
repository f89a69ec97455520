// Package bus implements the cross-process signal exchange: a Redis-backed
// key/value store with TTL semantics for intel signals, and NATS channels
// for trade-signal and emergency-stop pub/sub.
//
// Bus unavailability never propagates to callers. Producers log at debug
// level and return; consumers treat missing keys as "no signal".
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// SignalTTL is the lifetime of every intel signal. Absence of a key
	// after expiry is a valid state and must be handled as "no signal".
	SignalTTL = 300 * time.Second

	// connectTimeout bounds producer-side blocking on an unreachable bus
	connectTimeout = 2 * time.Second

	// opTimeout bounds individual read/write round trips
	opTimeout = 500 * time.Millisecond
)

// Payload is the unit of cross-component communication on the intel bus.
type Payload struct {
	Value        json.RawMessage `json:"value"`
	SourceSystem string          `json:"source_system"`
	Timestamp    int64           `json:"timestamp"` // epoch seconds
	Confidence   float64         `json:"confidence"`
}

// IntelBus provides typed publish/read of signals with TTL over Redis.
type IntelBus struct {
	client *redis.Client
}

// NewIntelBus creates an intel bus client. If client is nil, returns nil;
// a nil bus is safe to use and behaves as permanently absent.
func NewIntelBus(client *redis.Client) *IntelBus {
	if client == nil {
		return nil
	}
	return &IntelBus{client: client}
}

// NewRedisClient builds a redis client with the bus connect timeout.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: connectTimeout,
	})
}

// Publish writes a payload under key with the current timestamp and the
// standard 300-second expiry. Failures log and return without raising.
func (b *IntelBus) Publish(ctx context.Context, key string, value interface{}, source string, confidence float64) {
	b.publishTTL(ctx, key, value, source, confidence, SignalTTL)
}

// PublishPersistent writes a payload with no expiry. Used for the
// autopilot's restart-recovery state (executed trades, blacklist).
func (b *IntelBus) PublishPersistent(ctx context.Context, key string, value interface{}, source string) {
	b.publishTTL(ctx, key, value, source, 1.0, 0)
}

func (b *IntelBus) publishTTL(ctx context.Context, key string, value interface{}, source string, confidence float64, ttl time.Duration) {
	if b == nil || b.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Intel publish skipped - value not serializable")
		return
	}

	payload := Payload{
		Value:        raw,
		SourceSystem: source,
		Timestamp:    time.Now().Unix(),
		Confidence:   confidence,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Intel publish skipped - payload not serializable")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := b.client.Set(opCtx, key, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Intel publish failed - bus unavailable")
		return
	}

	log.Debug().
		Str("key", key).
		Str("source", source).
		Float64("confidence", confidence).
		Msg("Intel signal published")
}

// Read returns the payload for key, or (nil, false) when the key is
// absent, expired, unreachable, or undecodable.
func (b *IntelBus) Read(ctx context.Context, key string) (*Payload, bool) {
	if b == nil || b.client == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := b.client.Get(opCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Intel read error - treating as no signal")
		}
		return nil, false
	}

	var payload Payload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Intel payload undecodable - treating as no signal")
		return nil, false
	}

	return &payload, true
}

// ReadFloat reads a key whose value is a bare number. Returns the fallback
// when the key is absent.
func (b *IntelBus) ReadFloat(ctx context.Context, key string, fallback float64) float64 {
	payload, ok := b.Read(ctx, key)
	if !ok {
		return fallback
	}
	var v float64
	if err := json.Unmarshal(payload.Value, &v); err != nil {
		return fallback
	}
	return v
}

// ReadString reads a key whose value is a bare string. Returns the
// fallback when the key is absent.
func (b *IntelBus) ReadString(ctx context.Context, key string, fallback string) string {
	payload, ok := b.Read(ctx, key)
	if !ok {
		return fallback
	}
	var v string
	if err := json.Unmarshal(payload.Value, &v); err != nil {
		return fallback
	}
	return v
}

// ReadInto reads a key and unmarshals its value into out. Returns false
// on absence or decode failure.
func (b *IntelBus) ReadInto(ctx context.Context, key string, out interface{}) bool {
	payload, ok := b.Read(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload.Value, out); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Intel value undecodable - treating as no signal")
		return false
	}
	return true
}

// Health checks whether the bus is reachable.
func (b *IntelBus) Health(ctx context.Context) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("intel bus not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := b.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("intel bus health check failed: %w", err)
	}
	return nil
}

// Delete removes a key. Administrative use only (e.g. clearing the
// executed-trades memory).
func (b *IntelBus) Delete(ctx context.Context, key string) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("intel bus not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := b.client.Del(opCtx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete intel key: %w", err)
	}
	return nil
}
