package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const profileKeyPrefix = "whatsapp:profile:"

// RedisProfileStore keeps profiles as JSON strings. Conditional writes use
// WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisProfileStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

var _ ProfileStore = (*RedisProfileStore)(nil)

// NewRedisProfileStore creates a store; ttl <= 0 keeps profiles forever.
func NewRedisProfileStore(client *redis.Client, ttl time.Duration) *RedisProfileStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisProfileStore{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("whatsapp.internal.conversation.profiles"),
	}
}

func (s *RedisProfileStore) key(contactID string) string {
	return profileKeyPrefix + contactID
}

func (s *RedisProfileStore) Get(ctx context.Context, contactID string) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.profile.get")
	defer span.End()

	raw, err := s.client.Get(ctx, s.key(contactID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load profile: %w", err)
	}
	return decodeProfile(raw)
}

func (s *RedisProfileStore) Upsert(ctx context.Context, profile *Profile) error {
	if err := validateForWrite(profile); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "conversation.profile.upsert")
	defer span.End()

	key := s.key(profile.ContactID)
	next := profile.Clone()
	next.Version = profile.Version + 1
	raw, err := encodeProfile(&next)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		stored, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			existing, err := decodeProfile(stored)
			if err != nil {
				return err
			}
			current = existing.Version
		}
		if current != profile.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		profile.Version = next.Version
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	default:
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist profile: %w", err)
	}
}

func (s *RedisProfileStore) Delete(ctx context.Context, contactID string) error {
	if err := s.client.Del(ctx, s.key(contactID)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to delete profile: %w", err)
	}
	return nil
}
