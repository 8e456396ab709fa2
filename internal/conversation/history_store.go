package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyKeyPrefix = "whatsapp:history:"
	historyTTL       = 30 * 24 * time.Hour
	// DefaultHistoryLimit is how many messages are kept per contact.
	DefaultHistoryLimit = 20
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// HistoryEntry is one message exchanged with a contact.
type HistoryEntry struct {
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	Step      Step      `json:"step"`
	At        time.Time `json:"at"`
}

// HistoryStore keeps the most recent messages per contact for operators.
// It is never read by the state machine.
type HistoryStore interface {
	Append(ctx context.Context, contactID string, entries ...HistoryEntry) error
	Recent(ctx context.Context, contactID string) ([]HistoryEntry, error)
}

// RedisHistoryStore keeps history as a capped Redis list, newest first.
type RedisHistoryStore struct {
	redis  *redis.Client
	limit  int
	tracer trace.Tracer
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

func NewRedisHistoryStore(client *redis.Client, limit int) *RedisHistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &RedisHistoryStore{
		redis:  client,
		limit:  limit,
		tracer: otel.Tracer("whatsapp.internal.conversation.history"),
	}
}

func (s *RedisHistoryStore) Append(ctx context.Context, contactID string, entries ...HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal history: %w", err)
		}
		values = append(values, data)
	}

	key := historyKey(contactID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, values...)
		pipe.LTrim(ctx, key, 0, int64(s.limit-1))
		pipe.Expire(ctx, key, historyTTL)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Recent returns stored messages oldest first.
func (s *RedisHistoryStore) Recent(ctx context.Context, contactID string) ([]HistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, historyKey(contactID), 0, int64(s.limit-1)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func historyKey(contactID string) string {
	return historyKeyPrefix + contactID
}

// MemoryHistoryStore is the in-process HistoryStore.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]HistoryEntry
}

var _ HistoryStore = (*MemoryHistoryStore)(nil)

func NewMemoryHistoryStore(limit int) *MemoryHistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryHistoryStore{limit: limit, entries: make(map[string][]HistoryEntry)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, contactID string, entries ...HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.entries[contactID], entries...)
	if len(all) > s.limit {
		all = append([]HistoryEntry(nil), all[len(all)-s.limit:]...)
	}
	s.entries[contactID] = all
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, contactID string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.entries[contactID]...), nil
}
