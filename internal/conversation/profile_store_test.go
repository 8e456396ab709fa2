package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// exerciseCAS runs the compare-and-set contract shared by every backend.
func exerciseCAS(t *testing.T, store ProfileStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "c-1"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	p := NewProfile("c-1", "+15125550100", time.Now())
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", p.Version)
	}

	stale := *p
	stale.Version = 0
	if err := store.Upsert(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict on second insert, got %v", err)
	}

	loaded, err := store.Get(ctx, "c-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Version != 1 || loaded.Step != StepGreeting || loaded.Phone != "+15125550100" {
		t.Fatalf("unexpected profile %+v", loaded)
	}

	loaded.Step = StepName
	if err := store.Upsert(ctx, loaded); err != nil {
		t.Fatalf("update: %v", err)
	}
	if loaded.Version != 2 {
		t.Fatalf("expected version 2, got %d", loaded.Version)
	}

	p.Step = StepGoal // still version 1
	if err := store.Upsert(ctx, p); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict on stale update, got %v", err)
	}

	if err := store.Delete(ctx, "c-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "c-1"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryProfileStoreCAS(t *testing.T) {
	exerciseCAS(t, NewMemoryProfileStore())
}

func TestMemoryProfileStoreReturnsCopies(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	p := NewProfile("c-1", "+1", time.Now())
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.CustomerName = "mutated"
	loaded, _ := store.Get(ctx, "c-1")
	if loaded.CustomerName != "" {
		t.Fatal("store must not alias caller memory")
	}
}

func TestMemoryProfileStoreSingleWinner(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	base := NewProfile("c-1", "+1", time.Now())
	if err := store.Upsert(ctx, base); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := *base
			err := store.Upsert(ctx, &p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrVersionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 9 {
		t.Fatalf("expected one winner, got wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestProfileStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	if err := store.Upsert(ctx, nil); err == nil {
		t.Fatal("expected error for nil profile")
	}
	if err := store.Upsert(ctx, &Profile{Step: StepGreeting}); err == nil {
		t.Fatal("expected error without contact id")
	}
	if err := store.Upsert(ctx, &Profile{ContactID: "c", Step: "weird"}); err == nil {
		t.Fatal("expected error for invalid step")
	}
}

func TestRedisProfileStoreCAS(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseCAS(t, NewRedisProfileStore(client, time.Hour))
}

func TestRedisProfileStoreAppliesTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisProfileStore(client, time.Hour)
	if err := store.Upsert(context.Background(), NewProfile("c-1", "+1", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ttl := mr.TTL(profileKeyPrefix + "c-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
}

func TestRedisProfileStoreRoundTripsFields(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisProfileStore(client, 0)
	ctx := context.Background()

	budget := 750.0
	day := time.Thursday
	slots := testSlots(time.Thursday, "9:00 AM")
	p := NewProfile("c-2", "+1", time.Now())
	p.Step = StepTime
	p.Language = LanguageSpanish
	p.CustomerBudget = &budget
	p.PreferredDay = &day
	p.AvailableSlots = slots
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := store.Get(ctx, "c-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *loaded.CustomerBudget != 750 || *loaded.PreferredDay != time.Thursday || loaded.Language != LanguageSpanish {
		t.Fatalf("unexpected profile %+v", loaded)
	}
	if len(loaded.AvailableSlots) != 1 || !loaded.AvailableSlots[0].Start.Equal(slots[0].Start) {
		t.Fatalf("slots not preserved: %+v", loaded.AvailableSlots)
	}
}

func TestPostgresProfileStoreInsertAndUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newPostgresProfileStoreWithExec(mock)
	ctx := context.Background()

	p := NewProfile("c-1", "+15125550100", time.Now())
	mock.ExpectExec("INSERT INTO conversation_profiles").
		WithArgs("c-1", "+15125550100", "greeting", "", int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("expected version 1, got %d", p.Version)
	}

	p.Step = StepName
	mock.ExpectExec("UPDATE conversation_profiles").
		WithArgs("c-1", "+15125550100", "name", "", int64(2), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := store.Upsert(ctx, p); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if p.Version != 1 {
		t.Fatal("version must not change on conflict")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresProfileStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := newPostgresProfileStoreWithExec(mock)

	raw, _ := json.Marshal(Profile{ContactID: "c-1", Step: StepEmail, CustomerName: "Ana"})
	mock.ExpectQuery("SELECT data, version FROM conversation_profiles").
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"data", "version"}).AddRow(raw, int64(4)))
	mock.ExpectQuery("SELECT data, version FROM conversation_profiles").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"data", "version"}))

	p, err := store.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Version != 4 || p.Step != StepEmail || p.CustomerName != "Ana" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// fakeDynamo implements dynamoAPI with condition checks good enough for
// the expressions the store issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(key map[string]types.AttributeValue) string {
	if s, ok := key["contactId"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := itemKey(in.Item)
	existing, exists := f.items[id]
	cond := ""
	if in.ConditionExpression != nil {
		cond = *in.ConditionExpression
	}
	switch cond {
	case "attribute_not_exists(contactId)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case "#version = :expected":
		if !exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
		var record profileRecord
		_ = attributevalue.UnmarshalMap(existing, &record)
		want := in.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value
		if strconv.FormatInt(record.Version, 10) != want {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoProfileStoreCAS(t *testing.T) {
	exerciseCAS(t, NewDynamoProfileStore(newFakeDynamo(), "profiles", 0, logging.Discard()))
}

func TestDynamoProfileStoreSetsExpiry(t *testing.T) {
	db := newFakeDynamo()
	store := NewDynamoProfileStore(db, "profiles", time.Hour, logging.Discard())
	if err := store.Upsert(context.Background(), NewProfile("c-1", "+1", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var record profileRecord
	if err := attributevalue.UnmarshalMap(db.items["c-1"], &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.ExpiresAt <= time.Now().Unix() || record.Step != "greeting" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestDynamoProfileStoreWrapsErrors(t *testing.T) {
	db := newFakeDynamo()
	db.err = errBoom
	store := NewDynamoProfileStore(db, "profiles", 0, logging.Discard())
	if _, err := store.Get(context.Background(), "c-1"); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := store.Upsert(context.Background(), NewProfile("c-1", "+1", time.Now())); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
