package session

import (
	"context"
	"ctchen222/TicTacToe-Classic/internal/game"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Hash fields of a session key
const (
	FieldBoard     = "board"
	FieldTurn      = "turn"
	FieldStatus    = "status"
	FieldWinner    = "winner"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

const maxUpdateRetries = 3

// RedisStore keeps each session in a Redis hash "session:<id>".
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-based Store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Create writes a new session hash.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	ctx, span := tracer.Start(ctx, "RedisStore.Create", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	fields, err := encodeSession(s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to encode session")
		return err
	}

	key := sessionKey(s.ID)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("session %s already exists", s.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return fmt.Errorf("failed to create session in redis: %w", err)
	}
	return nil
}

// Get reads the session hash.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Get", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	data, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get session")
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return decodeSession(id, data)
}

// Update runs fn inside a WATCH transaction on the session key and retries
// when another writer got there first.
func (r *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Update", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	key := sessionKey(id)
	var (
		result *Session
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		s, err := decodeSession(id, data)
		if err != nil {
			return err
		}

		result = s
		if fnErr = fn(s); fnErr != nil {
			return fnErr
		}

		fields, err := encodeSession(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	var err error
	for range maxUpdateRetries {
		err = r.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, ErrSessionNotFound):
		return nil, err
	case fnErr != nil:
		return result, fnErr
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update session")
		return nil, fmt.Errorf("failed to update session in redis: %w", err)
	}
}

// Delete removes the session hash.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "RedisStore.Delete", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete session")
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func encodeSession(s *Session) (map[string]any, error) {
	boardJSON, err := json.Marshal(s.State.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board: %w", err)
	}
	return map[string]any{
		FieldBoard:     string(boardJSON),
		FieldTurn:      string(s.State.Turn),
		FieldStatus:    string(s.State.Status),
		FieldWinner:    string(s.State.Winner),
		FieldCreatedAt: strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
		FieldUpdatedAt: strconv.FormatInt(s.UpdatedAt.UnixMilli(), 10),
	}, nil
}

func decodeSession(id string, data map[string]string) (*Session, error) {
	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	var board game.Board
	if err := json.Unmarshal([]byte(data[FieldBoard]), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	createdAt, err := strconv.ParseInt(data[FieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FieldCreatedAt, err)
	}
	updatedAt, err := strconv.ParseInt(data[FieldUpdatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FieldUpdatedAt, err)
	}

	return &Session{
		ID: id,
		State: game.State{
			Board:  board,
			Turn:   game.PlayerMark(data[FieldTurn]),
			Status: game.Status(data[FieldStatus]),
			Winner: game.PlayerMark(data[FieldWinner]),
		},
		CreatedAt: time.UnixMilli(createdAt),
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}
