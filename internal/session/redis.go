package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxMergeAttempts = 5

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps each session as a JSON value with a sliding key expiry.
// Merges run in WATCH transactions so concurrent writers never lose keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "retailsearch:session:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisStore) Create(ctx context.Context, appName, userID string) (Session, error) {
	s, err := New(appName, userID, r.now())
	if err != nil {
		return Session{}, err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session: %w", err)
	}
	created, err := r.client.SetNX(ctx, r.key(s.ID), payload, r.ttl).Result()
	if err != nil {
		return Session{}, fmt.Errorf("redis set session: %w", err)
	}
	if !created {
		return Session{}, fmt.Errorf("session %s already exists", s.ID)
	}
	return s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	key := r.key(id)
	s, err := r.load(ctx, r.client, key)
	if err != nil {
		return Session{}, err
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return Session{}, fmt.Errorf("redis refresh session ttl: %w", err)
		}
	}
	return s, nil
}

func (r *RedisStore) Merge(ctx context.Context, id string, updates map[string]string) (Session, error) {
	key := r.key(id)
	var merged Session
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		merge(&s, updates, r.now())
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err == nil {
			merged = s
		}
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return merged, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Session{}, err
	}
	return Session{}, fmt.Errorf("merge session %s: too many concurrent writers", id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) load(ctx context.Context, client getter, key string) (Session, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}
