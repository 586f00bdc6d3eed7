package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tabserve/internal/errors"
)

const redisKeyPrefix = "tabserve:artifact:"

// RedisStore keeps artifacts as Redis strings so several API instances can
// serve each other's downloads. The retention is applied as key expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
	closed bool
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL of 0 keeps artifacts until they are evicted by Redis itself.
	TTL time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "connect to redis at %s", opts.Addr)
	}
	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

func (r *RedisStore) Persist(ctx context.Context, p Payload) (Artifact, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	b, err := encode(p)
	if err != nil {
		return Artifact{}, err
	}
	name := newName(p.SourceFile, p.CreatedAt)
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+name, b, r.ttl).Result()
	if err != nil {
		return Artifact{}, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "store artifact %s", name)
	}
	if !ok {
		return Artifact{}, errors.Wrapf(errors.ErrStorage, "artifact %s already exists", name)
	}
	return Artifact{Name: name, CreatedAt: p.CreatedAt, Size: int64(len(b))}, nil
}

func (r *RedisStore) Retrieve(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(errors.ErrNotFound, "artifact %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "get artifact %s", name)
	}
	return b, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
