package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/config"
)

// Key templates for better readability and maintainability
const (
	keyFlagTmpl = "%s:flag:{%s}"
)

// ErrStaleWrite is returned when a saved flag loses the
// last-writer-wins race against a newer stored copy.
var ErrStaleWrite = errors.New("repo: flag write is stale")

// Repo interface for abstraction (easy to mock/test)
type Repo interface {
	KeyFlag(key string) string
	LoadAll(ctx context.Context) (map[string]config.Flag, error)
	SaveFlag(ctx context.Context, f config.Flag) error
	DeleteFlag(ctx context.Context, key string) error
	PublishUpdate(ctx context.Context, key string) error
	SubscribeUpdates(ctx context.Context) (<-chan string, func() error)
	Close() error
}

type RedisRepo struct {
	Prefix         string
	UpdateChannel  string
	Cli            *redis.Client
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// NewRedis with functional options for flexibility
func NewRedis(cfg *config.Config, logger *slog.Logger, opts ...Option) (Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &RedisRepo{
		Prefix:         cfg.Redis.Prefix,
		UpdateChannel:  cfg.Redis.UpdatesChannel,
		logger:         logger,
		defaultTimeout: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(r)
	}

	if cfg.Redis.Addr == "" {
		return nil, errors.New("no redis address configured")
	}

	r.Cli = redis.NewClient(buildOptions(cfg.Redis))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return r, nil
}

// Option pattern for custom configurations
type Option func(*RedisRepo)

func WithDefaultTimeout(d time.Duration) Option {
	return func(r *RedisRepo) { r.defaultTimeout = d }
}

// withTimeout helper to reduce repetition
func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

func (r *RedisRepo) KeyFlag(key string) string {
	return fmt.Sprintf(keyFlagTmpl, r.Prefix, key)
}

// LoadAll scans the flag namespace and decodes every stored flag.
// SCAN keeps the load incremental instead of blocking Redis with KEYS.
func (r *RedisRepo) LoadAll(ctx context.Context) (map[string]config.Flag, error) {
	out := make(map[string]config.Flag)
	cursor := uint64(0)
	pattern := r.KeyFlag("*")

	for {
		keys, newCursor, err := r.Cli.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			r.logger.Error("failed to scan flags", "error", err)
			return nil, err
		}

		for _, key := range keys {
			val, err := r.Cli.Get(ctx, key).Bytes()
			if err != nil {
				r.logger.Warn("failed to get flag", "key", key, "error", err)
				continue
			}

			var f config.Flag
			if err := json.Unmarshal(val, &f); err != nil {
				r.logger.Warn("failed to unmarshal flag", "key", key, "error", err)
				continue
			}
			if f.Key == "" {
				continue
			}
			out[f.Key] = f
		}

		cursor = newCursor
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

// SaveFlag persists a flag unless the stored copy is newer.
func (r *RedisRepo) SaveFlag(parentCtx context.Context, f config.Flag) error {
	if f.Key == "" {
		return errors.New("repo: flag key required")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(parentCtx, 200*time.Millisecond)
	defer cancel()

	res, err := ScriptSaveIfNewer.Run(ctx, r.Cli, []string{r.KeyFlag(f.Key)}, b, f.UpdatedAtMs).Int64()
	if err != nil {
		return fmt.Errorf("lua script execution failed for flag %s: %w", f.Key, err)
	}
	if res == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *RedisRepo) DeleteFlag(parentCtx context.Context, key string) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	return r.Cli.Del(ctx, r.KeyFlag(key)).Err()
}

func (r *RedisRepo) PublishUpdate(parentCtx context.Context, key string) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	if err := r.Cli.Publish(ctx, r.UpdateChannel, key).Err(); err != nil {
		return fmt.Errorf("publish update for flag %s failed: %w", key, err)
	}
	return nil
}

// SubscribeUpdates returns a channel of updated flag keys plus a stop
// function. The channel closes when ctx is done or stop is called.
func (r *RedisRepo) SubscribeUpdates(ctx context.Context) (<-chan string, func() error) {
	sub := r.Cli.Subscribe(ctx, r.UpdateChannel)
	out := make(chan string)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close
}

func (r *RedisRepo) Close() error {
	return r.Cli.Close()
}

func buildOptions(cfg config.RedisCfg) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     max(cfg.PoolSize, 100),
		MinIdleConns: max(cfg.MinIdleConns, 10),
		DialTimeout:  durationOrDefault(cfg.DialTimeoutMs, 800),
		ReadTimeout:  durationOrDefault(cfg.ReadTimeoutMs, 800),
		WriteTimeout: durationOrDefault(cfg.WriteTimeoutMs, 800),
	}
}

func durationOrDefault(ms, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
