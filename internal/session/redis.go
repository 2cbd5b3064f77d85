package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
)

const (
	defaultPrefix  = "expense:session:"
	defaultChannel = "expense:session:updates"
)

// Redis is a Backend shared by every process pointed at the same server.
// Each Put also publishes the session id on the updates channel.
type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	prefix  string
	channel string
	ttl     time.Duration
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisFromClient(c, ttl, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(c redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:  c,
		logger:  logger,
		prefix:  defaultPrefix,
		channel: defaultChannel,
		ttl:     ttl,
	}
}

func (r *Redis) key(sid string) string {
	return r.prefix + sid
}

func (r *Redis) Put(ctx context.Context, sid string, user client.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(sid), payload, r.ttl)
		pipe.Publish(ctx, r.channel, sid)
		return nil
	})
	if err != nil {
		r.logger.Error("redis session write failed", "op", "put", "error", err)
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, sid string) (client.User, error) {
	data, err := r.client.Get(ctx, r.key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return client.User{}, ErrNotFound
	}
	if err != nil {
		return client.User{}, fmt.Errorf("load session: %w", err)
	}
	var user client.User
	if err := json.Unmarshal(data, &user); err != nil {
		return client.User{}, fmt.Errorf("decode session user: %w", err)
	}
	return user, nil
}

func (r *Redis) Delete(ctx context.Context, sid string) error {
	if err := r.client.Del(ctx, r.key(sid)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Subscribe returns the channel of session ids updated by any process.
// The subscription ends when ctx is cancelled.
func (r *Redis) Subscribe(ctx context.Context) <-chan string {
	sub := r.client.Subscribe(ctx, r.channel)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
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
	return out
}

func (r *Redis) Close() error {
	return r.client.Close()
}
