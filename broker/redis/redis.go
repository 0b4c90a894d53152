// Package redis implements broker.Broker on Redis Streams, so that
// notifications fan out across processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
)

const (
	defaultKeyPrefix = "mcp:broker:"
	readBlock        = time.Second
	readCount        = 64
)

// Broker is a Redis Streams implementation of broker.Broker. Every topic is
// one stream; subscribers read without a consumer group so that each of them
// sees every message.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
}

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. If nil, a client for
	// localhost:6379 is created.
	Client redis.UniversalClient
	// KeyPrefix is prepended to all Redis keys used by the broker.
	// Defaults to "mcp:broker:" if empty.
	KeyPrefix string
	// MaxLen approximately caps each stream. Zero keeps everything.
	MaxLen int64
}

// EnvConfig is the environment-driven configuration read by NewFromEnv.
type EnvConfig struct {
	Addr      string `env:"REDIS_ADDR,default=localhost:6379"`
	Username  string `env:"REDIS_USERNAME"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,default=0"`
	KeyPrefix string `env:"MCP_BROKER_KEY_PREFIX,default=mcp:broker:"`
	MaxLen    int64  `env:"MCP_BROKER_MAX_LEN,default=10000"`
}

// New creates a Redis-backed broker.
func New(config Config) *Broker {
	client := config.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr: "localhost:6379",
		})
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &Broker{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    config.MaxLen,
	}
}

// NewFromEnv creates a broker configured from the environment (see
// EnvConfig) and checks connectivity.
func NewFromEnv(ctx context.Context) (*Broker, error) {
	var cfg EnvConfig
	// Defaults come from the struct tags when nothing is set.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis broker config: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return New(Config{Client: client, KeyPrefix: cfg.KeyPrefix, MaxLen: cfg.MaxLen}), nil
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Publish appends message to the topic stream. The event ID is the stream
// entry ID assigned by Redis.
func (b *Broker) Publish(ctx context.Context, topic string, message jsonrpc.Message) (string, error) {
	data, err := jsonrpc.Encode(message)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	streamKey := b.streamKey(topic)
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	eventID, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish message to stream %s: %w", streamKey, err)
	}
	return eventID, nil
}

// Subscribe opens a stream over topic. With an empty lastEventID the stream
// starts after the newest entry present at subscription time; otherwise
// lastEventID must still be retained.
func (b *Broker) Subscribe(ctx context.Context, topic string, lastEventID string) (broker.Stream, error) {
	streamKey := b.streamKey(topic)

	startID := lastEventID
	if startID == "" {
		last, err := b.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stream %s: %w", streamKey, err)
		}
		startID = "0-0"
		if len(last) > 0 {
			startID = last[0].ID
		}
	} else {
		found, err := b.client.XRangeN(ctx, streamKey, lastEventID, lastEventID, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("subscribe to %q from %q: %w: %w", topic, lastEventID, broker.ErrUnknownEventID, err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("subscribe to %q from %q: %w", topic, lastEventID, broker.ErrUnknownEventID)
		}
	}

	return &stream{client: b.client, key: streamKey, lastID: startID}, nil
}

// Cleanup deletes the topic stream. Open streams stay blocked on the
// deleted key and see messages published to it afterwards.
func (b *Broker) Cleanup(ctx context.Context, topic string) error {
	streamKey := b.streamKey(topic)
	err := b.client.Del(ctx, streamKey).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup topic %s: %w", topic, err)
	}
	return nil
}

func (b *Broker) streamKey(topic string) string {
	return b.keyPrefix + "stream:" + topic
}

// stream polls XREAD with a bounded block so that closing and context
// cancellation are observed within readBlock.
type stream struct {
	client redis.UniversalClient
	key    string
	lastID string
	buf    []broker.Envelope
	closed atomic.Bool
}

func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	for {
		if s.closed.Load() {
			return broker.Envelope{}, io.EOF
		}
		if len(s.buf) > 0 {
			env := s.buf[0]
			s.buf = s.buf[1:]
			return env, nil
		}
		if err := ctx.Err(); err != nil {
			return broker.Envelope{}, err
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.lastID},
			Count:   readCount,
			Block:   readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return broker.Envelope{}, ctxErr
			}
			return broker.Envelope{}, fmt.Errorf("failed to read from stream %s: %w", s.key, err)
		}

		for _, st := range streams {
			for _, m := range st.Messages {
				s.lastID = m.ID
				data, ok := m.Values["data"].(string)
				if !ok {
					continue
				}
				s.buf = append(s.buf, broker.Envelope{ID: m.ID, Data: []byte(data)})
			}
		}
	}
}

func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

var (
	_ broker.Broker = (*Broker)(nil)
	_ broker.Stream = (*stream)(nil)
)
