package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"mediarelay/internal/config"
	"mediarelay/internal/logging"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/services"
)

const (
	dataField      = "data"
	publishTimeout = 2 * time.Second
	pingTimeout    = 2 * time.Second
	readBlock      = 5 * time.Second
	readBatch      = 10
	retryBackoff   = 2 * time.Second
)

// Envelope is one submission: a list of sources handled as a single batch.
type Envelope struct {
	ID          string                     `json:"id"`
	Sources     []pipeline.SourceReference `json:"sources"`
	SubmittedAt time.Time                  `json:"submitted_at"`
}

// StreamClient is the subset of the Redis client used by intake.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewClient constructs a go-redis client from the intake configuration.
// Returns nil when intake is not configured.
func NewClient(cfg *config.Config) *redis.Client {
	if cfg == nil || !cfg.IntakeEnabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Intake.RedisAddr,
		Password:     cfg.Intake.RedisPassword,
		DB:           cfg.Intake.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  readBlock + 3*time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping validates the connection.
func Ping(ctx context.Context, client StreamClient) error {
	if client == nil {
		return errors.New("intake: redis client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Publisher appends envelopes to the stream.
type Publisher struct {
	client StreamClient
	stream string
	maxLen int64
	now    func() time.Time
}

// NewPublisher constructs a Publisher. maxLen <= 0 leaves the stream untrimmed.
func NewPublisher(client StreamClient, stream string, maxLen int) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: int64(maxLen), now: time.Now}
}

// Publish validates and enqueues sources, returning the envelope ID.
func (p *Publisher) Publish(ctx context.Context, sources []pipeline.SourceReference) (string, error) {
	if p == nil || p.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "intake", "publish", "redis client not configured", nil)
	}
	if len(sources) == 0 {
		return "", services.Wrap(services.ErrInvalidArgument, "intake", "publish", "no sources to publish", nil)
	}
	env := Envelope{ID: uuid.NewString(), Sources: sources, SubmittedAt: p.now().UTC()}
	data, err := json.Marshal(env)
	if err != nil {
		return "", services.Wrap(services.ErrInvalidArgument, "intake", "encode", "", err)
	}
	args := &redis.XAddArgs{Stream: p.stream, Values: map[string]any{dataField: data}}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return "", services.Wrap(services.ErrTransfer, "intake", "xadd", p.stream, err)
	}
	return env.ID, nil
}

// Decode parses the values of one stream entry.
func Decode(values map[string]any) (Envelope, error) {
	var raw []byte
	switch v := values[dataField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Envelope{}, fmt.Errorf("intake: entry has no %q field", dataField)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("intake: decode envelope: %w", err)
	}
	sources := env.Sources[:0]
	for _, src := range env.Sources {
		if strings.TrimSpace(src.URL) == "" && src.Username == "" {
			continue
		}
		sources = append(sources, src)
	}
	env.Sources = sources
	if len(env.Sources) == 0 {
		return Envelope{}, errors.New("intake: envelope carries no sources")
	}
	return env, nil
}

// Handler processes one envelope. Returned errors are logged; consumption continues.
type Handler func(ctx context.Context, env Envelope) error

// Consumer reads envelopes from the stream tail.
type Consumer struct {
	client StreamClient
	stream string
	logger *slog.Logger
	lastID string
}

// NewConsumer constructs a Consumer that starts after the newest entry.
func NewConsumer(client StreamClient, stream string, logger *slog.Logger) *Consumer {
	return &Consumer{
		client: client,
		stream: stream,
		logger: logging.NewComponentLogger(logger, "intake"),
		lastID: "$",
	}
}

// Run blocks, dispatching envelopes to handle in stream order until ctx is done.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if c == nil || c.client == nil {
		return services.Wrap(services.ErrConfiguration, "intake", "consume", "redis client not configured", nil)
	}
	c.logger.Info("intake consumer started", logging.String("stream", c.stream))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		streams, err := c.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{c.stream, c.lastID},
			Block:   readBlock,
			Count:   readBatch,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(c.logger, "stream read failed", "intake_read_failed",
				logging.String("stream", c.stream),
				logging.Error(err),
				logging.String(logging.FieldImpact, "submissions delayed until redis recovers"),
				logging.String(logging.FieldErrorHint, "check intake.redis_addr and that redis is running"),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.lastID = msg.ID
				c.dispatch(ctx, msg, handle)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg redis.XMessage, handle Handler) {
	env, err := Decode(msg.Values)
	if err != nil {
		logging.WarnWithContext(c.logger, "discarding malformed stream entry", "intake_decode_failed",
			logging.String("entry_id", msg.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry skipped"),
		)
		return
	}
	c.logger.Info("envelope received",
		logging.String("entry_id", msg.ID),
		logging.String("envelope_id", env.ID),
		logging.Int("source_count", len(env.Sources)),
	)
	if err := handle(services.WithRequestID(ctx, env.ID), env); err != nil {
		logging.ErrorWithContext(c.logger, "envelope handling failed", "intake_handle_failed",
			logging.String("envelope_id", env.ID),
			logging.Error(err),
		)
	}
}
