package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pdproute/internal/model"
)

// RedisSink publishes envelopes on a Redis channel and keeps the latest
// envelope of each run under KeyPrefix+runID for late readers.
type RedisSink struct {
	Channel     string
	Secret      string
	KeyPrefix   string
	TTL         time.Duration
	MaxAttempts int
	Backoff     time.Duration

	rdb *redis.Client
}

// NewRedisSink connects to url (redis://host:port/db).
func NewRedisSink(url, channel, secret string) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("publish: redis url: %w", err)
	}
	return &RedisSink{
		Channel:     channel,
		Secret:      secret,
		KeyPrefix:   "pdp:report:",
		TTL:         24 * time.Hour,
		MaxAttempts: 3,
		Backoff:     100 * time.Millisecond,
		rdb:         redis.NewClient(opt),
	}, nil
}

func (s *RedisSink) Close() error { return s.rdb.Close() }

func (s *RedisSink) Publish(ctx context.Context, r model.Report) error {
	env, err := NewEnvelope(r, s.Secret)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("publish: encode envelope: %w", err)
	}
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; ; i++ {
		err = s.send(ctx, r.RunID, body)
		if err == nil {
			return nil
		}
		if i+1 >= attempts {
			return fmt.Errorf("publish: redis after %d attempts: %w", attempts, err)
		}
		log.Printf("publish retry channel=%s attempt=%d err=%v", s.Channel, i+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nextBackoff(s.Backoff, i)):
		}
	}
}

func (s *RedisSink) send(ctx context.Context, runID string, body []byte) error {
	pipe := s.rdb.TxPipeline()
	if runID != "" {
		pipe.Set(ctx, s.KeyPrefix+runID, body, s.TTL)
	}
	pipe.Publish(ctx, s.Channel, body)
	_, err := pipe.Exec(ctx)
	return err
}

// Latest returns the stored envelope of a run, or redis.Nil when none is kept.
func (s *RedisSink) Latest(ctx context.Context, runID string) (Envelope, error) {
	var env Envelope
	b, err := s.rdb.Get(ctx, s.KeyPrefix+runID).Bytes()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("publish: decode envelope: %w", err)
	}
	return env, nil
}

// Subscribe streams envelopes from the channel until ctx ends. Undecodable
// payloads are skipped.
func (s *RedisSink) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	ps := s.rdb.Subscribe(ctx, s.Channel)
	// wait for the subscription so nothing published afterwards is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("publish: subscribe %s: %w", s.Channel, err)
	}
	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				default:
				}
			}
		}
	}()
	return out, nil
}

func nextBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	d := base * time.Duration(1<<attempt)
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
