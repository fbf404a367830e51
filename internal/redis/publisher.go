// Package redis mirrors published values into a Redis hash and announces
// each changed field on a channel named after the hash.
package redis

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/sensor"
)

const queueSize = 256

type update struct {
	field string
	value string
}

// hashWriter stores a batch of changed fields.
type hashWriter interface {
	write(ctx context.Context, key string, fields map[string]string) error
}

type clientWriter struct {
	client *redis.Client
}

func (w clientWriter) write(ctx context.Context, key string, fields map[string]string) error {
	pipe := w.client.Pipeline()
	values := make(map[string]interface{}, len(fields))
	for f, v := range fields {
		values[f] = v
	}
	pipe.HSet(ctx, key, values)
	for f := range fields {
		pipe.Publish(ctx, key, f)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline execution failed: %w", err)
	}
	return nil
}

// Publisher queues updates from the event loop and writes them from its
// own goroutine so a slow server never blocks control.
type Publisher struct {
	key    string
	writer hashWriter
	client *redis.Client
	queue  chan update
	last   map[string]string
}

func New(cfg config.Redis) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := newPublisher(cfg.Key, clientWriter{client: client})
	p.client = client
	return p
}

func newPublisher(key string, w hashWriter) *Publisher {
	return &Publisher{
		key:    key,
		writer: w,
		queue:  make(chan update, queueSize),
		last:   map[string]string{},
	}
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) enqueue(field, value string) {
	select {
	case p.queue <- update{field: field, value: value}:
	default:
		log.Warn().Str("field", field).Msg("Redis queue full, dropping update")
	}
}

func (p *Publisher) Output(m sensor.Metric) sensor.Output {
	return sensor.OutputFunc(func(v float64) {
		p.enqueue(m.ID, formatValue(v, m.Decimals))
	})
}

func (p *Publisher) TextOutput(m sensor.Metric) sensor.TextOutput {
	return textOutput{p: p, field: m.ID}
}

type textOutput struct {
	p     *Publisher
	field string
}

func (t textOutput) PublishText(v string) {
	t.p.enqueue(t.field, v)
}

func (p *Publisher) PublishStatus(component string, status model.Status) {
	p.enqueue(component+":error", strconv.FormatBool(status.Error))
	p.enqueue(component+":warning", strconv.FormatBool(status.Warning))
	p.enqueue(component+":message", status.Message)
}

// Run writes queued updates until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if p.client != nil {
			if err := p.client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis client")
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-p.queue:
			p.flush(ctx, p.collect(u))
		}
	}
}

// collect drains whatever else is queued so one pipeline carries the batch.
func (p *Publisher) collect(first update) map[string]string {
	batch := map[string]string{first.field: first.value}
	for {
		select {
		case u := <-p.queue:
			batch[u.field] = u.value
		default:
			return batch
		}
	}
}

func (p *Publisher) flush(ctx context.Context, batch map[string]string) {
	changed := map[string]string{}
	for f, v := range batch {
		if old, ok := p.last[f]; ok && old == v {
			continue
		}
		changed[f] = v
	}
	if len(changed) == 0 {
		return
	}
	if err := p.writer.write(ctx, p.key, changed); err != nil {
		log.Warn().Err(err).Str("key", p.key).Msg("Failed to update redis status")
		return
	}
	for f, v := range changed {
		p.last[f] = v
	}
}

func formatValue(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
