package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// PatternFunc receives one decoded pattern event.
type PatternFunc func(ctx context.Context, pm PatternMessage) error

// PatternConsumer tails the pattern topic as a consumer-group member.
// Offsets are auto-committed, so a handler error does not cause a redelivery.
type PatternConsumer struct {
	client *kgo.Client
	group  string
	topic  string
	closed atomic.Bool

	decoded   atomic.Int64
	malformed atomic.Int64
}

// NewPatternConsumer joins group on topic. fromStart picks the earliest
// offset for a group with no committed position; otherwise only new events
// are read.
func NewPatternConsumer(brokers []string, group, topic string, fromStart bool) (*PatternConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("bus: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("bus: topic is required")
	}

	reset := kgo.NewOffset().AtEnd()
	if fromStart {
		reset = kgo.NewOffset().AtStart()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(group),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(reset),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: create consumer: %w", err)
	}

	log.Info().
		Strs("brokers", brokers).
		Str("group", group).
		Str("topic", topic).
		Bool("from_start", fromStart).
		Msg("bus: pattern consumer created")

	return &PatternConsumer{client: client, group: group, topic: topic}, nil
}

// Consume polls until ctx is cancelled and hands every decodable event to
// fn. Undecodable records are counted and skipped.
func (c *PatternConsumer) Consume(ctx context.Context, fn PatternFunc) error {
	if c.closed.Load() {
		return errors.New("bus: consumer is closed")
	}
	handle := decodeInto(fn, &c.decoded, &c.malformed)

	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("bus: fetch error")
		})
		fetches.EachRecord(func(r *kgo.Record) {
			if err := handle(ctx, recordToMessage(r)); err != nil {
				log.Warn().Err(err).Str("key", string(r.Key)).Int64("offset", r.Offset).Msg("bus: pattern skipped")
			}
		})
	}
}

// Counts returns decoded and malformed record totals.
func (c *PatternConsumer) Counts() (decoded, malformed int64) {
	return c.decoded.Load(), c.malformed.Load()
}

func (c *PatternConsumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.client.Close()
	log.Info().Str("group", c.group).Msg("bus: pattern consumer closed")
}

// decodeInto turns fn into a raw message handler.
func decodeInto(fn PatternFunc, decoded, malformed *atomic.Int64) func(context.Context, Message) error {
	return func(ctx context.Context, msg Message) error {
		pm, err := DecodePattern(msg)
		if err != nil {
			malformed.Add(1)
			return err
		}
		decoded.Add(1)
		return fn(ctx, pm)
	}
}

func recordToMessage(r *kgo.Record) Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}
