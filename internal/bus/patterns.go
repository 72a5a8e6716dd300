package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-trading/screener/internal/token"
)

// SchemaVersion of PatternMessage.
const SchemaVersion = "1.0.0"

// PatternMessage is the wire envelope for a pattern event on the stream.
type PatternMessage struct {
	EventID       string             `json:"event_id"`
	Timestamp     time.Time          `json:"ts"`
	SchemaVersion string             `json:"schema_version"`
	Producer      string             `json:"producer"`
	Pattern       token.PatternEvent `json:"pattern"`
}

// NewPatternMessage wraps e in an envelope stamped with a fresh event id.
func NewPatternMessage(producer string, e token.PatternEvent) PatternMessage {
	return PatternMessage{
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Producer:      producer,
		Pattern:       e,
	}
}

// DecodePattern parses a consumed message into a PatternMessage.
func DecodePattern(msg Message) (PatternMessage, error) {
	var pm PatternMessage
	if err := json.Unmarshal(msg.Value, &pm); err != nil {
		return PatternMessage{}, fmt.Errorf("decode pattern message at %s: %w", msg.Topic, err)
	}
	if pm.Pattern.TokenAddress == "" || pm.Pattern.PatternType == "" {
		return PatternMessage{}, fmt.Errorf("decode pattern message at %s: missing token or type", msg.Topic)
	}
	return pm, nil
}

// PatternPublisher mirrors recorded pattern events onto a topic, keyed by
// token address so all events for one token land on one partition.
type PatternPublisher struct {
	producer Producer
	topic    string
	source   string
}

func NewPatternPublisher(producer Producer, topic, source string) *PatternPublisher {
	return &PatternPublisher{producer: producer, topic: topic, source: source}
}

// Publish implements audit.Sink.
func (p *PatternPublisher) Publish(ctx context.Context, e token.PatternEvent) error {
	return p.producer.PublishJSON(ctx, p.topic, e.TokenAddress, NewPatternMessage(p.source, e))
}

// Close flushes and closes the underlying producer.
func (p *PatternPublisher) Close(ctx context.Context) error {
	err := p.producer.Flush(ctx)
	p.producer.Close()
	return err
}
