package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
)

// Publisher hands newly inserted items to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, item catalog.ItemIdentifier) error
	// Flush writes anything still buffered.
	Flush(ctx context.Context) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

/*
KafkaPublisher buffers item messages and writes them in batches.

  - Messages are keyed by canonical key so one item always lands on the same
    partition.
  - A failed batch is dropped and recorded; publishing never feeds back into
    deduplication or leaf status.
*/
type KafkaPublisher struct {
	writer       MessageWriter
	batchSize    int
	metadataSink metadata.MetadataSink

	mu        sync.Mutex
	buffer    []kafka.Message
	published int
	dropped   int
}

func NewKafkaPublisher(brokers []string, topic string, batchSize int, metadataSink metadata.MetadataSink) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}, batchSize, metadataSink)
}

// NewKafkaPublisherWithWriter builds a publisher on a custom writer (tests).
func NewKafkaPublisherWithWriter(writer MessageWriter, batchSize int, metadataSink metadata.MetadataSink) *KafkaPublisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &KafkaPublisher{
		writer:       writer,
		batchSize:    batchSize,
		metadataSink: metadataSink,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, item catalog.ItemIdentifier) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, kafka.Message{
		Key:   []byte(item.CanonicalKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if len(p.buffer) < p.batchSize {
		p.mu.Unlock()
		return nil
	}
	batch := p.takeLocked()
	p.mu.Unlock()

	return p.write(ctx, batch)
}

func (p *KafkaPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.takeLocked()
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return p.write(ctx, batch)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Stats reports messages written and dropped so far.
func (p *KafkaPublisher) Stats() (published, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.dropped
}

func (p *KafkaPublisher) takeLocked() []kafka.Message {
	batch := p.buffer
	p.buffer = nil
	return batch
}

func (p *KafkaPublisher) write(ctx context.Context, batch []kafka.Message) error {
	err := p.writer.WriteMessages(ctx, batch...)

	p.mu.Lock()
	if err != nil {
		p.dropped += len(batch)
	} else {
		p.published += len(batch)
	}
	p.mu.Unlock()

	if err != nil {
		p.metadataSink.RecordError(
			time.Now(),
			"publish",
			"KafkaPublisher.write",
			metadata.CausePublishFailure,
			fmt.Sprintf("dropped %d messages: %v", len(batch), err),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrItemKey, string(batch[0].Key)),
			},
		)
		return err
	}
	return nil
}

// NoopPublisher discards everything; used when publishing is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, catalog.ItemIdentifier) error { return nil }
func (NoopPublisher) Flush(context.Context) error                           { return nil }
func (NoopPublisher) Close() error                                          { return nil }
