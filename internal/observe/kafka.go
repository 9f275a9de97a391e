package observe

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// KafkaConfig configures the evaluation event stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// BatchTimeout bounds how long events wait before a batch is flushed.
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes evaluation events to a topic for offline analysis. Writes
// are asynchronous; delivery failures are only logged.
type Kafka struct {
	w   messageWriter
	now func() time.Time
	lg  *zap.Logger
}

var _ discount.Sink = (*Kafka)(nil)

// NewKafka creates an asynchronous Kafka sink.
func NewKafka(cfg KafkaConfig, lg *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				lg.Warn("Evaluation events dropped", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafka(w, lg), nil
}

func newKafka(w messageWriter, lg *zap.Logger) *Kafka {
	return &Kafka{w: w, now: time.Now, lg: lg}
}

func (k *Kafka) DiscountEvaluated(ctx context.Context, e discount.EvaluationEvent) {
	msg := kafka.Message{
		Key:   strconv.AppendInt(nil, e.DiscountID, 10),
		Value: encodeEvaluation(e, k.now()),
	}
	// The writer is async, so the request context only guards enqueueing.
	if err := k.w.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		k.lg.Warn("Enqueue evaluation event", zap.Int64("discount_id", e.DiscountID), zap.Error(err))
	}
}

// CandidateLookup is not streamed; lookups are covered by metrics.
func (k *Kafka) CandidateLookup(context.Context, discount.CacheEvent) {}

// Close flushes pending events.
func (k *Kafka) Close() error {
	if err := k.w.Close(); err != nil {
		return errors.Wrap(err, "close kafka writer")
	}
	return nil
}

func encodeEvaluation(e discount.EvaluationEvent, at time.Time) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.Field("discount_id", func(enc *jx.Encoder) { enc.Int64(e.DiscountID) })
	if e.Code != "" {
		enc.Field("code", func(enc *jx.Encoder) { enc.Str(e.Code) })
	}
	enc.Field("success", func(enc *jx.Encoder) { enc.Bool(e.Success) })
	enc.Field("amount", func(enc *jx.Encoder) { enc.Str(e.Amount.StringFixed(2)) })
	enc.Field("context", func(enc *jx.Encoder) {
		ec := e.Context
		enc.ObjStart()
		enc.Field("zone_id", func(enc *jx.Encoder) { enc.Int64(ec.ZoneID) })
		enc.Field("currency", func(enc *jx.Encoder) { enc.Str(ec.CurrencyCode) })
		enc.Field("channel_id", func(enc *jx.Encoder) { enc.Int64(ec.ChannelID) })
		enc.Field("user_id", func(enc *jx.Encoder) { enc.Int64(ec.UserID) })
		enc.Field("subtotal", func(enc *jx.Encoder) { enc.Str(ec.Cart.Subtotal.StringFixed(2)) })
		enc.Field("items", func(enc *jx.Encoder) { enc.Int(len(ec.Cart.Items)) })
		enc.ObjEnd()
	})
	enc.Field("evaluated_at", func(enc *jx.Encoder) { enc.Str(at.UTC().Format(time.RFC3339Nano)) })
	enc.ObjEnd()
	return enc.Bytes()
}
