package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"matchcore/src/config"
)

// Publisher hands trades to downstream consumers. Events of one call belong
// to a single market and arrive in execution order.
type Publisher interface {
	Publish(ctx context.Context, market string, events []TradeEvent) error
	Close() error
}

// New builds the publisher selected by cfg.Driver.
func New(cfg config.PublishConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(log.Logger), nil
	case "none":
		return Nop{}, nil
	case "nats":
		return NewNATSPublisher(cfg.NATS)
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("unknown publish driver %q", cfg.Driver)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, string, []TradeEvent) error { return nil }
func (Nop) Close() error                                        { return nil }

type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(l zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(_ context.Context, market string, events []TradeEvent) error {
	for _, e := range events {
		p.log.Info().
			Str("market", market).
			Str("trade_id", e.ID).
			Uint64("trade_number", e.TradeNumber).
			Uint64("maker_order_id", e.MakerOrderID).
			Uint64("taker_order_id", e.TakerOrderID).
			Str("taker_side", e.TakerSide).
			Int64("price", e.Price).
			Int64("quantity", e.Quantity).
			Uint64("sequence", e.Sequence).
			Msg("Trade executed")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes each trade as JSON on <prefix>.<market>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("matchcore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	log.Info().Str("url", cfg.URL).Str("subject_prefix", cfg.SubjectPrefix).Msg("Trade publisher connected to NATS")
	return newNATSPublisher(nc, cfg.SubjectPrefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(market string) string {
	return p.prefix + "." + market
}

func (p *NATSPublisher) Publish(_ context.Context, market string, events []TradeEvent) error {
	subject := p.Subject(market)
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("publish trade %d on %s: %w", e.TradeNumber, subject, err)
		}
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trades keyed by market code so every market keeps
// its order within one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Trade publisher writing to Kafka")
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, market string, events []TradeEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(market), Value: data})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d trades for %s: %w", len(msgs), market, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
