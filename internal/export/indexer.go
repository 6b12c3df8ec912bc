package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
)

// SinkNameIndexer is the dispatch key for the search-index sink.
const SinkNameIndexer = "indexer"

// matchDocument is the index projection of a finder-rule match.
type matchDocument struct {
	Kind      string    `json:"kind"`
	RuleID    string    `json:"rule_id"`
	Source    string    `json:"source"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name,omitempty"`
	MessageID int64     `json:"message_id"`
	Date      time.Time `json:"date"`
	Sender    string    `json:"sender,omitempty"`
	SenderID  int64     `json:"sender_id,omitempty"`
	Text      string    `json:"text"`
	HasMedia  bool      `json:"has_media"`
}

// signalDocument is the index projection of an operational signal.
type signalDocument struct {
	Kind    string    `json:"kind"`
	Source  string    `json:"source"`
	GroupID int64     `json:"group_id,omitempty"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// IndexSink publishes documents to the indexing topic through an
// asynchronous producer. Messages are keyed by group ID so the hash
// partitioner keeps per-group ordering.
type IndexSink struct {
	producer  sarama.AsyncProducer
	topic     string
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	logger    zerolog.Logger
}

type IndexSinkConfig struct {
	Brokers []string
	Topic   string
	Logger  zerolog.Logger
}

func NewIndexSink(cfg IndexSinkConfig) (*IndexSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("index topic is required")
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.ClientID = "gramwatch-indexer"
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create index producer: %w", err)
	}

	s := &IndexSink{
		producer: producer,
		topic:    cfg.Topic,
		logger:   cfg.Logger.With().Str("component", "index_sink").Logger(),
	}

	s.wg.Add(2)
	go s.handleSuccesses()
	go s.handleErrors()

	s.logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("index producer initialized")
	return s, nil
}

func (s *IndexSink) Name() string { return SinkNameIndexer }

// Send projects the payload into its document shape and queues it.
// Matches and operational signals carry different fields.
func (s *IndexSink) Send(ctx context.Context, p *domain.SinkPayload) error {
	doc, key, err := project(p)
	if err != nil {
		return err
	}

	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal index document: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while queueing index document: %w", ctx.Err())
	}
}

func project(p *domain.SinkPayload) (any, string, error) {
	if p.Kind == domain.PayloadMatch {
		if p.Message == nil {
			return nil, "", fmt.Errorf("match payload without message")
		}
		doc := matchDocument{
			Kind:      p.Kind.String(),
			RuleID:    p.RuleID,
			Source:    p.Source,
			GroupID:   p.Message.GroupID,
			MessageID: p.Message.ID,
			Date:      p.Message.Date,
			Text:      p.Message.RawText,
			HasMedia:  p.Message.MediaID != nil,
		}
		if p.Group != nil {
			doc.GroupName = p.Group.Title
		}
		if p.Sender != nil {
			doc.Sender = p.Sender.DisplayName()
			doc.SenderID = p.Sender.ID
		}
		return doc, strconv.FormatInt(doc.GroupID, 10), nil
	}

	doc := signalDocument{
		Kind:   p.Kind.String(),
		Source: p.Source,
		Note:   p.Note,
		At:     p.At,
	}
	if p.Group != nil {
		doc.GroupID = p.Group.ID
	}
	return doc, doc.Kind, nil
}

func (s *IndexSink) handleSuccesses() {
	defer s.wg.Done()
	for msg := range s.producer.Successes() {
		s.logger.Debug().
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("index document delivered")
	}
}

func (s *IndexSink) handleErrors() {
	defer s.wg.Done()
	for err := range s.producer.Errors() {
		s.logger.Error().Err(err.Err).Msg("index document delivery failed")
	}
}

// Close drains the producer and waits for the response handlers.
func (s *IndexSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.producer.AsyncClose()
		s.wg.Wait()
	})
	return s.closeErr
}
