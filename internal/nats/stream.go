package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

const (
	// StreamName is the name of the chat audit stream.
	StreamName = "CHAT_AUDIT"

	// SubjectPrefix is the prefix for all audit subjects.
	SubjectPrefix = "chat"
)

// AuditStream publishes and replays chat audit records.
type AuditStream struct {
	client *Client
	logger *logger.Logger
	maxAge time.Duration
}

// NewAuditStream creates an audit stream keeping records for maxAge.
func NewAuditStream(client *Client, maxAge time.Duration, log *logger.Logger) *AuditStream {
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &AuditStream{client: client, logger: log, maxAge: maxAge}
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (s *AuditStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.maxAge,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Back-office chat audit trail",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	s.logger.Info("audit stream created", zap.String("stream", StreamName))
	return nil
}

// Subject returns the subject for an audit record. Chat ids are UUIDs and
// event types are snake_case, so neither contains subject separators.
func Subject(chatID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, token(chatID), token(eventType))
}

// ChatFilter returns the filter subject for all records of a chat.
func ChatFilter(chatID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, token(chatID))
}

func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Publish implements service.AuditSink.
func (s *AuditStream) Publish(ctx context.Context, rec *model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	ack, err := s.client.JetStream().Publish(ctx, Subject(rec.ChatID, string(rec.Type)), data,
		jetstream.WithMsgID(rec.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	rec.Sequence = ack.Sequence
	return nil
}

// Replay implements service.AuditReader. It returns up to limit records of
// chatID after afterSequence, the last sequence read and whether more may
// follow.
func (s *AuditStream) Replay(ctx context.Context, chatID string, afterSequence uint64, limit int) ([]model.AuditRecord, uint64, bool, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     ChatFilter(chatID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := s.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch audit records: %w", err)
	}

	records, lastSequence, fetched := s.collect(batch.Messages(), afterSequence)

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return records, lastSequence, fetched == limit, nil
}

// collect drains a fetched batch. The returned sequence starts at
// afterSequence and advances past malformed records too, so a caller paging
// with it never reads them again.
func (s *AuditStream) collect(msgs <-chan jetstream.Msg, afterSequence uint64) ([]model.AuditRecord, uint64, int) {
	records := make([]model.AuditRecord, 0)
	lastSequence := afterSequence
	fetched := 0
	for msg := range msgs {
		fetched++
		var seq uint64
		if meta, err := msg.Metadata(); err == nil {
			seq = meta.Sequence.Stream
			if seq > lastSequence {
				lastSequence = seq
			}
		}
		rec, err := decodeRecord(msg.Data())
		if err != nil {
			s.logger.Warn("skipping malformed audit record", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}
		rec.Sequence = seq
		records = append(records, rec)
	}
	return records, lastSequence, fetched
}

// RecordStats refreshes the stream size gauges.
func (s *AuditStream) RecordStats(ctx context.Context) error {
	stream, err := s.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	metrics.NATSStreamMessages.WithLabelValues(StreamName).Set(float64(info.State.Msgs))
	metrics.NATSStreamBytes.WithLabelValues(StreamName).Set(float64(info.State.Bytes))
	return nil
}

func decodeRecord(data []byte) (model.AuditRecord, error) {
	var rec model.AuditRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	if rec.ChatID == "" || rec.Type == "" {
		return rec, errors.New("record has no chat id or type")
	}
	return rec, nil
}
