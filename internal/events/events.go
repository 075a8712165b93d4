// Package events implements an optional NATS JetStream publisher of
// submission outcomes, for downstream dashboards/consumers that want
// to react to a rate update without polling Prometheus or the audit
// database.
//
// Grounded on the teacher's internal/nats/publisher.go near-directly:
// the same jetstream.CreateOrUpdateStream / WithMsgID dedup idiom,
// adapted from Polymarket log events to rate-submission outcomes —
// subject naming and payload shape changed, connection/stream/publish
// plumbing kept.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	streamName            = "EUR2CCD"
	streamSubjectPattern  = "EUR2CCD.*"
	streamCreateTimeout   = 10 * time.Second
	rateSubmittedSubject  = "EUR2CCD.RateSubmitted"
	rateHaltedSubject     = "EUR2CCD.RateHalted"
	streamDuplicateWindow = 20 * time.Minute
)

// Outcome is the payload published for either a successful submission
// or a halt, distinguished by Subject.
type Outcome struct {
	CorrelationID  string    `json:"correlation_id"`
	Classification string    `json:"classification"`
	AggregatedRate string    `json:"aggregated_rate"`
	SubmittedRate  string    `json:"submitted_rate,omitempty"`
	Node           string    `json:"node,omitempty"`
	SequenceNumber uint64    `json:"sequence_number,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher publishes update-tick outcomes to NATS JetStream with
// deduplication, mirroring the teacher's Publisher.
type Publisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewPublisher connects to natsURL and ensures the EUR2CCD stream
// exists, retaining events for maxAge.
func NewPublisher(ctx context.Context, natsURL string, maxAge time.Duration, logger zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("eur2ccd-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: creating jetstream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, streamCreateTimeout)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPattern},
		MaxAge:     maxAge,
		Storage:    jetstream.FileStorage,
		Duplicates: streamDuplicateWindow,
		Retention:  jetstream.LimitsPolicy,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: creating stream: %w", err)
	}

	logger.Info().
		Str("stream", streamName).
		Str("subjects", streamSubjectPattern).
		Dur("max_age", maxAge).
		Msg("events publisher initialized")

	return &Publisher{js: js, nc: nc, logger: logger.With().Str("component", "events").Logger()}, nil
}

// dedupKey mirrors the teacher's txHash-logIndex scheme: here the
// natural dedup unit is the node and sequence number an update was
// attempted against, since two ticks against the same (node, seq)
// pair represent the same underlying chain state.
func dedupKey(o Outcome) string {
	return fmt.Sprintf("%s-%d", o.Node, o.SequenceNumber)
}

// PublishSubmitted publishes a successful-submission outcome.
func (p *Publisher) PublishSubmitted(ctx context.Context, o Outcome) error {
	return p.publish(ctx, rateSubmittedSubject, o)
}

// PublishHalted publishes a halt outcome.
func (p *Publisher) PublishHalted(ctx context.Context, o Outcome) error {
	return p.publish(ctx, rateHaltedSubject, o)
}

func (p *Publisher) publish(ctx context.Context, subject string, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("events: marshaling outcome: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(dedupKey(o)))
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("subject", subject).
			Str("correlation_id", o.CorrelationID).
			Msg("failed to publish outcome")
		return fmt.Errorf("events: publishing to %s: %w", subject, err)
	}
	return nil
}

// Close closes the underlying NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
	p.logger.Info().Msg("events publisher closed")
}

// Healthy reports whether the NATS connection is currently up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}
