// Package submitter implements the chain submitter (C4): the
// update-tick orchestrator that ties together the concordium node
// client, the rate aggregator, the safety governor, signing, and the
// optional audit/events hooks, on its own timer decoupled from the
// source pollers' pull tick (per spec.md §5).
//
// The loop shape — decoupled ticker, ctx.Done() select, metrics
// updated per cycle — is grounded on the teacher's
// internal/syncer/syncer.go Start/run* loops, generalized from block
// sync ticks to rate-update ticks.
package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/concordium/eur2ccd-service/internal/aggregator"
	"github.com/concordium/eur2ccd-service/internal/audit"
	"github.com/concordium/eur2ccd-service/internal/concordium"
	"github.com/concordium/eur2ccd-service/internal/events"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/ratio"
	"github.com/concordium/eur2ccd-service/internal/signing"
)

// Config wires the submitter's collaborators. Histories is the shared
// per-source history store populated by internal/source.Poller
// instances; the submitter only reads it, through
// internal/aggregator.Aggregate and, for audit records, each history's
// latest sample.
type Config struct {
	Histories      map[string]*history.SourceHistory
	Chain          *concordium.Client
	Governor       *governor.Governor
	Keys           *signing.KeyStore
	Audit          *audit.Hook     // nil if database-url is unset
	Events         *events.Publisher // nil if no NATS configured
	UpdateInterval time.Duration
	TickDeadline   time.Duration // must be < UpdateInterval, per §5
	Logger         zerolog.Logger
}

// Submitter drives the update tick on its own ticker, independent of
// the pull-tick pollers.
type Submitter struct {
	cfg    Config
	logger zerolog.Logger
}

// New builds a Submitter from cfg. If TickDeadline is unset or not
// strictly less than UpdateInterval, it defaults to 90% of
// UpdateInterval so overlapping submissions cannot occur.
func New(cfg Config) *Submitter {
	if cfg.TickDeadline <= 0 || cfg.TickDeadline >= cfg.UpdateInterval {
		cfg.TickDeadline = cfg.UpdateInterval * 9 / 10
	}
	return &Submitter{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "submitter").Logger(),
	}
}

// Run blocks, ticking on the configured update interval until ctx is
// canceled. Each tick runs with its own bounded deadline so a stuck
// node does not delay the next tick indefinitely.
func (s *Submitter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.UpdateInterval).Msg("starting update loop")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("update loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs exactly one update cycle. It never returns an error to its
// caller: every failure is absorbed, logged, and counted, per §7's
// propagation policy that the two long-lived loops catch all errors at
// their top frame.
func (s *Submitter) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.cfg.TickDeadline)
	defer cancel()

	correlationID := uuid.New().String()
	log := s.logger.With().Str("correlation_id", correlationID).Logger()

	params, sequenceNumber, node, err := s.cfg.Chain.FetchTickState(tickCtx)
	if err != nil {
		// §4.4 step 1: node list exhausted is not a halt condition,
		// the next tick simply retries.
		log.Info().Err(err).Msg("no reachable node this tick, skipping")
		return
	}

	candidate, ok := aggregator.Aggregate(s.cfg.Histories)
	if !ok {
		log.Info().Msg("no source history available, skipping tick")
		return
	}

	previous, err := ratio.FromOnChainPair(params.MicroCCDPerEuroNumerator, params.MicroCCDPerEuroDenominator)
	if err != nil {
		log.Error().Err(err).Msg("malformed on-chain rate, skipping tick")
		return
	}

	class, submit, err := s.cfg.Governor.Evaluate(candidate, previous)
	if err != nil {
		log.Error().Err(err).Msg("governor evaluation failed, skipping tick")
		return
	}

	log = log.With().
		Str("classification", class.String()).
		Str("candidate", candidate.FloatString(8)).
		Str("previous", previous.FloatString(8)).
		Str("node", node).
		Uint64("sequence_number", sequenceNumber).
		Logger()

	if class == governor.Halt {
		log.Error().Msg("halt classification: update withheld; lockfile persisted and forced dry-run entered unless already in dry-run")
		s.publishOutcome(ctx, events.Outcome{
			CorrelationID:  correlationID,
			Classification: class.String(),
			AggregatedRate: candidate.String(),
			Node:           node,
			SequenceNumber: sequenceNumber,
			Timestamp:      time.Now(),
		}, true)
		return
	}

	if class == governor.Warn {
		log.Warn().Msg("warn classification")
	}

	if !submit {
		log.Info().Bool("dry_run", true).Msg("dry-run: would have submitted this candidate")
		s.writeAudit(ctx, correlationID, candidate, ratio.Rate{}, class, false)
		return
	}

	s.submit(tickCtx, log, correlationID, candidate, params, sequenceNumber, node, class)
}

func (s *Submitter) submit(ctx context.Context, log zerolog.Logger, correlationID string, candidate ratio.Rate, params concordium.ChainParameters, sequenceNumber uint64, node string, class governor.Classification) {
	numerator, denominator, err := candidate.OnChainPair()
	if err != nil {
		log.Error().Err(err).Msg("rate cannot be encoded on-chain, skipping tick")
		return
	}

	if !s.cfg.Keys.MeetsThreshold(params.UpdateThreshold) {
		log.Error().
			Int("held_keys", s.cfg.Keys.Len()).
			Int("required_threshold", params.UpdateThreshold).
			Msg("insufficient governance keys held for the chain's current authorization threshold")
		metrics.RecordSubmissionFailure()
		return
	}

	message := signingMessage(sequenceNumber, numerator, denominator)
	sigs := s.cfg.Keys.SignAll(message)

	result, err := s.cfg.Chain.Submit(ctx, node, sequenceNumber, numerator, denominator, sigs)
	if err != nil {
		log.Error().Err(err).Msg("submission failed")
		metrics.RecordSubmissionFailure()
		return
	}

	if result.Duplicate {
		log.Info().Msg("duplicate sequence number absorbed as success")
	} else {
		log.Info().Msg("update submitted")
	}

	metrics.RecordSubmission(numerator, denominator)

	submitted, err := ratio.FromOnChainPair(numerator, denominator)
	if err != nil {
		submitted = candidate
	}
	s.writeAudit(ctx, correlationID, candidate, submitted, class, true)
	s.publishOutcome(ctx, events.Outcome{
		CorrelationID:  correlationID,
		Classification: class.String(),
		AggregatedRate: candidate.String(),
		SubmittedRate:  submitted.String(),
		Node:           node,
		SequenceNumber: sequenceNumber,
		Timestamp:      time.Now(),
	}, false)
}

// signingMessage builds the byte string the governance keys sign over:
// sequence number and the candidate numerator/denominator pair. The
// exact wire encoding of a real Concordium update instruction is
// implementation detail of the node's gRPC v2 service; this is the
// payload the submitter controls directly.
func signingMessage(sequenceNumber, numerator, denominator uint64) []byte {
	return []byte(fmt.Sprintf("seq:%d;num:%d;den:%d", sequenceNumber, numerator, denominator))
}

// writeAudit invokes the optional MySQL audit hook synchronously.
// Failure is logged and counted but never blocks future updates, per
// §4.4 step 8.
func (s *Submitter) writeAudit(ctx context.Context, correlationID string, aggregated, submitted ratio.Rate, class governor.Classification, didSubmit bool) {
	if s.cfg.Audit == nil {
		return
	}

	rec := audit.Record{
		CorrelationID:  correlationID,
		AggregatedRate: aggregated.String(),
		SubmittedRate:  submitted.String(),
		Classification: class.String(),
		Submitted:      didSubmit,
		Observed:       s.observedSources(),
	}

	if err := s.cfg.Audit.Write(ctx, rec, time.Now()); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("audit write failed")
		metrics.RecordAuditWriteFailure()
	}
}

// publishOutcome emits the optional NATS event for downstream
// consumers. Failure is logged only — never fatal to the tick.
func (s *Submitter) publishOutcome(ctx context.Context, outcome events.Outcome, halted bool) {
	if s.cfg.Events == nil {
		return
	}

	var err error
	if halted {
		err = s.cfg.Events.PublishHalted(ctx, outcome)
	} else {
		err = s.cfg.Events.PublishSubmitted(ctx, outcome)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("correlation_id", outcome.CorrelationID).Msg("publishing outcome event failed")
	}
}

func (s *Submitter) observedSources() []audit.SourceObservation {
	out := make([]audit.SourceObservation, 0, len(s.cfg.Histories))
	for name, h := range s.cfg.Histories {
		latest, ok := h.Latest()
		if !ok {
			continue
		}
		out = append(out, audit.SourceObservation{Source: name, Rate: latest.FloatString(8)})
	}
	return out
}
