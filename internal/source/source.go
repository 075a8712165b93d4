// Package source implements the multi-source polling engine (C1): a
// small capability interface over heterogeneous HTTP price feeds, and
// a Poller that drives one source on its own ticker, pushing accepted
// readings into a bounded internal/history.SourceHistory and never
// terminating the process on failure.
//
// The poller loop mirrors the teacher's runRealtime ticker/ctx-done
// select (internal/syncer/syncer.go), and the tolerant-of-transient-
// errors posture follows bitbox-wallet-app's rates.go updater loop.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/ratio"
	"github.com/rs/zerolog"
)

// Source is the capability set every price feed implements: fetch-once
// and describe. The core holds sources as a homogeneous list and never
// branches on concrete type.
type Source interface {
	// Name returns the stable identifier used for history keys, logs,
	// and metric labels.
	Name() string
	// Fetch performs one network round trip and returns a validated,
	// non-negative, finite Rate.
	Fetch(ctx context.Context) (ratio.Rate, error)
}

// Poller drives a single Source on its own ticker, independent of every
// other poller and of the update loop.
type Poller struct {
	src      Source
	history  *history.SourceHistory
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewPoller builds a poller for src, writing into hist on the given
// interval. timeout bounds each individual fetch; per §4.1 it should be
// at most interval/2, but the poller does not enforce that — it is an
// implementation-free recommendation, not an invariant.
func NewPoller(src Source, hist *history.SourceHistory, interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		src:      src,
		history:  hist,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "poller").Str("source", src.Name()).Logger(),
	}
}

// Run blocks, polling on the configured interval until ctx is canceled.
// It never returns an error: every fetch failure is absorbed, logged at
// a severity lower than warning, and counted, per §4.1's deliberate
// anti-log-flood policy.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("starting source poller")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopping")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rate, err := p.src.Fetch(fetchCtx)
	if err == nil && rate.Zero() {
		err = errors.New("source returned a zero rate")
	}
	if err != nil {
		p.history.RecordFailure()
		metrics.RecordReadFailure(p.src.Name())
		// Deliberately Info, not Warn: one source being briefly
		// unreachable is routine and must not flood operator logs.
		p.logger.Info().Err(err).Msg("transient source read failure")
		return
	}

	p.history.Push(rate, time.Now())
	metrics.RecordRead(p.src.Name(), rate.Rat())
	p.logger.Debug().Str("rate", rate.FloatString(8)).Msg("source read accepted")
}
