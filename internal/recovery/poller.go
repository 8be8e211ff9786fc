// Package recovery drives the credential recovery that follows a restore: the
// DBaaS aggregator is asked to push user passwords again and the DBaaS adapter
// is polled until it reports the outcome.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/config"
)

// State is the credential recovery state reported by the adapter.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

func (s State) terminal() bool {
	return s == StateDone || s == StateFailed
}

// Clock is the part of clock.Clock the poller needs.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var _ Clock = clock.WallClock

// StateSource reports the current recovery state.
type StateSource interface {
	State(ctx context.Context) (State, error)
}

// Initiator starts a recovery.
type Initiator interface {
	RestorePasswords(ctx context.Context) error
}

// FailedError is returned when recovery ends in a state other than done.
type FailedError struct {
	State    State
	TimedOut bool
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("User recovery has failed with following state: %s", e.State)
}

// Is makes a recovery that ran out of time match errors.Timeout.
func (e *FailedError) Is(target error) bool {
	return e.TimedOut && target == errors.Timeout
}

// Poller runs the recovery state machine. A nil Poller is disabled.
type Poller struct {
	adapter       StateSource
	aggregator    Initiator
	clock         Clock
	stateInterval time.Duration
	retryInterval time.Duration
	timeout       time.Duration
	log           zerolog.Logger
}

// NewPoller wires the poller with explicit collaborators.
func NewPoller(adapter StateSource, aggregator Initiator, clk Clock, cfg config.RecoveryConfig, log zerolog.Logger) *Poller {
	return &Poller{
		adapter:       adapter,
		aggregator:    aggregator,
		clock:         clk,
		stateInterval: cfg.StateInterval,
		retryInterval: cfg.RetryInterval,
		timeout:       cfg.Timeout,
		log:           log.With().Str("component", "recovery").Logger(),
	}
}

// FromConfig builds a poller against the configured DBaaS services. It
// returns nil when recovery is not configured.
func FromConfig(cfg *config.Config, log zerolog.Logger) (*Poller, error) {
	if !cfg.DBaaS.RecoveryEnabled() {
		return nil, nil
	}
	adapter, err := NewAdapter(cfg.DBaaS, cfg.Security)
	if err != nil {
		return nil, err
	}
	aggregator, err := NewAggregator(cfg.DBaaS, cfg.Security)
	if err != nil {
		return nil, err
	}
	return NewPoller(adapter, aggregator, clock.WallClock, cfg.Recovery, log), nil
}

// Run drives recovery to a terminal state. It returns nil once the adapter
// reports done and a *FailedError when recovery failed or timed out.
func (p *Poller) Run(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.log.Info().Msg("Users recovery has started")

	state, err := p.adapter.State(ctx)
	if err != nil {
		p.log.Info().Err(err).Msg("unable to read users recovery state")
	}
	if state != StateRunning {
		state = StateIdle
	}

	for !state.terminal() {
		if state == StateIdle {
			if err := p.initiate(ctx); err != nil {
				return err
			}
		}
		if err := p.sleep(ctx, p.stateInterval); err != nil {
			return err
		}
		next, err := p.adapter.State(ctx)
		if err != nil {
			p.log.Info().Err(err).Msg("Unable to check users recovery state")
			continue
		}
		if next != state {
			p.log.Info().Str("from", string(state)).Str("to", string(next)).Msg("users recovery state changed")
		}
		state = next
	}

	if state == StateFailed {
		return &FailedError{State: state}
	}
	p.log.Info().Str("state", string(state)).Msg("Users recovery is finished")
	return nil
}

// initiate calls the aggregator until it accepts the request or the timeout
// elapses.
func (p *Poller) initiate(ctx context.Context) error {
	start := p.clock.Now()
	for {
		if p.clock.Now().Sub(start) > p.timeout {
			p.log.Info().Dur("timeout", p.timeout).Msg("Timeout reached during users passwords recovery")
			return &FailedError{State: StateFailed, TimedOut: true}
		}
		err := p.aggregator.RestorePasswords(ctx)
		if err == nil {
			return nil
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			p.log.Info().Str("kind", reqErr.Kind.String()).Err(err).Msg("Unable to restore user passwords via DBaaS aggregator")
		} else {
			p.log.Info().Err(err).Msg("Unable to restore user passwords via DBaaS aggregator")
		}
		if err := p.sleep(ctx, p.retryInterval); err != nil {
			return err
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-p.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
