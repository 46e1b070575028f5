// Package scheduler runs the server's periodic sweeps: nonce purge, command
// expiry, rate-limit window eviction, and firmware deprecation — as named,
// independently failing jobs on a gocron/v2 scheduler.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/ratelimit"
)

// Scheduler owns the background sweep jobs.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger
}

// New creates a gocron-backed Scheduler. It does not start running jobs
// until Start is called.
func New(logger zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{gocron: s, logger: logger}, nil
}

// RegisterNonceSweep purges expired nonce rows every interval.
func (s *Scheduler) RegisterNonceSweep(store *nonce.Store, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := store.Purge()
			if err != nil {
				s.logger.Warn().Err(err).Msg("nonce purge sweep failed")
				return
			}
			if n > 0 {
				s.logger.Info().Int64("purged", n).Msg("nonce purge sweep")
			}
		}),
	)
	return err
}

// RegisterCommandExpirySweep expires overdue pending commands across every
// device — Poll already does this opportunistically per device, so this
// sweep only matters for devices that stop polling entirely.
func (s *Scheduler) RegisterCommandExpirySweep(commands *commandqueue.Service, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := commands.ExpireOverdue()
			if err != nil {
				s.logger.Warn().Err(err).Msg("command expiry sweep failed")
				return
			}
			if n > 0 {
				s.logger.Info().Int64("expired", n).Msg("command expiry sweep")
			}
		}),
	)
	return err
}

// RegisterRateLimitEviction drops rate-limit counter rows older than
// olderThan, keeping the table from growing unboundedly.
func (s *Scheduler) RegisterRateLimitEviction(limiter *ratelimit.Limiter, olderThan, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := limiter.EvictExpiredWindows(olderThan)
			if err != nil {
				s.logger.Warn().Err(err).Msg("rate limit window eviction failed")
				return
			}
			if n > 0 {
				s.logger.Info().Int64("evicted", n).Msg("rate limit window eviction")
			}
		}),
	)
	return err
}

// RegisterFirmwareDeprecationSweep deprecates any firmware release that a
// newer release has superseded for the same device type and policy.
func (s *Scheduler) RegisterFirmwareDeprecationSweep(commands *commandqueue.Service, interval time.Duration) error {
	_, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := commands.DeprecateSupersededReleases()
			if err != nil {
				s.logger.Warn().Err(err).Msg("firmware deprecation sweep failed")
				return
			}
			if n > 0 {
				s.logger.Info().Int64("deprecated", n).Msg("firmware deprecation sweep")
			}
		}),
	)
	return err
}

// Start begins running every registered job on its own schedule.
func (s *Scheduler) Start() {
	s.gocron.Start()
}

// Shutdown stops the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Shutdown() error {
	return s.gocron.Shutdown()
}
