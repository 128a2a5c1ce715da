package fmp

import (
	"github.com/rs/zerolog"
)

// SweepJob prunes expired sheets from the fundamentals cache.
// It should be scheduled to run daily.
type SweepJob struct {
	client *Client
	log    zerolog.Logger
}

// NewSweepJob creates a new fundamentals cache sweep job.
func NewSweepJob(client *Client, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		client: client,
		log:    log.With().Str("job", "fundamentals_sweep").Logger(),
	}
}

// Run removes all expired entries from the cache.
func (j *SweepJob) Run() error {
	removed := j.client.SweepExpired()
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("Pruned expired fundamentals sheets")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "fundamentals_sweep"
}
