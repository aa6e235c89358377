package categorize

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// PollOutcome is the terminal result of monitoring a job. Callers can tell
// a job that failed from one that was still running when time ran out.
type PollOutcome int

const (
	// PollSucceeded means the job reached its success terminal state.
	PollSucceeded PollOutcome = iota
	// PollFailed means the job reached a failure terminal state, or its
	// status could not be read.
	PollFailed
	// PollDeadlineExceeded means the deadline or the caller's context ended
	// first; the job is left running remotely.
	PollDeadlineExceeded
)

// String returns the outcome name for logging.
func (o PollOutcome) String() string {
	switch o {
	case PollSucceeded:
		return "Succeeded"
	case PollFailed:
		return "Failed"
	case PollDeadlineExceeded:
		return "DeadlineExceeded"
	default:
		return "Unknown"
	}
}

// PollJob checks a job's status on a fixed interval until it reaches a
// terminal state or the deadline elapses. The first check happens
// immediately.
func PollJob(ctx context.Context, jobs blogwatch.InferenceJobService, handle string, interval, deadline time.Duration) PollOutcome {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	expiry := time.NewTimer(deadline)
	defer expiry.Stop()

	for {
		status, err := jobs.GetJobStatus(ctx, handle)
		if err != nil {
			log.Error().Err(err).Str("job", handle).Msg("Failed to read job status")
			return PollFailed
		}

		log.Info().Str("job", handle).Stringer("status", status).Msg("Job status")

		switch status {
		case blogwatch.JobStatusCompleted:
			return PollSucceeded
		case blogwatch.JobStatusFailed, blogwatch.JobStatusStopped:
			return PollFailed
		}

		select {
		case <-ctx.Done():
			log.Warn().Str("job", handle).Msg("Job monitoring cancelled, job left running")
			return PollDeadlineExceeded
		case <-expiry.C:
			log.Warn().Str("job", handle).Dur("deadline", deadline).Msg("Job monitoring deadline exceeded")
			return PollDeadlineExceeded
		case <-ticker.C:
		}
	}
}
