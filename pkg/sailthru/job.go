package sailthru

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	// ErrJobFailed is returned when a job ends in a status other than "completed".
	ErrJobFailed = errors.New("job did not complete")
	// ErrJobPending is returned when MaxElapsed passes while the job is still running.
	ErrJobPending = errors.New("job still running")
)

// WaitOptions controls the polling schedule of WaitForJob.
type WaitOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// WaitForJob polls the job status on an exponential schedule until the job
// completes. A failed status check stops polling and is returned as is.
func (c *Client) WaitForJob(ctx context.Context, jobID string, opts WaitOptions) (Value, error) {
	if jobID == "" {
		return Value{}, fmt.Errorf("job id is required")
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 30 * time.Second
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = 10 * time.Minute
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = opts.InitialInterval
	expBackoff.MaxInterval = opts.MaxInterval
	expBackoff.Reset()

	polls := 0
	operation := func() (Value, error) {
		polls++
		status, err := c.GetJob(ctx, jobID)
		if err != nil {
			return Value{}, backoff.Permanent(err)
		}

		state, _ := status.Get("status").AsString()
		switch state {
		case "completed":
			return status, nil
		case "failed", "expired":
			return status, backoff.Permanent(fmt.Errorf("%w: job %s status %q", ErrJobFailed, jobID, state))
		}

		c.logger.Debug("Job still running",
			zap.String("job_id", jobID),
			zap.String("status", state),
			zap.Int("polls", polls))
		return Value{}, ErrJobPending
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(opts.MaxElapsed))
	if err != nil {
		c.logger.Warn("Stopped waiting for job",
			zap.String("job_id", jobID),
			zap.Int("polls", polls),
			zap.Error(err))
		return result, err
	}

	c.logger.Info("Job completed",
		zap.String("job_id", jobID),
		zap.Int("polls", polls))
	return result, nil
}
