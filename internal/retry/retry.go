// Package retry wraps remote limit-fetch calls with throttle-aware
// exponential backoff. Only rate-limit errors are retried; every other error
// class propagates immediately with its classification.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"

	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

const (
	// MaxAttempts is the attempt ceiling for throttled calls.
	MaxAttempts = 3
	// BaseDelay is the backoff base: waits are 2^attempt * BaseDelay.
	BaseDelay = 2 * time.Second
)

// Backoff retries fn on throttling errors, sleeping 2^attempt * BaseDelay
// between attempts (2s, 4s for the default ceiling of 3). Non-throttling
// errors and ceiling exhaustion return the last error unchanged.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Sleep    func(time.Duration) // injectable for tests
}

func New() *Backoff {
	return &Backoff{
		Attempts: MaxAttempts,
		Base:     BaseDelay,
		Sleep:    time.Sleep,
	}
}

// Do runs fn up to the attempt ceiling. The backoff sleep blocks the calling
// goroutine so a throttled worker slows itself down, not the whole pool.
func (b *Backoff) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if Classify(err) != model.ReasonThrottled || attempt == b.Attempts-1 {
			return err
		}
		b.Sleep(time.Duration(1<<attempt) * b.Base)
	}
	return err
}

// Classify maps an error to the failure-reason taxonomy using the AWS
// API error code when one is present.
func Classify(err error) model.FailureReason {
	if err == nil {
		return ""
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "Throttling", "ThrottlingException", "RequestLimitExceeded":
			return model.ReasonThrottled
		case "NoSuchResourceException", "ResourceNotFoundException":
			return model.ReasonNotFound
		case "AccessDeniedException", "UnauthorizedOperation", "AccessDenied":
			return model.ReasonPermissionDenied
		}
	}
	return model.ReasonUnknown
}
