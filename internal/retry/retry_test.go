package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"

	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

func throttleErr() error {
	return &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "rate exceeded"}
}

func newRecordingBackoff() (*Backoff, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	b := New()
	b.Sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return b, sleeps
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	b, sleeps := newRecordingBackoff()
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v without being throttled", *sleeps)
	}
}

func TestDoRetriesThrottling(t *testing.T) {
	b, sleeps := newRecordingBackoff()
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return throttleErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("got sleeps %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d: got %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	b, sleeps := newRecordingBackoff()
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return throttleErr()
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != MaxAttempts {
		t.Errorf("got %d calls, want %d", calls, MaxAttempts)
	}
	// waits after the first and second attempt only, 6s total
	var total time.Duration
	for _, d := range *sleeps {
		total += d
	}
	if total != 6*time.Second {
		t.Errorf("total backoff %v, want 6s", total)
	}
}

func TestDoNoRetryOnOtherErrors(t *testing.T) {
	b, sleeps := newRecordingBackoff()
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return &smithy.GenericAPIError{Code: "AccessDeniedException"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-throttle error retried, %d calls", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v for a non-throttle error", *sleeps)
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	b, _ := newRecordingBackoff()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := b.Do(ctx, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("fn ran %d times under a cancelled context", calls)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.FailureReason
	}{
		{"throttled", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, model.ReasonThrottled},
		{"throttling alias", &smithy.GenericAPIError{Code: "ThrottlingException"}, model.ReasonThrottled},
		{"not found", &smithy.GenericAPIError{Code: "NoSuchResourceException"}, model.ReasonNotFound},
		{"denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, model.ReasonPermissionDenied},
		{"unauthorized", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, model.ReasonPermissionDenied},
		{"unknown api error", &smithy.GenericAPIError{Code: "InternalFailure"}, model.ReasonUnknown},
		{"plain error", errors.New("dial tcp: timeout"), model.ReasonUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
