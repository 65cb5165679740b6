package research

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Policy is the shared retry configuration for collaborator calls. Every
// outbound call goes through the same Do wrapper rather than per-call retry
// loops.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Retryable      func(error) bool
}

// DefaultPolicy matches the collaborator failure taxonomy: rate limits,
// timeouts and 5xx responses retry with exponential backoff; everything else
// surfaces immediately.
func DefaultPolicy(maxAttempts int) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Retryable:      IsRetryable,
	}
}

// Do runs op under the policy, backing off exponentially between attempts.
// The context cancels waiting immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := p.InitialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

// IsRetryable classifies collaborator errors per the failure taxonomy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout reports whether the error came from a deadline rather than an
// upstream rejection. Timeouts degrade to a partial-coverage response instead
// of a full fallback.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
