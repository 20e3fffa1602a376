package pipeline

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Ajirohack/echo/internal/provider"
)

// maxStageAttempts bounds calls to a single backend within one stage: the
// initial attempt plus one retry, with no backoff.
const maxStageAttempts = 2

// runProvider executes up to maxStageAttempts calls against one backend.
// Every call is charged to the stage's rate-limit window and capped at
// min(remaining end-to-end budget, stage ceiling). Failures come back as
// a classified *StageError; attempts counts the calls actually issued.
func runProvider[T any](ctx context.Context, lim Limiter, stage Stage, name string, ceiling time.Duration, fn func(context.Context) (T, error)) (T, int, *StageError) {
	var zero T
	var lastErr error
	attempts := 0

	for attempts < maxStageAttempts {
		remaining := budgetLeft(ctx)
		if remaining <= 0 {
			// No room for this attempt; a retry that cannot finish is
			// reported as a timeout, not issued.
			cause := lastErr
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			return zero, attempts, &StageError{Stage: stage, Kind: KindTimeout, Provider: name, Cause: cause}
		}

		if !lim.Allow(stage) {
			return zero, attempts, &StageError{Stage: stage, Kind: KindRateLimited, Provider: name, Cause: lastErr}
		}
		attempts++

		timeout := ceiling
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		val, err := call(attemptCtx, fn)
		cancel()
		if err == nil {
			return val, attempts, nil
		}
		lastErr = err

		switch classify(err) {
		case KindInvalidInput:
			return zero, attempts, &StageError{Stage: stage, Kind: KindInvalidInput, Provider: name, Cause: err}
		case KindTimeout:
			return zero, attempts, &StageError{Stage: stage, Kind: KindTimeout, Provider: name, Cause: err}
		}
		// Backend failure: loop once more for the retry.
	}

	return zero, attempts, &StageError{Stage: stage, Kind: KindProviderFailure, Provider: name, Cause: lastErr}
}

// call runs one backend attempt in its own goroutine and returns as soon
// as the attempt finishes or the deadline fires. A backend that ignores
// cancellation is abandoned at the deadline, not awaited; the result
// channel is buffered so the goroutine can always complete.
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify maps a backend error to the pipeline taxonomy. Deadline and
// cancellation map to Timeout so callers can always tell "too slow" from
// "vendor rejected".
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Kind == provider.KindInvalidInput {
		return KindInvalidInput
	}
	return KindProviderFailure
}

// budgetLeft reports the time remaining until the context deadline, or
// effectively forever when no deadline is set.
func budgetLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	return time.Until(deadline)
}
