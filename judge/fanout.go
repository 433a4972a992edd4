package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// DefaultMemberTimeout bounds each composite member call.
const DefaultMemberTimeout = 60 * time.Second

type memberResult struct {
	judgment core.Judgment
	err      error
}

// fanOut invokes every member concurrently, each bounded by timeout, and
// collects results by member index. A member that does not return before its
// timeout is recorded as failed. Panics are recorded as failures.
func fanOut(ctx context.Context, members []Member, req core.JudgeRequest, timeout time.Duration, logger logging.Logger) []memberResult {
	results := make([]memberResult, len(members))

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, m Member) {
			defer wg.Done()
			results[i] = callMember(ctx, m, req, timeout)
			if results[i].err != nil {
				logger.Warn("judge.member_failed", "judge", m.Judge.Name(), "error", results[i].err.Error())
			}
		}(i, m)
	}
	wg.Wait()

	return results
}

func callMember(ctx context.Context, m Member, req core.JudgeRequest, timeout time.Duration) memberResult {
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan memberResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- memberResult{err: fmt.Errorf("member %s panicked: %v", m.Judge.Name(), r)}
			}
		}()
		j, err := m.Judge.Judge(mctx, m.request(req))
		if err == nil && j.Verdict.IsZero() {
			err = errors.New("empty verdict")
		}
		done <- memberResult{judgment: j, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			r.err = fmt.Errorf("member %s: %w", m.Judge.Name(), r.err)
		}
		return r
	case <-mctx.Done():
		return memberResult{err: fmt.Errorf("member %s timed out after %s: %w", m.Judge.Name(), timeout, mctx.Err())}
	}
}

// collectErrors returns an error naming how many members failed, or nil.
func collectErrors(results []memberResult) error {
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d: %w", ErrMembersFailed, len(errs), len(results), errors.Join(errs...))
}
