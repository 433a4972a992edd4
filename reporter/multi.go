package reporter

import (
	"context"
	"errors"

	"github.com/hupe1980/evalmesh/core"
)

// Multi forwards every hook to each reporter in order. All reporters are
// invoked even when an earlier one fails; the errors are joined.
type Multi []core.Reporter

var _ core.Reporter = Multi(nil)

func (m Multi) Init(ctx context.Context, info core.RunInfo) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Init(ctx, info))
	}
	return errors.Join(errs...)
}

func (m Multi) OnResult(ctx context.Context, res core.Result) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.OnResult(ctx, res))
	}
	return errors.Join(errs...)
}

func (m Multi) Finalize(ctx context.Context, state *core.RunState) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Finalize(ctx, state))
	}
	return errors.Join(errs...)
}
