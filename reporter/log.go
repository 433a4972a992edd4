package reporter

import (
	"context"
	"errors"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// Log writes one structured line per result and one per run.
type Log struct {
	logger *logging.EvalLogger
}

var _ core.Reporter = (*Log)(nil)

// NewLog creates a Log reporter. A nil logger writes JSON to stderr at info
// level.
func NewLog(logger *logging.EvalLogger) *Log {
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultLoggerConfig())
	}
	return &Log{logger: logger.WithComponent("reporter")}
}

func (l *Log) Init(_ context.Context, info core.RunInfo) error {
	l.logger = l.logger.WithRun(info.RunID)
	l.logger.Info("report.started", "total", info.Total, "experiment", info.Experiment.Name)
	return nil
}

func (l *Log) OnResult(_ context.Context, r core.Result) error {
	var err error
	if r.Status == core.StatusError {
		err = errors.New(r.Error)
	}
	l.logger.LogUnit(r.Index, string(r.Status), r.Duration, err)
	return nil
}

func (l *Log) Finalize(_ context.Context, state *core.RunState) error {
	if state == nil {
		return nil
	}
	var err error
	if state.Error != "" {
		err = errors.New(state.Error)
	}
	l.logger.LogRun(string(state.Status), state.Total, len(state.Results), state.Duration(), err)
	if m := state.Metrics; m != nil {
		l.logger.Info("report.summary",
			"passed", m.Passed, "failed", m.Failed, "evaluated", m.Evaluated, "errors", m.Errors,
			"pass_rate", m.PassRate, "p50_ms", m.Latency.P50Ms, "p95_ms", m.Latency.P95Ms)
	}
	return nil
}
