package broadcast

import (
	"context"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

var (
	_ core.Sink = (*LogSink)(nil)
	_ core.Sink = (*ChannelSink)(nil)
	_ core.Sink = (*FuncSink)(nil)
)

// LogSink writes every event to a logger.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNoOp(logger)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Init(_ context.Context, info core.RunInfo) error {
	s.logger.Info("run.init", "run_id", info.RunID, "total", info.Total, "experiment", info.Experiment.Name)
	return nil
}

func (s *LogSink) Handle(_ context.Context, ev core.Event) error {
	switch ev.Type {
	case core.EventStarted:
		s.logger.Info("run.started", "run_id", ev.RunID, "total", ev.Total)
	case core.EventProgress:
		if p := ev.Progress; p != nil {
			s.logger.Debug("run.progress", "run_id", ev.RunID, "completed", p.Completed, "total", p.Total,
				"passed", p.Passed, "failed", p.Failed, "errored", p.Errored, "percent", p.Percent)
		}
	case core.EventCompleted:
		args := []any{"run_id", ev.RunID}
		if m := ev.Metrics; m != nil {
			args = append(args, "total", m.Total, "passed", m.Passed, "failed", m.Failed, "errors", m.Errors, "pass_rate", m.PassRate)
		}
		s.logger.Info("run.completed", args...)
	case core.EventFailed:
		s.logger.Error("run.failed", "run_id", ev.RunID, "error", ev.Error)
	case core.EventCancelled:
		s.logger.Warn("run.cancelled", "run_id", ev.RunID)
	}
	return nil
}

// ChannelSink forwards events to a channel. A send waits until the channel
// accepts the event or the handle timeout expires. The channel is never
// closed by the sink.
type ChannelSink struct {
	ch chan<- core.Event
}

// NewChannelSink creates a ChannelSink writing to ch.
func NewChannelSink(ch chan<- core.Event) *ChannelSink { return &ChannelSink{ch: ch} }

func (s *ChannelSink) Name() string { return "channel" }

func (s *ChannelSink) Init(context.Context, core.RunInfo) error { return nil }

func (s *ChannelSink) Handle(ctx context.Context, ev core.Event) error {
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FuncSink adapts a function to core.Sink.
type FuncSink struct {
	name string
	fn   func(ctx context.Context, ev core.Event) error
}

// NewFuncSink creates a FuncSink.
func NewFuncSink(name string, fn func(ctx context.Context, ev core.Event) error) *FuncSink {
	return &FuncSink{name: name, fn: fn}
}

func (s *FuncSink) Name() string { return s.name }

func (s *FuncSink) Init(context.Context, core.RunInfo) error { return nil }

func (s *FuncSink) Handle(ctx context.Context, ev core.Event) error { return s.fn(ctx, ev) }
