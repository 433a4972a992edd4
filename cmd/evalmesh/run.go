package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hupe1980/evalmesh/broadcast"
	"github.com/hupe1980/evalmesh/casesource"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/judge"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/model"
	"github.com/hupe1980/evalmesh/pipeline"
	"github.com/hupe1980/evalmesh/reporter"
	"github.com/hupe1980/evalmesh/runner"
)

type runFlags struct {
	suite       string
	provider    string
	model       string
	judgeModels []string
	strategy    string
	concurrency int
	timeout     time.Duration
	sequential  bool
	name        string
	tags        []string
	retries     uint
	rateLimit   float64
	cacheSize   int
	trim        bool
	verbose     bool
	metricsAddr string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an evaluation suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSuite(ctx, cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.suite, "suite", "", "suite file (YAML)")
	cmd.Flags().StringVar(&f.provider, "provider", "openai", "model provider: openai, anthropic or mock")
	cmd.Flags().StringVar(&f.model, "model", "", "model answering the cases (provider default if empty)")
	cmd.Flags().StringSliceVar(&f.judgeModels, "judge-model", nil, "judge model(s); several models form a consensus panel")
	cmd.Flags().StringVar(&f.strategy, "strategy", "majority", "consensus strategy: unanimous, majority or threshold:<t>")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", core.DefaultConcurrency, "max concurrent cases")
	cmd.Flags().DurationVar(&f.timeout, "timeout", core.DefaultTimeout, "per-case timeout")
	cmd.Flags().BoolVar(&f.sequential, "sequential", false, "run cases one at a time in file order")
	cmd.Flags().StringVar(&f.name, "name", "", "experiment name; required for the run to be stored")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "experiment tag (repeatable)")
	cmd.Flags().UintVar(&f.retries, "retries", 0, "retry failed cases up to n extra times")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "max cases started per second (0 disables)")
	cmd.Flags().IntVar(&f.cacheSize, "cache", 0, "cache judgments of identical cases (LRU size, 0 disables)")
	cmd.Flags().BoolVar(&f.trim, "trim", true, "trim whitespace from inputs and responses")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print every result")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}

func runSuite(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	logger := g.logger()

	work, err := newModel(f.provider, f.model)
	if err != nil {
		return err
	}
	j, err := buildJudge(f, logger)
	if err != nil {
		return err
	}

	b := core.NewRunConfig().
		WithJudge(j).
		AddSource(casesource.LoadYAML(f.suite, func(o *casesource.YAMLOptions) { o.Model = work })).
		WithConcurrency(f.concurrency).
		WithTimeout(f.timeout).
		WithParallel(!f.sequential).
		AddReporter(reporter.NewConsole(func(o *reporter.ConsoleOptions) {
			o.Writer = cmd.OutOrStdout()
			o.Verbose = f.verbose
		})).
		AddSink(broadcast.NewLogSink(logger.WithComponent("broadcast")))

	if err := applyMiddleware(b, f, logger); err != nil {
		return err
	}
	if f.trim {
		b.AddPreProcessor(pipeline.TrimSpace{}).AddResponseProcessor(pipeline.TrimSpace{})
	}
	if f.name != "" || len(f.tags) > 0 {
		b.WithExperiment(core.Experiment{
			Name:   f.name,
			Tags:   f.tags,
			Params: map[string]any{"provider": f.provider, "model": f.model, "judge_models": strings.Join(f.judgeModels, ",")},
		})
	}
	if g.store != "" {
		st, closeStore, err := openStore(g.store, logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()
		b.WithStore(st)
	}
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		b.AddSink(broadcast.NewPrometheusSink(reg))
		shutdown, err := serveMetrics(f.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	r := runner.New(func(o *runner.Options) { o.Logger = logger })
	id := r.Start(ctx, b.Build())

	state, err := r.Wait(ctx, id)
	if errors.Is(err, context.Canceled) {
		_ = r.Cancel(id)
		state, err = r.Wait(context.Background(), id)
	}
	if err != nil {
		return err
	}

	switch state.Status {
	case core.RunCompleted:
		return nil
	case core.RunCancelled:
		return fmt.Errorf("run %s cancelled", state.ID)
	default:
		return fmt.Errorf("run %s failed: %s", state.ID, state.Error)
	}
}

func buildJudge(f *runFlags, logger *logging.EvalLogger) (core.Judge, error) {
	names := f.judgeModels
	if len(names) == 0 {
		names = []string{""}
	}
	models := make([]model.Model, 0, len(names))
	for _, name := range names {
		m, err := newModel(f.provider, name)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	if len(models) == 1 {
		return judge.NewPrompt(models[0], func(o *judge.PromptOptions) { o.Logger = logger }), nil
	}

	strategy, err := parseStrategy(f.strategy)
	if err != nil {
		return nil, err
	}
	members := make([]judge.Member, len(models))
	for i, m := range models {
		members[i] = judge.Member{Judge: judge.NewPrompt(m, func(o *judge.PromptOptions) {
			o.Name = m.Info().Name
			o.Logger = logger
		})}
	}
	return judge.NewConsensus(members, strategy, func(o *judge.ConsensusOptions) { o.Logger = logger })
}

func applyMiddleware(b *core.Builder, f *runFlags, logger *logging.EvalLogger) error {
	b.Use(pipeline.Tracing(), pipeline.Logging(logger.WithComponent("pipeline")))
	if f.rateLimit > 0 {
		b.Use(pipeline.RateLimit(rate.Limit(f.rateLimit), 1))
	}
	if f.cacheSize > 0 {
		mw, err := pipeline.Cache(f.cacheSize)
		if err != nil {
			return err
		}
		b.Use(mw)
	}
	if f.retries > 0 {
		b.Use(pipeline.Retry(func(o *pipeline.RetryOptions) {
			o.MaxAttempts = f.retries + 1
			o.Logger = logger
		}))
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
