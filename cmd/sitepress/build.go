package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/custody"
	"git.home.luguber.info/inful/sitepress/internal/events"
	"git.home.luguber.info/inful/sitepress/internal/history"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
	"git.home.luguber.info/inful/sitepress/internal/paths"
	"git.home.luguber.info/inful/sitepress/internal/pipeline"
	"git.home.luguber.info/inful/sitepress/internal/preview"
	"git.home.luguber.info/inful/sitepress/internal/steps"
	"git.home.luguber.info/inful/sitepress/internal/watch"
	"git.home.luguber.info/inful/sitepress/internal/workspace"
)

// assembleRules converts rule configurations into executable pipeline rules.
func assembleRules(cfg *config.Config) ([]pipeline.Rule, error) {
	rules := make([]pipeline.Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		matcher, err := paths.NewREMatcher(rc.Match, custody.Root(rc.Root))
		if err != nil {
			return nil, err
		}
		if rc.Step == "ignore" {
			rules = append(rules, pipeline.Rule{Name: rc.Name, Matcher: matcher})
			continue
		}
		step, err := steps.New(rc.Step)
		if err != nil {
			return nil, err
		}

		calcs := make([]paths.PathCalc, 0, len(rc.Outputs))
		for _, oc := range rc.Outputs {
			inner := paths.DirPathCalc{
				Dest:    custody.Root(oc.Dest),
				DestDir: oc.Dir,
				Ext:     oc.Ext,
			}
			if oc.Slug {
				inner.Transform = paths.SlugTransform
			}
			var calc paths.PathCalc = inner
			if oc.WebIndex {
				calc = paths.NewWebIndexCalc(inner, "")
			}
			calcs = append(calcs, calc)
		}

		rules = append(rules, pipeline.Rule{
			Name:    rc.Name,
			Matcher: matcher,
			Calcs:   calcs,
			Step:    step,
			Final:   rc.IsFinal(),
		})
	}
	return rules, nil
}

// assemblePipeline wires a pipeline with its optional side services. The
// returned closer releases the event connection and history store.
func assemblePipeline(cfg *config.Config, logger *slog.Logger, registry *prom.Registry, purge bool) (*pipeline.Pipeline, func(), error) {
	rules, err := assembleRules(cfg)
	if err != nil {
		return nil, nil, err
	}

	// The working root persists between runs so intermediate products can be
	// skipped instead of regenerated.
	ws := workspace.NewPersistentManager(filepath.Dir(cfg.Roots.Working), filepath.Base(cfg.Roots.Working))
	if err := ws.Create(); err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(pipeline.Settings{
		Roots: custody.Roots{
			Input:   cfg.Roots.Input,
			Output:  cfg.Roots.Output,
			Working: cfg.Roots.Working,
		},
		StateFile:  cfg.StateFile,
		Parameters: cfg.Parameters,
		Purge:      cfg.Purge || purge,
	}, rules)
	if err != nil {
		return nil, nil, err
	}
	p.WithLogger(logger)

	var closers []func()
	if registry != nil {
		p.WithMetrics(metrics.NewPrometheusRecorder(registry))
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, nil, err
		}
		p.WithEvents(pub)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Closing event publisher failed", logfields.Error(err))
			}
		})
	}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, err
		}
		p.WithHistory(store)
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Closing history store failed", logfields.Error(err))
			}
		})
	}

	closer := func() {
		for _, fn := range closers {
			fn()
		}
	}
	return p, closer, nil
}

func runBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger, purge bool) error {
	p, closer, err := assemblePipeline(cfg, logger, nil, purge)
	if err != nil {
		return err
	}
	defer closer()

	outcome, err := p.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Build complete",
		logfields.RunID(outcome.RunID),
		slog.Int("steps_run", outcome.StepsRun),
		slog.Int("steps_skipped", outcome.StepsSkipped),
		logfields.DurationMS(float64(outcome.Duration.Milliseconds())))
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, serve bool) error {
	var registry *prom.Registry
	if serve && cfg.Preview.Metrics {
		registry = prom.NewRegistry()
	}
	p, closer, err := assemblePipeline(cfg, logger, registry, false)
	if err != nil {
		return err
	}
	defer closer()

	rebuild := func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}
	w := watch.New(cfg.Roots.Input, cfg.Watch.Debounce.Std(), cfg.Watch.Interval.Std(), rebuild).
		WithLogger(logger)

	if !serve {
		return w.Run(ctx)
	}

	srv := preview.New(cfg.Preview.Addr, cfg.Roots.Output, registry).WithLogger(logger)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

func runPreview(ctx context.Context, cfg *config.Config, logger *slog.Logger, addrOverride string) error {
	addr := cfg.Preview.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	var registry *prom.Registry
	if cfg.Preview.Metrics {
		registry = prom.NewRegistry()
	}
	return preview.New(addr, cfg.Roots.Output, registry).WithLogger(logger).Run(ctx)
}

func runHistory(ctx context.Context, cfg *config.Config, limit int) error {
	if cfg.History.Path == "" {
		return fmt.Errorf("no history database configured (set history.path)")
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tOUTCOME\tRUN\tSKIPPED\tDURATION\tID")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.Outcome,
			run.StepsRun,
			run.StepsSkipped,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.ID)
	}
	return w.Flush()
}
