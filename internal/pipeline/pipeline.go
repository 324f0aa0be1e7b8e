// Package pipeline drives build runs: it walks the input tree, binds files to
// rules, consults custody for rebuild decisions, executes steps, and persists
// the resulting custody state.
package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitepress/internal/custody"
	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/events"
	"git.home.luguber.info/inful/sitepress/internal/history"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
	"git.home.luguber.info/inful/sitepress/internal/paths"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Step transforms one source file into one or more outputs. Bind is called
// once before the first run so steps can validate configuration and register
// custom staleness checkers with the custodian.
type Step interface {
	Name() string
	Bind(p *Pipeline) error
	Run(ctx context.Context, source string, outputs []string) (*Result, error)
}

// Result reports what a step actually consumed and produced. Nil or empty
// fields fall back to the declared source and outputs: most steps read
// exactly the source they were given and write exactly the outputs the rule
// calculated, and only steps with extra inputs (fetches, unpacks) fill these.
type Result struct {
	Sources []custody.Source
	Outputs []string
}

// Rule binds a matcher to a step and the calculators that place its outputs.
// A final rule stops rule evaluation for the files it matches. A rule with a
// nil Step ignores its matches outright: no outputs, no further rules.
type Rule struct {
	Name    string
	Matcher paths.Matcher
	Calcs   []paths.PathCalc
	Step    Step
	Final   bool
}

// Settings carries everything a Pipeline needs besides its rules.
type Settings struct {
	Roots      custody.Roots
	StateFile  string
	Parameters map[string]any
	Purge      bool
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID        string
	StepsRun     int
	StepsSkipped int
	Duration     time.Duration
}

// Pipeline executes rules over the input root with incremental rebuilds.
type Pipeline struct {
	settings Settings
	rules    []Rule

	cust    *custody.Custodian
	logger  *slog.Logger
	metrics metrics.Recorder
	events  events.Publisher
	history *history.Store
}

// New assembles a pipeline. Metrics, events, and history are optional and
// default to no-ops.
func New(settings Settings, rules []Rule) (*Pipeline, error) {
	if settings.StateFile == "" {
		return nil, builderr.ConfigRequired("state_file")
	}
	if err := settings.Roots.Validate(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, builderr.ConfigRequired("rules")
	}
	return &Pipeline{
		settings: settings,
		rules:    rules,
		logger:   slog.Default(),
		metrics:  metrics.NoopRecorder{},
		events:   events.NoopPublisher{},
	}, nil
}

// WithLogger sets a custom logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// WithMetrics sets the metrics recorder.
func (p *Pipeline) WithMetrics(rec metrics.Recorder) *Pipeline {
	p.metrics = rec
	return p
}

// WithEvents sets the event publisher.
func (p *Pipeline) WithEvents(pub events.Publisher) *Pipeline {
	p.events = pub
	return p
}

// WithHistory sets the run-history store.
func (p *Pipeline) WithHistory(store *history.Store) *Pipeline {
	p.history = store
	return p
}

// Custodian exposes the current run's custodian to steps during Bind, so
// they can register staleness checkers for non-filesystem entry types.
func (p *Pipeline) Custodian() *custody.Custodian { return p.cust }

// Roots returns the configured roots.
func (p *Pipeline) Roots() custody.Roots { return p.settings.Roots }

// Run executes one full build. It is not safe for concurrent invocation.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(logfields.RunID(runID))

	if p.settings.Purge {
		if err := p.purge(); err != nil {
			return nil, err
		}
	}
	for _, dir := range []string{p.settings.Roots.Output, p.settings.Roots.Working,
		filepath.Dir(p.settings.StateFile)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"creating build root")
		}
	}

	cust, err := custody.New(p.settings.Roots, p.settings.Parameters)
	if err != nil {
		return nil, err
	}
	p.cust = cust.WithLogger(logger)
	if err := p.cust.Load(p.settings.StateFile); err != nil {
		return nil, err
	}
	p.cust.SetInfo("run_id", runID)
	p.cust.SetInfo("started_at", started.UTC().Format(time.RFC3339))

	bound := sets.New[string]()
	for _, rule := range p.rules {
		if rule.Step == nil || bound.Has(rule.Step.Name()) {
			continue
		}
		if err := rule.Step.Bind(p); err != nil {
			return nil, builderr.Wrap(err, builderr.CategoryConfig, builderr.SeverityFatal,
				"binding step "+rule.Step.Name())
		}
		bound.Add(rule.Step.Name())
	}

	p.publish(events.Event{Type: events.TypeRunStarted, RunID: runID})

	run := &runState{pipeline: p, runID: runID, logger: logger, seen: sets.New[string]()}
	outcome := "success"
	err = run.processRoot(ctx)
	if err != nil {
		outcome = "failed"
	} else if dumpErr := p.cust.Dump(p.settings.StateFile); dumpErr != nil {
		err, outcome = dumpErr, "failed"
	} else if cleanErr := p.removeOrphans(logger); cleanErr != nil {
		err, outcome = cleanErr, "failed"
	}

	duration := time.Since(started)
	p.metrics.ObserveRunDuration(duration)
	p.metrics.IncRunOutcome(outcome)
	if keep, pathsErr := p.cust.AllPaths(); pathsErr == nil {
		p.metrics.SetTrackedOutputs(len(keep))
	}
	p.publish(events.Event{Type: events.TypeRunFinished, RunID: runID, Outcome: outcome})
	p.recordHistory(ctx, logger, history.RunSummary{
		ID:           runID,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Outcome:      outcome,
		StepsRun:     run.stepsRun,
		StepsSkipped: run.stepsSkipped,
	})

	if err != nil {
		return nil, err
	}
	logger.Info("Run finished",
		logfields.Count(run.stepsRun+run.stepsSkipped),
		logfields.DurationMS(float64(duration.Milliseconds())))
	return &Outcome{
		RunID:        runID,
		StepsRun:     run.stepsRun,
		StepsSkipped: run.stepsSkipped,
		Duration:     duration,
	}, nil
}

// runState tracks per-run counters and the set of already processed sources
// (intermediate products are fed back through the rules and must not loop).
type runState struct {
	pipeline     *Pipeline
	runID        string
	logger       *slog.Logger
	seen         sets.Set[string]
	stepsRun     int
	stepsSkipped int
}

// processRoot feeds every input file through the rules, in lexical order so
// runs are deterministic. Candidates are handled file-major (each file runs
// through the whole rule list before the next file) rather than batched per
// rule; decisions read only prior-run state, so the two orders produce the
// same results.
func (r *runState) processRoot(ctx context.Context) error {
	root := r.pipeline.settings.Roots.Input
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
				"walking input root")
		}
		if d.IsDir() {
			return nil
		}
		return r.process(ctx, path)
	})
}

// process runs every matching rule against one source file, recursing into
// working-root products so multi-stage rules compose.
func (r *runState) process(ctx context.Context, source string) error {
	if r.seen.Has(source) {
		return nil
	}
	r.seen.Add(source)

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, rule := range r.rules() {
		match, ok := rule.Matcher.Match(r.pipeline.settings.Roots, source)
		if !ok {
			continue
		}
		if rule.Step == nil {
			return nil
		}
		produced, err := r.applyRule(ctx, rule, source, match)
		if err != nil {
			return err
		}
		for _, out := range produced {
			if !r.pipeline.settings.Roots.Contains(custody.RootWorking, out) {
				continue
			}
			if err := r.processProduct(ctx, out); err != nil {
				return err
			}
		}
		if rule.Final {
			break
		}
	}
	return nil
}

func (r *runState) rules() []Rule { return r.pipeline.rules }

// processProduct feeds an intermediate product back through the rules. A
// produced directory (unpack targets, cloned repositories) contributes each
// file beneath it.
func (r *runState) processProduct(ctx context.Context, out string) error {
	info, err := os.Stat(out)
	if err != nil {
		return builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityFatal,
			"inspecting step product")
	}
	if !info.IsDir() {
		return r.process(ctx, out)
	}
	return filepath.WalkDir(out, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return r.process(ctx, path)
	})
}

// applyRule makes the rebuild decision for one (rule, source) pair and either
// executes the step or carries the prior outputs forward. It returns the
// produced output paths for downstream processing.
func (r *runState) applyRule(ctx context.Context, rule Rule, source string, match *paths.Match) ([]string, error) {
	roots := r.pipeline.settings.Roots
	outputs := make([]string, 0, len(rule.Calcs))
	for _, calc := range rule.Calcs {
		out, err := calc.Calc(roots, source, match)
		if err != nil {
			return nil, builderr.Wrap(err, builderr.CategoryConfig, builderr.SeverityFatal,
				"calculating output path for rule "+rule.Name)
		}
		outputs = append(outputs, out)
	}

	decision, err := r.pipeline.cust.RefreshNeeded(source, outputs)
	if err != nil {
		return nil, err
	}

	if !decision.Stale {
		r.pipeline.metrics.IncDecision(metrics.DecisionFresh, metrics.ReasonClass(decision.Reason))
		prior, err := r.pipeline.cust.RecordSkip(source, outputs)
		if err != nil {
			return nil, err
		}
		r.stepsSkipped++
		r.publish(events.Event{
			Type: events.TypeStepSkipped, RunID: r.runID,
			Source: source, Outputs: prior,
		})
		return prior, nil
	}

	r.pipeline.metrics.IncDecision(metrics.DecisionStale, metrics.ReasonClass(decision.Reason))
	r.logger.Debug("Running step",
		logfields.Rule(rule.Name),
		logfields.Step(rule.Step.Name()),
		logfields.Source(source))

	stepStart := time.Now()
	result, err := rule.Step.Run(ctx, source, outputs)
	if err != nil {
		return nil, builderr.StepFailed(rule.Step.Name(), source, err)
	}
	r.pipeline.metrics.ObserveStepDuration(rule.Step.Name(), time.Since(stepStart))

	sources := []custody.Source{custody.PathSource(source)}
	if result != nil && len(result.Sources) > 0 {
		sources = result.Sources
	}
	produced := outputs
	if result != nil && len(result.Outputs) > 0 {
		produced = result.Outputs
	}

	if err := r.pipeline.cust.RecordStep(sources, produced, decision.Reason); err != nil {
		return nil, err
	}
	r.stepsRun++
	r.publish(events.Event{
		Type: events.TypeStepRun, RunID: r.runID,
		Source: source, Outputs: produced, Reason: decision.Reason,
	})
	return produced, nil
}

func (r *runState) publish(ev events.Event) { r.pipeline.publish(ev) }

// publish delivers an event, logging delivery failures instead of failing the run.
func (p *Pipeline) publish(ev events.Event) {
	if err := p.events.Publish(ev); err != nil {
		p.logger.Warn("Event publish failed", logfields.Error(err))
	}
}

func (p *Pipeline) recordHistory(ctx context.Context, logger *slog.Logger, run history.RunSummary) {
	if p.history == nil {
		return
	}
	if err := p.history.RecordRun(ctx, run); err != nil {
		logger.Warn("Recording run history failed", logfields.Error(err))
	}
}
