// Package orchestrator implements the named composite analyses (spec
// §4.9, C9): analyze_trace, run_sre_patterns, compare, and
// find_example_traces, composing C1–C8 behind a single functional-options
// configuration surface, the way the teacher's own tracer.Start composes
// its subsystems from With... options.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/srelabs/trace-engine/cache"
	"github.com/srelabs/trace-engine/criticalpath"
	"github.com/srelabs/trace-engine/fetchpool"
	"github.com/srelabs/trace-engine/finding"
	"github.com/srelabs/trace-engine/internal/log"
	"github.com/srelabs/trace-engine/patterns"
	"github.com/srelabs/trace-engine/source"
	"github.com/srelabs/trace-engine/spanalgebra"
	"github.com/srelabs/trace-engine/stats"
	"github.com/srelabs/trace-engine/tracediff"
	"github.com/srelabs/trace-engine/trace"
)

// Defaults mirror spec §6's external-interface option defaults.
const (
	DefaultIncludeCallGraph     = true
	DefaultThresholdSigma       = stats.DefaultThresholdSigma
	DefaultRetryStormThreshold  = 3
	DefaultTimeoutThresholdMS   = 1000.0
	DefaultPoolWaitThresholdMS  = 100.0
)

// PatternThresholds bundles the three tunables §6 calls "pattern_thresholds".
type PatternThresholds struct {
	RetryStormCount int
	TimeoutMS       float64
	PoolWaitMS      float64
}

// config is built up by Option values passed to New.
type config struct {
	includeCallGraph bool
	thresholdSigma   float64
	patternThresholds PatternThresholds
	maxInFlight      int
	cacheTTL         time.Duration
	cacheMaxEntries  int
	logger           log.Logger
}

// Option configures an Orchestrator (spec §6's recognized option set).
type Option func(*config)

func WithIncludeCallGraph(v bool) Option { return func(c *config) { c.includeCallGraph = v } }
func WithThresholdSigma(v float64) Option {
	return func(c *config) { c.thresholdSigma = v }
}
func WithPatternThresholds(t PatternThresholds) Option {
	return func(c *config) { c.patternThresholds = t }
}
func WithMaxInFlight(n int) Option { return func(c *config) { c.maxInFlight = n } }
func WithCacheTTL(d time.Duration) Option { return func(c *config) { c.cacheTTL = d } }
func WithCacheMaxEntries(n int) Option { return func(c *config) { c.cacheMaxEntries = n } }
func WithLogger(l log.Logger) Option { return func(c *config) { c.logger = l } }

// Orchestrator composes a TraceSource with the rest of the engine behind
// the option set spec §6 defines.
type Orchestrator struct {
	src    source.TraceSource
	cache  *cache.Cache
	pool   *fetchpool.Pool
	cfg    config
}

// New builds an Orchestrator over src.
func New(src source.TraceSource, opts ...Option) *Orchestrator {
	cfg := config{
		includeCallGraph:  DefaultIncludeCallGraph,
		thresholdSigma:    DefaultThresholdSigma,
		patternThresholds: PatternThresholds{DefaultRetryStormThreshold, DefaultTimeoutThresholdMS, DefaultPoolWaitThresholdMS},
		maxInFlight:       fetchpool.DefaultMaxInFlight,
		cacheTTL:          cache.DefaultTTL,
		cacheMaxEntries:   cache.DefaultMaxEntries,
		logger:            log.NoOp(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Orchestrator{
		src:   src,
		cache: cache.New(cache.WithTTL(cfg.cacheTTL), cache.WithMaxEntries(cfg.cacheMaxEntries), cache.WithLogger(cfg.logger)),
		pool:  fetchpool.New(fetchpool.WithMaxInFlight(cfg.maxInFlight), fetchpool.WithLogger(cfg.logger)),
		cfg:   cfg,
	}
}

// fetch resolves id via the cache, falling back to the TraceSource on
// miss (spec §4.9's implicit "fetch" step shared by every operation).
func (o *Orchestrator) fetch(ctx context.Context, project, id string, creds source.Credentials) (trace.Trace, error) {
	return o.cache.GetOrFetch(ctx, id, func(ctx context.Context, id string) (trace.Trace, error) {
		return o.src.FetchOne(ctx, project, id, creds)
	})
}

func cancelled[T any](ctx context.Context) (finding.Envelope[T], bool) {
	if ctx.Err() != nil {
		return finding.Cancelled[T](), true
	}
	return finding.Envelope[T]{}, false
}

// AnalyzeTraceResult is the payload of AnalyzeTrace's Finding.
type AnalyzeTraceResult struct {
	TraceID      string
	Quality      spanalgebra.QualityReport
	Durations    []spanalgebra.SpanTiming
	Errors       []spanalgebra.ErrorRecord
	CriticalPath *criticalpath.Report
	CallGraph    *spanalgebra.CallGraph
	Anomaly      *stats.Report
}

// AnalyzeTrace implements spec §4.9's analyze_trace: fetch, validate,
// and — only if valid — compute durations/errors/critical-path and,
// optionally, the call graph and a baseline-relative anomaly report.
func (o *Orchestrator) AnalyzeTrace(ctx context.Context, project, traceID string, creds source.Credentials, baselineStats *stats.Stats) finding.Envelope[AnalyzeTraceResult] {
	if env, done := cancelled[AnalyzeTraceResult](ctx); done {
		return env
	}
	if traceID == "" {
		return finding.Err[AnalyzeTraceResult](finding.ErrInvalidInput, "trace_id must not be empty")
	}

	tr, err := o.fetch(ctx, project, traceID, creds)
	if err != nil {
		return finding.Err[AnalyzeTraceResult](finding.ErrFetchFailed, "fetch %s: %v", traceID, err)
	}

	quality := spanalgebra.Validate(tr)
	result := AnalyzeTraceResult{TraceID: traceID, Quality: quality}
	if !quality.Valid {
		return finding.Envelope[AnalyzeTraceResult]{
			Status:    "error",
			ErrorKind: finding.ErrQualityRejected,
			Message:   "trace failed quality validation",
			Payload:   result,
		}
	}

	result.Durations = spanalgebra.Durations(tr)
	result.Errors = spanalgebra.Errors(tr)
	cp := criticalpath.Analyze(tr)
	result.CriticalPath = &cp

	if o.cfg.includeCallGraph {
		cg := spanalgebra.BuildCallGraph(tr)
		result.CallGraph = &cg
	}

	if baselineStats != nil {
		a := stats.Anomaly(*baselineStats, tr.DurationMS, perSpanDurations(tr), o.cfg.thresholdSigma)
		result.Anomaly = &a
	}

	return finding.Ok(result)
}

func perSpanDurations(tr trace.Trace) map[string]float64 {
	out := make(map[string]float64, len(tr.Spans))
	for _, s := range tr.Spans {
		if ms, ok := s.DurationMS(); ok {
			out[s.Name] = ms
		}
	}
	return out
}

// Health is the overall-health rollup run_sre_patterns computes (spec
// §4.9).
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// SREPatternsResult is the payload of RunSREPatterns's Finding.
type SREPatternsResult struct {
	TraceID         string
	RetryStorms     []patterns.RetryStorm
	CascadingTimeout patterns.CascadingTimeoutReport
	PoolExhaustion  patterns.PoolReport
	OverallHealth   Health
}

// RunSREPatterns implements spec §4.9's run_sre_patterns: fetch, run the
// three single-trace C7 detectors, and roll their severities/impacts up
// into an overall health verdict.
func (o *Orchestrator) RunSREPatterns(ctx context.Context, project, traceID string, creds source.Credentials) finding.Envelope[SREPatternsResult] {
	if env, done := cancelled[SREPatternsResult](ctx); done {
		return env
	}
	tr, err := o.fetch(ctx, project, traceID, creds)
	if err != nil {
		return finding.Err[SREPatternsResult](finding.ErrFetchFailed, "fetch %s: %v", traceID, err)
	}

	retries := patterns.DetectRetryStorm(tr, o.cfg.patternThresholds.RetryStormCount)
	timeouts := patterns.DetectCascadingTimeout(tr, o.cfg.patternThresholds.TimeoutMS)
	pool := patterns.DetectConnectionPoolExhaustion(tr, o.cfg.patternThresholds.PoolWaitMS)

	result := SREPatternsResult{
		TraceID:          traceID,
		RetryStorms:       retries,
		CascadingTimeout:  timeouts,
		PoolExhaustion:    pool,
		OverallHealth:     rollupHealth(retries, timeouts, pool),
	}
	return finding.Ok(result)
}

func rollupHealth(retries []patterns.RetryStorm, timeouts patterns.CascadingTimeoutReport, pool patterns.PoolReport) Health {
	if timeouts.Impact == patterns.ImpactCritical {
		return HealthCritical
	}
	anyHigh := false
	for _, r := range retries {
		if r.Severity == patterns.SeverityHigh {
			anyHigh = true
		}
	}
	for _, p := range pool.Issues {
		if p.Severity == patterns.SeverityHigh {
			anyHigh = true
		}
	}
	if anyHigh {
		return HealthDegraded
	}
	if len(retries) > 0 || timeouts.CascadeDetected || pool.HasPoolExhaustion {
		return HealthWarning
	}
	return HealthHealthy
}

// CompareResult is the payload of Compare's Finding.
type CompareResult struct {
	Timings    tracediff.Diff
	Structure  tracediff.StructDiff
	Causal     *tracediff.CausalReport
}

// Compare implements spec §4.9's compare: fetch both traces, run
// 4.8.1/4.8.2, and optionally 4.8.3 on request.
func (o *Orchestrator) Compare(ctx context.Context, project, baselineID, targetID string, creds source.Credentials, withCausal bool) finding.Envelope[CompareResult] {
	if env, done := cancelled[CompareResult](ctx); done {
		return env
	}
	baseline, err := o.fetch(ctx, project, baselineID, creds)
	if err != nil {
		return finding.Err[CompareResult](finding.ErrFetchFailed, "fetch baseline %s: %v", baselineID, err)
	}
	if ctx.Err() != nil {
		return finding.Cancelled[CompareResult]()
	}
	target, err := o.fetch(ctx, project, targetID, creds)
	if err != nil {
		return finding.Err[CompareResult](finding.ErrFetchFailed, "fetch target %s: %v", targetID, err)
	}

	result := CompareResult{
		Timings:   tracediff.CompareTimings(baseline, target),
		Structure: tracediff.CompareStructure(baseline, target),
	}
	if withCausal {
		c := tracediff.CausalAnalysis(baseline, target)
		result.Causal = &c
	}
	return finding.Ok(result)
}

// ExampleTraces is the payload of FindExampleTraces's Finding.
type ExampleTraces struct {
	BaselineID   string
	AnomalyID    string
	BaselineStats stats.Stats
}

// FindExampleTraces implements spec §4.9's find_example_traces: list
// recent ids via the source, fetch them all, pick a baseline closest to
// the population's p50 duration and the trace with the highest composite
// anomaly score (SPEC_FULL.md's supplemented scoring, combining z-score,
// error signal, and magnitude ratio against the baseline).
func (o *Orchestrator) FindExampleTraces(ctx context.Context, project string, filter source.Filter, limit int, creds source.Credentials) finding.Envelope[ExampleTraces] {
	if env, done := cancelled[ExampleTraces](ctx); done {
		return env
	}
	ids, err := o.src.ListIDs(ctx, project, filter, limit, creds)
	if err != nil {
		return finding.Err[ExampleTraces](finding.ErrFetchFailed, "list_ids: %v", err)
	}
	if len(ids) == 0 {
		return finding.Err[ExampleTraces](finding.ErrInsufficientData, "no traces matched filter")
	}

	res := o.pool.Fetch(ctx, ids, func(ctx context.Context, id string) (trace.Trace, error) {
		return o.fetch(ctx, project, id, creds)
	})
	if len(res.Traces) == 0 {
		return finding.Err[ExampleTraces](finding.ErrInsufficientData, "no traces could be fetched (%d/%d failed)", res.Failed, res.Requested)
	}

	traces := make([]trace.Trace, 0, len(res.Traces))
	for _, tr := range res.Traces {
		traces = append(traces, tr)
	}
	baselineStats := stats.LatencyStats(traces)

	baselineID := closestToMedian(traces, baselineStats.Median)
	anomalyID := highestComposite(traces, baselineStats, o.cfg.thresholdSigma)

	return finding.Ok(ExampleTraces{
		BaselineID:    baselineID,
		AnomalyID:     anomalyID,
		BaselineStats: baselineStats,
	})
}

func closestToMedian(traces []trace.Trace, median float64) string {
	best := ""
	bestDelta := 0.0
	first := true
	for _, tr := range traces {
		delta := tr.DurationMS - median
		if delta < 0 {
			delta = -delta
		}
		if first || delta < bestDelta {
			best = tr.TraceID
			bestDelta = delta
			first = false
		}
	}
	return best
}

// highestComposite picks the trace with the highest composite anomaly
// score `0.6*|z| + 0.3*error_rate + 0.1*magnitude_ratio`, where
// error_rate is the fraction of a trace's spans flagged as errors and
// magnitude_ratio is duration_ms/p50 (SPEC_FULL.md "Supplemented
// features", taken from benchmark_statistical_analysis.py's scoring
// approach in original_source/).
func highestComposite(traces []trace.Trace, baseline stats.Stats, thresholdSigma float64) string {
	type scored struct {
		id    string
		score float64
	}
	var scoredTraces []scored
	for _, tr := range traces {
		report := stats.Anomaly(baseline, tr.DurationMS, perSpanDurations(tr), thresholdSigma)
		errRate := 0.0
		if len(tr.Spans) > 0 {
			errRate = float64(len(spanalgebra.Errors(tr))) / float64(len(tr.Spans))
		}
		magnitudeRatio := 0.0
		if baseline.Median > 0 {
			magnitudeRatio = tr.DurationMS / baseline.Median
		}
		z := report.ZScore
		if z < 0 {
			z = -z
		}
		score := 0.6*z + 0.3*errRate + 0.1*magnitudeRatio
		scoredTraces = append(scoredTraces, scored{id: tr.TraceID, score: score})
	}
	sort.SliceStable(scoredTraces, func(i, j int) bool { return scoredTraces[i].score > scoredTraces[j].score })
	if len(scoredTraces) == 0 {
		return ""
	}
	return scoredTraces[0].id
}
