package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/neighbor"
	"github.com/commutepulse/commutepulse/internal/session"
)

// Aggregator errors.
var (
	// ErrRecomputeInProgress is returned when a recomputation pass is
	// already running. Triggers are rejected, never queued.
	ErrRecomputeInProgress = errors.New("recomputation already in progress")
)

// TrendComparisonWindow is the number of prior passes the trend direction
// looks back over. The current policy compares against the immediately
// previous published pass only; widen with care, the repository keeps one
// snapshot per region.
const TrendComparisonWindow = 1

// SessionSource provides the completed session data an aggregation pass
// reads. Narrower than session.Repository: the pass never writes sessions.
type SessionSource interface {
	Regions(ctx context.Context) ([]string, error)
	CompletedByRegion(ctx context.Context, regionID string, since time.Time) ([]*session.Session, error)
}

// AggregatorConfig holds configuration for the regional insight aggregator.
type AggregatorConfig struct {
	Sessions   SessionSource
	Insights   Repository
	Congestion congestion.Repository
	Calculator *congestion.Calculator
	Logger     zerolog.Logger

	// Neighbors, when set, has its index rebuilt at the end of each pass.
	Neighbors *neighbor.Matcher

	// Location is the canonical calendar for peak-hour bucketing.
	Location *time.Location

	// Lookback bounds how far back eligible sessions reach (default 30 days).
	Lookback time.Duration

	// Concurrency is the number of parallel region workers (default 4).
	Concurrency int

	// MinCohort overrides MinCohortSize when > 0.
	MinCohort int

	// TrendTolerance is the relative change below which a region's trend is
	// reported stable (default 0.05).
	TrendTolerance float64
}

// Aggregator runs full recomputation passes over accumulated session data.
// At most one pass runs at a time; the pass itself fans region
// sub-aggregations out over a worker pool and finishes with a single atomic
// snapshot swap.
type Aggregator struct {
	sessions       SessionSource
	insights       Repository
	congestionRepo congestion.Repository
	calculator     *congestion.Calculator
	neighbors      *neighbor.Matcher
	logger         zerolog.Logger
	location       *time.Location
	lookback       time.Duration
	concurrency    int
	minCohort      int
	trendTolerance float64

	mu      sync.Mutex // held for the duration of a pass
	running bool
	runMu   sync.Mutex // guards running
}

// Result summarizes a completed recomputation pass.
type Result struct {
	RegionCount int
	ElapsedMs   int64
}

// NewAggregator creates a new regional insight aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 30 * 24 * time.Hour
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	minCohort := cfg.MinCohort
	if minCohort <= 0 {
		minCohort = MinCohortSize
	}

	trendTolerance := cfg.TrendTolerance
	if trendTolerance <= 0 {
		trendTolerance = 0.05
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	return &Aggregator{
		sessions:       cfg.Sessions,
		insights:       cfg.Insights,
		congestionRepo: cfg.Congestion,
		calculator:     cfg.Calculator,
		neighbors:      cfg.Neighbors,
		logger:         cfg.Logger,
		location:       location,
		lookback:       lookback,
		concurrency:    concurrency,
		minCohort:      minCohort,
		trendTolerance: trendTolerance,
	}
}

// Running reports whether a recomputation pass is currently executing.
func (a *Aggregator) Running() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.running
}

// RecalculateAll runs one full recomputation pass. A concurrent trigger
// fails fast with ErrRecomputeInProgress. On any error the previously
// published snapshot remains untouched. Each pass starts from a clean
// slate; nothing carries over from earlier runs.
func (a *Aggregator) RecalculateAll(ctx context.Context) (*Result, error) {
	if !a.mu.TryLock() {
		return nil, ErrRecomputeInProgress
	}
	defer a.mu.Unlock()

	a.setRunning(true)
	defer a.setRunning(false)

	start := time.Now()
	since := start.Add(-a.lookback)

	a.logger.Info().
		Time("since", since).
		Int("concurrency", a.concurrency).
		Msg("starting regional recomputation pass")

	regions, err := a.sessions.Regions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}

	// Prior pass, read before the swap, feeds trend comparison.
	prior, err := a.insights.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read prior insights: %w", err)
	}
	priorByRegion := make(map[string]*RegionalInsight, len(prior))
	for _, ri := range prior {
		priorByRegion[ri.RegionID] = ri
	}

	regionResults, allSessions, err := a.aggregateRegions(ctx, regions, since, start)
	if err != nil {
		return nil, err
	}

	// Privacy gate and trend assignment.
	published := make([]*RegionalInsight, 0, len(regionResults))
	for _, ri := range regionResults {
		if ri.UserCount < a.minCohort {
			a.logger.Debug().
				Str("region_id", ri.RegionID).
				Int("user_count", ri.UserCount).
				Msg("region below cohort floor, omitted from published set")
			continue
		}
		ri.TrendDirection = a.trendFor(ri, priorByRegion[ri.RegionID])
		published = append(published, ri)
	}

	// Segment congestion is recomputed from the same session set and swapped
	// before the insight snapshot; a failure here leaves both prior
	// snapshots in place.
	if a.congestionRepo != nil && a.calculator != nil {
		baselines, err := a.congestionRepo.Baselines(ctx)
		if err != nil {
			return nil, fmt.Errorf("read congestion baselines: %w", err)
		}
		facts := a.calculator.Compute(allSessions, baselines, start)
		if err := a.congestionRepo.ReplaceAll(ctx, facts); err != nil {
			return nil, fmt.Errorf("replace congestion facts: %w", err)
		}
		a.logger.Info().Int("facts", len(facts)).Msg("segment congestion recomputed")
	}

	if err := a.insights.ReplaceAll(ctx, published); err != nil {
		return nil, fmt.Errorf("replace insight snapshot: %w", err)
	}

	// Neighbor index rebuild is best-effort: a failure degrades neighbor
	// queries to the previous index, not the whole pass.
	if a.neighbors != nil {
		if err := a.neighbors.Rebuild(ctx); err != nil {
			a.logger.Error().Err(err).Msg("failed to rebuild neighbor index")
		}
	}

	elapsed := time.Since(start)
	a.logger.Info().
		Int("region_count", len(published)).
		Int("regions_gated", len(regionResults)-len(published)).
		Dur("elapsed", elapsed).
		Msg("regional recomputation pass completed")

	return &Result{
		RegionCount: len(published),
		ElapsedMs:   elapsed.Milliseconds(),
	}, nil
}

func (a *Aggregator) setRunning(v bool) {
	a.runMu.Lock()
	a.running = v
	a.runMu.Unlock()
}

type regionResult struct {
	insight  *RegionalInsight
	sessions []*session.Session
	err      error
}

// aggregateRegions fans the per-region sub-aggregations out over a worker
// pool. Sub-aggregations are independent; only the final swap is
// single-writer. Workers check the context between regions so a shutdown
// aborts cooperatively.
func (a *Aggregator) aggregateRegions(ctx context.Context, regions []string, since, now time.Time) ([]*RegionalInsight, []*session.Session, error) {
	regionChan := make(chan string, len(regions))
	resultChan := make(chan regionResult, len(regions))

	var wg sync.WaitGroup
	for i := 0; i < a.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for regionID := range regionChan {
				select {
				case <-ctx.Done():
					resultChan <- regionResult{err: ctx.Err()}
					return
				default:
				}
				resultChan <- a.aggregateRegion(ctx, regionID, since, now)
			}
		}()
	}

	for _, regionID := range regions {
		regionChan <- regionID
	}
	close(regionChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var insights []*RegionalInsight
	var allSessions []*session.Session
	var firstErr error
	for res := range resultChan {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		insights = append(insights, res.insight)
		allSessions = append(allSessions, res.sessions...)
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	return insights, allSessions, nil
}

func (a *Aggregator) aggregateRegion(ctx context.Context, regionID string, since, now time.Time) regionResult {
	sessions, err := a.sessions.CompletedByRegion(ctx, regionID, since)
	if err != nil {
		return regionResult{err: fmt.Errorf("region %s: %w", regionID, err)}
	}

	ri := &RegionalInsight{
		RegionID:   regionID,
		ComputedAt: now,
	}

	users := make(map[string]struct{})
	var totalMinutes float64
	for _, s := range sessions {
		users[s.UserID] = struct{}{}
		ri.SessionCount++
		totalMinutes += s.Duration().Minutes()
		ri.PeakHourDistribution[s.StartedAt.In(a.location).Hour()]++
	}
	ri.UserCount = len(users)
	if ri.SessionCount > 0 {
		ri.AvgDurationMin = totalMinutes / float64(ri.SessionCount)
	}

	return regionResult{insight: ri, sessions: sessions}
}

// trendFor compares a fresh insight against the prior pass. Regions without
// a prior publication report stable.
func (a *Aggregator) trendFor(current, prior *RegionalInsight) TrendDirection {
	if prior == nil || prior.AvgDurationMin <= 0 {
		return TrendStable
	}

	change := (current.AvgDurationMin - prior.AvgDurationMin) / prior.AvgDurationMin
	switch {
	case change <= -a.trendTolerance:
		return TrendImproving
	case change >= a.trendTolerance:
		return TrendWorsening
	default:
		return TrendStable
	}
}
