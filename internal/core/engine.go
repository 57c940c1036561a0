package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
)

// ErrNoProvidersEnabled is returned when the engine is constructed with a
// priority order that contains no enabled provider at all. This is the only
// configuration state fatal to a whole run.
var ErrNoProvidersEnabled = errors.New("no metadata providers enabled")

const defaultWorkerCount = 4

// EngineConfig configures a ResolutionEngine.
type EngineConfig struct {
	Registry *provider.Registry
	Priority provider.PriorityOrder
	// WorkerCount bounds how many titles are resolved concurrently.
	WorkerCount int
}

// Summary captures the state of the resolution pipeline at a point in time.
type Summary struct {
	Resolved      int // titles fully processed
	Matched       int // titles with at least one identifier
	Unmatched     int
	ActiveWorkers int
	WorkerLimit   int
	ErrorCount    int
	LastTitle     string
	Done          bool
	Canceled      bool
}

// Result is one emitted record. Records are emitted strictly in input
// (scrape) order regardless of which worker finished first.
type Result struct {
	Record *IdentityRecord
}

// ResolutionEngine resolves scraped titles against the enabled providers.
// For each title it fans out one search per provider concurrently, picks
// the canonical title/year/media-type from the highest-priority provider
// that returned results, and merges identifiers across all providers with
// higher-priority values winning per key. Multiple titles are resolved
// concurrently by a bounded worker pool.
type ResolutionEngine struct {
	registry    *provider.Registry
	priority    []provider.ServiceType
	workerCount int

	records *csmap.CsMap[string, IdentityRecord]

	summaryMu sync.RWMutex
	summary   Summary

	errorsMu sync.Mutex
	errors   []error

	events chan Summary
}

// NewResolutionEngine validates the configuration and constructs an engine.
func NewResolutionEngine(cfg EngineConfig) (*ResolutionEngine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("resolution engine: %w", ErrNoProvidersEnabled)
	}
	priority := cfg.Registry.EnabledServices(cfg.Priority)
	if len(priority) == 0 {
		return nil, fmt.Errorf("resolution engine: %w", ErrNoProvidersEnabled)
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}

	return &ResolutionEngine{
		registry:    cfg.Registry,
		priority:    priority,
		workerCount: workerCount,
		records:     csmap.Create[string, IdentityRecord](),
		summary:     Summary{WorkerLimit: workerCount},
		events:      make(chan Summary, 128),
	}, nil
}

// Priority returns the effective priority order after enablement filtering.
func (e *ResolutionEngine) Priority() []provider.ServiceType {
	out := make([]provider.ServiceType, len(e.priority))
	copy(out, e.priority)
	return out
}

// Events returns the summary stream consumed by progress displays. A
// summary with Done set marks the end of a run. Events are dropped, not
// blocked on, when the consumer lags.
func (e *ResolutionEngine) Events() <-chan Summary {
	return e.events
}

// Snapshot returns the latest progress summary.
func (e *ResolutionEngine) Snapshot() Summary {
	e.summaryMu.RLock()
	defer e.summaryMu.RUnlock()
	return e.summary
}

// Errors returns a copy of the per-provider failures absorbed during the
// run. These never abort resolution; they are reported here and through the
// run journal.
func (e *ResolutionEngine) Errors() []error {
	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()
	if len(e.errors) == 0 {
		return nil
	}
	cloned := make([]error, len(e.errors))
	copy(cloned, e.errors)
	return cloned
}

// Run consumes requests and produces records in input order. The returned
// channel is closed when the input is exhausted or ctx is cancelled. On
// cancellation, in-flight titles are abandoned and never partially emitted.
func (e *ResolutionEngine) Run(ctx context.Context, in <-chan Request) <-chan Result {
	out := make(chan Result)
	go e.run(ctx, in, out)
	return out
}

type sequencedRequest struct {
	seq uint64
	req Request
}

type sequencedRecord struct {
	seq uint64
	rec *IdentityRecord
}

func (e *ResolutionEngine) run(ctx context.Context, in <-chan Request, out chan<- Result) {
	defer close(out)

	jobs := make(chan sequencedRequest)
	resolved := make(chan sequencedRecord)

	var wg sync.WaitGroup
	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, jobs, resolved)
	}

	e.summaryMu.Lock()
	e.summary.ActiveWorkers = e.workerCount
	e.summaryMu.Unlock()
	e.emitSummary()

	go func() {
		defer close(jobs)
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-in:
				if !ok {
					return
				}
				select {
				case jobs <- sequencedRequest{seq: seq, req: req}:
					seq++
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resolved)
	}()

	// Workers finish out of order; hold completed records until every
	// earlier sequence number has been emitted so the sink sees records in
	// scrape order.
	pending := make(map[uint64]*IdentityRecord)
	var next uint64

	for {
		select {
		case <-ctx.Done():
			e.finish(true)
			return
		case sr, ok := <-resolved:
			if !ok {
				e.finish(ctx.Err() != nil)
				return
			}
			pending[sr.seq] = sr.rec
			for {
				rec, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case out <- Result{Record: rec}:
					next++
				case <-ctx.Done():
					e.finish(true)
					return
				}
			}
		}
	}
}

func (e *ResolutionEngine) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan sequencedRequest, resolved chan<- sequencedRecord) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		rec := e.resolveOne(ctx, job.req)
		if rec == nil {
			// Cancelled mid-resolution; the partial record is discarded.
			return
		}
		select {
		case resolved <- sequencedRecord{seq: job.seq, rec: rec}:
		case <-ctx.Done():
			return
		}
	}
}

// resolveOne produces the identity record for a single request. Repeated
// titles are served from the record store without further provider calls.
func (e *ResolutionEngine) resolveOne(ctx context.Context, req Request) *IdentityRecord {
	key := recordKey(req)
	if cached, ok := e.records.Load(key); ok {
		rec := cached
		rec.WatchedAt = req.WatchedAt
		e.noteProcessed(&rec)
		return &rec
	}

	outcomes := e.searchAll(ctx, req)
	if ctx.Err() != nil {
		return nil
	}

	rec := e.buildRecord(req, outcomes)
	stored := *rec
	stored.WatchedAt = ""
	e.records.Store(key, stored)

	e.noteProcessed(rec)
	return rec
}

type searchOutcome struct {
	results []provider.MetadataResult
	err     error
}

// searchAll fans one search per enabled provider out concurrently, each
// through its own rate limiter. Ordering requirements are enforced later at
// merge time, so completion order does not matter here.
func (e *ResolutionEngine) searchAll(ctx context.Context, req Request) map[provider.ServiceType]searchOutcome {
	outcomes := make(map[provider.ServiceType]searchOutcome, len(e.priority))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, svc := range e.priority {
		p, ok := e.registry.Get(svc)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(svc provider.ServiceType, p provider.Provider) {
			defer wg.Done()

			if err := e.registry.Limiter(svc).Wait(ctx); err != nil {
				return
			}
			results, err := p.Search(ctx, req.Title, req.MediaType, req.Year)
			if err != nil {
				e.noteFailure(svc, req.Title, err)
			}

			mu.Lock()
			outcomes[svc] = searchOutcome{results: results, err: err}
			mu.Unlock()
		}(svc, p)
	}
	wg.Wait()

	return outcomes
}

// buildRecord picks the canonical fields from the first provider in
// priority order that returned results, then merges identifiers from every
// provider's best match. Merge order equals priority order, so a
// higher-priority identifier is never overwritten by a lower-priority one.
func (e *ResolutionEngine) buildRecord(req Request, outcomes map[provider.ServiceType]searchOutcome) *IdentityRecord {
	rec := &IdentityRecord{
		Title:     req.Title,
		Year:      req.Year,
		MediaType: req.MediaType,
		WatchedAt: req.WatchedAt,
	}

	for _, svc := range e.priority {
		results := outcomes[svc].results
		if len(results) == 0 {
			continue
		}
		first := results[0]
		if first.Title != "" {
			rec.Title = first.Title
		}
		rec.Year = first.Year
		rec.MediaType = first.MediaType
		break
	}

	for _, svc := range e.priority {
		results := outcomes[svc].results
		if len(results) == 0 {
			continue
		}
		rec.IDs.Merge(results[0].IDs)
	}

	return rec
}

func (e *ResolutionEngine) noteFailure(svc provider.ServiceType, title string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	e.errorsMu.Lock()
	e.errors = append(e.errors, fmt.Errorf("%s: %s: %w", svc, title, err))
	count := len(e.errors)
	e.errorsMu.Unlock()

	e.summaryMu.Lock()
	e.summary.ErrorCount = count
	e.summaryMu.Unlock()
}

func (e *ResolutionEngine) noteProcessed(rec *IdentityRecord) {
	e.summaryMu.Lock()
	e.summary.Resolved++
	if rec.Resolved() {
		e.summary.Matched++
	} else {
		e.summary.Unmatched++
	}
	e.summary.LastTitle = rec.Title
	e.summaryMu.Unlock()
	e.emitSummary()
}

func (e *ResolutionEngine) finish(canceled bool) {
	e.summaryMu.Lock()
	e.summary.Done = true
	e.summary.Canceled = canceled
	e.summary.ActiveWorkers = 0
	e.summaryMu.Unlock()

	// The Done summary must reach the consumer. If the buffer is full,
	// evict the oldest intermediate snapshot to make room.
	snap := e.Snapshot()
	for {
		select {
		case e.events <- snap:
			return
		default:
			select {
			case <-e.events:
			default:
			}
		}
	}
}

// emitSummary publishes the current summary without ever blocking the
// resolution path; a lagging consumer just misses intermediate snapshots.
func (e *ResolutionEngine) emitSummary() {
	select {
	case e.events <- e.Snapshot():
	default:
	}
}
