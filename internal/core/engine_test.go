package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

// fakeProvider answers searches from a canned table keyed by title.
type fakeProvider struct {
	svc     provider.ServiceType
	results map[string][]provider.MetadataResult
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (f *fakeProvider) Name() string                  { return string(f.svc) }
func (f *fakeProvider) Service() provider.ServiceType { return f.svc }

func (f *fakeProvider) Search(ctx context.Context, title string, mediaType provider.MediaType, year string) ([]provider.MetadataResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[title], nil
}

func (f *fakeProvider) GetDetails(ctx context.Context, id string, mediaType provider.MediaType) (provider.MetadataResult, error) {
	return provider.MetadataResult{}, errors.New("not used")
}

func newTestRegistry(t *testing.T, providers ...provider.Provider) *provider.Registry {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		if err := registry.Register(p, provider.RateLimit{}); err != nil {
			t.Fatalf("Register(%s) error = %v", p.Service(), err)
		}
		if err := registry.Enable(p.Service()); err != nil {
			t.Fatalf("Enable(%s) error = %v", p.Service(), err)
		}
	}
	return registry
}

func runEngine(t *testing.T, engine *ResolutionEngine, reqs []Request) []IdentityRecord {
	t.Helper()
	in := make(chan Request)
	go func() {
		defer close(in)
		for _, req := range reqs {
			in <- req
		}
	}()

	var records []IdentityRecord
	for result := range engine.Run(context.Background(), in) {
		records = append(records, *result.Record)
	}
	return records
}

func TestNewResolutionEngineRequiresEnabledProvider(t *testing.T) {
	if _, err := NewResolutionEngine(EngineConfig{}); !errors.Is(err, ErrNoProvidersEnabled) {
		t.Errorf("NewResolutionEngine(nil registry) error = %v, want ErrNoProvidersEnabled", err)
	}

	registry := provider.NewRegistry()
	_, err := NewResolutionEngine(EngineConfig{
		Registry: registry,
		Priority: provider.PriorityOrder{provider.ServiceSimkl},
	})
	if !errors.Is(err, ErrNoProvidersEnabled) {
		t.Errorf("NewResolutionEngine(empty registry) error = %v, want ErrNoProvidersEnabled", err)
	}
}

func TestEngineMergesAcrossProvidersByPriority(t *testing.T) {
	simkl := &fakeProvider{
		svc: provider.ServiceSimkl,
		results: map[string][]provider.MetadataResult{
			"Dark": {{
				Title:     "Dark",
				Year:      "2017",
				MediaType: provider.MediaTypeSeries,
				IDs:       provider.MediaIDs{Simkl: "1048037", TMDB: "from-simkl"},
			}},
		},
	}
	tmdb := &fakeProvider{
		svc: provider.ServiceTMDB,
		results: map[string][]provider.MetadataResult{
			"Dark": {{
				Title:     "Dark (TMDB)",
				Year:      "2018",
				MediaType: provider.MediaTypeSeries,
				IDs:       provider.MediaIDs{TMDB: "70523", TVDB: "332487"},
			}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry: newTestRegistry(t, simkl, tmdb),
		Priority: provider.PriorityOrder{provider.ServiceSimkl, provider.ServiceTMDB},
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "Dark", MediaType: provider.MediaTypeSeries, WatchedAt: "January 5, 2024"},
	})

	want := []IdentityRecord{{
		Title:     "Dark",
		Year:      "2017",
		MediaType: provider.MediaTypeSeries,
		IDs:       provider.MediaIDs{Simkl: "1048037", TMDB: "from-simkl", TVDB: "332487"},
		WatchedAt: "January 5, 2024",
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineCanonicalFallsThroughToNextProvider(t *testing.T) {
	simkl := &fakeProvider{svc: provider.ServiceSimkl} // no results at all
	tmdb := &fakeProvider{
		svc: provider.ServiceTMDB,
		results: map[string][]provider.MetadataResult{
			"Inception": {{
				Title:     "Inception",
				Year:      "2010",
				MediaType: provider.MediaTypeMovie,
				IDs:       provider.MediaIDs{TMDB: "27205"},
			}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry: newTestRegistry(t, simkl, tmdb),
		Priority: provider.PriorityOrder{provider.ServiceSimkl, provider.ServiceTMDB},
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "Inception", MediaType: provider.MediaTypeMovie},
	})

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Year != "2010" || records[0].IDs.TMDB != "27205" {
		t.Errorf("canonical fields = %+v, want TMDB's answer when Simkl has none", records[0])
	}
}

func TestEngineNoMatchesYieldsUnresolvedRecord(t *testing.T) {
	simkl := &fakeProvider{svc: provider.ServiceSimkl}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry: newTestRegistry(t, simkl),
		Priority: provider.PriorityOrder{provider.ServiceSimkl},
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "Totally Unknown", MediaType: provider.MediaTypeMovie, WatchedAt: "May 1, 2023"},
	})

	want := []IdentityRecord{{
		Title:     "Totally Unknown",
		MediaType: provider.MediaTypeMovie,
		WatchedAt: "May 1, 2023",
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if records[0].Resolved() {
		t.Error("record with no identifiers should not report Resolved()")
	}
}

func TestEngineAbsorbsProviderFailures(t *testing.T) {
	failing := &fakeProvider{svc: provider.ServiceTVDB, err: errors.New("service down")}
	working := &fakeProvider{
		svc: provider.ServiceTMDB,
		results: map[string][]provider.MetadataResult{
			"Dark": {{Title: "Dark", Year: "2017", MediaType: provider.MediaTypeSeries,
				IDs: provider.MediaIDs{TMDB: "70523"}}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry: newTestRegistry(t, failing, working),
		Priority: provider.PriorityOrder{provider.ServiceTVDB, provider.ServiceTMDB},
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "Dark", MediaType: provider.MediaTypeSeries},
	})

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: a provider failure must not drop the title", len(records))
	}
	if records[0].IDs.TMDB != "70523" {
		t.Errorf("IDs.TMDB = %q, want the working provider's id", records[0].IDs.TMDB)
	}
	if len(engine.Errors()) != 1 {
		t.Errorf("Errors() has %d entries, want the absorbed failure recorded once", len(engine.Errors()))
	}
}

func TestEngineEmitsInScrapeOrder(t *testing.T) {
	// First title resolves slowest; output order must still match input.
	slow := &fakeProvider{
		svc:   provider.ServiceSimkl,
		delay: 50 * time.Millisecond,
		results: map[string][]provider.MetadataResult{
			"A": {{Title: "A", IDs: provider.MediaIDs{Simkl: "1"}}},
			"B": {{Title: "B", IDs: provider.MediaIDs{Simkl: "2"}}},
			"C": {{Title: "C", IDs: provider.MediaIDs{Simkl: "3"}}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry:    newTestRegistry(t, slow),
		Priority:    provider.PriorityOrder{provider.ServiceSimkl},
		WorkerCount: 3,
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "A"}, {Title: "B"}, {Title: "C"},
	})

	var titles []string
	for _, rec := range records {
		titles = append(titles, rec.Title)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, titles); diff != "" {
		t.Errorf("emission order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineDeduplicatesRepeatedTitles(t *testing.T) {
	p := &fakeProvider{
		svc: provider.ServiceSimkl,
		results: map[string][]provider.MetadataResult{
			"Dark": {{Title: "Dark", IDs: provider.MediaIDs{Simkl: "1"}}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry:    newTestRegistry(t, p),
		Priority:    provider.PriorityOrder{provider.ServiceSimkl},
		WorkerCount: 1,
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	records := runEngine(t, engine, []Request{
		{Title: "Dark", MediaType: provider.MediaTypeSeries, WatchedAt: "day 1"},
		{Title: "Dark", MediaType: provider.MediaTypeSeries, WatchedAt: "day 2"},
	})

	if len(records) != 2 {
		t.Fatalf("got %d records, want one per watch event", len(records))
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider searched %d times, want 1 for a repeated title", p.calls.Load())
	}
	if records[0].WatchedAt != "day 1" || records[1].WatchedAt != "day 2" {
		t.Errorf("WatchedAt not re-stamped per event: %q, %q", records[0].WatchedAt, records[1].WatchedAt)
	}
}

func TestEngineCancellation(t *testing.T) {
	slow := &fakeProvider{
		svc:   provider.ServiceSimkl,
		delay: time.Hour,
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry:    newTestRegistry(t, slow),
		Priority:    provider.PriorityOrder{provider.ServiceSimkl},
		WorkerCount: 1,
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Request, 1)
	in <- Request{Title: "stuck"}

	out := engine.Run(ctx, in)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				if !engine.Snapshot().Done {
					t.Error("summary should report Done after cancellation")
				}
				return
			}
		case <-deadline:
			t.Fatal("engine did not shut down after cancellation")
		}
	}
}

func TestEngineFinalSummary(t *testing.T) {
	p := &fakeProvider{
		svc: provider.ServiceSimkl,
		results: map[string][]provider.MetadataResult{
			"hit": {{Title: "hit", IDs: provider.MediaIDs{Simkl: "1"}}},
		},
	}

	engine, err := NewResolutionEngine(EngineConfig{
		Registry: newTestRegistry(t, p),
		Priority: provider.PriorityOrder{provider.ServiceSimkl},
	})
	if err != nil {
		t.Fatalf("NewResolutionEngine() error = %v", err)
	}

	runEngine(t, engine, []Request{{Title: "hit"}, {Title: "miss"}})

	summary := engine.Snapshot()
	if !summary.Done || summary.Canceled {
		t.Errorf("final summary = %+v, want Done without Canceled", summary)
	}
	if summary.Resolved != 2 || summary.Matched != 1 || summary.Unmatched != 1 {
		t.Errorf("final counts = %+v, want 2 resolved, 1 matched, 1 unmatched", summary)
	}
}
