// Package pipeline composes the scraper, the resolution engine and the
// export sink into one run: browser entries go in, CSV rows come out in
// the order the history page produced them.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/browser"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/core"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/log"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/media"
	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

// EntrySource produces raw watch-history entries. *browser.Session
// satisfies it; tests substitute an in-memory source.
type EntrySource interface {
	Scrape(ctx context.Context) (<-chan browser.Entry, <-chan error)
}

// RecordSink receives resolved records, one at a time, in history order.
type RecordSink interface {
	Write(core.IdentityRecord) error
}

// Stats summarizes a completed run.
type Stats struct {
	Scraped   int
	Exported  int
	Matched   int
	Unmatched int
}

// Pipeline wires an entry source through a resolution engine into a sink.
type Pipeline struct {
	Source EntrySource
	Engine *core.ResolutionEngine
	Sink   RecordSink

	scraped atomic.Int64
}

// Scraped reports how many entries the source has produced so far. Safe to
// call from other goroutines while Run is in flight, which is how the
// progress display tracks the growing total.
func (p *Pipeline) Scraped() int {
	return int(p.scraped.Load())
}

// requestBuffer bounds the scraper/engine hand-off so a stalled provider
// back-pressures the browser instead of buffering the whole history.
const requestBuffer = 64

// Run drives the pipeline until the source is exhausted or ctx is
// cancelled. Records already written stay written; the first terminal
// error is returned after the sink has received everything that resolved
// before it.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	entries, scrapeErrs := p.Source.Scrape(ctx)

	requests := make(chan core.Request, requestBuffer)
	go func() {
		defer close(requests)
		for entry := range entries {
			p.scraped.Add(1)
			log.LogScrape(entry.Title, true, nil)
			select {
			case requests <- buildRequest(entry):
			case <-ctx.Done():
				return
			}
		}
	}()

	var sinkErr error
	for result := range p.Engine.Run(ctx, requests) {
		rec := result.Record
		if rec == nil {
			continue
		}
		if rec.Resolved() {
			stats.Matched++
		} else {
			stats.Unmatched++
		}
		log.LogResolve(rec.Title, canonicalDetail(rec), rec.Resolved(), nil)

		if sinkErr != nil {
			// Keep draining so the engine can shut down cleanly.
			continue
		}
		if err := p.Sink.Write(*rec); err != nil {
			sinkErr = fmt.Errorf("write record %q: %w", rec.Title, err)
			log.LogExport(rec.Title, "", false, err)
			continue
		}
		stats.Exported++
		log.LogExport(rec.Title, "", true, nil)
	}

	stats.Scraped = p.Scraped()
	if sinkErr != nil {
		return stats, sinkErr
	}
	if err := <-scrapeErrs; err != nil {
		return stats, fmt.Errorf("scrape watch history: %w", err)
	}
	return stats, ctx.Err()
}

// buildRequest normalizes a scraped entry into a resolution request. A
// season or episode marker in the title overrides the page's type hint.
func buildRequest(entry browser.Entry) core.Request {
	title, year := media.CleanTitle(entry.Title)
	mediaType := entry.MediaType
	if base, isSeries := media.SplitSeasonMarker(title); isSeries {
		title = base
		mediaType = provider.MediaTypeSeries
	}
	return core.Request{
		Title:     title,
		MediaType: mediaType,
		Year:      year,
		WatchedAt: entry.WatchedAt,
	}
}

func canonicalDetail(rec *core.IdentityRecord) string {
	if rec.Resolved() {
		return fmt.Sprintf("%s (%s)", rec.MediaType, rec.Year)
	}
	return "no match"
}
