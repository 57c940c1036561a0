package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

// Entry is one raw watch-history item as the page exposes it: the title
// string plus whatever minimal date and type hints are visible. Anything
// richer comes from the metadata providers later.
type Entry struct {
	Title     string
	MediaType provider.MediaType
	WatchedAt string
}

// rawEntry mirrors the objects produced by the extraction script.
type rawEntry struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Episodes bool   `json:"episodes"`
}

// extractScript walks the history item list. Titles live in the item
// heading, dates in the per-day group heading, and the presence of an
// episode sub-list marks the title as a series.
const extractScript = `
(() => {
	const out = [];
	const groups = document.querySelectorAll("[data-automation-id^='wh-date'], div[class*='watch-history'] > ul > li");
	let currentDate = "";
	for (const group of groups) {
		const dateEl = group.querySelector("[data-automation-id^='wh-date']") || group;
		if (dateEl.dataset && dateEl.dataset.automationId && dateEl.dataset.automationId.startsWith("wh-date")) {
			currentDate = dateEl.textContent.trim();
		}
		for (const item of group.querySelectorAll("img[alt], a[data-automation-id^='wh-title']")) {
			const title = (item.alt || item.textContent || "").trim();
			if (!title) continue;
			const li = item.closest("li");
			const episodes = !!(li && li.querySelector("[data-automation-id^='wh-episode'], ul li"));
			out.push({title: title, date: currentDate, episodes: episodes});
		}
	}
	return out;
})()
`

const scrollScript = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`

// Scrape extracts the watch history as a lazy, finite sequence. Each entry
// is delivered exactly once; the sequence is not restartable. The error
// channel carries at most one terminal error and both channels close when
// the scrape finishes or ctx is cancelled.
//
// The session must be authenticated. The session mutex is held for the
// whole scrape, keeping browser operations strictly sequential.
func (s *Session) Scrape(ctx context.Context) (<-chan Entry, <-chan error) {
	entries := make(chan Entry)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.browserCtx == nil {
			errc <- &Error{Op: "scrape", Err: fmt.Errorf("session not started")}
			return
		}
		if !s.authenticated {
			errc <- &AuthError{Reason: "scrape requires an authenticated session"}
			return
		}

		if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(s.cfg.HistoryURL)); err != nil {
			errc <- &Error{Op: "navigate", Err: err}
			return
		}

		seen := make(map[string]bool)
		for {
			var raw []rawEntry
			if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Evaluate(extractScript, &raw)); err != nil {
				errc <- &Error{Op: "extract", Err: err}
				return
			}

			fresh := 0
			for _, entry := range parseEntries(raw) {
				key := entry.Title + "|" + entry.WatchedAt
				if seen[key] {
					continue
				}
				seen[key] = true
				fresh++
				select {
				case entries <- entry:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			// The page lazy-loads older history on scroll; stop once a
			// scroll surfaces nothing new.
			grew, err := s.scrollToBottom(ctx)
			if err != nil {
				errc <- err
				return
			}
			if !grew && fresh == 0 {
				return
			}
		}
	}()

	return entries, errc
}

// scrollToBottom scrolls the page and waits briefly for lazy content.
// It reports whether the document grew. Callers must hold s.mu.
func (s *Session) scrollToBottom(ctx context.Context) (bool, error) {
	var before, after int
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Evaluate(`document.body.scrollHeight`, &before)); err != nil {
		return false, &Error{Op: "scroll", Err: err}
	}
	if err := s.run(ctx, s.cfg.NavTimeout,
		chromedp.Evaluate(scrollScript, &after),
		chromedp.Sleep(1500*time.Millisecond),
	); err != nil {
		return false, &Error{Op: "scroll", Err: err}
	}
	if err := s.run(ctx, s.cfg.NavTimeout, chromedp.Evaluate(`document.body.scrollHeight`, &after)); err != nil {
		return false, &Error{Op: "scroll", Err: err}
	}
	return after > before, nil
}

// parseEntries normalizes raw page items into entries, dropping blanks and
// classifying titles with an episode sub-list as series.
func parseEntries(raw []rawEntry) []Entry {
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		mediaType := provider.MediaTypeMovie
		if r.Episodes {
			mediaType = provider.MediaTypeSeries
		}
		out = append(out, Entry{
			Title:     title,
			MediaType: mediaType,
			WatchedAt: strings.TrimSpace(r.Date),
		})
	}
	return out
}
