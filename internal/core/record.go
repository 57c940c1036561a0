package core

import (
	"fmt"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

// Request is one scraped watch-history entry queued for resolution.
type Request struct {
	Title     string
	MediaType provider.MediaType
	Year      string // optional year hint from the history page
	WatchedAt string // raw date string as the page exposes it
}

// IdentityRecord is the merged identity produced for one scraped title:
// canonical title/year/media-type from the highest-priority provider that
// matched, plus every external identifier any provider contributed. A
// record with empty IDs is a valid terminal outcome, not an error.
type IdentityRecord struct {
	Title     string
	Year      string
	MediaType provider.MediaType
	IDs       provider.MediaIDs
	WatchedAt string
}

// Resolved reports whether at least one provider contributed an identifier.
func (r *IdentityRecord) Resolved() bool {
	return !r.IDs.IsEmpty()
}

// recordKey identifies a title for deduplication across repeated history
// entries, so a rewatched title is resolved against the providers once.
func recordKey(req Request) string {
	return fmt.Sprintf("%s:%s:%s", req.MediaType, req.Title, req.Year)
}
