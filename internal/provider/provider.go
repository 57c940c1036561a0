package provider

import (
	"context"
	"strings"
)

// MediaType classifies a watch-history entry. The set is closed; it drives
// which provider endpoint and query shape is used.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// ServiceType names a metadata catalog service. It is used as provider
// identity and as the key in a priority order.
type ServiceType string

const (
	ServiceSimkl ServiceType = "simkl"
	ServiceTMDB  ServiceType = "tmdb"
	ServiceTVDB  ServiceType = "tvdb"
	ServiceMAL   ServiceType = "mal"
)

// AllServices lists every known service in default priority order.
var AllServices = []ServiceType{ServiceSimkl, ServiceTMDB, ServiceTVDB, ServiceMAL}

// PriorityOrder is a caller-supplied provider ranking. It determines both
// which provider's result becomes canonical for a title and which provider
// wins when two supply the same identifier.
type PriorityOrder []ServiceType

// MediaIDs holds the external identifier for each catalog that knows the
// title. An empty string means the identifier is absent; setters never
// store empty values, so absence is always distinguishable from real data.
type MediaIDs struct {
	Simkl string
	TMDB  string
	TVDB  string
	MAL   string
}

// Get returns the identifier for svc, or "" when absent or unknown.
func (m MediaIDs) Get(svc ServiceType) string {
	switch svc {
	case ServiceSimkl:
		return m.Simkl
	case ServiceTMDB:
		return m.TMDB
	case ServiceTVDB:
		return m.TVDB
	case ServiceMAL:
		return m.MAL
	}
	return ""
}

// Set stores id for svc. Empty ids are ignored so an absent identifier can
// never clobber a known one.
func (m *MediaIDs) Set(svc ServiceType, id string) {
	if id == "" {
		return
	}
	switch svc {
	case ServiceSimkl:
		m.Simkl = id
	case ServiceTMDB:
		m.TMDB = id
	case ServiceTVDB:
		m.TVDB = id
	case ServiceMAL:
		m.MAL = id
	}
}

// Merge copies every identifier present in other that is still absent in m.
// Identifiers accumulate monotonically: a value already set is never
// overwritten, so merging in priority order makes the higher-priority
// provider win per key. Merge is idempotent.
func (m *MediaIDs) Merge(other MediaIDs) {
	if m.Simkl == "" {
		m.Simkl = other.Simkl
	}
	if m.TMDB == "" {
		m.TMDB = other.TMDB
	}
	if m.TVDB == "" {
		m.TVDB = other.TVDB
	}
	if m.MAL == "" {
		m.MAL = other.MAL
	}
}

// IsEmpty reports whether no identifier at all has been collected.
func (m MediaIDs) IsEmpty() bool {
	return m.Simkl == "" && m.TMDB == "" && m.TVDB == "" && m.MAL == ""
}

// MetadataResult is one normalized provider answer. Title and year are
// best-effort and may differ slightly between providers for the same work;
// only identifiers are merged across providers, titles are never reconciled.
type MetadataResult struct {
	IDs       MediaIDs
	Title     string
	Year      string // 4-digit year, "" when the provider has no date
	MediaType MediaType
}

// Provider is the capability contract every metadata catalog implements.
//
// Search issues a provider search query; year narrows results when present
// but is never required. GetDetails fetches canonical details for a
// provider-native identifier. Both return a MetadataError when the provider
// responds with a non-success status and a TransportError when the HTTP
// exchange itself cannot complete. Absent optional fields in provider
// responses degrade to zero values, never to an error.
type Provider interface {
	Name() string
	Service() ServiceType
	Search(ctx context.Context, title string, mediaType MediaType, year string) ([]MetadataResult, error)
	GetDetails(ctx context.Context, id string, mediaType MediaType) (MetadataResult, error)
}

// YearFromDate extracts a 4-digit year from a provider date string: the
// first four characters of the segment before the first '-'. An empty date
// yields an empty year.
func YearFromDate(date string) string {
	if date == "" {
		return ""
	}
	seg, _, _ := strings.Cut(date, "-")
	if len(seg) > 4 {
		seg = seg[:4]
	}
	return seg
}

// InferMediaType applies the shared classification rule: an explicitly
// declared provider type wins; otherwise the title-field shape decides
// (movie-style field populated means movie, else series). The fallback is a
// known approximation, since providers occasionally leave the movie field
// empty for movies, and is preserved as-is for compatibility.
func InferMediaType(declared string, movieTitle, seriesTitle string) MediaType {
	switch declared {
	case "movie":
		return MediaTypeMovie
	case "tv", "show", "series":
		return MediaTypeSeries
	}
	if movieTitle != "" {
		return MediaTypeMovie
	}
	_ = seriesTitle
	return MediaTypeSeries
}

// ParseService maps a config string to a ServiceType.
func ParseService(s string) (ServiceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simkl":
		return ServiceSimkl, true
	case "tmdb":
		return ServiceTMDB, true
	case "tvdb":
		return ServiceTVDB, true
	case "mal", "myanimelist":
		return ServiceMAL, true
	}
	return "", false
}
