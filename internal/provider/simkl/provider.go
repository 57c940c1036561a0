// Package simkl implements the Simkl metadata provider.
//
// Simkl authenticates with two headers: the OAuth client secret as a bearer
// token and the client id in simkl-api-key.
package simkl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

const defaultBaseURL = "https://api.simkl.com"

// Config holds the Simkl API credentials.
type Config struct {
	ClientID     string
	ClientSecret string
}

// httpDoer captures the http.Client method used by this provider.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements provider.Provider against the Simkl API.
type Provider struct {
	client  httpDoer
	baseURL string
	config  Config
}

// New creates a Simkl provider with a default HTTP client.
func New(cfg Config) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		config:  cfg,
	}
}

func (p *Provider) Name() string                  { return "Simkl" }
func (p *Provider) Service() provider.ServiceType { return provider.ServiceSimkl }

// Search queries the Simkl search endpoint. The year parameter narrows
// results when present.
func (p *Provider) Search(ctx context.Context, title string, mediaType provider.MediaType, year string) ([]provider.MetadataResult, error) {
	q := url.Values{}
	q.Set("q", title)
	q.Set("type", typeParam(mediaType))
	if year != "" {
		q.Set("year", year)
	}

	var items []searchItem
	if err := p.getJSON(ctx, p.baseURL+"/search?"+q.Encode(), &items); err != nil {
		return nil, err
	}

	results := make([]provider.MetadataResult, 0, len(items))
	for _, item := range items {
		results = append(results, item.toResult(mediaType))
	}
	return results, nil
}

// GetDetails fetches full details for a Simkl identifier.
func (p *Provider) GetDetails(ctx context.Context, id string, mediaType provider.MediaType) (provider.MetadataResult, error) {
	kind := "movies"
	if mediaType == provider.MediaTypeSeries {
		kind = "shows"
	}
	endpoint := fmt.Sprintf("%s/%s/%s?extended=full", p.baseURL, kind, id)

	var details searchItem
	if err := p.getJSON(ctx, endpoint, &details); err != nil {
		return provider.MetadataResult{}, err
	}
	return details.toResult(mediaType), nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &provider.TransportError{Service: p.Service(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.config.ClientSecret)
	req.Header.Set("simkl-api-key", p.config.ClientID)

	resp, err := p.client.Do(req)
	if err != nil {
		return &provider.TransportError{Service: p.Service(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &provider.MetadataError{Service: p.Service(), Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &provider.TransportError{Service: p.Service(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func typeParam(mediaType provider.MediaType) string {
	if mediaType == provider.MediaTypeSeries {
		return "show"
	}
	return "movie"
}

type searchItem struct {
	Title string    `json:"title"`
	Year  yearField `json:"year"`
	IDs   itemIDs   `json:"ids"`
}

type itemIDs struct {
	Simkl idField `json:"simkl"`
	TMDB  idField `json:"tmdb"`
	TVDB  idField `json:"tvdb"`
}

// toResult normalizes a Simkl item. Simkl does not declare a media type in
// search responses, so the requested type is carried through.
func (s searchItem) toResult(requested provider.MediaType) provider.MetadataResult {
	ids := provider.MediaIDs{}
	ids.Set(provider.ServiceSimkl, s.IDs.Simkl.value)
	ids.Set(provider.ServiceTMDB, s.IDs.TMDB.value)
	ids.Set(provider.ServiceTVDB, s.IDs.TVDB.value)

	return provider.MetadataResult{
		IDs:       ids,
		Title:     s.Title,
		Year:      provider.YearFromDate(s.Year.value),
		MediaType: requested,
	}
}

// yearField tolerates Simkl returning the year as either a string or a
// number. Absent or null decodes to empty.
type yearField struct {
	value string
}

func (y *yearField) UnmarshalJSON(data []byte) error {
	y.value = decodeScalar(data)
	return nil
}

// idField tolerates identifiers sent as strings or numbers.
type idField struct {
	value string
}

func (i *idField) UnmarshalJSON(data []byte) error {
	i.value = decodeScalar(data)
	return nil
}

func decodeScalar(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}
