// Package tmdb implements The Movie Database metadata provider.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Config holds the TMDB read access token.
type Config struct {
	APIKey string
}

// httpDoer captures the http.Client method used by this provider.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements provider.Provider against the TMDB v3 API.
type Provider struct {
	client  httpDoer
	baseURL string
	config  Config
}

// New creates a TMDB provider with a default HTTP client.
func New(cfg Config) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		config:  cfg,
	}
}

func (p *Provider) Name() string                  { return "TMDB" }
func (p *Provider) Service() provider.ServiceType { return provider.ServiceTMDB }

// Search queries search/movie or search/tv depending on the media type.
// Adult results are always excluded.
func (p *Provider) Search(ctx context.Context, title string, mediaType provider.MediaType, year string) ([]provider.MetadataResult, error) {
	q := url.Values{}
	q.Set("query", title)
	q.Set("include_adult", "false")
	if year != "" {
		q.Set("year", year)
	}
	endpoint := fmt.Sprintf("%s/search/%s?%s", p.baseURL, typeParam(mediaType), q.Encode())

	var page searchResponse
	if err := p.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}

	results := make([]provider.MetadataResult, 0, len(page.Results))
	for _, item := range page.Results {
		results = append(results, item.toResult())
	}
	return results, nil
}

// GetDetails fetches details for a TMDB id with external_ids appended, which
// yields the cross-referenced TVDB identifier when TMDB knows it.
func (p *Provider) GetDetails(ctx context.Context, id string, mediaType provider.MediaType) (provider.MetadataResult, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?append_to_response=external_ids", p.baseURL, typeParam(mediaType), id)

	var details detailsResponse
	if err := p.getJSON(ctx, endpoint, &details); err != nil {
		return provider.MetadataResult{}, err
	}
	return details.toResult(), nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &provider.TransportError{Service: p.Service(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

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
		return "tv"
	}
	return "movie"
}

type searchResponse struct {
	Results []searchItem `json:"results"`
}

// searchItem covers both movie and tv result shapes: movies carry title and
// release_date, series carry name and first_air_date.
type searchItem struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	MediaType    string `json:"media_type"`
}

func (s searchItem) toResult() provider.MetadataResult {
	title := s.Title
	if title == "" {
		title = s.Name
	}
	date := s.ReleaseDate
	if date == "" {
		date = s.FirstAirDate
	}

	ids := provider.MediaIDs{}
	ids.Set(provider.ServiceTMDB, strconv.Itoa(s.ID))

	return provider.MetadataResult{
		IDs:       ids,
		Title:     title,
		Year:      provider.YearFromDate(date),
		MediaType: provider.InferMediaType(s.MediaType, s.Title, s.Name),
	}
}

type detailsResponse struct {
	ID           int         `json:"id"`
	Title        string      `json:"title"`
	Name         string      `json:"name"`
	ReleaseDate  string      `json:"release_date"`
	FirstAirDate string      `json:"first_air_date"`
	ExternalIDs  externalIDs `json:"external_ids"`
}

type externalIDs struct {
	IMDBID string `json:"imdb_id"`
	TVDBID int    `json:"tvdb_id"`
}

func (d detailsResponse) toResult() provider.MetadataResult {
	title := d.Title
	if title == "" {
		title = d.Name
	}
	date := d.ReleaseDate
	if date == "" {
		date = d.FirstAirDate
	}

	ids := provider.MediaIDs{}
	ids.Set(provider.ServiceTMDB, strconv.Itoa(d.ID))
	if d.ExternalIDs.TVDBID != 0 {
		ids.Set(provider.ServiceTVDB, strconv.Itoa(d.ExternalIDs.TVDBID))
	}

	return provider.MetadataResult{
		IDs:       ids,
		Title:     title,
		Year:      provider.YearFromDate(date),
		MediaType: provider.InferMediaType("", d.Title, d.Name),
	}
}
