// Package mal implements the MyAnimeList metadata provider.
package mal

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

const (
	defaultBaseURL = "https://api.myanimelist.net/v2"
	searchLimit    = 10
	detailsFields  = "id,title,start_date,media_type"
)

// Config holds the MAL API credentials. Public API access only needs the
// client id; the secret is accepted for config symmetry with Simkl.
type Config struct {
	ClientID     string
	ClientSecret string
}

// httpDoer captures the http.Client method used by this provider.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements provider.Provider against the MAL v2 API.
type Provider struct {
	client  httpDoer
	baseURL string
	config  Config
}

// New creates a MAL provider with a default HTTP client.
func New(cfg Config) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		config:  cfg,
	}
}

func (p *Provider) Name() string                  { return "MyAnimeList" }
func (p *Provider) Service() provider.ServiceType { return provider.ServiceMAL }

// Search queries the anime search endpoint. MAL only catalogs anime, so the
// media type and year narrow nothing server-side; results are classified
// from the node's declared media type instead.
func (p *Provider) Search(ctx context.Context, title string, mediaType provider.MediaType, year string) ([]provider.MetadataResult, error) {
	_ = year
	_ = mediaType

	q := url.Values{}
	q.Set("q", title)
	q.Set("limit", strconv.Itoa(searchLimit))
	q.Set("fields", detailsFields)

	var page searchResponse
	if err := p.getJSON(ctx, p.baseURL+"/anime?"+q.Encode(), &page); err != nil {
		return nil, err
	}

	results := make([]provider.MetadataResult, 0, len(page.Data))
	for _, entry := range page.Data {
		results = append(results, entry.Node.toResult())
	}
	return results, nil
}

// GetDetails fetches an anime record by MAL id.
func (p *Provider) GetDetails(ctx context.Context, id string, mediaType provider.MediaType) (provider.MetadataResult, error) {
	_ = mediaType
	endpoint := fmt.Sprintf("%s/anime/%s?fields=%s", p.baseURL, url.PathEscape(id), detailsFields)

	var node animeNode
	if err := p.getJSON(ctx, endpoint, &node); err != nil {
		return provider.MetadataResult{}, err
	}
	return node.toResult(), nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &provider.TransportError{Service: p.Service(), Err: err}
	}
	req.Header.Set("X-MAL-CLIENT-ID", p.config.ClientID)

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

type searchResponse struct {
	Data []struct {
		Node animeNode `json:"node"`
	} `json:"data"`
}

type animeNode struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	MediaType string `json:"media_type"`
}

// toResult normalizes a MAL node. Anime map to series unless MAL declares
// the entry a movie.
func (n animeNode) toResult() provider.MetadataResult {
	ids := provider.MediaIDs{}
	ids.Set(provider.ServiceMAL, strconv.Itoa(n.ID))

	mediaType := provider.MediaTypeSeries
	if n.MediaType == "movie" {
		mediaType = provider.MediaTypeMovie
	}

	return provider.MetadataResult{
		IDs:       ids,
		Title:     n.Title,
		Year:      provider.YearFromDate(n.StartDate),
		MediaType: mediaType,
	}
}
