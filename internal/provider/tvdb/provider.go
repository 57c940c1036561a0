// Package tvdb implements the TheTVDB metadata provider.
//
// TVDB is the one catalog with a bespoke authentication lifecycle: an API
// key is exchanged for a bearer token on first use, the token is cached and
// shared across all calls through the same provider instance, and a 401
// response invalidates it, triggering exactly one reauthentication and one
// retry of the original request.
package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

const defaultBaseURL = "https://api.thetvdb.com"

// Config holds the TVDB API key.
type Config struct {
	APIKey string
}

// httpDoer captures the http.Client method used by this provider.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements provider.Provider against the TVDB API.
type Provider struct {
	client  httpDoer
	baseURL string
	config  Config
	session tokenSession
}

// tokenSession is the cached bearer token plus the mutex guarding it. The
// mutex is held for the whole authentication exchange so concurrent callers
// never trigger independent logins while a valid token exists; readers
// observe either the old or the new token, never a torn value.
type tokenSession struct {
	mu    sync.Mutex
	token string
}

// New creates a TVDB provider with a default HTTP client. No authentication
// happens until the first request.
func New(cfg Config) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		config:  cfg,
	}
}

func (p *Provider) Name() string                  { return "TVDB" }
func (p *Provider) Service() provider.ServiceType { return provider.ServiceTVDB }

// Search queries the series search endpoint. TVDB only indexes series, so
// movie queries go through the same endpoint; year is accepted for
// interface symmetry but TVDB's legacy search does not take one.
func (p *Provider) Search(ctx context.Context, title string, mediaType provider.MediaType, year string) ([]provider.MetadataResult, error) {
	_ = year
	endpoint := p.baseURL + "/search/series?name=" + url.QueryEscape(title)

	var page searchResponse
	if err := p.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}

	results := make([]provider.MetadataResult, 0, len(page.Data))
	for _, item := range page.Data {
		results = append(results, item.toResult())
	}
	return results, nil
}

// GetDetails fetches a series record by TVDB id.
func (p *Provider) GetDetails(ctx context.Context, id string, mediaType provider.MediaType) (provider.MetadataResult, error) {
	_ = mediaType
	endpoint := p.baseURL + "/series/" + url.PathEscape(id)

	var details detailsResponse
	if err := p.getJSON(ctx, endpoint, &details); err != nil {
		return provider.MetadataResult{}, err
	}
	return details.Data.toResult(), nil
}

// token returns the cached bearer token, authenticating first when none is
// cached. Authentication happens at most once per token validity period.
func (p *Provider) token(ctx context.Context) (string, error) {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()

	if p.session.token != "" {
		return p.session.token, nil
	}

	token, err := p.authenticate(ctx)
	if err != nil {
		return "", err
	}
	p.session.token = token
	return token, nil
}

// invalidate discards the cached token, but only when it is still the one
// the caller saw fail. A token already replaced by a concurrent
// reauthentication is left alone.
func (p *Provider) invalidate(stale string) {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	if p.session.token == stale {
		p.session.token = ""
	}
}

// authenticate exchanges the API key for a bearer token. Callers must hold
// the session mutex.
func (p *Provider) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"apikey": p.config.APIKey})
	if err != nil {
		return "", &provider.TransportError{Service: p.Service(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", &provider.TransportError{Service: p.Service(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &provider.TransportError{Service: p.Service(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &provider.AuthError{Service: p.Service(), Reason: fmt.Sprintf("login returned status %d", resp.StatusCode)}
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", &provider.TransportError{Service: p.Service(), Err: fmt.Errorf("decode login response: %w", err)}
	}
	if auth.Token == "" {
		return "", &provider.AuthError{Service: p.Service(), Reason: "login response carried no token"}
	}
	return auth.Token, nil
}

// getJSON performs an authenticated GET. On a 401 the cached token is
// discarded, the session reauthenticates once, and the request is retried
// exactly once; a second 401 is a hard failure.
func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	resp, err := p.doAuthed(ctx, endpoint, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		p.invalidate(token)

		token, err = p.token(ctx)
		if err != nil {
			return err
		}
		resp, err = p.doAuthed(ctx, endpoint, token)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return &provider.MetadataError{Service: p.Service(), Status: http.StatusUnauthorized}
		}
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

func (p *Provider) doAuthed(ctx context.Context, endpoint, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &provider.TransportError{Service: p.Service(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Service: p.Service(), Err: err}
	}
	return resp, nil
}

type authResponse struct {
	Token string `json:"token"`
}

type searchResponse struct {
	Data []seriesItem `json:"data"`
}

type detailsResponse struct {
	Data seriesItem `json:"data"`
}

type seriesItem struct {
	ID         int    `json:"id"`
	SeriesName string `json:"seriesName"`
	FirstAired string `json:"firstAired"`
}

// toResult normalizes a TVDB series record. Everything TVDB returns is a
// series; a null firstAired degrades to an absent year.
func (s seriesItem) toResult() provider.MetadataResult {
	ids := provider.MediaIDs{}
	ids.Set(provider.ServiceTVDB, strconv.Itoa(s.ID))

	return provider.MetadataResult{
		IDs:       ids,
		Title:     s.SeriesName,
		Year:      provider.YearFromDate(s.FirstAired),
		MediaType: provider.MediaTypeSeries,
	}
}
