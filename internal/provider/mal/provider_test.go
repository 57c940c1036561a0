package mal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/provider"
)

type fakeDoer func(*http.Request) (*http.Response, error)

func (f fakeDoer) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testProvider(doer fakeDoer) *Provider {
	return &Provider{
		client:  doer,
		baseURL: defaultBaseURL,
		config:  Config{ClientID: "mal-client"},
	}
}

func TestSearchRequestShape(t *testing.T) {
	var captured *http.Request
	p := testProvider(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(200, `{"data": []}`), nil
	})

	if _, err := p.Search(context.Background(), "Cowboy Bebop", provider.MediaTypeSeries, ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if got, want := captured.Header.Get("X-MAL-CLIENT-ID"), "mal-client"; got != want {
		t.Errorf("X-MAL-CLIENT-ID = %q, want %q", got, want)
	}
	if got, want := captured.URL.Path, "/v2/anime"; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}

	q := captured.URL.Query()
	if got := q.Get("q"); got != "Cowboy Bebop" {
		t.Errorf("q = %q, want %q", got, "Cowboy Bebop")
	}
	if got := q.Get("limit"); got != "10" {
		t.Errorf("limit = %q, want %q", got, "10")
	}
	if got := q.Get("fields"); got != "id,title,start_date,media_type" {
		t.Errorf("fields = %q, want %q", got, "id,title,start_date,media_type")
	}
}

func TestSearchClassifiesByDeclaredMediaType(t *testing.T) {
	body := `{"data": [
		{"node": {"id": 1, "title": "Cowboy Bebop", "start_date": "1998-04-03", "media_type": "tv"}},
		{"node": {"id": 5, "title": "Cowboy Bebop: The Movie", "start_date": "2001-09-01", "media_type": "movie"}}
	]}`
	p := testProvider(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, body), nil
	})

	got, err := p.Search(context.Background(), "Cowboy Bebop", provider.MediaTypeSeries, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []provider.MetadataResult{
		{
			IDs:       provider.MediaIDs{MAL: "1"},
			Title:     "Cowboy Bebop",
			Year:      "1998",
			MediaType: provider.MediaTypeSeries,
		},
		{
			IDs:       provider.MediaIDs{MAL: "5"},
			Title:     "Cowboy Bebop: The Movie",
			Year:      "2001",
			MediaType: provider.MediaTypeMovie,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetDetails(t *testing.T) {
	var captured *http.Request
	p := testProvider(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(200, `{"id": 1, "title": "Cowboy Bebop", "start_date": "1998-04-03", "media_type": "tv"}`), nil
	})

	got, err := p.GetDetails(context.Background(), "1", provider.MediaTypeSeries)
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}
	if got.IDs.MAL != "1" {
		t.Errorf("IDs.MAL = %q, want %q", got.IDs.MAL, "1")
	}
	if captured.URL.Path != "/v2/anime/1" {
		t.Errorf("path = %q, want %q", captured.URL.Path, "/v2/anime/1")
	}
}

func TestSearchNonSuccessStatus(t *testing.T) {
	p := testProvider(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(400, `{"error": "bad_request"}`), nil
	})

	_, err := p.Search(context.Background(), "", provider.MediaTypeSeries, "")
	var metaErr *provider.MetadataError
	if !errors.As(err, &metaErr) {
		t.Fatalf("Search() error = %T, want *provider.MetadataError", err)
	}
}
