package tvdb

import (
	"context"
	"encoding/json"
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
		config:  Config{APIKey: "api-key"},
	}
}

// script replays canned responses in order and records every request.
type script struct {
	requests  []*http.Request
	responses []*http.Response
}

func (s *script) do(req *http.Request) (*http.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func TestSearchAuthenticatesFirst(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": "tok-1"}`),
		jsonResponse(200, `{"data": [{"id": 123, "seriesName": "Dark", "firstAired": "2017-12-01"}]}`),
	}}
	p := testProvider(s.do)

	got, err := p.Search(context.Background(), "Dark", provider.MediaTypeSeries, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(s.requests) != 2 {
		t.Fatalf("got %d requests, want login + search", len(s.requests))
	}

	login := s.requests[0]
	if login.Method != http.MethodPost || login.URL.Path != "/login" {
		t.Errorf("first request = %s %s, want POST /login", login.Method, login.URL.Path)
	}
	var loginBody map[string]string
	if err := json.NewDecoder(login.Body).Decode(&loginBody); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if loginBody["apikey"] != "api-key" {
		t.Errorf("login body apikey = %q, want %q", loginBody["apikey"], "api-key")
	}

	search := s.requests[1]
	if got, want := search.Header.Get("Authorization"), "Bearer tok-1"; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
	if got, want := search.URL.Path, "/search/series"; got != want {
		t.Errorf("search path = %q, want %q", got, want)
	}
	if got := search.URL.Query().Get("name"); got != "Dark" {
		t.Errorf("name = %q, want %q", got, "Dark")
	}

	want := []provider.MetadataResult{{
		IDs:       provider.MediaIDs{TVDB: "123"},
		Title:     "Dark",
		Year:      "2017",
		MediaType: provider.MediaTypeSeries,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": "tok-1"}`),
		jsonResponse(200, `{"data": []}`),
		jsonResponse(200, `{"data": []}`),
	}}
	p := testProvider(s.do)

	if _, err := p.Search(context.Background(), "a", provider.MediaTypeSeries, ""); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if _, err := p.Search(context.Background(), "b", provider.MediaTypeSeries, ""); err != nil {
		t.Fatalf("second Search() error = %v", err)
	}

	logins := 0
	for _, req := range s.requests {
		if req.URL.Path == "/login" {
			logins++
		}
	}
	if logins != 1 {
		t.Errorf("got %d logins across two searches, want 1", logins)
	}
}

func TestUnauthorizedTriggersOneReauthAndRetry(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": "tok-1"}`),
		jsonResponse(401, `{}`),
		jsonResponse(200, `{"token": "tok-2"}`),
		jsonResponse(200, `{"data": [{"id": 7, "seriesName": "X"}]}`),
	}}
	p := testProvider(s.do)

	got, err := p.Search(context.Background(), "X", provider.MediaTypeSeries, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	if len(s.requests) != 4 {
		t.Fatalf("got %d requests, want login, search, relogin, retry", len(s.requests))
	}
	retry := s.requests[3]
	if got, want := retry.Header.Get("Authorization"), "Bearer tok-2"; got != want {
		t.Errorf("retry Authorization = %q, want %q", got, want)
	}
}

func TestSecondUnauthorizedIsTerminal(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": "tok-1"}`),
		jsonResponse(401, `{}`),
		jsonResponse(200, `{"token": "tok-2"}`),
		jsonResponse(401, `{}`),
	}}
	p := testProvider(s.do)

	_, err := p.Search(context.Background(), "X", provider.MediaTypeSeries, "")
	var metaErr *provider.MetadataError
	if !errors.As(err, &metaErr) {
		t.Fatalf("Search() error = %T, want *provider.MetadataError", err)
	}
	if metaErr.Status != http.StatusUnauthorized {
		t.Errorf("MetadataError.Status = %d, want 401", metaErr.Status)
	}
	if len(s.requests) != 4 {
		t.Errorf("got %d requests, want exactly one retry before giving up", len(s.requests))
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(403, `{}`),
	}}
	p := testProvider(s.do)

	_, err := p.Search(context.Background(), "X", provider.MediaTypeSeries, "")
	var authErr *provider.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Search() error = %T, want *provider.AuthError", err)
	}
}

func TestLoginEmptyTokenIsAuthError(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": ""}`),
	}}
	p := testProvider(s.do)

	_, err := p.Search(context.Background(), "X", provider.MediaTypeSeries, "")
	var authErr *provider.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Search() error = %T, want *provider.AuthError", err)
	}
}

func TestNullFirstAiredYieldsEmptyYear(t *testing.T) {
	s := &script{responses: []*http.Response{
		jsonResponse(200, `{"token": "tok-1"}`),
		jsonResponse(200, `{"data": {"id": 123, "seriesName": "Obscure Show", "firstAired": null}}`),
	}}
	p := testProvider(s.do)

	got, err := p.GetDetails(context.Background(), "123", provider.MediaTypeSeries)
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}

	want := provider.MetadataResult{
		IDs:       provider.MediaIDs{TVDB: "123"},
		Title:     "Obscure Show",
		Year:      "",
		MediaType: provider.MediaTypeSeries,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetDetails() mismatch (-want +got):\n%s", diff)
	}
}
