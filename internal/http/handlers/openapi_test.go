package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"fundingledger/internal/middleware"
)

func TestOpenAPIJSONRevalidates(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}

	rr := httptest.NewRecorder()
	app.OpenAPIJSON(rr, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" || etag != openAPIETag {
		t.Fatalf("ETag = %q, want %q", etag, openAPIETag)
	}
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	for _, path := range []string{"/v1/donations", "/v1/needs", "/v1/needs/mine", "/v1/needs/{id}/donations"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("document lacks %s", path)
		}
	}

	for _, header := range []string{etag, "W/" + etag, `"other", ` + etag, "*"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
		req.Header.Set("If-None-Match", header)
		rr := httptest.NewRecorder()
		app.OpenAPIJSON(rr, req)
		if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
			t.Fatalf("If-None-Match %q: status = %d, body %d bytes", header, rr.Code, rr.Body.Len())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", `"stale"`)
	rr = httptest.NewRecorder()
	app.OpenAPIJSON(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("stale ETag status = %d", rr.Code)
	}
}

func TestOpenAPIDocsFollowsLocale(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}
	handler := middleware.I18N("en")(http.HandlerFunc(app.OpenAPIDocs))

	tests := []struct {
		locale string
		lang   string
		title  string
	}{
		{locale: "", lang: `lang="en"`, title: "<title>Funding Ledger API</title>"},
		{locale: "id", lang: `lang="id"`, title: "<title>API Buku Besar Pendanaan</title>"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/docs", nil)
		if tc.locale != "" {
			req.Header.Set("X-Locale", tc.locale)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		body := rr.Body.String()
		if rr.Code != http.StatusOK || !strings.Contains(body, tc.lang) || !strings.Contains(body, tc.title) {
			t.Fatalf("locale %q: status = %d body=%s", tc.locale, rr.Code, body)
		}
		if !strings.Contains(body, `spec-url="/v1/openapi.json"`) {
			t.Fatalf("docs page does not point at the document")
		}
	}
}
