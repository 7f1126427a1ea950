package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-api-key", WithBaseURL(srv.URL))
}

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantURLs   []string
		wantStatus int
		wantErr    string
	}{
		{
			name: "happy path",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/map", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req MapRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "https://www.chinacdc.cn/jksj/jksj04_14275/", req.URL)
				assert.Equal(t, 200, req.Limit)

				_ = json.NewEncoder(w).Encode(MapResponse{Success: true, Links: []Link{
					{URL: "https://www.chinacdc.cn/jksj/jksj04_14275/202502/t20250212_1.html", Title: "第6周"},
					{URL: "https://www.chinacdc.cn/jksj/jksj04_14275/index_1.html"},
				}})
			},
			wantURLs: []string{
				"https://www.chinacdc.cn/jksj/jksj04_14275/202502/t20250212_1.html",
				"https://www.chinacdc.cn/jksj/jksj04_14275/index_1.html",
			},
		},
		{
			name: "auth error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			},
			wantStatus: 401,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"links":`))
			},
			wantErr: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			resp, err := c.Map(context.Background(), MapRequest{URL: "https://www.chinacdc.cn/jksj/jksj04_14275/", Limit: 200})

			switch {
			case tt.wantStatus != 0:
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				assert.Contains(t, err.Error(), "firecrawl: map")
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.True(t, resp.Success)
				assert.Equal(t, tt.wantURLs, resp.URLs())
			}
		})
	}
}

func TestScrape(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		var req ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"rawHtml"}, req.Formats)

		_, _ = w.Write([]byte(`{"success":true,"data":{"rawHtml":"<html><body>表1</body></html>","metadata":{"title":"监测","sourceURL":"https://x/t20250212_1.html","statusCode":200}}}`))
	})

	resp, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://x/t20250212_1.html", Formats: []string{"rawHtml"}})
	require.NoError(t, err)
	assert.Equal(t, "<html><body>表1</body></html>", resp.Data.RawHTML)
	assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
	assert.Equal(t, "https://x/t20250212_1.html", resp.Data.Metadata.SourceURL)
}

func TestScrape_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 502, apiErr.StatusCode)
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("k", WithBaseURL(""), WithHTTPClient(hc)).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL, "empty base url keeps default")
	assert.Same(t, hc, c.http)
}
