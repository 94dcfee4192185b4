/*
 * @module service/fetcher/http_fetcher
 * @description HTTP fetcher against the external system's JSON export endpoints
 * @architecture Simple HTTP client - GET <baseURL>/<kind>?dateFrom&dateTo[&page&pageSize]
 * @stateFlow build URL -> GET page -> decode array or {data: [...]} envelope -> next page until a short one -> raw records
 * @rules numbers are decoded as json.Number so long source ids survive; non-2xx is an error;
 *        pages are 1-based and a page shorter than pageSize ends the window
 * @dependencies net/http, encoding/json
 * @refs fetcher.go
 */

package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
)

// HTTPConfig HTTP fetcher settings
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	SourceIDField string            // field carrying the external id, default "sourceId"
	Headers       map[string]string // static headers, e.g. an API key
	KindPaths     map[string]string // overrides the path segment per kind
	PageSize      int               // records per page; 0 disables paging
	MaxPages      int               // bound on pages per window, default 10000
}

// HTTPFetcher Fetcher backed by HTTP GET
type HTTPFetcher struct {
	client *http.Client
	config HTTPConfig
}

// NewHTTPFetcher creates an HTTP fetcher
func NewHTTPFetcher(config HTTPConfig) *HTTPFetcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.SourceIDField == "" {
		config.SourceIDField = "sourceId"
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 10000
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

// Fetch GETs every page of one kind for window
func (h *HTTPFetcher) Fetch(ctx context.Context, kind string, window Window) ([]mapper.RawRecord, error) {
	start := time.Now()
	var records []mapper.RawRecord
	pages := 0

	for page := 1; ; page++ {
		if page > h.config.MaxPages {
			return nil, fmt.Errorf("fetch %s: more than %d pages", kind, h.config.MaxPages)
		}
		items, err := h.fetchPage(ctx, kind, window, page)
		if err != nil {
			return nil, err
		}
		pages++
		for _, item := range items {
			records = append(records, mapper.RawRecord{
				Kind:     kind,
				SourceID: item[h.config.SourceIDField],
				Fields:   item,
			})
		}
		if h.config.PageSize <= 0 || len(items) < h.config.PageSize {
			break
		}
	}

	slog.Debug("fetched records",
		"kind", kind,
		"window", window.String(),
		"pages", pages,
		"count", len(records),
		"duration", time.Since(start))
	return records, nil
}

func (h *HTTPFetcher) fetchPage(ctx context.Context, kind string, window Window, page int) ([]map[string]interface{}, error) {
	endpoint, err := h.buildURL(kind, window, page)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", kind, resp.StatusCode)
	}

	items, err := decodeItems(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", kind, err)
	}
	return items, nil
}

func (h *HTTPFetcher) buildURL(kind string, window Window, page int) (string, error) {
	base, err := url.Parse(strings.TrimRight(h.config.BaseURL, "/"))
	if err != nil || base.Scheme == "" {
		return "", fmt.Errorf("invalid fetcher base url %q", h.config.BaseURL)
	}

	segment := kind
	if p, ok := h.config.KindPaths[kind]; ok && p != "" {
		segment = strings.Trim(p, "/")
	}
	base.Path = base.Path + "/" + segment

	q := base.Query()
	if !window.IsZero() {
		q.Set("dateFrom", window.From.Format(meta.ExternalDateLayout))
		q.Set("dateTo", window.To.Format(meta.ExternalDateLayout))
	}
	if h.config.PageSize > 0 {
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(h.config.PageSize))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// decodeItems accepts a bare JSON array or an object with a "data" array
func decodeItems(body []byte) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var items []map[string]interface{}
		if err := dec.Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
