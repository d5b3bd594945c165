package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/parleyhq/parley/llm"
)

// SearchResult is one hit returned by the relay.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch queries an HTTP search relay. Calls are rate-limited client-side
// so a runaway auto-mode loop cannot hammer the relay.
type WebSearch struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewWebSearch(endpoint, apiKey string) *WebSearch {
	return &WebSearch{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (w *WebSearch) Name() string { return ToolWebSearch }

func (w *WebSearch) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolWebSearch,
		Description: "Search the web and return the top results with titles, URLs and snippets.",
		Parameters: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"}
			},
			"required": ["query"]
		}`,
	}
}

func (w *WebSearch) Payload(args map[string]any) string {
	return stringArg(args, "query")
}

func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, errors.New("query required")
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s?q=%s", w.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search relay returned status %d", resp.StatusCode)
	}

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	return results, nil
}
