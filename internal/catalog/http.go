package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

// httpClient issues the raw GET calls against the catalog API and maps
// status codes to the error-kind taxonomy. It holds no business logic:
// retry, breaker, and cache live one layer up in Client.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return domain.NewUpstream(err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.NewUpstream(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.NewUpstream(fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFound("", "") // caller adds entity/id context
	default:
		return domain.NewUpstream(fmt.Errorf("catalog returned status %d", resp.StatusCode))
	}
}
