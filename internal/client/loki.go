// Loki HTTP client used by the context assembler for log excerpts.
//
// Environment:
//   - LOKI_URL: Loki base URL (e.g. http://loki.monitoring.svc:3100)

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/config"
)

// Query window and line cap for one excerpt.
const (
	lokiWindow = 5 * time.Minute
	lokiLimit  = 50
)

type LokiClient struct {
	baseURL    string
	httpClient *http.Client
}

type lokiQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

func NewLokiClient(cfg config.LokiConfig) *LokiClient {
	return &LokiClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *LokiClient) IsConfigured() bool {
	return c.baseURL != ""
}

// QueryPodLogs pulls the last five minutes of logs for a pod and returns the
// lines newest last. The caller bounds the excerpt size.
func (c *LokiClient) QueryPodLogs(ctx context.Context, namespace, pod string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("loki base URL not configured")
	}

	now := time.Now()
	params := url.Values{}
	params.Set("query", fmt.Sprintf(`{namespace=%q, pod=%q}`, namespace, pod))
	params.Set("start", strconv.FormatInt(now.Add(-lokiWindow).UnixNano(), 10))
	params.Set("end", strconv.FormatInt(now.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(lokiLimit))
	params.Set("direction", "backward")

	endpoint := c.baseURL + "/loki/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("loki returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var queryResp lokiQueryResponse
	if err := json.Unmarshal(body, &queryResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var lines []string
	for _, result := range queryResp.Data.Result {
		for _, value := range result.Values {
			lines = append(lines, value[1])
		}
	}
	// backward direction returns newest first
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n"), nil
}
