package marketsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type shopClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newShopClient(apiKey string) (*shopClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("SHOPMASTER_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.shopmaster.io"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("SHOPMASTER_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("shopmaster api key is empty")
	}
	rateLimitPerMin := int64(10)
	if v := strings.TrimSpace(os.Getenv("SHOPMASTER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &shopClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type shopListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (c *shopClient) getList(ctx context.Context, path string, params url.Values) (shopListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return shopListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return shopListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return shopListResponse{}, fmt.Errorf("shopmaster api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed shopListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return shopListResponse{}, err
	}
	return parsed, nil
}

// Order payload shapes from the aggregator API.

type shopOrder struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Marketplace string          `json:"marketplace"`
	Status      string          `json:"status"`
	OrderedAt   string          `json:"ordered_at"`
	UpdatedAt   string          `json:"updated_at"`
	Lines       []shopOrderLine `json:"lines"`
	LineItems   []shopOrderLine `json:"line_items"`
}

type shopOrderLine struct {
	ID          string      `json:"id"`
	Sku         string      `json:"sku"`
	ChoiceText  string      `json:"choice_text"`
	ProductCode string      `json:"product_code"`
	Quantity    json.Number `json:"quantity"`
	Type        string      `json:"type"`
}

func (o shopOrder) lines() []shopOrderLine {
	if len(o.Lines) > 0 {
		return o.Lines
	}
	return o.LineItems
}
