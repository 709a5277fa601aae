package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"songcatalog/core/catalog"
	"songcatalog/logger"

	"golang.org/x/sync/errgroup"
)

// 同时发出的查询上限
const maxConcurrent = 8

// Client 发行信息服务客户端，实现 catalog.ReleaseDateSource
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	known map[string]time.Time
}

var _ catalog.ReleaseDateSource = (*Client)(nil)

// NewClient 创建新的API客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		known: make(map[string]time.Time),
	}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

type releaseResponse struct {
	AlbumID     string `json:"albumId"`
	ReleaseDate string `json:"releaseDate"`
}

// ReleaseDates looks up each album once. Failed or unknown lookups are
// left out of the result; listing must not fail because enrichment did.
func (c *Client) ReleaseDates(ctx context.Context, albumIDs []string) map[string]time.Time {
	out := make(map[string]time.Time, len(albumIDs))
	var missing []string
	seen := make(map[string]bool, len(albumIDs))

	c.mu.RLock()
	for _, id := range albumIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := c.known[id]; ok {
			out[id] = t
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()

	var (
		g     errgroup.Group
		outMu sync.Mutex
	)
	g.SetLimit(maxConcurrent)
	for _, id := range missing {
		id := id
		g.Go(func() error {
			t, ok, err := c.fetch(ctx, id)
			if err != nil {
				logger.Warn("[Release] 查询发行日期失败", logger.String("albumId", id), logger.ErrorField(err))
				return nil
			}
			if !ok {
				return nil
			}
			outMu.Lock()
			out[id] = t
			outMu.Unlock()
			c.mu.Lock()
			c.known[id] = t
			c.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) fetch(ctx context.Context, albumID string) (time.Time, bool, error) {
	apiURL := fmt.Sprintf("%s/releases/%s", c.baseURL, url.PathEscape(albumID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return time.Time{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body releaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, false, fmt.Errorf("解析响应失败: %w", err)
	}
	t, ok := catalog.ParseDate(body.ReleaseDate)
	if !ok {
		return time.Time{}, false, fmt.Errorf("invalid releaseDate %q", body.ReleaseDate)
	}
	return t, true, nil
}
