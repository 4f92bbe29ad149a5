package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
)

const (
	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Result 单条搜索结果
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher 网络搜索后端
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// New 按配置选择搜索后端
func New(cfg *config.Search, httpClient *http.Client) (Searcher, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "duckduckgo":
		return NewDuckDuckGo(cfg.BaseURL, httpClient), nil
	case "serper":
		return NewSerper(cfg.BaseURL, cfg.APIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("未知的搜索后端: %s", cfg.Provider)
	}
}
