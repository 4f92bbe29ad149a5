package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const serperURL = "https://google.serper.dev/search"

// ErrNotConfigured serper 后端缺少 API Key
var ErrNotConfigured = errors.New("search API key not configured")

// Serper Google 搜索 JSON API
type Serper struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSerper(baseURL, apiKey string, httpClient *http.Client) *Serper {
	if baseURL == "" {
		baseURL = serperURL
	}
	return &Serper{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if s.apiKey == "" {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{"q": query, "num": maxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建搜索请求失败: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("搜索请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("搜索请求失败: HTTP %d", resp.StatusCode)
	}

	var data serperResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&data); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	results := make([]Result, 0, len(data.Organic))
	for _, item := range data.Organic {
		if len(results) >= maxResults {
			break
		}
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}
