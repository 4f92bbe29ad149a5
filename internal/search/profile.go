package search

import (
	"context"
	"fmt"
	"strings"
)

// Profile 搜索到的 LinkedIn 个人主页
type Profile struct {
	URL     string
	Title   string
	Snippet string
}

func isLinkedInProfile(u string) bool {
	return strings.Contains(strings.ToLower(u), "linkedin.com/in/")
}

func personQuery(name, company string) string {
	query := fmt.Sprintf("%q", strings.TrimSpace(name))
	if company = strings.TrimSpace(company); company != "" {
		query += " " + company
	}
	return query
}

// FindLinkedInProfile 搜索个人 LinkedIn 主页，未找到时返回 nil
func FindLinkedInProfile(ctx context.Context, s Searcher, name, company string) (*Profile, error) {
	results, err := s.Search(ctx, personQuery(name, company)+" site:linkedin.com/in", 5)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if isLinkedInProfile(r.URL) {
			return &Profile{URL: r.URL, Title: r.Title, Snippet: r.Snippet}, nil
		}
	}
	return nil, nil
}

// BackgroundInfo 搜索人员的公开背景信息，排除 LinkedIn 主页
func BackgroundInfo(ctx context.Context, s Searcher, name, company, title string, maxResults int) ([]Result, error) {
	query := personQuery(name, company)
	if title = strings.TrimSpace(title); title != "" {
		query += " " + title
	}

	results, err := s.Search(ctx, query, maxResults+3)
	if err != nil {
		return nil, err
	}

	info := make([]Result, 0, maxResults)
	for _, r := range results {
		if len(info) >= maxResults {
			break
		}
		if isLinkedInProfile(r.URL) {
			continue
		}
		info = append(info, r)
	}
	return info, nil
}

// CompanyResearch 公司概况与近期动态
type CompanyResearch struct {
	Overview []Result
	News     []Result
}

// ResearchCompany 分两次搜索公司概况和近期新闻
func ResearchCompany(ctx context.Context, s Searcher, company, industry string, maxResults int) (*CompanyResearch, error) {
	company = strings.TrimSpace(company)
	overviewQuery := fmt.Sprintf("%q company overview", company)
	if industry = strings.TrimSpace(industry); industry != "" {
		overviewQuery += " " + industry
	}

	overview, err := s.Search(ctx, overviewQuery, maxResults)
	if err != nil {
		return nil, err
	}
	news, err := s.Search(ctx, fmt.Sprintf("%q news announcement funding", company), maxResults)
	if err != nil {
		return nil, err
	}
	return &CompanyResearch{Overview: overview, News: news}, nil
}
