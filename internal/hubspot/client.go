package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
)

const maxErrorBody = 300

// ErrNotConfigured 未配置 HubSpot 令牌
var ErrNotConfigured = errors.New("HubSpot token not configured")

// APIError HubSpot 返回 HTTP >= 400
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "HubSpot error: " + e.Body
}

// contactProperties 查询联系人时请求的属性，linkedin_url 为自定义属性（URL 类型）
var contactProperties = []string{
	"email",
	"firstname",
	"lastname",
	"jobtitle",
	"company",
	"lifecyclestage",
	"linkedin_url",
	"hs_object_id",
}

// Contact CRM 联系人
type Contact struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	JobTitle       string `json:"jobtitle"`
	Company        string `json:"company"`
	LifecycleStage string `json:"lifecyclestage"`
	LinkedInURL    string `json:"linkedin_url"`
}

// UnmarshalJSON 兼容旧版前端回传的 "_id" 字段
func (c *Contact) UnmarshalJSON(data []byte) error {
	type alias Contact
	aux := struct {
		*alias
		LegacyID string `json:"_id"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = aux.LegacyID
	}
	return nil
}

// FullName 返回 "名 姓"
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// NewContact 新建联系人参数
type NewContact struct {
	FirstName   string
	LastName    string
	Email       string
	JobTitle    string
	Company     string
	LinkedInURL string
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type objectRow struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchResponse struct {
	Total   int         `json:"total"`
	Results []objectRow `json:"results"`
}

func (r objectRow) toContact() Contact {
	p := r.Properties
	return Contact{
		ID:             r.ID,
		Email:          p["email"],
		FirstName:      p["firstname"],
		LastName:       p["lastname"],
		JobTitle:       p["jobtitle"],
		Company:        p["company"],
		LifecycleStage: p["lifecyclestage"],
		LinkedInURL:    p["linkedin_url"],
	}
}

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.HubSpot, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// Configured 是否配置了令牌
func (c *Client) Configured() bool {
	return c.token != ""
}

// do 发送 JSON 请求并解析响应
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化 HubSpot 请求失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("创建 HubSpot 请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("调用 HubSpot API 失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取 HubSpot 响应失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("解析 HubSpot 响应失败: %w", err)
	}
	return nil
}

// searchContacts 调用 CRM Search 接口
func (c *Client) searchContacts(ctx context.Context, filters []filter, limit int) ([]Contact, error) {
	payload := searchRequest{
		FilterGroups: []filterGroup{{Filters: filters}},
		Properties:   contactProperties,
		Limit:        limit,
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", payload, &resp); err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(resp.Results))
	for _, row := range resp.Results {
		contacts = append(contacts, row.toContact())
	}
	return contacts, nil
}

// normalizeEmails 去空、转小写、去重，按字典序返回
func normalizeEmails(emails []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		result = append(result, e)
	}
	sort.Strings(result)
	return result
}

// FetchContactsByEmail 按邮箱逐个查询联系人，未找到的邮箱直接跳过
func (c *Client) FetchContactsByEmail(ctx context.Context, emails []string) ([]Contact, error) {
	var contacts []Contact
	for _, email := range normalizeEmails(emails) {
		found, err := c.searchContacts(ctx, []filter{{PropertyName: "email", Operator: "EQ", Value: email}}, 1)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, found...)
	}
	logger.Infof("[HubSpot] 按邮箱查询 %d 个参会人，找到 %d 个联系人", len(emails), len(contacts))
	return contacts, nil
}

// splitNameForSearch 取首个词为名、最后一个词为姓，忽略中间名与缩写
func splitNameForSearch(name string) (first, last string) {
	fields := strings.Fields(name)
	for i := range fields {
		fields[i] = strings.Trim(fields[i], ",")
	}
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[len(fields)-1]
	}
}

// FindContact 先按邮箱查找，找不到再按姓名查找；多条匹配时优先公司名一致的联系人
func (c *Client) FindContact(ctx context.Context, name, company, email string) (*Contact, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		found, err := c.searchContacts(ctx, []filter{{PropertyName: "email", Operator: "EQ", Value: email}}, 1)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &found[0], nil
		}
	}

	first, last := splitNameForSearch(name)
	if first == "" {
		return nil, nil
	}
	filters := []filter{{PropertyName: "firstname", Operator: "EQ", Value: first}}
	if last != "" {
		filters = append(filters, filter{PropertyName: "lastname", Operator: "EQ", Value: last})
	}

	found, err := c.searchContacts(ctx, filters, 10)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		logger.Debugf("[HubSpot] 未找到联系人: %s (%s)", name, company)
		return nil, nil
	}

	if company = strings.ToLower(strings.TrimSpace(company)); company != "" {
		for i := range found {
			candidate := strings.ToLower(found[i].Company)
			if candidate != "" && (strings.Contains(candidate, company) || strings.Contains(company, candidate)) {
				return &found[i], nil
			}
		}
	}
	return &found[0], nil
}

// GetContact 按ID获取联系人
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var row objectRow
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id) + "?properties=" + strings.Join(contactProperties, ",")
	if err := c.do(ctx, http.MethodGet, path, nil, &row); err != nil {
		return nil, err
	}
	contact := row.toContact()
	return &contact, nil
}

// CreateContact 新建联系人，返回联系人ID
func (c *Client) CreateContact(ctx context.Context, data NewContact) (string, error) {
	props := map[string]string{
		"firstname": data.FirstName,
		"lastname":  data.LastName,
	}
	if data.Email != "" {
		props["email"] = strings.ToLower(strings.TrimSpace(data.Email))
	}
	if data.JobTitle != "" {
		props["jobtitle"] = data.JobTitle
	}
	if data.Company != "" {
		props["company"] = data.Company
	}
	if data.LinkedInURL != "" {
		props["linkedin_url"] = data.LinkedInURL
	}

	var row objectRow
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", map[string]any{"properties": props}, &row); err != nil {
		return "", err
	}
	logger.Infof("[HubSpot] 已创建联系人 %s %s (ID: %s)", data.FirstName, data.LastName, row.ID)
	return row.ID, nil
}

// SplitNameForCreate 新建联系人时将全名拆分为名和姓（中间部分归入名）
func SplitNameForCreate(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) <= 1 {
		return strings.Join(fields, ""), ""
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}
