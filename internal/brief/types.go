package brief

import (
	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/search"
)

// RunRequest 内部会议简报请求
type RunRequest struct {
	ChannelID      string `json:"channel_id"`
	Limit          int    `json:"limit"`
	LookbackDays   int    `json:"lookback_days"`
	Effort         string `json:"effort"`
	ResolveNames   *bool  `json:"resolve_names"`
	Prompt         string `json:"prompt"`
	AttendeeEmails string `json:"attendee_emails"` // 逗号分隔
	Purpose        string `json:"purpose"`
	Notify         bool   `json:"notify"`
	ClientIP       string `json:"-"`
}

// RunMeta 简报元数据
type RunMeta struct {
	ChannelID      string `json:"channel_id"`
	LookbackDays   int    `json:"lookback_days"`
	MessagesLimit  int    `json:"messages_limit"`
	AttendeesFound int    `json:"attendees_found"`
	Effort         string `json:"effort"`
}

// RunResult 内部会议简报结果
type RunResult struct {
	ID            string  `json:"id,omitempty"`
	BriefMarkdown string  `json:"brief_markdown"`
	BriefHTML     string  `json:"brief_html"`
	Meta          RunMeta `json:"meta"`
}

// Attendee 参会人基本信息
type Attendee struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Email   string `json:"email"`
}

// BackgroundResearch 参会人背景搜索结果
type BackgroundResearch struct {
	BackgroundInfo []search.Result `json:"background_info"`
}

// ResearchedAttendee 调研后的参会人
type ResearchedAttendee struct {
	Attendee
	LinkedInURL        string             `json:"linkedin_url"`
	LinkedInTitle      string             `json:"linkedin_title"`
	LinkedInSnippet    string             `json:"linkedin_snippet"`
	HubSpotContact     *hubspot.Contact   `json:"hubspot_contact"`
	BackgroundResearch BackgroundResearch `json:"background_research"`
}

// ResearchRequest BD 第一阶段：调研参会人
type ResearchRequest struct {
	Attendees     []Attendee `json:"attendees"`
	TargetCompany string     `json:"target_company"`
	CheckHubSpot  *bool      `json:"check_hubspot"`
	ClientIP      string     `json:"-"`
}

// ResearchResult 调研结果汇总
type ResearchResult struct {
	ResearchedAttendees []ResearchedAttendee `json:"researched_attendees"`
	TotalResearched     int                  `json:"total_researched"`
	LinkedInFound       int                  `json:"linkedin_found"`
	HubSpotFound        int                  `json:"hubspot_found"`
}

// ReportRequest BD 第二阶段：生成情报报告
// Attendees 为旧版前端格式，仅在 ResearchedAttendees 为空时使用
type ReportRequest struct {
	CompanyName         string               `json:"company_name"`
	Industry            string               `json:"industry"`
	MeetingContext      string               `json:"meeting_context"`
	Effort              string               `json:"effort"`
	Prompt              string               `json:"prompt"`
	ResearchedAttendees []ResearchedAttendee `json:"researched_attendees"`
	Attendees           []Attendee           `json:"attendees"`
	Notify              bool                 `json:"notify"`
	ClientIP            string               `json:"-"`
}

// ReportMeta 报告元数据
type ReportMeta struct {
	CompanyName     string `json:"company_name"`
	Industry        string `json:"industry"`
	AttendeesCount  int    `json:"attendees_count"`
	ResearchSources int    `json:"research_sources"`
	Effort          string `json:"effort"`
}

// ReportResult 情报报告
type ReportResult struct {
	ID             string     `json:"id,omitempty"`
	ReportMarkdown string     `json:"report_markdown"`
	ReportHTML     string     `json:"report_html"`
	Meta           ReportMeta `json:"meta"`
}

// PromptStats 提示词长度统计（字符数）
type PromptStats struct {
	SystemMessageLength   int `json:"system_message_length"`
	UserPromptLength      int `json:"user_prompt_length"`
	ResearchContextLength int `json:"research_context_length"`
	TotalLength           int `json:"total_length"`
	EstimatedTokens       int `json:"estimated_tokens"`
}

// PromptPreview 不调用模型时的完整提示词预览
type PromptPreview struct {
	SystemMessage   string      `json:"system_message"`
	UserPrompt      string      `json:"user_prompt"`
	ResearchContext string      `json:"research_context"`
	PromptStats     PromptStats `json:"prompt_stats"`
}

// AttendeeProfile 参会人及其 LinkedIn 主页
type AttendeeProfile struct {
	Attendee
	LinkedInURL string `json:"linkedin_url"`
}

// HubSpotAddRequest 将调研到的参会人加入 CRM
type HubSpotAddRequest struct {
	Attendee AttendeeProfile `json:"attendee"`
	ClientIP string          `json:"-"`
}

// HubSpotAddResult 新建联系人结果
type HubSpotAddResult struct {
	Success   bool             `json:"success"`
	ContactID string           `json:"contact_id,omitempty"`
	Message   string           `json:"message"`
	Contact   *hubspot.Contact `json:"contact,omitempty"`
}
