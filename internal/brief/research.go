package brief

import (
	"context"
	"fmt"
	"strings"

	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/llm"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/search"
	"golang.org/x/sync/errgroup"
)

const (
	backgroundResults = 3 // 每个参会人的背景搜索条数
	companyResults    = 3 // 公司概况与新闻各取的条数
)

// ResearchAttendees BD 第一阶段：并行调研每个参会人的 LinkedIn、公开背景和 CRM 记录
func (s *Service) ResearchAttendees(ctx context.Context, req ResearchRequest) (*ResearchResult, error) {
	if len(req.Attendees) == 0 {
		return nil, invalidRequest("at least one attendee is required")
	}
	checkHubSpot := req.CheckHubSpot == nil || *req.CheckHubSpot
	target := strings.TrimSpace(req.TargetCompany)
	logger.Infof("[Research] 开始调研 %d 个参会人，目标公司: %s", len(req.Attendees), target)

	researched := make([]ResearchedAttendee, len(req.Attendees))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.config.Brief.ResearchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, attendee := range req.Attendees {
		g.Go(func() error {
			researched[i] = s.researchAttendee(gctx, attendee, target, checkHubSpot)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ResearchResult{
		ResearchedAttendees: researched,
		TotalResearched:     len(researched),
	}
	for _, a := range researched {
		if a.LinkedInURL != "" {
			result.LinkedInFound++
		}
		if a.HubSpotContact != nil {
			result.HubSpotFound++
		}
	}

	s.record(ctx, model.EventAttendeeResearch, req.ClientIP, map[string]any{
		"target_company": target,
		"attendee_count": len(req.Attendees),
	})
	logger.Infof("[Research] 调研完成：LinkedIn %d/%d，HubSpot %d/%d",
		result.LinkedInFound, result.TotalResearched, result.HubSpotFound, result.TotalResearched)
	return result, nil
}

// researchAttendee 单个参会人调研，任何一步失败只记录日志
func (s *Service) researchAttendee(ctx context.Context, attendee Attendee, target string, checkHubSpot bool) ResearchedAttendee {
	attendee.Name = strings.TrimSpace(attendee.Name)
	attendee.Email = strings.TrimSpace(attendee.Email)
	if strings.TrimSpace(attendee.Company) == "" {
		attendee.Company = target
	}

	result := ResearchedAttendee{
		Attendee:           attendee,
		BackgroundResearch: BackgroundResearch{BackgroundInfo: []search.Result{}},
	}
	if attendee.Name == "" {
		return result
	}

	if s.searcher != nil {
		profile, err := search.FindLinkedInProfile(ctx, s.searcher, attendee.Name, attendee.Company)
		if err != nil {
			logger.Warnf("[Research] 搜索 %s 的 LinkedIn 失败: %v", attendee.Name, err)
		} else if profile != nil {
			result.LinkedInURL = profile.URL
			result.LinkedInTitle = profile.Title
			result.LinkedInSnippet = profile.Snippet
		}

		info, err := search.BackgroundInfo(ctx, s.searcher, attendee.Name, attendee.Company, attendee.Title, backgroundResults)
		if err != nil {
			logger.Warnf("[Research] 搜索 %s 的背景信息失败: %v", attendee.Name, err)
		} else {
			result.BackgroundResearch.BackgroundInfo = info
		}
	}

	if checkHubSpot && s.crm.Configured() {
		contact, err := s.crm.FindContact(ctx, attendee.Name, attendee.Company, attendee.Email)
		if err != nil {
			logger.Warnf("[Research] 查询 %s 的 HubSpot 记录失败: %v", attendee.Name, err)
		} else {
			result.HubSpotContact = contact
		}
	}
	return result
}

// legacyAttendees 旧版前端只提交参会人列表，没有调研结果
func legacyAttendees(attendees []Attendee) []ResearchedAttendee {
	result := make([]ResearchedAttendee, 0, len(attendees))
	for _, a := range attendees {
		result = append(result, ResearchedAttendee{Attendee: a})
	}
	return result
}

// reportPrompt 报告请求经过校验和组装后的提示词
type reportPrompt struct {
	effort          string
	system          string
	user            string
	researchContext string
	attendees       []ResearchedAttendee
	sources         int
}

// prepareReport 校验请求、搜索公司信息并组装完整提示词
func (s *Service) prepareReport(ctx context.Context, req *ReportRequest) (*reportPrompt, error) {
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if req.CompanyName == "" {
		return nil, invalidRequest("company_name is required")
	}
	effort, err := s.normalizeEffort(req.Effort)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultReportPrompt
	}

	attendees := req.ResearchedAttendees
	if len(attendees) == 0 && len(req.Attendees) > 0 {
		attendees = legacyAttendees(req.Attendees)
	}

	var company *search.CompanyResearch
	if s.searcher != nil {
		company, err = search.ResearchCompany(ctx, s.searcher, req.CompanyName, req.Industry, companyResults)
		if err != nil {
			logger.Warnf("[Research] 搜索公司 %s 失败: %v", req.CompanyName, err)
			company = nil
		}
	}

	sources := 0
	if company != nil {
		sources += len(company.Overview) + len(company.News)
	}
	for _, a := range attendees {
		if a.LinkedInURL != "" {
			sources++
		}
		sources += len(a.BackgroundResearch.BackgroundInfo)
	}

	researchContext := BuildResearchContext(company, attendees)
	budget := s.llm.InputBudget() - llm.EstimateTokens(BDSystemMessage) - llm.EstimateTokens(prompt) -
		llm.EstimateTokens(ComposeReportContext(req.CompanyName, req.Industry, req.MeetingContext, attendees, ""))
	researchContext = llm.TrimToTokens(researchContext, budget)

	composed := ComposeReportContext(req.CompanyName, req.Industry, req.MeetingContext, attendees, researchContext)
	return &reportPrompt{
		effort:          effort,
		system:          BDSystemMessage,
		user:            UserMessage(prompt, composed),
		researchContext: researchContext,
		attendees:       attendees,
		sources:         sources,
	}, nil
}

// GenerateReport BD 第二阶段：基于调研结果生成情报报告
func (s *Service) GenerateReport(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	p, err := s.prepareReport(ctx, &req)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Research] 开始生成 %s 的情报报告，参会人 %d 个，信息来源 %d 条", req.CompanyName, len(p.attendees), p.sources)

	text, err := s.llm.Complete(ctx, llm.Request{System: p.system, User: p.user, Effort: p.effort})
	if err != nil {
		return nil, err
	}

	result := &ReportResult{
		ReportMarkdown: text,
		ReportHTML:     RenderHTML(text),
		Meta: ReportMeta{
			CompanyName:     req.CompanyName,
			Industry:        req.Industry,
			AttendeesCount:  len(p.attendees),
			ResearchSources: p.sources,
			Effort:          p.effort,
		},
	}

	s.persist(ctx, model.BriefKindBD, req.CompanyName, p.effort, text, result.Meta, &result.ID)
	s.record(ctx, model.EventIntelligenceReport, req.ClientIP, map[string]any{
		"company_name": req.CompanyName,
		"effort":       p.effort,
	})
	if req.Notify {
		s.share(ctx, "BD intelligence report: "+req.CompanyName, text)
	}
	return result, nil
}

// PreviewPrompt 返回将要发送给模型的完整提示词，不调用模型
func (s *Service) PreviewPrompt(ctx context.Context, req ReportRequest) (*PromptPreview, error) {
	p, err := s.prepareReport(ctx, &req)
	if err != nil {
		return nil, err
	}

	total := len(p.system) + len(p.user)
	return &PromptPreview{
		SystemMessage:   p.system,
		UserPrompt:      p.user,
		ResearchContext: p.researchContext,
		PromptStats: PromptStats{
			SystemMessageLength:   len(p.system),
			UserPromptLength:      len(p.user),
			ResearchContextLength: len(p.researchContext),
			TotalLength:           total,
			EstimatedTokens:       llm.EstimateTokens(p.system) + llm.EstimateTokens(p.user),
		},
	}, nil
}

// AddToHubSpot 将参会人写入 CRM；已存在时返回已有联系人ID
func (s *Service) AddToHubSpot(ctx context.Context, req HubSpotAddRequest) (*HubSpotAddResult, error) {
	a := req.Attendee
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, invalidRequest("attendee name is required")
	}
	if !s.crm.Configured() {
		return &HubSpotAddResult{Success: false, Message: hubspot.ErrNotConfigured.Error()}, nil
	}

	existing, err := s.crm.FindContact(ctx, a.Name, a.Company, a.Email)
	if err != nil {
		return &HubSpotAddResult{Success: false, Message: err.Error()}, nil
	}
	if existing != nil {
		name := existing.FullName()
		if name == "" {
			name = a.Name
		}
		return &HubSpotAddResult{
			Success:   false,
			ContactID: existing.ID,
			Message:   fmt.Sprintf("%s already exists in HubSpot (ID: %s)", name, existing.ID),
			Contact:   existing,
		}, nil
	}

	first, last := hubspot.SplitNameForCreate(a.Name)
	id, err := s.crm.CreateContact(ctx, hubspot.NewContact{
		FirstName:   first,
		LastName:    last,
		Email:       a.Email,
		JobTitle:    a.Title,
		Company:     a.Company,
		LinkedInURL: a.LinkedInURL,
	})
	if err != nil {
		logger.Warnf("[Research] 创建 HubSpot 联系人 %s 失败: %v", a.Name, err)
		return &HubSpotAddResult{Success: false, Message: err.Error()}, nil
	}

	s.record(ctx, model.EventHubSpotAdd, req.ClientIP, map[string]any{
		"name":       a.Name,
		"company":    a.Company,
		"contact_id": id,
	})

	// 回读 CRM 中保存的记录，失败不影响结果
	contact, err := s.crm.GetContact(ctx, id)
	if err != nil {
		logger.Warnf("[Research] 读取新建的 HubSpot 联系人 %s 失败: %v", id, err)
		contact = nil
	}
	return &HubSpotAddResult{
		Success:   true,
		ContactID: id,
		Message:   fmt.Sprintf("Added %s to HubSpot", a.Name),
		Contact:   contact,
	}, nil
}
