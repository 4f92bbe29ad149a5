package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/llm"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/search"
	"github.com/fachebot/meeting-brief/internal/slack"
	"golang.org/x/sync/errgroup"
)

// InvalidRequestError 请求参数错误
type InvalidRequestError struct {
	Detail string
}

func (e *InvalidRequestError) Error() string {
	return e.Detail
}

func invalidRequest(format string, args ...any) error {
	return &InvalidRequestError{Detail: fmt.Sprintf(format, args...)}
}

// slackSource 获取频道上下文（便于测试注入 mock）
type slackSource interface {
	FetchChannelContext(ctx context.Context, channelID string, opts slack.ContextOptions) (string, int, error)
}

// crmClient CRM 查询与写入
type crmClient interface {
	Configured() bool
	FetchContactsByEmail(ctx context.Context, emails []string) ([]hubspot.Contact, error)
	FindContact(ctx context.Context, name, company, email string) (*hubspot.Contact, error)
	CreateContact(ctx context.Context, data hubspot.NewContact) (string, error)
	GetContact(ctx context.Context, id string) (*hubspot.Contact, error)
}

// completer 调用 LLM 生成文本
type completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	InputBudget() int
}

type briefStore interface {
	Create(ctx context.Context, data *model.BriefData) (*model.Brief, error)
}

type usageRecorder interface {
	Record(ctx context.Context, eventType, clientIP string, data map[string]any) (*model.UsageEvent, error)
}

type briefNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, title, content string) error
}

type Service struct {
	slack    slackSource
	crm      crmClient
	searcher search.Searcher
	llm      completer
	briefs   briefStore
	usage    usageRecorder
	notifier briefNotifier
	config   *config.Config
}

func NewService(
	slackClient *slack.Client,
	crm *hubspot.Client,
	searcher search.Searcher,
	llmClient *llm.Client,
	briefs *model.BriefModel,
	usage *model.UsageModel,
	notifier briefNotifier,
	cfg *config.Config,
) *Service {
	return &Service{
		slack:    slackClient,
		crm:      crm,
		searcher: searcher,
		llm:      llmClient,
		briefs:   briefs,
		usage:    usage,
		notifier: notifier,
		config:   cfg,
	}
}

// splitEmails 按逗号拆分邮箱并去掉空项
func splitEmails(raw string) []string {
	var emails []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

// normalizeEffort 空值使用默认值，其余必须是 high / medium / low
func (s *Service) normalizeEffort(effort string) (string, error) {
	effort = strings.ToLower(strings.TrimSpace(effort))
	if effort == "" {
		effort = s.config.Brief.DefaultEffort
	}
	if !llm.ValidEffort(effort) {
		return "", invalidRequest("effort must be one of high, medium, low")
	}
	return effort, nil
}

// normalizeRun 填充默认值并校验
func (s *Service) normalizeRun(req *RunRequest) error {
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	if req.ChannelID == "" {
		return invalidRequest("channel_id is required")
	}
	if req.Limit <= 0 {
		req.Limit = s.config.Brief.DefaultMaxMessages
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = s.config.Brief.DefaultLookbackDays
	}

	effort, err := s.normalizeEffort(req.Effort)
	if err != nil {
		return err
	}
	req.Effort = effort

	if req.ResolveNames == nil {
		resolve := true
		req.ResolveNames = &resolve
	}
	if req.Prompt = strings.TrimSpace(req.Prompt); req.Prompt == "" {
		req.Prompt = DefaultRunPrompt
	}
	req.Purpose = strings.TrimSpace(req.Purpose)
	return nil
}

// enrichContacts 按邮箱查询 CRM，超时或失败时视为无联系人
func (s *Service) enrichContacts(ctx context.Context, emails []string) []hubspot.Contact {
	if len(emails) == 0 || !s.crm.Configured() {
		return nil
	}

	timeout := time.Duration(s.config.HubSpot.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	contacts, err := s.crm.FetchContactsByEmail(ctx, emails)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("[Brief] HubSpot 查询超时，忽略参会人信息")
		} else {
			logger.Warnf("[Brief] HubSpot 查询失败，忽略参会人信息: %v", err)
		}
		return nil
	}
	return contacts
}

// Run 生成内部会议简报：并行获取 Slack 与 HubSpot 上下文，调用一次模型
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.normalizeRun(&req); err != nil {
		return nil, err
	}
	emails := splitEmails(req.AttendeeEmails)
	logger.Infof("[Brief] 开始生成简报，频道 %s，回溯 %d 天，参会人 %d 个", req.ChannelID, req.LookbackDays, len(emails))

	var (
		slackBlock string
		actualDays int
		contacts   []hubspot.Contact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		slackBlock, actualDays, err = s.slack.FetchChannelContext(gctx, req.ChannelID, slack.ContextOptions{
			LookbackDays:  req.LookbackDays,
			MaxMessages:   req.Limit,
			ResolveNames:  *req.ResolveNames,
			ExpandThreads: true,
		})
		return err
	})
	g.Go(func() error {
		contacts = s.enrichContacts(gctx, emails)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 系统指令与用户提示词之外的预算留给 Slack 上下文
	budget := s.llm.InputBudget() - llm.EstimateTokens(ExecutiveSystemMessage) - llm.EstimateTokens(req.Prompt) -
		llm.EstimateTokens(ComposeRunContext(req.Purpose, contacts, "", actualDays))
	slackBlock = llm.TrimToTokens(slackBlock, budget)

	composed := ComposeRunContext(req.Purpose, contacts, slackBlock, actualDays)
	text, err := s.llm.Complete(ctx, llm.Request{
		System: ExecutiveSystemMessage,
		User:   UserMessage(req.Prompt, composed),
		Effort: req.Effort,
	})
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		BriefMarkdown: text,
		BriefHTML:     RenderHTML(text),
		Meta: RunMeta{
			ChannelID:      req.ChannelID,
			LookbackDays:   actualDays,
			MessagesLimit:  req.Limit,
			AttendeesFound: len(contacts),
			Effort:         req.Effort,
		},
	}

	s.persist(ctx, model.BriefKindInternal, req.ChannelID, req.Effort, text, result.Meta, &result.ID)
	s.record(ctx, model.EventBriefGenerated, req.ClientIP, map[string]any{
		"channel_id":      req.ChannelID,
		"lookback_days":   actualDays,
		"attendees_found": len(contacts),
		"effort":          req.Effort,
	})
	if req.Notify {
		s.share(ctx, "Meeting brief: "+req.ChannelID, text)
	}

	logger.Infof("[Brief] 简报生成完成，频道 %s，%d 个字符", req.ChannelID, len(text))
	return result, nil
}

// persist 保存简报；存储失败不影响返回结果
func (s *Service) persist(ctx context.Context, kind, subject, effort, text string, meta any, id *string) {
	if s.briefs == nil {
		return
	}
	saved, err := s.briefs.Create(ctx, &model.BriefData{
		Kind:     kind,
		Subject:  subject,
		Effort:   effort,
		Markdown: text,
		Meta:     meta,
	})
	if err != nil {
		logger.Errorf("[Brief] 保存简报失败: %v", err)
		return
	}
	*id = saved.ID
}

// record 记录使用日志；失败只打日志
func (s *Service) record(ctx context.Context, eventType, clientIP string, data map[string]any) {
	if s.usage == nil {
		return
	}
	if _, err := s.usage.Record(ctx, eventType, clientIP, data); err != nil {
		logger.Errorf("[Usage] 记录 %s 失败: %v", eventType, err)
	}
}

// share 分享到 Slack；失败只打日志
func (s *Service) share(ctx context.Context, title, text string) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	if err := s.notifier.Notify(ctx, title, text); err != nil {
		logger.Errorf("[Notify] 分享简报失败: %v", err)
	}
}
