package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// EmptyOutput 模型返回了空内容
const EmptyOutput = "(No text output received from model)"

// ErrNotConfigured 未配置 API Key
var ErrNotConfigured = errors.New("OPENAI_API_KEY not configured")

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Request 单次补全请求
type Request struct {
	System string
	User   string
	Effort string
}

type Client struct {
	config         *config.LLM
	openaiClient   openAIClientInterface
	maxInputTokens int
}

func NewClient(cfg *config.LLM, httpClient *http.Client) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if httpClient != nil {
		openaiConfig.HTTPClient = httpClient
	}

	return &Client{
		config:         cfg,
		openaiClient:   openai.NewClientWithConfig(openaiConfig),
		maxInputTokens: cfg.MaxTokens - cfg.MaxOutputTokens - config.PromptReserveTokens, // 预留输出和 system prompt
	}
}

// Configured 是否配置了 API Key
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// InputBudget 用户上下文可用的 token 预算
func (c *Client) InputBudget() int {
	return c.maxInputTokens
}

// ValidEffort 推理强度只接受 high / medium / low
func ValidEffort(effort string) bool {
	switch effort {
	case "high", "medium", "low":
		return true
	}
	return false
}

// EstimateTokens 估算文本的 token 数量
func EstimateTokens(text string) int {
	// 中文约 1.5 token/字，英文约 1.3 token/词
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}
	words := len(strings.Fields(text))

	tokens := int(float64(chineseChars)*1.5 + float64(words)*1.3)
	if tokens < len(text)/4 {
		// 估算值太小时用字符数的 1/4 作为下限
		tokens = len(text) / 4
	}
	return tokens
}

// TrimToTokens 超出预算时从最早的行开始丢弃，并在开头加一行提示
// 预算不为正时丢弃全部内容，只保留提示行
func TrimToTokens(text string, budget int) string {
	if text == "" || (budget > 0 && EstimateTokens(text) <= budget) {
		return text
	}

	lines := strings.Split(text, "\n")
	if budget <= 0 {
		return fmt.Sprintf("(%d earlier lines omitted)", len(lines))
	}
	dropped := 0
	for len(lines) > 1 && EstimateTokens(strings.Join(lines, "\n")) > budget {
		lines = lines[1:]
		dropped++
	}
	marker := fmt.Sprintf("(%d earlier lines omitted)", dropped)
	return marker + "\n" + strings.Join(lines, "\n")
}

// trimFences 去掉模型偶尔包裹在整段输出外层的代码块标记
func trimFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") || !strings.HasSuffix(content, "```") || len(content) < 6 {
		return content
	}
	content = strings.TrimSuffix(content, "```")
	if idx := strings.Index(content, "\n"); idx >= 0 {
		content = content[idx+1:]
	} else {
		content = strings.TrimPrefix(content, "```")
	}
	return strings.TrimSpace(content)
}

// Complete 执行一次补全请求，返回模型输出文本
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			// 推理模型使用 developer 角色承载系统指令
			{Role: openai.ChatMessageRoleDeveloper, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxCompletionTokens: c.config.MaxOutputTokens,
	}
	if ValidEffort(req.Effort) {
		chatReq.ReasoningEffort = req.Effort
	}

	start := time.Now()
	resp, err := c.openaiClient.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API 返回空结果")
	}

	logger.Infof("[LLM] 模型 %s 完成，耗时 %v，输入 %d tokens，输出 %d tokens",
		c.config.Model, time.Since(start).Round(time.Millisecond), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	content := trimFences(resp.Choices[0].Message.Content)
	if content == "" {
		return EmptyOutput, nil
	}
	return content, nil
}
