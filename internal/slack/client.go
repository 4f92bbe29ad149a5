package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
	slackapi "github.com/slack-go/slack"
)

const (
	maxRateLimitAttempts = 5               // 429 最多重试次数
	maxRetryAfter        = 5 * time.Second // Retry-After 等待上限
	channelPageLimit     = 1000
	channelMaxPages      = 5
)

// ErrNotConfigured 未配置 Slack 令牌
var ErrNotConfigured = errors.New("Slack token not configured")

// APIError Slack 接口返回 ok=false
type APIError struct {
	Method string
	Err    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Slack error in %s: %s", e.Method, e.Err)
}

// slackAPI 定义用到的 Slack Web API 方法，便于测试
type slackAPI interface {
	GetConversationsContext(ctx context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slackapi.GetConversationRepliesParameters) ([]slackapi.Message, bool, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slackapi.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Channel 精简后的频道信息
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

type Client struct {
	api        slackAPI
	configured bool
	prefixes   []string
	maxThreads int
	now        func() time.Time

	mu        sync.Mutex
	userNames map[string]string // 进程内用户名缓存
}

func NewClient(cfg *config.Slack, httpClient *http.Client) *Client {
	options := []slackapi.Option{slackapi.OptionAPIURL(cfg.APIURL)}
	if httpClient != nil {
		options = append(options, slackapi.OptionHTTPClient(httpClient))
	}
	return newClient(slackapi.New(cfg.Token, options...), cfg.Token != "", cfg)
}

func newClient(api slackAPI, configured bool, cfg *config.Slack) *Client {
	maxThreads := cfg.MaxThreads
	if maxThreads <= 0 {
		maxThreads = 20
	}
	return &Client{
		api:        api,
		configured: configured,
		prefixes:   cfg.ChannelPrefixes,
		maxThreads: maxThreads,
		now:        time.Now,
		userNames:  make(map[string]string),
	}
}

// Configured 是否配置了令牌
func (c *Client) Configured() bool {
	return c.configured
}

// call 执行一次 Slack 调用，遇到限流按 Retry-After 等待后重试
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	if !c.configured {
		return ErrNotConfigured
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rateLimited *slackapi.RateLimitedError
		if errors.As(err, &rateLimited) && attempt < maxRateLimitAttempts {
			wait := rateLimited.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
			if wait > maxRetryAfter {
				wait = maxRetryAfter
			}
			logger.Warnf("[Slack] %s 被限流，%v 后重试 (第 %d/%d 次)", method, wait, attempt, maxRateLimitAttempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		var slackErr slackapi.SlackErrorResponse
		if errors.As(err, &slackErr) {
			return &APIError{Method: method, Err: slackErr.Err}
		}
		return fmt.Errorf("调用 Slack %s 失败: %w", method, err)
	}
}

// ListChannels 分页获取未归档的公开与私有频道
func (c *Client) ListChannels(ctx context.Context, limit int) ([]slackapi.Channel, error) {
	pageLimit := limit
	if pageLimit <= 0 || pageLimit > channelPageLimit {
		pageLimit = channelPageLimit
	}

	params := &slackapi.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           pageLimit,
		Types:           []string{"public_channel", "private_channel"},
	}

	var channels []slackapi.Channel
	for page := 0; page < channelMaxPages; page++ {
		var (
			batch  []slackapi.Channel
			cursor string
		)
		err := c.call(ctx, "conversations.list", func() (err error) {
			batch, cursor, err = c.api.GetConversationsContext(ctx, params)
			return err
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, batch...)
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return channels, nil
}

// BriefChannels 返回名称以配置前缀开头的未归档频道
func (c *Client) BriefChannels(ctx context.Context) ([]Channel, error) {
	channels, err := c.ListChannels(ctx, 400)
	if err != nil {
		return nil, err
	}

	result := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.IsArchived || !hasAnyPrefix(ch.Name, c.prefixes) {
			continue
		}
		result = append(result, Channel{ID: ch.ID, Name: ch.Name, IsPrivate: ch.IsPrivate})
	}
	logger.Debugf("[Slack] 共 %d 个频道，过滤后 %d 个", len(channels), len(result))
	return result, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// UserName 解析用户显示名：display_name > real_name > user id
func (c *Client) UserName(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	name, ok := c.userNames[userID]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	var user *slackapi.User
	err := c.call(ctx, "users.info", func() (err error) {
		user, err = c.api.GetUserInfoContext(ctx, userID)
		return err
	})
	if err != nil {
		return "", err
	}

	name = userID
	if user != nil {
		switch {
		case user.Profile.DisplayName != "":
			name = user.Profile.DisplayName
		case user.RealName != "":
			name = user.RealName
		}
	}

	c.mu.Lock()
	c.userNames[userID] = name
	c.mu.Unlock()
	return name, nil
}

// PostMessage 向频道发送一条纯文本消息
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	return c.call(ctx, "chat.postMessage", func() error {
		_, _, err := c.api.PostMessageContext(ctx, channelID, slackapi.MsgOptionText(text, false))
		return err
	})
}
