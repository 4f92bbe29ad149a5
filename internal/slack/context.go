package slack

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/meeting-brief/internal/logger"
	slackapi "github.com/slack-go/slack"
)

const (
	historyPageLimit = 200
	historyMaxPages  = 10
	repliesLimit     = 100

	// EmptyContext 时间窗口内没有任何消息
	EmptyContext = "(no recent Slack messages in window)"
)

// ContextOptions 频道上下文抓取参数
type ContextOptions struct {
	LookbackDays  int
	MaxMessages   int
	ResolveNames  bool
	ExpandThreads bool
}

// Message 频道消息，Replies 为展开后的线程回复（不含父消息）
type Message struct {
	TS       string
	ThreadTS string
	User     string
	Text     string
	Replies  []Message
}

func fromAPIMessage(m slackapi.Message) Message {
	return Message{
		TS:       m.Timestamp,
		ThreadTS: m.ThreadTimestamp,
		User:     m.User,
		Text:     m.Text,
	}
}

// parseTS 将 Slack 时间戳 "1700000000.000100" 转为时间
func parseTS(ts string) (time.Time, bool) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func tsValue(ts string) float64 {
	f, _ := strconv.ParseFloat(ts, 64)
	return f
}

// FetchChannelContext 获取频道最近的消息（可展开线程），渲染为带时间戳的列表文本
// 返回渲染后的文本以及实际使用的回溯天数
func (c *Client) FetchChannelContext(ctx context.Context, channelID string, opts ContextOptions) (string, int, error) {
	messages, err := c.fetchHistory(ctx, channelID, opts)
	if err != nil {
		return "", 0, err
	}

	if opts.ExpandThreads {
		if err := c.expandThreads(ctx, channelID, messages); err != nil {
			return "", 0, err
		}
	}

	block := c.renderMessages(ctx, messages, opts)
	logger.Infof("[Slack] 频道 %s: 获取 %d 条消息，回溯 %d 天", channelID, len(messages), opts.LookbackDays)
	return block, opts.LookbackDays, nil
}

// fetchHistory 分页拉取 conversations.history，达到 MaxMessages 或无游标时停止
func (c *Client) fetchHistory(ctx context.Context, channelID string, opts ContextOptions) ([]Message, error) {
	oldest := c.now().UTC().AddDate(0, 0, -opts.LookbackDays).Unix()
	params := &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    strconv.FormatInt(oldest, 10),
		Limit:     historyPageLimit,
		Inclusive: true,
	}

	var messages []Message
	for page := 0; page < historyMaxPages; page++ {
		var resp *slackapi.GetConversationHistoryResponse
		err := c.call(ctx, "conversations.history", func() (err error) {
			resp, err = c.api.GetConversationHistoryContext(ctx, params)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			messages = append(messages, fromAPIMessage(m))
		}

		cursor := resp.ResponseMetaData.NextCursor
		if cursor == "" || len(messages) >= opts.MaxMessages {
			break
		}
		params.Cursor = cursor
	}
	return messages, nil
}

// expandThreads 只展开最近的若干个线程，保证延迟可控
func (c *Client) expandThreads(ctx context.Context, channelID string, messages []Message) error {
	var parents []int
	for i, m := range messages {
		if m.ThreadTS != "" && m.TS == m.ThreadTS {
			parents = append(parents, i)
		}
	}
	sort.SliceStable(parents, func(a, b int) bool {
		return tsValue(messages[parents[a]].TS) > tsValue(messages[parents[b]].TS)
	})
	if len(parents) > c.maxThreads {
		parents = parents[:c.maxThreads]
	}

	for _, idx := range parents {
		parent := &messages[idx]
		var replies []slackapi.Message
		err := c.call(ctx, "conversations.replies", func() (err error) {
			replies, _, _, err = c.api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
				ChannelID: channelID,
				Timestamp: parent.TS,
				Limit:     repliesLimit,
			})
			return err
		})
		if err != nil {
			return err
		}

		// 第一条是父消息本身
		if len(replies) > 1 {
			for _, r := range replies[1:] {
				parent.Replies = append(parent.Replies, fromAPIMessage(r))
			}
		}
	}
	return nil
}

// renderMessages 按时间升序渲染，线程回复缩进；渲染行数不超过 MaxMessages
func (c *Client) renderMessages(ctx context.Context, messages []Message, opts ContextOptions) string {
	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(a, b int) bool {
		return tsValue(sorted[a].TS) < tsValue(sorted[b].TS)
	})

	lines := make([]string, 0, len(sorted))
	count := 0
	for _, m := range sorted {
		if count >= opts.MaxMessages {
			break
		}
		if m.TS == "" {
			continue
		}
		if m.Text != "" {
			lines = append(lines, "• "+c.linePrefix(ctx, m, opts.ResolveNames)+" "+m.Text)
			count++
		}

		for _, r := range m.Replies {
			if r.TS == "" {
				continue
			}
			if r.Text != "" {
				lines = append(lines, "    ◦ "+c.linePrefix(ctx, r, opts.ResolveNames)+" "+r.Text)
				count++
			}
			if count >= opts.MaxMessages {
				break
			}
		}
	}

	if len(lines) == 0 {
		return EmptyContext
	}
	return strings.Join(lines, "\n")
}

// linePrefix 生成 "[时间] 用户名:" 前缀，用户名解析失败时回退为用户ID
func (c *Client) linePrefix(ctx context.Context, m Message, resolveNames bool) string {
	prefix := "[" + m.TS + "]"
	if t, ok := parseTS(m.TS); ok {
		prefix = "[" + t.Format(time.RFC3339) + "]"
	}
	if !resolveNames || m.User == "" {
		return prefix
	}

	name, err := c.UserName(ctx, m.User)
	if err != nil {
		logger.Debugf("[Slack] 解析用户 %s 失败: %v", m.User, err)
		name = m.User
	}
	return fmt.Sprintf("%s %s:", prefix, name)
}
