package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
)

const (
	MaxMessageLength = 4000 // Slack 单条消息建议最大长度
)

// poster 发送 Slack 消息（便于测试注入 mock）
type poster interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

type Notifier struct {
	slack  poster
	config *config.Notify
}

func NewNotifier(slack poster, cfg *config.Notify) *Notifier {
	return &Notifier{
		slack:  slack,
		config: cfg,
	}
}

// Enabled 是否配置了分享频道
func (n *Notifier) Enabled() bool {
	return n.config.SlackChannel != ""
}

// Notify 将简报分享到配置的 Slack 频道，过长时拆分为多条
func (n *Notifier) Notify(ctx context.Context, title, content string) error {
	if content == "" {
		return nil
	}
	if !n.Enabled() {
		logger.Warnf("[Notify] 未配置分享频道，跳过")
		return nil
	}

	text := toMrkdwn(content)
	if title != "" {
		text = "*" + title + "*\n\n" + text
	}

	messages := splitMessage(text)
	for i, msg := range messages {
		if err := n.slack.PostMessage(ctx, n.config.SlackChannel, msg); err != nil {
			return fmt.Errorf("发送第 %d/%d 条消息到频道 %s 失败: %w", i+1, len(messages), n.config.SlackChannel, err)
		}
	}
	logger.Infof("[Notify] 已发送 %d 条消息到频道 %s", len(messages), n.config.SlackChannel)
	return nil
}

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*$`)
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	linkPattern    = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
)

// toMrkdwn 将常见的 Markdown 语法转换为 Slack mrkdwn
func toMrkdwn(markdown string) string {
	text := boldPattern.ReplaceAllString(markdown, "*$1*")
	text = headingPattern.ReplaceAllStringFunc(text, func(line string) string {
		title := headingPattern.FindStringSubmatch(line)[1]
		return "*" + strings.Trim(title, "*") + "*"
	})
	text = linkPattern.ReplaceAllString(text, "<$2|$1>")
	return text
}

// splitSentences 按中英文句末标点拆分，保留标点
func splitSentences(para string) []string {
	var sentences []string
	start := 0
	runes := []rune(para)
	for i, r := range runes {
		end := false
		switch r {
		case '。', '！', '？':
			end = true
		case '.', '!', '?':
			end = i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n'
		}
		if end {
			sentences = append(sentences, strings.TrimSpace(string(runes[start:i+1])))
			start = i + 1
		}
	}
	if start < len(runes) {
		sentences = append(sentences, strings.TrimSpace(string(runes[start:])))
	}
	return sentences
}

// hardSplit 没有可用边界时按长度截断（不拆开多字节字符）
func hardSplit(text string) []string {
	var parts []string
	for len(text) > MaxMessageLength {
		cut := MaxMessageLength
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// splitMessage 将消息按长度拆分为多条
func splitMessage(content string) []string {
	if len(content) <= MaxMessageLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		// 如果没有段落分隔，按换行拆分
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	currentMsg := ""

	flush := func() {
		if currentMsg != "" {
			messages = append(messages, currentMsg)
			currentMsg = ""
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += "\n\n"
		}
		testMsg += para

		if len(testMsg) <= MaxMessageLength {
			currentMsg = testMsg
			continue
		}

		// 当前消息已满，保存并开始新消息
		flush()
		if len(para) <= MaxMessageLength {
			currentMsg = para
			continue
		}

		// 单个段落超长，按句子拆分
		for _, sentence := range splitSentences(para) {
			if sentence == "" {
				continue
			}
			if len(sentence) > MaxMessageLength {
				flush()
				chunks := hardSplit(sentence)
				messages = append(messages, chunks[:len(chunks)-1]...)
				currentMsg = chunks[len(chunks)-1]
				continue
			}
			if len(currentMsg)+len(sentence)+1 > MaxMessageLength {
				flush()
			}
			if currentMsg != "" {
				currentMsg += " "
			}
			currentMsg += sentence
		}
	}

	flush()
	return messages
}
