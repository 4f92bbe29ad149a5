package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Host string `yaml:"Host"`
	Port int    `yaml:"Port"` // 环境变量 PORT 优先
}

// ListenAddr 返回 HTTP 监听地址
func (s Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Log struct {
	Dir   string `yaml:"Dir"`
	File  string `yaml:"File"`
	Level string `yaml:"Level"` // debug / info / warn / error
}

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type Slack struct {
	Token           string   `yaml:"Token"`           // 为空时读取 SLACK_USER_TOKEN / SLACK_BOT_TOKEN / SLACK_TOKEN
	APIURL          string   `yaml:"APIURL"`          // 默认 https://slack.com/api/
	ChannelPrefixes []string `yaml:"ChannelPrefixes"` // 频道列表过滤前缀
	MaxThreads      int      `yaml:"MaxThreads"`      // 展开的线程数上限
}

type HubSpot struct {
	Token          string `yaml:"Token"` // 为空时读取 HUBSPOT_TOKEN / HUBSPOT_PRIVATE_APP_TOKEN
	BaseURL        string `yaml:"BaseURL"`
	TimeoutSeconds int    `yaml:"TimeoutSeconds"`
}

type Search struct {
	Provider string `yaml:"Provider"` // "duckduckgo" / "serper"
	APIKey   string `yaml:"APIKey"`   // serper 使用，为空时读取 SERPER_API_KEY
	BaseURL  string `yaml:"BaseURL"`
}

// PromptReserveTokens 上下文窗口中为 system prompt 等固定内容预留的 token 数
const PromptReserveTokens = 2000

type LLM struct {
	BaseURL         string `yaml:"BaseURL"`         // 兼容 OpenAI API 的端点
	APIKey          string `yaml:"APIKey"`          // 为空时读取 OPENAI_API_KEY
	Model           string `yaml:"Model"`           // 如 o3, gpt-4o
	MaxTokens       int    `yaml:"MaxTokens"`       // 模型上下文窗口大小
	MaxOutputTokens int    `yaml:"MaxOutputTokens"` // 单次输出上限
	TimeoutSeconds  int    `yaml:"TimeoutSeconds"`
}

type Brief struct {
	DefaultEffort       string `yaml:"DefaultEffort"` // high / medium / low
	DefaultLookbackDays int    `yaml:"DefaultLookbackDays"`
	DefaultMaxMessages  int    `yaml:"DefaultMaxMessages"`
	ResearchConcurrency int    `yaml:"ResearchConcurrency"` // BD 调研并发数
}

type Storage struct {
	Path string `yaml:"Path"` // sqlite 文件路径
}

type Retention struct {
	Cron string `yaml:"Cron"` // cron 表达式，如 "0 3 * * *"
	Days int    `yaml:"Days"` // 简报与使用日志保留天数，默认 30，0 表示不清理
}

type Notify struct {
	SlackChannel string `yaml:"SlackChannel"` // 简报分享的目标频道，为空则禁用
}

type Config struct {
	Server     Server     `yaml:"Server"`
	Log        Log        `yaml:"Log"`
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	Slack      Slack      `yaml:"Slack"`
	HubSpot    HubSpot    `yaml:"HubSpot"`
	Search     Search     `yaml:"Search"`
	LLM        LLM        `yaml:"LLM"`
	Brief      Brief      `yaml:"Brief"`
	Storage    Storage    `yaml:"Storage"`
	Retention  Retention  `yaml:"Retention"`
	Notify     Notify     `yaml:"Notify"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Load(data, os.Getenv)
}

// DefaultRetentionDays 配置文件未填写 Retention.Days 时的保留天数
const DefaultRetentionDays = 30

// Load 解析 YAML 配置，依次应用环境变量、默认值并校验
func Load(data []byte, getenv func(string) string) (*Config, error) {
	// 显式填写 Days: 0 表示不清理，因此默认值在解析前设置
	c := Config{Retention: Retention{Days: DefaultRetentionDays}}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	c.ApplyEnv(getenv)
	c.ApplyDefaults()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// firstEnv 返回第一个非空的环境变量
func firstEnv(getenv func(string) string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// ApplyEnv 配置文件未填写密钥时回退到环境变量
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv(getenv, "OPENAI_API_KEY")
	}
	if c.Slack.Token == "" {
		c.Slack.Token = firstEnv(getenv, "SLACK_USER_TOKEN", "SLACK_BOT_TOKEN", "SLACK_TOKEN")
	}
	if c.HubSpot.Token == "" {
		c.HubSpot.Token = firstEnv(getenv, "HUBSPOT_TOKEN", "HUBSPOT_PRIVATE_APP_TOKEN")
	}
	if c.Search.APIKey == "" {
		c.Search.APIKey = firstEnv(getenv, "SERPER_API_KEY")
	}
	if port := firstEnv(getenv, "PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

// ApplyDefaults 填充未配置项的默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}

	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.File == "" {
		c.Log.File = "meeting-brief.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Slack.APIURL == "" {
		c.Slack.APIURL = "https://slack.com/api/"
	}
	if len(c.Slack.ChannelPrefixes) == 0 {
		c.Slack.ChannelPrefixes = []string{"bd-", "internal-"}
	}
	if c.Slack.MaxThreads == 0 {
		c.Slack.MaxThreads = 20
	}

	if c.HubSpot.BaseURL == "" {
		c.HubSpot.BaseURL = "https://api.hubapi.com"
	}
	if c.HubSpot.TimeoutSeconds == 0 {
		c.HubSpot.TimeoutSeconds = 30
	}

	if c.Search.Provider == "" {
		c.Search.Provider = "duckduckgo"
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "o3"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 200000
	}
	if c.LLM.MaxOutputTokens == 0 {
		c.LLM.MaxOutputTokens = 3000
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 240
	}

	if c.Brief.DefaultEffort == "" {
		c.Brief.DefaultEffort = "high"
	}
	if c.Brief.DefaultLookbackDays == 0 {
		c.Brief.DefaultLookbackDays = 14
	}
	if c.Brief.DefaultMaxMessages == 0 {
		c.Brief.DefaultMaxMessages = 300
	}
	if c.Brief.ResearchConcurrency == 0 {
		c.Brief.ResearchConcurrency = 4
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/meeting-brief.db"
	}

	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 3 * * *"
	}
}

// Validate 验证配置的有效性
// 第三方令牌缺失不视为错误：服务照常启动，相关接口在调用时返回 400
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("Server.Port 必须在 1-65535 之间")
	}

	if c.Sock5Proxy.Enable && c.Sock5Proxy.Host == "" {
		return fmt.Errorf("Sock5Proxy.Host 不能为空（当 Enable 为 true 时）")
	}

	if c.Slack.MaxThreads < 0 {
		return fmt.Errorf("Slack.MaxThreads 必须 >= 0")
	}
	if c.HubSpot.TimeoutSeconds < 0 {
		return fmt.Errorf("HubSpot.TimeoutSeconds 必须 >= 0")
	}

	switch c.Search.Provider {
	case "duckduckgo", "serper":
	default:
		return fmt.Errorf("Search.Provider 必须是 'duckduckgo' 或 'serper'")
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("LLM.Model 不能为空")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM.MaxTokens 必须大于 0")
	}
	if c.LLM.MaxOutputTokens <= 0 || c.LLM.MaxOutputTokens >= c.LLM.MaxTokens {
		return fmt.Errorf("LLM.MaxOutputTokens 必须大于 0 且小于 LLM.MaxTokens")
	}
	if c.LLM.MaxTokens <= c.LLM.MaxOutputTokens+PromptReserveTokens {
		return fmt.Errorf("LLM.MaxTokens 必须大于 LLM.MaxOutputTokens + %d", PromptReserveTokens)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("LLM.TimeoutSeconds 必须 >= 0")
	}

	switch c.Brief.DefaultEffort {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("Brief.DefaultEffort 必须是 'high', 'medium' 或 'low'")
	}
	if c.Brief.DefaultLookbackDays < 1 || c.Brief.DefaultLookbackDays > 90 {
		return fmt.Errorf("Brief.DefaultLookbackDays 必须在 1-90 之间")
	}
	if c.Brief.DefaultMaxMessages <= 0 {
		return fmt.Errorf("Brief.DefaultMaxMessages 必须大于 0")
	}
	if c.Brief.ResearchConcurrency < 0 {
		return fmt.Errorf("Brief.ResearchConcurrency 必须 >= 0")
	}

	if c.Retention.Days < 0 {
		return fmt.Errorf("Retention.Days 必须 >= 0")
	}

	return nil
}
