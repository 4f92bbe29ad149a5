package svc

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/fachebot/meeting-brief/internal/brief"
	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/llm"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/notify"
	"github.com/fachebot/meeting-brief/internal/search"
	"github.com/fachebot/meeting-brief/internal/slack"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	DB             *sql.DB
	TransportProxy *http.Transport
	BriefModel     *model.BriefModel
	UsageModel     *model.UsageModel
	SlackClient    *slack.Client
	HubSpotClient  *hubspot.Client
	Searcher       search.Searcher
	LLMClient      *llm.Client
	Notifier       *notify.Notifier
	BriefService   *brief.Service
}

// newTransportProxy 创建走 SOCKS5 代理的 Transport，未启用时返回 nil
func newTransportProxy(c config.Sock5Proxy) (*http.Transport, error) {
	if !c.Enable {
		return nil, nil
	}

	socks5Proxy := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.Dial = dialer.Dial
	}
	return transport, nil
}

// httpClient 厂商 API 共用的 HTTP 客户端
func httpClient(transport *http.Transport, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if transport != nil {
		client.Transport = transport
	}
	return client
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 打开数据库
	db, err := model.Open(c.Storage.Path)
	if err != nil {
		logger.Fatalf("打开数据库失败, %v", err)
	}

	// 创建SOCKS5代理
	transportProxy, err := newTransportProxy(c.Sock5Proxy)
	if err != nil {
		logger.Fatalf("创建SOCKS5代理失败, %v", err)
	}

	vendorClient := httpClient(transportProxy, 60*time.Second)
	hubspotClient := httpClient(transportProxy, time.Duration(c.HubSpot.TimeoutSeconds)*time.Second)
	// LLM 请求由 context 控制超时，这里不设置客户端超时
	llmHTTPClient := httpClient(transportProxy, 0)

	searcher, err := search.New(&c.Search, vendorClient)
	if err != nil {
		logger.Fatalf("创建搜索客户端失败, %v", err)
	}

	svcCtx := &ServiceContext{
		Config:         c,
		DB:             db,
		TransportProxy: transportProxy,
		BriefModel:     model.NewBriefModel(db),
		UsageModel:     model.NewUsageModel(db),
		SlackClient:    slack.NewClient(&c.Slack, vendorClient),
		HubSpotClient:  hubspot.NewClient(&c.HubSpot, hubspotClient),
		Searcher:       searcher,
		LLMClient:      llm.NewClient(&c.LLM, llmHTTPClient),
	}
	svcCtx.Notifier = notify.NewNotifier(svcCtx.SlackClient, &c.Notify)
	svcCtx.BriefService = brief.NewService(
		svcCtx.SlackClient,
		svcCtx.HubSpotClient,
		svcCtx.Searcher,
		svcCtx.LLMClient,
		svcCtx.BriefModel,
		svcCtx.UsageModel,
		svcCtx.Notifier,
		c,
	)

	if !svcCtx.SlackClient.Configured() {
		logger.Warnf("[Slack] 未配置令牌，/api/channels 与 /api/run 将返回 400")
	}
	if !svcCtx.HubSpotClient.Configured() {
		logger.Warnf("[HubSpot] 未配置令牌，将跳过参会人信息补全")
	}
	if !svcCtx.LLMClient.Configured() {
		logger.Warnf("[LLM] 未配置 API Key，生成简报将返回 400")
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.TransportProxy != nil {
		svcCtx.TransportProxy.CloseIdleConnections()
	}
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
