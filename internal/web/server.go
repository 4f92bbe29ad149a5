package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fachebot/meeting-brief/internal/brief"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/slack"
	"github.com/fachebot/meeting-brief/internal/svc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	maxBodyBytes      = 1 << 20
	defaultUsageLimit = 100
	maxUsageLimit     = 1000
	defaultBriefLimit = 20
)

type channelLister interface {
	BriefChannels(ctx context.Context) ([]slack.Channel, error)
}

type briefService interface {
	Run(ctx context.Context, req brief.RunRequest) (*brief.RunResult, error)
	ResearchAttendees(ctx context.Context, req brief.ResearchRequest) (*brief.ResearchResult, error)
	GenerateReport(ctx context.Context, req brief.ReportRequest) (*brief.ReportResult, error)
	PreviewPrompt(ctx context.Context, req brief.ReportRequest) (*brief.PromptPreview, error)
	AddToHubSpot(ctx context.Context, req brief.HubSpotAddRequest) (*brief.HubSpotAddResult, error)
}

type briefReader interface {
	Get(ctx context.Context, id string) (*model.Brief, error)
	Recent(ctx context.Context, limit int) ([]*model.Brief, error)
}

type usageReader interface {
	Recent(ctx context.Context, limit int) ([]*model.UsageEvent, error)
	Count(ctx context.Context) (int, error)
}

// Server 简报工具的 HTTP 接口
type Server struct {
	channels   channelLister
	briefs     briefService
	store      briefReader
	usage      usageReader
	usageLogDB string
	handler    http.Handler
	startedAt  time.Time
}

func NewServer(svcCtx *svc.ServiceContext) *Server {
	return newServer(
		svcCtx.SlackClient,
		svcCtx.BriefService,
		svcCtx.BriefModel,
		svcCtx.UsageModel,
		svcCtx.Config.Storage.Path,
	)
}

func newServer(channels channelLister, briefs briefService, store briefReader, usage usageReader, usageLogDB string) *Server {
	s := &Server{
		channels:   channels,
		briefs:     briefs,
		store:      store,
		usage:      usage,
		usageLogDB: usageLogDB,
		startedAt:  time.Now(),
	}
	s.handler = s.buildRouter()
	return s
}

// Handler 返回根路由
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/bd", s.handleBD)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/channels", s.handleChannels)
		r.Post("/run", s.handleRun)

		r.Route("/bd", func(r chi.Router) {
			r.Post("/research-attendees", s.handleResearchAttendees)
			r.Post("/generate", s.handleGenerateReport)
			r.Post("/add-to-hubspot", s.handleAddToHubSpot)
		})
		r.Post("/debug/prompt-preview", s.handlePromptPreview)

		r.Get("/usage-logs", s.handleUsageLogs)
		r.Get("/briefs", s.handleBriefList)
		r.Get("/briefs/{briefID}", s.handleBriefGet)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, &HTTPError{Status: http.StatusNotFound, Detail: "not found"})
	})
	return r
}

// decodeJSON 解析请求体，格式错误统一返回 400
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &HTTPError{Status: http.StatusBadRequest, Detail: "request body is required"}
		}
		return &HTTPError{Status: http.StatusBadRequest, Detail: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// clientIP RealIP 中间件已改写 RemoteAddr，可能不带端口
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryLimit 读取 limit 参数，非法值回退为默认值
func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
