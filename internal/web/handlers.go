package web

import (
	"net/http"
	"time"

	"github.com/fachebot/meeting-brief/internal/brief"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	servePage(w, r, "static/index.html")
}

func (s *Server) handleBD(w http.ResponseWriter, r *http.Request) {
	servePage(w, r, "static/bd.html")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.BriefChannels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req brief.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ClientIP = clientIP(r)

	result, err := s.briefs.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResearchAttendees(w http.ResponseWriter, r *http.Request) {
	var req brief.ResearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ClientIP = clientIP(r)

	result, err := s.briefs.ResearchAttendees(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req brief.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ClientIP = clientIP(r)

	result, err := s.briefs.GenerateReport(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePromptPreview(w http.ResponseWriter, r *http.Request) {
	var req brief.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := s.briefs.PreviewPrompt(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleAddToHubSpot(w http.ResponseWriter, r *http.Request) {
	var req brief.HubSpotAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.ClientIP = clientIP(r)

	result, err := s.briefs.AddToHubSpot(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUsageLogs 返回最近的使用日志，total_entries 为库中总条数，app_log_path 为文件日志路径
func (s *Server) handleUsageLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultUsageLimit, maxUsageLimit)

	logs, err := s.usage.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.usage.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*model.UsageEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":          logs,
		"total_entries": total,
		"log_file_path": s.usageLogDB,
		"app_log_path":  logger.FilePath(),
	})
}

func (s *Server) handleBriefList(w http.ResponseWriter, r *http.Request) {
	briefs, err := s.store.Recent(r.Context(), queryLimit(r, defaultBriefLimit, maxUsageLimit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if briefs == nil {
		briefs = []*model.Brief{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"briefs": briefs})
}

type briefDetail struct {
	*model.Brief
	HTML string `json:"html"`
}

func (s *Server) handleBriefGet(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.Get(r.Context(), chi.URLParam(r, "briefID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, briefDetail{Brief: stored, HTML: brief.RenderHTML(stored.Markdown)})
}
