package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fachebot/meeting-brief/internal/brief"
	"github.com/fachebot/meeting-brief/internal/hubspot"
	"github.com/fachebot/meeting-brief/internal/llm"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/model"
	"github.com/fachebot/meeting-brief/internal/search"
	"github.com/fachebot/meeting-brief/internal/slack"
)

// HTTPError 返回给客户端的错误，响应体为 {"detail": "..."}
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	return e.Detail
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("[Web] 写入响应失败: %v", err)
	}
}

// toHTTPError 将业务错误映射为 HTTP 状态码
func toHTTPError(err error) *HTTPError {
	var (
		httpErr    *HTTPError
		invalid    *brief.InvalidRequestError
		slackErr   *slack.APIError
		hubspotErr *hubspot.APIError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &invalid):
		return &HTTPError{Status: http.StatusBadRequest, Detail: invalid.Detail}
	case errors.Is(err, slack.ErrNotConfigured),
		errors.Is(err, hubspot.ErrNotConfigured),
		errors.Is(err, llm.ErrNotConfigured),
		errors.Is(err, search.ErrNotConfigured):
		return &HTTPError{Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.As(err, &slackErr):
		return &HTTPError{Status: http.StatusBadRequest, Detail: slackErr.Error()}
	case errors.As(err, &hubspotErr):
		return &HTTPError{Status: http.StatusBadRequest, Detail: hubspotErr.Error()}
	case errors.Is(err, model.ErrNotFound):
		return &HTTPError{Status: http.StatusNotFound, Detail: "brief not found"}
	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Status: http.StatusGatewayTimeout, Detail: "upstream request timed out"}
	default:
		return &HTTPError{Status: http.StatusInternalServerError, Detail: err.Error()}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := toHTTPError(err)
	if httpErr.Status >= http.StatusInternalServerError {
		logger.Errorf("[Web] %s %s 失败: %v", r.Method, r.URL.Path, err)
	} else {
		logger.Warnf("[Web] %s %s 返回 %d: %s", r.Method, r.URL.Path, httpErr.Status, httpErr.Detail)
	}
	writeJSON(w, httpErr.Status, map[string]string{"detail": httpErr.Detail})
}
