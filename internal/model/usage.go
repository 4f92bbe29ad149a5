package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	EventBriefGenerated     = "brief_generated"
	EventAttendeeResearch   = "attendee_research"
	EventIntelligenceReport = "intelligence_report"
	EventHubSpotAdd         = "hubspot_add"
)

type UsageModel struct {
	db *sql.DB
}

func NewUsageModel(db *sql.DB) *UsageModel {
	return &UsageModel{db: db}
}

// UsageEvent 使用日志，ID 为按时间排序的 ULID
type UsageEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	ClientIP  string         `json:"client_ip"`
	Data      map[string]any `json:"data"`
}

// Record 记录一条使用日志
func (m *UsageModel) Record(ctx context.Context, eventType, clientIP string, data map[string]any) (*UsageEvent, error) {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("序列化使用日志失败: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	event := &UsageEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		EventType: eventType,
		Timestamp: now,
		ClientIP:  clientIP,
		Data:      data,
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, event_type, client_ip, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.EventType, event.ClientIP, string(payload), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("保存使用日志失败: %w", err)
	}
	return event, nil
}

// Recent 获取最近的使用日志（新的在前）
func (m *UsageModel) Recent(ctx context.Context, limit int) ([]*UsageEvent, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, event_type, client_ip, data, created_at FROM usage_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询使用日志失败: %w", err)
	}
	defer rows.Close()

	var events []*UsageEvent
	for rows.Next() {
		var (
			e         UsageEvent
			data      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ClientIP, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("读取使用日志失败: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("解析使用日志失败: %w", err)
		}
		e.Timestamp = time.UnixMilli(createdAt).UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Count 使用日志总数
func (m *UsageModel) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计使用日志失败: %w", err)
	}
	return n, nil
}

// DeleteBefore 删除指定时间之前的使用日志
func (m *UsageModel) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM usage_events WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("删除使用日志失败: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
