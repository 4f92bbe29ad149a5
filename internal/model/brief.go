package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

const (
	BriefKindInternal = "internal" // 内部会议简报
	BriefKindBD       = "bd"       // 外部 BD 情报报告
)

type BriefModel struct {
	db *sql.DB
}

func NewBriefModel(db *sql.DB) *BriefModel {
	return &BriefModel{db: db}
}

type BriefData struct {
	Kind     string
	Subject  string // 频道ID 或目标公司
	Effort   string
	Markdown string
	Meta     any
}

// Brief 已保存的简报
type Brief struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject"`
	Effort    string          `json:"effort"`
	Markdown  string          `json:"markdown"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}

// Create 保存简报，返回生成的ID
func (m *BriefModel) Create(ctx context.Context, data *BriefData) (*Brief, error) {
	meta, err := json.Marshal(data.Meta)
	if err != nil {
		return nil, fmt.Errorf("序列化简报元数据失败: %w", err)
	}

	brief := &Brief{
		ID:        uuid.NewString(),
		Kind:      data.Kind,
		Subject:   data.Subject,
		Effort:    data.Effort,
		Markdown:  data.Markdown,
		Meta:      meta,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO briefs (id, kind, subject, effort, markdown, meta, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		brief.ID, brief.Kind, brief.Subject, brief.Effort, brief.Markdown, string(meta), brief.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("保存简报失败: %w", err)
	}
	return brief, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBrief(row rowScanner) (*Brief, error) {
	var (
		b         Brief
		meta      string
		createdAt int64
	)
	if err := row.Scan(&b.ID, &b.Kind, &b.Subject, &b.Effort, &b.Markdown, &meta, &createdAt); err != nil {
		return nil, err
	}
	b.Meta = json.RawMessage(meta)
	b.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &b, nil
}

// Get 按ID获取简报
func (m *BriefModel) Get(ctx context.Context, id string) (*Brief, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, kind, subject, effort, markdown, meta, created_at FROM briefs WHERE id = ?`, id)
	b, err := scanBrief(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询简报失败: %w", err)
	}
	return b, nil
}

// Recent 按创建时间倒序获取最近的简报
func (m *BriefModel) Recent(ctx context.Context, limit int) ([]*Brief, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, kind, subject, effort, markdown, meta, created_at FROM briefs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询简报失败: %w", err)
	}
	defer rows.Close()

	var briefs []*Brief
	for rows.Next() {
		b, err := scanBrief(rows)
		if err != nil {
			return nil, fmt.Errorf("读取简报失败: %w", err)
		}
		briefs = append(briefs, b)
	}
	return briefs, rows.Err()
}

// DeleteBefore 删除指定时间之前的简报
func (m *BriefModel) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM briefs WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("删除简报失败: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
