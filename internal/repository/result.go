// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quekou/quekou/pkg/model"
)

// ResultRepository 分析产物仓储：基线、汇总与诊断报告
type ResultRepository struct {
	db DB
}

// NewResultRepository 创建分析产物仓储
func NewResultRepository(db DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult 持久化一次运行的全部产物
// 对账失败的运行不会走到这里，落库的结果保证内部一致
func (r *ResultRepository) SaveResult(ctx context.Context, result *model.AnalysisResult) error {
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("序列化汇总失败: %w", err)
	}
	diagJSON, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return fmt.Errorf("序列化诊断报告失败: %w", err)
	}
	scopeSetJSON, err := json.Marshal(result.ScopeSet)
	if err != nil {
		return fmt.Errorf("序列化口径集合失败: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (
			id, method, window_start, window_end, analyzed_start, analyzed_end,
			scope_set, summary, diagnostics, started_at, finished_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		result.RunID, result.Method,
		result.Window.Start, result.Window.End,
		result.Analyzed.Start, result.Analyzed.End,
		scopeSetJSON, summaryJSON, diagJSON,
		result.StartedAt, result.FinishedAt, time.Now(),
	); err != nil {
		return fmt.Errorf("写入分析运行失败: %w", err)
	}

	for key, baseline := range result.Baselines {
		if err := r.saveBaseline(ctx, result.RunID, key, baseline); err != nil {
			return err
		}
	}
	return nil
}

// saveBaseline 持久化单口径需求基线
func (r *ResultRepository) saveBaseline(ctx context.Context, runID uuid.UUID, scopeKey string, baseline *model.NeedBaseline) error {
	valuesJSON, err := json.Marshal(baseline.Values)
	if err != nil {
		return fmt.Errorf("序列化基线失败: %w", err)
	}
	samplesJSON, err := json.Marshal(baseline.SampleSizes)
	if err != nil {
		return fmt.Errorf("序列化样本量失败: %w", err)
	}

	query := `
		INSERT INTO need_baselines (
			run_id, scope, method, slot_minutes, window_start, window_end,
			window_days, outliers_removed, baseline_values, sample_sizes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query,
		runID, scopeKey, baseline.Method, baseline.SlotMinutes,
		baseline.Window.Start, baseline.Window.End,
		baseline.WindowDays, baseline.OutliersRemoved,
		valuesJSON, samplesJSON, time.Now(),
	); err != nil {
		return fmt.Errorf("写入需求基线失败 (scope=%s): %w", scopeKey, err)
	}
	return nil
}

// RunRecord 运行记录摘要
type RunRecord struct {
	RunID       uuid.UUID          `json:"run_id"`
	Method      string             `json:"method"`
	Window      model.DateRange    `json:"window"`
	Summary     model.RunSummary   `json:"summary"`
	Diagnostics *model.Diagnostics `json:"diagnostics,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// GetRun 按ID读取运行记录
func (r *ResultRepository) GetRun(ctx context.Context, runID uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT id, method, window_start, window_end, summary, diagnostics, started_at, finished_at
		FROM analysis_runs
		WHERE id = $1
	`

	rec := &RunRecord{}
	var summaryJSON, diagJSON []byte
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&rec.RunID, &rec.Method, &rec.Window.Start, &rec.Window.End,
		&summaryJSON, &diagJSON, &rec.StartedAt, &rec.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询分析运行失败: %w", err)
	}

	if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
		return nil, fmt.Errorf("反序列化汇总失败: %w", err)
	}
	if len(diagJSON) > 0 {
		rec.Diagnostics = &model.Diagnostics{}
		if err := json.Unmarshal(diagJSON, rec.Diagnostics); err != nil {
			return nil, fmt.Errorf("反序列化诊断报告失败: %w", err)
		}
	}
	return rec, nil
}

// listOrderColumns 允许排序的列，列名无法参数化，必须白名单
var listOrderColumns = map[string]bool{
	"started_at":  true,
	"finished_at": true,
	"created_at":  true,
}

// buildListQuery 按过滤器拼装运行列表查询
// 日期范围按参照窗口是否相交过滤；scope 过滤命中持久化过该口径基线的运行
func buildListQuery(filter ListFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartDate != "" {
		conds = append(conds, "window_end >= "+arg(filter.StartDate))
	}
	if filter.EndDate != "" {
		conds = append(conds, "window_start <= "+arg(filter.EndDate))
	}
	if filter.Scope != "" {
		conds = append(conds, "id IN (SELECT run_id FROM need_baselines WHERE scope = "+arg(filter.Scope)+")")
	}

	query := "SELECT id, method, window_start, window_end, summary, started_at, finished_at FROM analysis_runs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	column := filter.OrderBy
	if !listOrderColumns[column] {
		column = "started_at"
	}
	dir := "DESC"
	if strings.EqualFold(filter.OrderDir, "asc") {
		dir = "ASC"
	}
	query += " ORDER BY " + column + " " + dir
	query += " OFFSET " + arg(filter.Offset) + " LIMIT " + arg(filter.Limit)
	return query, args
}

// ListRuns 分页列出历史运行
func (r *ResultRepository) ListRuns(ctx context.Context, filter ListFilter) ([]*RunRecord, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询运行列表失败: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		var summaryJSON []byte
		if err := rows.Scan(
			&rec.RunID, &rec.Method, &rec.Window.Start, &rec.Window.End,
			&summaryJSON, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("扫描运行记录失败: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, fmt.Errorf("反序列化汇总失败: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
