// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quekou/quekou/pkg/model"
)

// RecordRepository 排班原始数据仓储：排班行与勤务类型表
type RecordRepository struct {
	db DB
}

// NewRecordRepository 创建排班数据仓储
func NewRecordRepository(db DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ListRows 按日期范围读取原始排班行
func (r *RecordRepository) ListRows(ctx context.Context, window model.DateRange) ([]model.RawShiftRow, error) {
	query := `
		SELECT staff_id, staff_name, role, employment, date, code
		FROM shift_rows
		WHERE date >= $1 AND date <= $2
		ORDER BY staff_id, date
	`

	rows, err := r.db.QueryContext(ctx, query, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("查询排班行失败: %w", err)
	}
	defer rows.Close()

	var out []model.RawShiftRow
	for rows.Next() {
		var row model.RawShiftRow
		var staffName sql.NullString
		if err := rows.Scan(&row.StaffID, &staffName, &row.Role, &row.Employment, &row.Date, &row.Code); err != nil {
			return nil, fmt.Errorf("扫描排班行失败: %w", err)
		}
		row.StaffName = staffName.String
		out = append(out, row)
	}
	return out, rows.Err()
}

// BulkInsertRows 批量写入原始排班行
func (r *RecordRepository) BulkInsertRows(ctx context.Context, items []model.RawShiftRow) error {
	query := `
		INSERT INTO shift_rows (staff_id, staff_name, role, employment, date, code)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (staff_id, date) DO UPDATE SET
			staff_name = EXCLUDED.staff_name,
			role = EXCLUDED.role,
			employment = EXCLUDED.employment,
			code = EXCLUDED.code
	`
	for i := range items {
		row := &items[i]
		if _, err := r.db.ExecContext(ctx, query,
			row.StaffID, row.StaffName, row.Role, row.Employment, row.Date, row.Code,
		); err != nil {
			return fmt.Errorf("写入排班行失败 (staff=%s date=%s): %w", row.StaffID, row.Date, err)
		}
	}
	return nil
}

// ListWorkTypes 读取全部勤务类型定义
func (r *RecordRepository) ListWorkTypes(ctx context.Context) ([]*model.WorkType, error) {
	query := `
		SELECT code, name, start_time, end_time, is_leave, leave_kind
		FROM work_types
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询勤务类型失败: %w", err)
	}
	defer rows.Close()

	var out []*model.WorkType
	for rows.Next() {
		wt := &model.WorkType{}
		var name, start, end, kind sql.NullString
		if err := rows.Scan(&wt.Code, &name, &start, &end, &wt.IsLeave, &kind); err != nil {
			return nil, fmt.Errorf("扫描勤务类型失败: %w", err)
		}
		wt.Name = name.String
		wt.StartTime = start.String
		wt.EndTime = end.String
		wt.LeaveKind = model.LeaveKind(kind.String)
		out = append(out, wt)
	}
	return out, rows.Err()
}

// UpsertWorkType 写入或更新勤务类型
func (r *RecordRepository) UpsertWorkType(ctx context.Context, wt *model.WorkType) error {
	query := `
		INSERT INTO work_types (code, name, start_time, end_time, is_leave, leave_kind)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_leave = EXCLUDED.is_leave,
			leave_kind = EXCLUDED.leave_kind
	`
	if _, err := r.db.ExecContext(ctx, query,
		wt.Code, wt.Name, wt.StartTime, wt.EndTime, wt.IsLeave, string(wt.LeaveKind),
	); err != nil {
		return fmt.Errorf("写入勤务类型失败 (code=%s): %w", wt.Code, err)
	}
	return nil
}
