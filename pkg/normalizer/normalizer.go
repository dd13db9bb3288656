// Package normalizer 将原始排班代码规整为标准排班记录
//
// 每个 (员工, 日期) 单元的班次代码经勤务类型表展开为逐时段记录，
// 跨天班次按时段归入正确的日历日期；休假代码不产生在岗时段。
package normalizer

import (
	"fmt"
	"sort"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/logger"
	"github.com/quekou/quekou/pkg/model"
)

// Normalizer 排班记录规整器
type Normalizer struct {
	slotMinutes int
	workTypes   *model.WorkTypeTable
}

// New 创建规整器
func New(slotMinutes int, workTypes *model.WorkTypeTable) (*Normalizer, error) {
	if slotMinutes <= 0 || 1440%slotMinutes != 0 {
		return nil, errors.InvalidInput("slot_minutes", fmt.Sprintf("必须整除1440，当前为 %d", slotMinutes))
	}
	if workTypes == nil || workTypes.Len() == 0 {
		return nil, errors.InvalidInput("work_types", "勤务类型表为空")
	}
	return &Normalizer{slotMinutes: slotMinutes, workTypes: workTypes}, nil
}

// Result 规整结果：标准记录 + 诊断报告
type Result struct {
	Records     []model.ShiftRecord
	Diagnostics *model.Diagnostics
}

// Normalize 规整一批原始排班行
// 未知代码收集进诊断报告并按不在岗处理，不中断整批规整
func (n *Normalizer) Normalize(rows []model.RawShiftRow) (*Result, error) {
	diag := &model.Diagnostics{LeaveUsage: make(map[string]int)}
	seen := make(map[string]int) // 记录键 → records 下标，保证 (员工,日期,时段) 唯一
	var records []model.ShiftRecord

	for _, row := range rows {
		if _, err := model.ParseDate(row.Date); err != nil {
			diag.Warnings = append(diag.Warnings,
				fmt.Sprintf("跳过日期无效的排班行: staff=%s date=%s", row.StaffID, row.Date))
			continue
		}

		wt, ok := n.workTypes.Lookup(row.Code)
		if !ok {
			diag.UnknownCodes = append(diag.UnknownCodes, model.UnknownCodeEntry{
				Code:    row.Code,
				StaffID: row.StaffID,
				Date:    row.Date,
			})
			continue
		}

		if wt.IsLeave {
			diag.LeaveUsage[row.Code]++
		}

		slots, err := n.expand(row, wt)
		if err != nil {
			diag.Warnings = append(diag.Warnings,
				fmt.Sprintf("代码 '%s' 展开失败: %v", row.Code, err))
			continue
		}

		for _, rec := range slots {
			key := rec.Key()
			if idx, dup := seen[key]; dup {
				// 同一 (员工,日期,时段) 出现多条时在岗优先
				if rec.IsWorking && !records[idx].IsWorking {
					records[idx] = rec
				}
				continue
			}
			seen[key] = len(records)
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.StaffID != b.StaffID {
			return a.StaffID < b.StaffID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Slot < b.Slot
	})

	if len(diag.UnknownCodes) > 0 {
		logger.Warn().
			Int("unknown_codes", len(diag.UnknownCodes)).
			Msg("规整过程中发现未定义的班次代码")
	}

	return &Result{Records: records, Diagnostics: diag}, nil
}

// expand 将一条排班行展开为逐时段记录
// 跨天展开按分钟偏移推进：偏移超过当日的时段归入名义日期的次日
func (n *Normalizer) expand(row model.RawShiftRow, wt *model.WorkType) ([]model.ShiftRecord, error) {
	base := model.ShiftRecord{
		StaffID:    row.StaffID,
		Role:       row.Role,
		Employment: row.Employment,
		IsWorking:  !wt.IsLeave,
		LeaveKind:  wt.LeaveKind,
	}
	if wt.IsLeave && wt.LeaveKind == model.LeaveNone {
		base.LeaveKind = model.LeaveOther
	}

	startMin, err := wt.StartMinute()
	if err != nil {
		if !wt.IsLeave {
			return nil, err
		}
		// 全天休假代码可以没有起止时间，记一条占位记录供休假统计使用
		rec := base
		rec.Date = row.Date
		rec.Slot = 0
		return []model.ShiftRecord{rec}, nil
	}
	endMin, err := wt.EndMinute()
	if err != nil {
		return nil, err
	}

	nominal, err := model.ParseDate(row.Date)
	if err != nil {
		return nil, err
	}

	var out []model.ShiftRecord
	// 覆盖与 [startMin, endMin) 相交的所有时段
	for abs := startMin / n.slotMinutes; abs*n.slotMinutes < endMin; abs++ {
		minuteOfDay := (abs * n.slotMinutes) % 1440
		dayOffset := (abs * n.slotMinutes) / 1440

		rec := base
		rec.Date = model.FormatDate(nominal.AddDate(0, 0, dayOffset))
		rec.Slot = minuteOfDay / n.slotMinutes
		out = append(out, rec)
	}
	return out, nil
}
