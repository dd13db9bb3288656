// Package model 定义缺口分析引擎的核心数据模型
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LeaveKind 休假类型
type LeaveKind string

const (
	LeaveNone     LeaveKind = ""         // 非休假
	LeavePaid     LeaveKind = "paid"     // 带薪休假
	LeaveHoliday  LeaveKind = "holiday"  // 公休
	LeaveTraining LeaveKind = "training" // 培训/研修
	LeaveOther    LeaveKind = "other"    // 其他
)

// WorkType 勤务类型定义（班次代码 → 起止时间/是否休假）
type WorkType struct {
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name,omitempty" db:"name"`
	StartTime string    `json:"start_time" db:"start_time"` // HH:MM
	EndTime   string    `json:"end_time" db:"end_time"`     // HH:MM
	IsLeave   bool      `json:"is_leave" db:"is_leave"`
	LeaveKind LeaveKind `json:"leave_kind,omitempty" db:"leave_kind"`
}

// StartMinute 返回开始时间的分钟偏移（0-1439）
func (w *WorkType) StartMinute() (int, error) {
	return parseClock(w.StartTime)
}

// EndMinute 返回结束时间的分钟偏移；结束早于等于开始视为跨天，加24小时
func (w *WorkType) EndMinute() (int, error) {
	start, err := parseClock(w.StartTime)
	if err != nil {
		return 0, err
	}
	end, err := parseClock(w.EndTime)
	if err != nil {
		return 0, err
	}
	if end <= start {
		end += 24 * 60
	}
	return end, nil
}

// CrossesMidnight 检查班次是否跨天
func (w *WorkType) CrossesMidnight() bool {
	start, err1 := parseClock(w.StartTime)
	end, err2 := parseClock(w.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	return end <= start
}

// parseClock 解析 HH:MM 为分钟偏移
func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("时间格式无效 '%s'，应为 HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("小时无效 '%s'", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("分钟无效 '%s'", s)
	}
	return h*60 + m, nil
}

// WorkTypeTable 勤务类型表
type WorkTypeTable struct {
	byCode map[string]*WorkType
}

// NewWorkTypeTable 创建勤务类型表
func NewWorkTypeTable(types []*WorkType) *WorkTypeTable {
	t := &WorkTypeTable{byCode: make(map[string]*WorkType, len(types))}
	for _, wt := range types {
		t.byCode[wt.Code] = wt
	}
	return t
}

// Lookup 按代码查找勤务类型
func (t *WorkTypeTable) Lookup(code string) (*WorkType, bool) {
	wt, ok := t.byCode[code]
	return wt, ok
}

// Len 返回勤务类型数
func (t *WorkTypeTable) Len() int {
	return len(t.byCode)
}

// RawShiftRow 原始排班行：某员工某日的班次代码
type RawShiftRow struct {
	StaffID    string `json:"staff_id" db:"staff_id"`
	StaffName  string `json:"staff_name,omitempty" db:"staff_name"`
	Role       string `json:"role" db:"role"`
	Employment string `json:"employment" db:"employment"`
	Date       string `json:"date" db:"date"` // YYYY-MM-DD（名义日期）
	Code       string `json:"code" db:"code"`
}

// ShiftRecord 规整后的排班记录：每 (员工, 日期, 时段) 恰好一条
type ShiftRecord struct {
	StaffID    string    `json:"staff_id"`
	Role       string    `json:"role"`
	Employment string    `json:"employment"`
	Date       string    `json:"date"` // 结算后的日历日期（跨天班次已归入次日）
	Slot       int       `json:"slot"` // 当日时段序号，0 起
	IsWorking  bool      `json:"is_working"`
	LeaveKind  LeaveKind `json:"leave_kind,omitempty"`
}

// Key 返回记录的唯一键
func (r *ShiftRecord) Key() string {
	return fmt.Sprintf("%s|%s|%d", r.StaffID, r.Date, r.Slot)
}

// AbsoluteTime 返回时段对应的绝对时间
func (r *ShiftRecord) AbsoluteTime(slotMinutes int) time.Time {
	d, err := ParseDate(r.Date)
	if err != nil {
		return time.Time{}
	}
	return d.Add(time.Duration(r.Slot*slotMinutes) * time.Minute)
}
