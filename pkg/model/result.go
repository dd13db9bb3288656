// Package model 定义缺口分析引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// NeedBaseline 需求基线：按 (星期, 时段) 给出某口径的估计需求人数
// 整体替换、从不就地修改；每次分析运行重新计算
type NeedBaseline struct {
	Scope       Scope     `json:"scope"`
	Method      string    `json:"method"` // 实际使用的统计方法，如 "median"、"percentile_25"
	SlotMinutes int       `json:"slot_minutes"`
	Window      DateRange `json:"window"`      // 参照窗口
	WindowDays  int       `json:"window_days"` // 参照窗口天数，显式记录防止隐式放大

	Values      [7][]float64 `json:"values"`       // [weekday][slot] 需求人数
	SampleSizes [7][]int     `json:"sample_sizes"` // [weekday][slot] 样本量

	OutliersRemoved int `json:"outliers_removed"` // 剔除的离群点总数
}

// NeedAt 返回某 (星期, 时段) 的需求基线
func (b *NeedBaseline) NeedAt(weekday time.Weekday, slot int) float64 {
	row := b.Values[int(weekday)]
	if slot < 0 || slot >= len(row) {
		return 0
	}
	return row[slot]
}

// SampleAt 返回某 (星期, 时段) 的样本量
func (b *NeedBaseline) SampleAt(weekday time.Weekday, slot int) int {
	row := b.SampleSizes[int(weekday)]
	if slot < 0 || slot >= len(row) {
		return 0
	}
	return row[slot]
}

// ShortageCell 缺口单元：某口径下某 (时段, 日期) 的缺口/富余
// Net 为未截断的有符号差值（need - staff），负值表示富余
type ShortageCell struct {
	Date     string  `json:"date"`
	Slot     int     `json:"slot"`
	Need     float64 `json:"need"`
	Staff    int     `json:"staff"`
	Shortage float64 `json:"shortage"` // max(0, need-staff)
	Excess   float64 `json:"excess"`   // max(0, staff-need)
	Net      float64 `json:"net"`      // need-staff，保留符号
}

// ShortageMatrix 某口径的缺口矩阵及汇总
type ShortageMatrix struct {
	Scope       Scope            `json:"scope"`
	Method      string           `json:"method"` // 来源基线的统计方法
	SlotMinutes int              `json:"slot_minutes"`
	Dates       []string         `json:"dates"`
	Cells       [][]ShortageCell `json:"cells"` // [slot][dateIdx]
}

// SlotsPerDay 返回每日时段数
func (m *ShortageMatrix) SlotsPerDay() int {
	return 1440 / m.SlotMinutes
}

// AnomalyStatus 异常守卫判定状态
type AnomalyStatus string

const (
	StatusAccepted AnomalyStatus = "accepted" // 通过
	StatusFlagged  AnomalyStatus = "flagged"  // 标记，输出但需人工复核
	StatusRejected AnomalyStatus = "rejected" // 拒绝，不写入输出
)

// ScopeSummary 某口径的缺口汇总
type ScopeSummary struct {
	Scope         Scope   `json:"scope"`
	ShortageHours float64 `json:"shortage_hours"`
	ExcessHours   float64 `json:"excess_hours"`
	NetHours      float64 `json:"net_hours"` // 有符号净缺口小时数
	ShortageCells int     `json:"shortage_cells"`

	DailyShortageHours   map[string]float64 `json:"daily_shortage_hours"`   // YYYY-MM-DD
	MonthlyShortageHours map[string]float64 `json:"monthly_shortage_hours"` // YYYY-MM
	HourlyShortageHours  map[int]float64    `json:"hourly_shortage_hours"`  // 0-23

	Status      AnomalyStatus `json:"status"`
	FlagReasons []string      `json:"flag_reasons,omitempty"`
}

// RunSummary 整次运行的汇总结果，三个视图出自同一份矩阵与基线
type RunSummary struct {
	Facility    ScopeSummary   `json:"facility"`
	Roles       []ScopeSummary `json:"roles"`
	Employments []ScopeSummary `json:"employments"`

	RoleDriftHours       float64 `json:"role_drift_hours"`       // 岗位合计与全机构的偏差
	EmploymentDriftHours float64 `json:"employment_drift_hours"` // 用工类型合计与全机构的偏差
}

// UnknownCodeEntry 未知班次代码条目
type UnknownCodeEntry struct {
	Code    string `json:"code"`
	StaffID string `json:"staff_id"`
	Date    string `json:"date"`
}

// OutlierExclusion 离群值剔除记录
type OutlierExclusion struct {
	Scope   string    `json:"scope"`
	Weekday int       `json:"weekday"`
	Slot    int       `json:"slot"`
	Removed int       `json:"removed"`
	Kept    int       `json:"kept"`
	Lower   float64   `json:"lower"` // Tukey 下界
	Upper   float64   `json:"upper"` // Tukey 上界
	Dropped []float64 `json:"dropped,omitempty"`
}

// AnomalyFinding 异常守卫结论
type AnomalyFinding struct {
	Scope  string        `json:"scope"`
	Status AnomalyStatus `json:"status"`
	Reason string        `json:"reason"`
	Value  float64       `json:"value,omitempty"`
	Limit  float64       `json:"limit,omitempty"`
}

// Diagnostics 诊断报告：未知代码、休假使用、离群剔除、异常结论
type Diagnostics struct {
	UnknownCodes      []UnknownCodeEntry `json:"unknown_codes,omitempty"`
	LeaveUsage        map[string]int     `json:"leave_usage,omitempty"` // 代码 → 使用次数
	OutlierExclusions []OutlierExclusion `json:"outlier_exclusions,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	Findings          []AnomalyFinding   `json:"findings,omitempty"`
}

// Merge 合并另一份诊断报告
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.UnknownCodes = append(d.UnknownCodes, other.UnknownCodes...)
	d.OutlierExclusions = append(d.OutlierExclusions, other.OutlierExclusions...)
	d.Warnings = append(d.Warnings, other.Warnings...)
	d.Findings = append(d.Findings, other.Findings...)
	if other.LeaveUsage != nil {
		if d.LeaveUsage == nil {
			d.LeaveUsage = make(map[string]int)
		}
		for k, v := range other.LeaveUsage {
			d.LeaveUsage[k] += v
		}
	}
}

// AnalysisResult 一次分析运行的全部产物
type AnalysisResult struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ScopeSet ScopeSet  `json:"scope_set"`
	Window   DateRange `json:"window"` // 参照窗口
	Analyzed DateRange `json:"analyzed"`
	Method   string    `json:"method"`

	Facility    *ShortageMatrix            `json:"facility"`
	Roles       map[string]*ShortageMatrix `json:"roles"`       // 岗位标签 → 矩阵
	Employments map[string]*ShortageMatrix `json:"employments"` // 用工类型 → 矩阵
	Baselines   map[string]*NeedBaseline   `json:"baselines"`   // 口径键 → 基线

	Summary     RunSummary       `json:"summary"`
	Profile     *ShortageProfile `json:"profile,omitempty"` // 全机构口径的缺口分布画像
	Diagnostics *Diagnostics     `json:"diagnostics"`
}
