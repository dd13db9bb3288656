// Package validator 提供排班数据的冲突检测
package validator

import (
	"fmt"
	"sort"

	"github.com/quekou/quekou/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictOverlap     ConflictType = "overlap"     // 同日班次时间重叠
	ConflictRestTime    ConflictType = "rest_time"   // 班次间休息不足
	ConflictLongDay     ConflictType = "long_day"    // 单日工时过长
	ConflictConsecutive ConflictType = "consecutive" // 连续工作天数过多
)

// Conflict 冲突信息
type Conflict struct {
	Type     ConflictType `json:"type"`
	Severity string       `json:"severity"` // error/warning
	StaffID  string       `json:"staff_id"`
	Date     string       `json:"date"`
	Message  string       `json:"message"`
	Codes    []string     `json:"codes,omitempty"` // 相关的班次代码
}

// Config 检测器配置
type Config struct {
	MinRestHours       float64 // 班次间最小休息时间（小时）
	MaxHoursPerDay     float64 // 每日最大工时
	MaxConsecutiveDays int     // 最大连续工作天数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MinRestHours:       10,
		MaxHoursPerDay:     16,
		MaxConsecutiveDays: 6,
	}
}

// Detector 冲突检测器
// 休假代码与未知代码不参与检测，后者由规整阶段单独上报
type Detector struct {
	cfg   Config
	table *model.WorkTypeTable
}

// NewDetector 创建冲突检测器
func NewDetector(cfg Config, table *model.WorkTypeTable) *Detector {
	if cfg.MinRestHours <= 0 && cfg.MaxHoursPerDay <= 0 && cfg.MaxConsecutiveDays <= 0 {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg, table: table}
}

// shiftSpan 单个班次的绝对分钟区间
type shiftSpan struct {
	date  string
	code  string
	start int64 // 自纪元起的分钟
	end   int64
}

// DetectAll 检测全部冲突，结果按员工ID排序
func (d *Detector) DetectAll(rows []model.RawShiftRow) []Conflict {
	byStaff := make(map[string][]shiftSpan)
	for _, row := range rows {
		wt, ok := d.table.Lookup(row.Code)
		if !ok || wt.IsLeave {
			continue
		}
		span, err := d.spanOf(row, wt)
		if err != nil {
			continue // 无效日期或时刻由规整阶段上报
		}
		byStaff[row.StaffID] = append(byStaff[row.StaffID], span)
	}

	staffIDs := make([]string, 0, len(byStaff))
	for id := range byStaff {
		staffIDs = append(staffIDs, id)
	}
	sort.Strings(staffIDs)

	var conflicts []Conflict
	for _, id := range staffIDs {
		spans := byStaff[id]
		sort.Slice(spans, func(i, j int) bool {
			if spans[i].start != spans[j].start {
				return spans[i].start < spans[j].start
			}
			return spans[i].code < spans[j].code
		})

		conflicts = append(conflicts, d.detectOverlaps(id, spans)...)
		conflicts = append(conflicts, d.detectRestViolations(id, spans)...)
		conflicts = append(conflicts, d.detectLongDays(id, spans)...)
		conflicts = append(conflicts, d.detectConsecutiveDays(id, spans)...)
	}
	return conflicts
}

// spanOf 换算班次的绝对分钟区间，跨天班次的结束落在次日
func (d *Detector) spanOf(row model.RawShiftRow, wt *model.WorkType) (shiftSpan, error) {
	day, err := model.ParseDate(row.Date)
	if err != nil {
		return shiftSpan{}, err
	}
	startMin, err := wt.StartMinute()
	if err != nil {
		return shiftSpan{}, err
	}
	endMin, err := wt.EndMinute()
	if err != nil {
		return shiftSpan{}, err
	}

	base := day.Unix() / 60
	return shiftSpan{
		date:  row.Date,
		code:  row.Code,
		start: base + int64(startMin),
		end:   base + int64(endMin),
	}, nil
}

// detectOverlaps 检测时间重叠的班次
func (d *Detector) detectOverlaps(staffID string, spans []shiftSpan) []Conflict {
	var conflicts []Conflict
	for i := 0; i+1 < len(spans); i++ {
		cur, next := spans[i], spans[i+1]
		if next.start < cur.end {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictOverlap,
				Severity: "error",
				StaffID:  staffID,
				Date:     cur.date,
				Message:  fmt.Sprintf("员工 %s 在 %s 存在时间重叠的班次", staffID, cur.date),
				Codes:    []string{cur.code, next.code},
			})
		}
	}
	return conflicts
}

// detectRestViolations 检测班次间休息不足
func (d *Detector) detectRestViolations(staffID string, spans []shiftSpan) []Conflict {
	if d.cfg.MinRestHours <= 0 {
		return nil
	}

	var conflicts []Conflict
	for i := 0; i+1 < len(spans); i++ {
		cur, next := spans[i], spans[i+1]
		restHours := float64(next.start-cur.end) / 60
		if restHours >= 0 && restHours < d.cfg.MinRestHours {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictRestTime,
				Severity: "error",
				StaffID:  staffID,
				Date:     next.date,
				Message:  fmt.Sprintf("员工 %s 班次间休息仅 %.1f 小时，少于要求的 %.0f 小时", staffID, restHours, d.cfg.MinRestHours),
				Codes:    []string{cur.code, next.code},
			})
		}
	}
	return conflicts
}

// detectLongDays 检测单日工时超限
func (d *Detector) detectLongDays(staffID string, spans []shiftSpan) []Conflict {
	if d.cfg.MaxHoursPerDay <= 0 {
		return nil
	}

	dailyHours := make(map[string]float64)
	for _, s := range spans {
		dailyHours[s.date] += float64(s.end-s.start) / 60
	}

	dates := make([]string, 0, len(dailyHours))
	for date := range dailyHours {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var conflicts []Conflict
	for _, date := range dates {
		if hours := dailyHours[date]; hours > d.cfg.MaxHoursPerDay {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictLongDay,
				Severity: "error",
				StaffID:  staffID,
				Date:     date,
				Message:  fmt.Sprintf("员工 %s 在 %s 工作 %.1f 小时，超过限制 %.0f 小时", staffID, date, hours, d.cfg.MaxHoursPerDay),
			})
		}
	}
	return conflicts
}

// detectConsecutiveDays 检测连续工作天数
func (d *Detector) detectConsecutiveDays(staffID string, spans []shiftSpan) []Conflict {
	if d.cfg.MaxConsecutiveDays <= 0 || len(spans) == 0 {
		return nil
	}

	workDates := make(map[string]bool)
	for _, s := range spans {
		workDates[s.date] = true
	}
	dates := make([]string, 0, len(workDates))
	for date := range workDates {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	consecutive := 1
	maxConsecutive := 1
	runStart := dates[0]
	maxStart := dates[0]

	for i := 1; i < len(dates); i++ {
		if isNextDay(dates[i-1], dates[i]) {
			consecutive++
			if consecutive > maxConsecutive {
				maxConsecutive = consecutive
				maxStart = runStart
			}
		} else {
			consecutive = 1
			runStart = dates[i]
		}
	}

	if maxConsecutive > d.cfg.MaxConsecutiveDays {
		return []Conflict{{
			Type:     ConflictConsecutive,
			Severity: "warning",
			StaffID:  staffID,
			Date:     maxStart,
			Message:  fmt.Sprintf("员工 %s 连续工作 %d 天，超过限制 %d 天", staffID, maxConsecutive, d.cfg.MaxConsecutiveDays),
		}}
	}
	return nil
}

// isNextDay 检查两个日期是否相邻
func isNextDay(date1, date2 string) bool {
	t1, err1 := model.ParseDate(date1)
	t2, err2 := model.ParseDate(date2)
	if err1 != nil || err2 != nil {
		return false
	}
	return t2.Sub(t1).Hours() == 24
}
