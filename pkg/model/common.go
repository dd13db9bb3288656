// Package model 定义缺口分析引擎的核心数据模型
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ParseDate 解析 YYYY-MM-DD 日期
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效 '%s': %w", s, err)
	}
	return t, nil
}

// FormatDate 格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WeekdayOf 返回日期对应的星期（解析失败返回周日）
func WeekdayOf(date string) time.Weekday {
	t, err := ParseDate(date)
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

// DateRange 日期范围（闭区间，YYYY-MM-DD）
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate 检查日期范围是否合法
func (dr DateRange) Validate() error {
	start, err := ParseDate(dr.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(dr.End)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("结束日期 %s 早于开始日期 %s", dr.End, dr.Start)
	}
	return nil
}

// Days 返回范围内的天数（含首尾）
func (dr DateRange) Days() int {
	start, err1 := ParseDate(dr.Start)
	end, err2 := ParseDate(dr.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Contains 检查日期是否在范围内
func (dr DateRange) Contains(date string) bool {
	return date >= dr.Start && date <= dr.End
}

// Dates 枚举范围内的全部日期（升序）
func (dr DateRange) Dates() []string {
	start, err1 := ParseDate(dr.Start)
	end, err2 := ParseDate(dr.End)
	if err1 != nil || err2 != nil || end.Before(start) {
		return nil
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, FormatDate(d))
	}
	return dates
}

// TimeRange 时间范围
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration 返回时间范围的持续时间
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Overlaps 检查两个时间范围是否重叠
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains 检查时间范围是否包含某个时间点
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}
