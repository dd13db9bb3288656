// Package model 定义缺口分析引擎的核心数据模型
package model

import (
	"fmt"
	"sort"
	"time"
)

// ScopeKind 统计口径类型
type ScopeKind string

const (
	ScopeFacility   ScopeKind = "facility"   // 全机构
	ScopeRole       ScopeKind = "role"       // 按岗位
	ScopeEmployment ScopeKind = "employment" // 按用工类型
)

// Scope 统计口径：全机构、单一岗位或单一用工类型
type Scope struct {
	Kind  ScopeKind `json:"kind"`
	Label string    `json:"label,omitempty"` // facility 口径为空
}

// FacilityScope 全机构口径
func FacilityScope() Scope {
	return Scope{Kind: ScopeFacility}
}

// RoleScope 岗位口径
func RoleScope(label string) Scope {
	return Scope{Kind: ScopeRole, Label: label}
}

// EmploymentScope 用工类型口径
func EmploymentScope(label string) Scope {
	return Scope{Kind: ScopeEmployment, Label: label}
}

// Key 返回口径的唯一键
func (s Scope) Key() string {
	if s.Kind == ScopeFacility {
		return string(ScopeFacility)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Label)
}

// Matches 检查记录是否落入该口径
func (s Scope) Matches(r *ShiftRecord) bool {
	switch s.Kind {
	case ScopeFacility:
		return true
	case ScopeRole:
		return r.Role == s.Label
	case ScopeEmployment:
		return r.Employment == s.Label
	default:
		return false
	}
}

// ScopeSet 本次分析使用的口径集合
// 主岗位/主用工类型已去重并排除复合标签，保证同一员工不被重复计数
type ScopeSet struct {
	Roles               []string `json:"roles"`                // 主岗位（不重叠）
	Employments         []string `json:"employments"`          // 主用工类型（不重叠）
	CompoundRoles       []string `json:"compound_roles"`       // 被排除的复合岗位标签
	CompoundEmployments []string `json:"compound_employments"` // 被排除的复合用工标签
}

// AllScopes 枚举全部口径（全机构 + 各主岗位 + 各主用工类型）
func (ss *ScopeSet) AllScopes() []Scope {
	scopes := make([]Scope, 0, 1+len(ss.Roles)+len(ss.Employments))
	scopes = append(scopes, FacilityScope())
	for _, r := range ss.Roles {
		scopes = append(scopes, RoleScope(r))
	}
	for _, e := range ss.Employments {
		scopes = append(scopes, EmploymentScope(e))
	}
	return scopes
}

// Grid 排班矩阵：按 (时段, 日期) 记录某口径的在岗人数
// 日期列必须升序且连续
type Grid struct {
	Scope       Scope    `json:"scope"`
	SlotMinutes int      `json:"slot_minutes"`
	Dates       []string `json:"dates"`
	Counts      [][]int  `json:"counts"` // [slot][dateIdx]

	dateIndex map[string]int
	weekdays  []time.Weekday
}

// NewGrid 创建排班矩阵，校验日期连续且升序
func NewGrid(scope Scope, slotMinutes int, dates []string) (*Grid, error) {
	if slotMinutes <= 0 || 1440%slotMinutes != 0 {
		return nil, fmt.Errorf("slot_minutes 必须整除1440，当前为 %d", slotMinutes)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("日期列表为空")
	}
	sorted := make([]string, len(dates))
	copy(sorted, dates)
	sort.Strings(sorted)

	weekdays := make([]time.Weekday, len(sorted))
	prev, err := ParseDate(sorted[0])
	if err != nil {
		return nil, err
	}
	weekdays[0] = prev.Weekday()
	for i := 1; i < len(sorted); i++ {
		d, err := ParseDate(sorted[i])
		if err != nil {
			return nil, err
		}
		if !d.Equal(prev.AddDate(0, 0, 1)) {
			return nil, fmt.Errorf("日期列不连续: %s 之后是 %s", FormatDate(prev), sorted[i])
		}
		weekdays[i] = d.Weekday()
		prev = d
	}

	slots := 1440 / slotMinutes
	counts := make([][]int, slots)
	for i := range counts {
		counts[i] = make([]int, len(sorted))
	}
	idx := make(map[string]int, len(sorted))
	for i, d := range sorted {
		idx[d] = i
	}

	return &Grid{
		Scope:       scope,
		SlotMinutes: slotMinutes,
		Dates:       sorted,
		Counts:      counts,
		dateIndex:   idx,
		weekdays:    weekdays,
	}, nil
}

// SlotsPerDay 返回每日时段数
func (g *Grid) SlotsPerDay() int {
	return 1440 / g.SlotMinutes
}

// DateIndex 返回日期的列下标
func (g *Grid) DateIndex(date string) (int, bool) {
	i, ok := g.dateIndex[date]
	return i, ok
}

// WeekdayAt 返回列下标对应的星期
func (g *Grid) WeekdayAt(dateIdx int) time.Weekday {
	return g.weekdays[dateIdx]
}

// At 返回某 (时段, 日期下标) 的在岗人数
func (g *Grid) At(slot, dateIdx int) int {
	return g.Counts[slot][dateIdx]
}

// Inc 某 (时段, 日期) 在岗人数加一；日期不在范围内则忽略
func (g *Grid) Inc(slot int, date string) {
	if slot < 0 || slot >= g.SlotsPerDay() {
		return
	}
	if i, ok := g.dateIndex[date]; ok {
		g.Counts[slot][i]++
	}
}

// Total 返回矩阵内在岗人次总和
func (g *Grid) Total() int {
	total := 0
	for _, row := range g.Counts {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// Window 返回矩阵覆盖的日期范围
func (g *Grid) Window() DateRange {
	return DateRange{Start: g.Dates[0], End: g.Dates[len(g.Dates)-1]}
}

// Restrict 返回限定在参照窗口内的新矩阵（不修改原矩阵）
func (g *Grid) Restrict(window DateRange) (*Grid, error) {
	var dates []string
	for _, d := range g.Dates {
		if window.Contains(d) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("参照窗口 [%s, %s] 与矩阵日期无交集", window.Start, window.End)
	}
	sub, err := NewGrid(g.Scope, g.SlotMinutes, dates)
	if err != nil {
		return nil, err
	}
	for slot := 0; slot < g.SlotsPerDay(); slot++ {
		for i, d := range dates {
			src, _ := g.dateIndex[d]
			sub.Counts[slot][i] = g.Counts[slot][src]
		}
	}
	return sub, nil
}
