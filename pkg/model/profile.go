package model

// ShortageProfile 缺口分布画像：缺口在时间轴上的集中程度与需求满足情况
type ShortageProfile struct {
	NeedHours       float64 `json:"need_hours"`       // 基线需求总小时数
	StaffedHours    float64 `json:"staffed_hours"`    // 实际在岗总小时数
	SatisfactionPct float64 `json:"satisfaction_pct"` // 需求满足度 (%)

	PeakDate      string  `json:"peak_date,omitempty"` // 缺口最大的日期
	PeakDateHours float64 `json:"peak_date_hours"`
	PeakHour      int     `json:"peak_hour"` // 缺口最大的时段 (0-23)
	PeakHourHours float64 `json:"peak_hour_hours"`

	WeekdayShortageHours [7]float64 `json:"weekday_shortage_hours"` // 周日为 0

	// 按日缺口的基尼系数：0 表示缺口均匀分布，越接近 1 越集中在少数日期
	ConcentrationGini float64 `json:"concentration_gini"`

	RoleShares []ScopeShare `json:"role_shares,omitempty"` // 各岗位承担的缺口份额
}

// ScopeShare 某口径承担的缺口份额
type ScopeShare struct {
	Scope         Scope   `json:"scope"`
	ShortageHours float64 `json:"shortage_hours"`
	SharePct      float64 `json:"share_pct"`
}
