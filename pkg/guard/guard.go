// Package guard 对中间与最终结果做合理性校验
//
// 运行状态机：Computing → Validating → {Accepted, Flagged, Rejected}
// Rejected 的口径结果不写入输出；Flagged 的结果连同原因一起输出供人工复核
package guard

import (
	"fmt"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// State 守卫状态
type State string

const (
	StateComputing  State = "computing"
	StateValidating State = "validating"
	StateAccepted   State = "accepted"
	StateFlagged    State = "flagged"
	StateRejected   State = "rejected"
)

// Config 异常守卫配置
type Config struct {
	CeilingHoursPerDay float64 `json:"ceiling_hours_per_day"` // 单口径单日缺口小时数上限
	MaxWindowDays      int     `json:"max_window_days"`       // 参照窗口天数上限
}

// DefaultConfig 返回默认守卫配置
func DefaultConfig() Config {
	return Config{CeilingHoursPerDay: 240, MaxWindowDays: 366}
}

// Validate 校验守卫配置
func (c Config) Validate() error {
	if c.CeilingHoursPerDay <= 0 {
		return errors.InvalidInput("ceiling_hours_per_day", "必须为正数")
	}
	if c.MaxWindowDays <= 0 {
		return errors.InvalidInput("max_window_days", "必须为正数")
	}
	return nil
}

// Guard 异常守卫，一次分析运行一个实例
type Guard struct {
	cfg   Config
	state State
}

// NewGuard 创建异常守卫
func NewGuard(cfg Config) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{cfg: cfg, state: StateComputing}, nil
}

// State 返回当前状态
func (g *Guard) State() State {
	return g.state
}

// CheckWindow 计算开始前校验参照窗口，防止超长窗口被意外处理
func (g *Guard) CheckWindow(window model.DateRange) error {
	if g.state != StateComputing {
		return errors.New(errors.CodeInternal, fmt.Sprintf("守卫状态 %s 不允许窗口校验", g.state))
	}
	if err := window.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidTimeRange, "参照窗口无效")
	}
	if days := window.Days(); days > g.cfg.MaxWindowDays {
		return errors.New(errors.CodeWindowTooLong,
			fmt.Sprintf("参照窗口 %d 天超过上限 %d 天", days, g.cfg.MaxWindowDays))
	}
	return nil
}

// BeginValidation 进入校验阶段
func (g *Guard) BeginValidation() error {
	if g.state != StateComputing {
		return errors.New(errors.CodeInternal, fmt.Sprintf("无法从状态 %s 进入校验", g.state))
	}
	g.state = StateValidating
	return nil
}

// ValidateScope 校验单一口径的基线与汇总，返回结论
// 负需求或窗口记录缺失 → rejected；单日缺口超上限 → flagged
func (g *Guard) ValidateScope(baseline *model.NeedBaseline, summary *model.ScopeSummary, window model.DateRange) []model.AnomalyFinding {
	var findings []model.AnomalyFinding
	scopeKey := summary.Scope.Key()

	reject := func(reason string, value float64) {
		summary.Status = model.StatusRejected
		summary.FlagReasons = append(summary.FlagReasons, reason)
		findings = append(findings, model.AnomalyFinding{
			Scope:  scopeKey,
			Status: model.StatusRejected,
			Reason: reason,
			Value:  value,
		})
	}
	flag := func(reason string, value, limit float64) {
		if summary.Status != model.StatusRejected {
			summary.Status = model.StatusFlagged
		}
		summary.FlagReasons = append(summary.FlagReasons, reason)
		findings = append(findings, model.AnomalyFinding{
			Scope:  scopeKey,
			Status: model.StatusFlagged,
			Reason: reason,
			Value:  value,
			Limit:  limit,
		})
	}

	if baseline == nil {
		reject("缺少需求基线", 0)
		return findings
	}

	// 基线必须显式记录参照窗口，窗口被拉长不得隐式放大需求
	if baseline.WindowDays <= 0 {
		reject("基线未记录参照窗口天数", float64(baseline.WindowDays))
	} else if baseline.Window != window {
		reject(fmt.Sprintf("基线窗口 [%s, %s] 与本次运行窗口 [%s, %s] 不一致",
			baseline.Window.Start, baseline.Window.End, window.Start, window.End), 0)
	}

	// 需求不得为负
	for wd := 0; wd < 7; wd++ {
		for slot, v := range baseline.Values[wd] {
			if v < 0 {
				reject(fmt.Sprintf("需求基线为负: weekday=%d slot=%d value=%.2f", wd, slot, v), v)
			}
		}
	}

	// 单日缺口小时数超出现实人力配比视为可疑
	for date, hours := range summary.DailyShortageHours {
		if hours > g.cfg.CeilingHoursPerDay {
			flag(fmt.Sprintf("%s 缺口 %.1f 小时超过单日上限 %.1f", date, hours, g.cfg.CeilingHoursPerDay),
				hours, g.cfg.CeilingHoursPerDay)
		}
	}

	return findings
}

// Finish 汇总全部口径结论并收敛状态机
// 全机构口径被拒绝则整次运行拒绝；仅子口径被拒绝或标记时运行降级为 flagged
func (g *Guard) Finish(findings []model.AnomalyFinding) State {
	if g.state != StateValidating {
		return g.state
	}
	final := StateAccepted
	for _, f := range findings {
		switch f.Status {
		case model.StatusRejected:
			if f.Scope == model.FacilityScope().Key() {
				g.state = StateRejected
				return g.state
			}
			final = StateFlagged
		case model.StatusFlagged:
			final = StateFlagged
		}
	}
	g.state = final
	return g.state
}
