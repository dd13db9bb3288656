// Package need 按参照窗口估计各 (星期, 时段) 的需求基线
//
// 基线是 (排班矩阵, 配置) 的纯函数，不依赖任何先前的缺口结果，
// 从构造上杜绝"需求吃进上一轮缺口"的循环放大
package need

import (
	"fmt"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

// Config 需求估计配置，运行期间不可变
type Config struct {
	Statistic      Statistic `json:"statistic"`
	RemoveOutliers bool      `json:"remove_outliers"`
	IQRMultiplier  float64   `json:"iqr_multiplier"` // Tukey 围栏倍数
	MinSample      int       `json:"min_sample"`     // 剔除后最少样本量，低于则放弃剔除
}

// Validate 校验估计配置
func (c Config) Validate() error {
	if c.Statistic.Kind == "" {
		return errors.InvalidInput("statistic", "未设置统计方法")
	}
	if c.RemoveOutliers && c.IQRMultiplier <= 0 {
		return errors.InvalidInput("iqr_multiplier", "启用离群值剔除时必须为正数")
	}
	if c.MinSample < 1 {
		return errors.InvalidInput("min_sample", "最少样本量必须不小于1")
	}
	return nil
}

// Estimator 需求基线估计器
type Estimator struct {
	cfg Config
}

// NewEstimator 创建需求估计器
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Estimate 按参照窗口估计某口径的需求基线
// 对同一 (矩阵, 配置) 重复调用结果相同；诊断报告记录离群剔除与样本不足警告
func (e *Estimator) Estimate(g *model.Grid, window model.DateRange) (*model.NeedBaseline, *model.Diagnostics, error) {
	if g == nil {
		return nil, nil, errors.ErrEmptyGrid
	}
	if err := window.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInvalidTimeRange, "参照窗口无效")
	}

	ref, err := g.Restrict(window)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInvalidTimeRange, "参照窗口与矩阵不相交")
	}

	slots := ref.SlotsPerDay()
	diag := &model.Diagnostics{}
	// 基线记录请求的参照窗口；排班首尾日落在窗口内部时矩阵覆盖可以更窄
	baseline := &model.NeedBaseline{
		Scope:       ref.Scope,
		Method:      e.cfg.Statistic.String(),
		SlotMinutes: ref.SlotMinutes,
		Window:      window,
		WindowDays:  window.Days(),
	}
	for wd := 0; wd < 7; wd++ {
		baseline.Values[wd] = make([]float64, slots)
		baseline.SampleSizes[wd] = make([]int, slots)
	}

	// 按星期归列
	dateIdxByWeekday := make([][]int, 7)
	for i := range ref.Dates {
		wd := int(ref.WeekdayAt(i))
		dateIdxByWeekday[wd] = append(dateIdxByWeekday[wd], i)
	}

	for wd := 0; wd < 7; wd++ {
		cols := dateIdxByWeekday[wd]
		if len(cols) == 0 {
			continue
		}
		for slot := 0; slot < slots; slot++ {
			sample := make([]float64, 0, len(cols))
			for _, col := range cols {
				sample = append(sample, float64(ref.At(slot, col)))
			}

			used := sample
			if e.cfg.RemoveOutliers {
				used = e.rejectOutliers(ref.Scope.Key(), wd, slot, sample, diag)
			}

			value := e.cfg.Statistic.Apply(used)
			if value < 0 {
				value = 0
			}
			baseline.Values[wd][slot] = value
			baseline.SampleSizes[wd][slot] = len(used)
		}
	}

	for _, ex := range diag.OutlierExclusions {
		baseline.OutliersRemoved += ex.Removed
	}

	return baseline, diag, nil
}

// rejectOutliers 按 Tukey 围栏剔除离群点
// 剔除后样本不足时放弃剔除并记录警告
func (e *Estimator) rejectOutliers(scopeKey string, weekday, slot int, sample []float64, diag *model.Diagnostics) []float64 {
	if len(sample) < e.cfg.MinSample {
		diag.Warnings = append(diag.Warnings,
			errors.InsufficientSample(weekday, slot, len(sample), e.cfg.MinSample).Message)
		return sample
	}

	lower, upper := TukeyFences(sample, e.cfg.IQRMultiplier)
	kept := make([]float64, 0, len(sample))
	var dropped []float64
	for _, v := range sample {
		if v < lower || v > upper {
			dropped = append(dropped, v)
			continue
		}
		kept = append(kept, v)
	}

	if len(dropped) == 0 {
		return sample
	}
	if len(kept) < e.cfg.MinSample {
		diag.Warnings = append(diag.Warnings, fmt.Sprintf(
			"剔除后样本不足，保留全部样本: scope=%s weekday=%d slot=%d 原样本=%d 剔除=%d 最少=%d",
			scopeKey, weekday, slot, len(sample), len(dropped), e.cfg.MinSample))
		return sample
	}

	diag.OutlierExclusions = append(diag.OutlierExclusions, model.OutlierExclusion{
		Scope:   scopeKey,
		Weekday: weekday,
		Slot:    slot,
		Removed: len(dropped),
		Kept:    len(kept),
		Lower:   lower,
		Upper:   upper,
		Dropped: dropped,
	})
	return kept
}
