// Package need 按参照窗口估计各 (星期, 时段) 的需求基线
package need

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quekou/quekou/pkg/errors"
)

// StatisticKind 统计方法类型
type StatisticKind string

const (
	StatMean       StatisticKind = "mean"       // 均值
	StatMedian     StatisticKind = "median"     // 中位数
	StatPercentile StatisticKind = "percentile" // 百分位数
)

// Statistic 统计方法，配置校验时解析，计算阶段不再接受字符串
type Statistic struct {
	Kind       StatisticKind `json:"kind"`
	Percentile float64       `json:"percentile,omitempty"` // 仅 percentile 使用，(0,100)
}

// ParseStatistic 解析统计方法字符串
// 支持 "mean"、"median"、"percentile_N"（N 为 (0,100) 的数）；未知方法立即拒绝
func ParseStatistic(s string) (Statistic, error) {
	switch {
	case s == "mean":
		return Statistic{Kind: StatMean}, nil
	case s == "median":
		return Statistic{Kind: StatMedian}, nil
	case strings.HasPrefix(s, "percentile_"):
		p, err := strconv.ParseFloat(strings.TrimPrefix(s, "percentile_"), 64)
		if err != nil || p <= 0 || p >= 100 {
			return Statistic{}, errors.InvalidStatistic(s)
		}
		return Statistic{Kind: StatPercentile, Percentile: p}, nil
	default:
		return Statistic{}, errors.InvalidStatistic(s)
	}
}

// String 返回统计方法的规范名称
func (s Statistic) String() string {
	switch s.Kind {
	case StatPercentile:
		if s.Percentile == float64(int(s.Percentile)) {
			return fmt.Sprintf("percentile_%d", int(s.Percentile))
		}
		return fmt.Sprintf("percentile_%g", s.Percentile)
	default:
		return string(s.Kind)
	}
}

// Apply 对样本计算统计量，空样本返回0
func (s Statistic) Apply(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	switch s.Kind {
	case StatMean:
		sum := 0.0
		for _, v := range sample {
			sum += v
		}
		return sum / float64(len(sample))
	case StatMedian:
		return Quantile(sample, 50)
	case StatPercentile:
		return Quantile(sample, s.Percentile)
	default:
		return 0
	}
}

// Quantile 线性插值法计算百分位数，p ∈ [0,100]
func Quantile(sample []float64, p float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	pos := p / 100 * float64(len(sorted)-1)
	lower := int(pos)
	frac := pos - float64(lower)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// TukeyFences 返回 [Q1 - k*IQR, Q3 + k*IQR] 离群值边界
func TukeyFences(sample []float64, k float64) (lower, upper float64) {
	q1 := Quantile(sample, 25)
	q3 := Quantile(sample, 75)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}
