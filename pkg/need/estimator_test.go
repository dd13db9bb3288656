package need

import (
	"math"
	"testing"

	"github.com/quekou/quekou/pkg/model"
)

// buildGrid 构建全机构矩阵并按 setCount 填充在岗人数
func buildGrid(t *testing.T, slotMinutes int, window model.DateRange, setCount func(date string, slot int) int) *model.Grid {
	t.Helper()
	g, err := model.NewGrid(model.FacilityScope(), slotMinutes, window.Dates())
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	for _, date := range g.Dates {
		for slot := 0; slot < g.SlotsPerDay(); slot++ {
			for n := 0; n < setCount(date, slot); n++ {
				g.Inc(slot, date)
			}
		}
	}
	return g
}

func TestEstimate_MeanByWeekday(t *testing.T) {
	// 两周窗口：周一 slot 0 在岗 2 和 4 人，均值应为 3
	window := model.DateRange{Start: "2026-06-01", End: "2026-06-14"}
	g := buildGrid(t, 720, window, func(date string, slot int) int {
		if model.WeekdayOf(date) != 1 || slot != 0 {
			return 0
		}
		if date == "2026-06-01" {
			return 2
		}
		return 4
	})

	e, err := NewEstimator(Config{Statistic: Statistic{Kind: StatMean}, MinSample: 1})
	if err != nil {
		t.Fatalf("NewEstimator() error = %v", err)
	}
	baseline, _, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if got := baseline.Values[1][0]; math.Abs(got-3) > 1e-9 {
		t.Errorf("Monday slot 0 = %f, want 3", got)
	}
	if got := baseline.SampleSizes[1][0]; got != 2 {
		t.Errorf("Monday slot 0 sample size = %d, want 2", got)
	}
	// 周二没有在岗记录但有样本
	if got := baseline.Values[2][0]; got != 0 {
		t.Errorf("Tuesday slot 0 = %f, want 0", got)
	}
	if baseline.WindowDays != 14 {
		t.Errorf("WindowDays = %d, want 14", baseline.WindowDays)
	}
	if baseline.Method != "mean" {
		t.Errorf("Method = %s, want mean", baseline.Method)
	}
}

func TestEstimate_Idempotent(t *testing.T) {
	window := model.DateRange{Start: "2026-06-01", End: "2026-06-14"}
	g := buildGrid(t, 720, window, func(date string, slot int) int {
		return slot + 1
	})

	e, _ := NewEstimator(Config{Statistic: Statistic{Kind: StatMedian}, MinSample: 1})

	first, _, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	second, _, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	for wd := 0; wd < 7; wd++ {
		for slot := range first.Values[wd] {
			if first.Values[wd][slot] != second.Values[wd][slot] {
				t.Fatalf("estimate not idempotent at weekday %d slot %d", wd, slot)
			}
		}
	}
}

func TestEstimate_WindowExtensionDoesNotInflate(t *testing.T) {
	// 稳定排班下把窗口从 2 周拉长到 4 周，基线不得上升
	long := model.DateRange{Start: "2026-06-01", End: "2026-06-28"}
	short := model.DateRange{Start: "2026-06-15", End: "2026-06-28"}
	g := buildGrid(t, 720, long, func(date string, slot int) int {
		return 3
	})

	e, _ := NewEstimator(Config{Statistic: Statistic{Kind: StatMean}, MinSample: 1})
	longBaseline, _, err := e.Estimate(g, long)
	if err != nil {
		t.Fatalf("Estimate(long) error = %v", err)
	}
	shortBaseline, _, err := e.Estimate(g, short)
	if err != nil {
		t.Fatalf("Estimate(short) error = %v", err)
	}

	for wd := 0; wd < 7; wd++ {
		for slot := range longBaseline.Values[wd] {
			if longBaseline.Values[wd][slot] > shortBaseline.Values[wd][slot]+1e-9 {
				t.Fatalf("longer window inflated need at weekday %d slot %d: %f > %f",
					wd, slot, longBaseline.Values[wd][slot], shortBaseline.Values[wd][slot])
			}
		}
	}
	if longBaseline.WindowDays != 28 || shortBaseline.WindowDays != 14 {
		t.Errorf("window days = %d / %d, want 28 / 14", longBaseline.WindowDays, shortBaseline.WindowDays)
	}
}

func TestEstimate_GridNarrowerThanWindow(t *testing.T) {
	// 排班从窗口第二天开始：基线仍须记录请求的窗口，而不是矩阵实际覆盖的日期
	window := model.DateRange{Start: "2026-06-01", End: "2026-06-14"}
	covered := model.DateRange{Start: "2026-06-02", End: "2026-06-14"}
	g := buildGrid(t, 720, covered, func(date string, slot int) int {
		return 3
	})

	e, _ := NewEstimator(Config{Statistic: Statistic{Kind: StatMean}, MinSample: 1})
	baseline, _, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if baseline.Window != window {
		t.Errorf("Window = %+v, want %+v", baseline.Window, window)
	}
	if baseline.WindowDays != 14 {
		t.Errorf("WindowDays = %d, want 14", baseline.WindowDays)
	}
	// 窗口里有两个周一但矩阵只覆盖 06-08，样本量照实记录
	if got := baseline.SampleSizes[1][0]; got != 1 {
		t.Errorf("Monday slot 0 sample size = %d, want 1", got)
	}
	if got := baseline.Values[1][0]; math.Abs(got-3) > 1e-9 {
		t.Errorf("Monday slot 0 = %f, want 3", got)
	}
}

func TestEstimate_OutlierRemoved(t *testing.T) {
	// 五个周一，四次 3 人、一次 30 人：离群值剔除后均值回到 3
	window := model.DateRange{Start: "2026-06-01", End: "2026-07-05"}
	g := buildGrid(t, 720, window, func(date string, slot int) int {
		if model.WeekdayOf(date) != 1 || slot != 0 {
			return 0
		}
		if date == "2026-06-29" {
			return 30
		}
		return 3
	})

	e, _ := NewEstimator(Config{
		Statistic:      Statistic{Kind: StatMean},
		RemoveOutliers: true,
		IQRMultiplier:  1.5,
		MinSample:      3,
	})
	baseline, diag, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if got := baseline.Values[1][0]; math.Abs(got-3) > 1e-9 {
		t.Errorf("Monday slot 0 after outlier removal = %f, want 3", got)
	}
	if baseline.OutliersRemoved == 0 {
		t.Error("OutliersRemoved should be positive")
	}
	if len(diag.OutlierExclusions) == 0 {
		t.Fatal("diagnostics should record the exclusion")
	}
	ex := diag.OutlierExclusions[0]
	if ex.Removed != 1 || ex.Weekday != 1 || ex.Slot != 0 {
		t.Errorf("unexpected exclusion entry: %+v", ex)
	}
}

func TestEstimate_SkipsRemovalWhenSampleTooSmall(t *testing.T) {
	// 仅两个周一，低于最少样本量时放弃剔除并记录警告
	window := model.DateRange{Start: "2026-06-01", End: "2026-06-14"}
	g := buildGrid(t, 720, window, func(date string, slot int) int {
		if model.WeekdayOf(date) != 1 || slot != 0 {
			return 0
		}
		if date == "2026-06-01" {
			return 3
		}
		return 30
	})

	e, _ := NewEstimator(Config{
		Statistic:      Statistic{Kind: StatMean},
		RemoveOutliers: true,
		IQRMultiplier:  1.5,
		MinSample:      3,
	})
	baseline, diag, err := e.Estimate(g, window)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	// 全样本保留：均值 16.5
	if got := baseline.Values[1][0]; math.Abs(got-16.5) > 1e-9 {
		t.Errorf("Monday slot 0 = %f, want 16.5 (no removal)", got)
	}
	if baseline.OutliersRemoved != 0 {
		t.Errorf("OutliersRemoved = %d, want 0", baseline.OutliersRemoved)
	}
	if len(diag.Warnings) == 0 {
		t.Error("insufficient sample should produce a warning")
	}
}

func TestEstimate_DisjointWindow(t *testing.T) {
	window := model.DateRange{Start: "2026-06-01", End: "2026-06-07"}
	g := buildGrid(t, 720, window, func(string, int) int { return 1 })

	e, _ := NewEstimator(Config{Statistic: Statistic{Kind: StatMean}, MinSample: 1})
	if _, _, err := e.Estimate(g, model.DateRange{Start: "2026-08-01", End: "2026-08-07"}); err == nil {
		t.Error("Estimate should fail when window does not intersect grid dates")
	}
	if _, _, err := e.Estimate(nil, window); err == nil {
		t.Error("Estimate should fail for nil grid")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Statistic: Statistic{Kind: StatMean}, MinSample: 1}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	noStat := Config{MinSample: 1}
	if err := noStat.Validate(); err == nil {
		t.Error("config without statistic should be rejected")
	}

	badIQR := Config{Statistic: Statistic{Kind: StatMean}, RemoveOutliers: true, MinSample: 1}
	if err := badIQR.Validate(); err == nil {
		t.Error("outlier removal without positive multiplier should be rejected")
	}
}
