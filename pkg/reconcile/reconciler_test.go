package reconcile

import (
	"math"
	"testing"

	"github.com/quekou/quekou/pkg/errors"
	"github.com/quekou/quekou/pkg/model"
)

func matrixWithMethod(scope model.Scope, method string) *model.ShortageMatrix {
	return &model.ShortageMatrix{
		Scope:       scope,
		Method:      method,
		SlotMinutes: 30,
		Dates:       []string{"2026-06-01"},
	}
}

func summaryWithHours(scope model.Scope, hours float64) model.ScopeSummary {
	return model.ScopeSummary{Scope: scope, ShortageHours: hours, Status: model.StatusAccepted}
}

func testInput(facilityHours float64, roleHours ...float64) Input {
	in := Input{
		Facility:        matrixWithMethod(model.FacilityScope(), "mean"),
		Roles:           make(map[string]*model.ShortageMatrix),
		Employments:     make(map[string]*model.ShortageMatrix),
		FacilitySummary: summaryWithHours(model.FacilityScope(), facilityHours),
	}
	labels := []string{"介护", "相谈员", "看护"}
	for i, h := range roleHours {
		label := labels[i]
		in.ScopeSet.Roles = append(in.ScopeSet.Roles, label)
		in.Roles[label] = matrixWithMethod(model.RoleScope(label), "mean")
		in.RoleSummaries = append(in.RoleSummaries, summaryWithHours(model.RoleScope(label), h))
	}
	return in
}

func TestReconcile_WithinTolerance(t *testing.T) {
	r, err := NewReconciler(DefaultConfig())
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	// 100 对 60+39.8：偏差 0.2 小时，低于 max(1%, 0.5h) = 1h
	summary, err := r.Reconcile(testInput(100, 60, 39.8))
	if err != nil {
		t.Fatalf("Reconcile() should pass within tolerance: %v", err)
	}
	if math.Abs(summary.RoleDriftHours-0.2) > 1e-9 {
		t.Errorf("RoleDriftHours = %f, want 0.2", summary.RoleDriftHours)
	}
}

func TestReconcile_BeyondTolerance(t *testing.T) {
	r, _ := NewReconciler(DefaultConfig())

	// 偏差 10 小时，远超容差
	_, err := r.Reconcile(testInput(100, 60, 50))
	if err == nil {
		t.Fatal("Reconcile() should fail beyond tolerance")
	}
	if !errors.Is(err, errors.CodeReconciliationFail) {
		t.Errorf("error code = %v, want RECONCILIATION_FAILED", errors.GetCode(err))
	}
}

func TestReconcile_AbsoluteToleranceFloor(t *testing.T) {
	r, _ := NewReconciler(DefaultConfig())

	// 全机构缺口很小,相对容差 1% 仅 0.05h，但绝对容差 0.5h 兜底
	if _, err := r.Reconcile(testInput(5, 3, 2.4)); err != nil {
		t.Errorf("drift 0.4h should pass under 0.5h absolute floor: %v", err)
	}
	if _, err := r.Reconcile(testInput(5, 3, 2.8)); err == nil {
		t.Error("drift 0.8h should fail above 0.5h absolute floor")
	}
}

func TestReconcile_MethodMismatch(t *testing.T) {
	r, _ := NewReconciler(DefaultConfig())

	in := testInput(100, 100)
	in.Roles["介护"] = matrixWithMethod(model.RoleScope("介护"), "median")

	_, err := r.Reconcile(in)
	if err == nil {
		t.Fatal("Reconcile() should reject mixed statistic methods")
	}
	if !errors.Is(err, errors.CodeReconciliationFail) {
		t.Errorf("error code = %v, want RECONCILIATION_FAILED", errors.GetCode(err))
	}
}

func TestReconcile_EmploymentDimension(t *testing.T) {
	r, _ := NewReconciler(DefaultConfig())

	in := testInput(100, 100)
	in.ScopeSet.Employments = []string{"正社員", "派遣"}
	in.Employments["正社員"] = matrixWithMethod(model.EmploymentScope("正社員"), "mean")
	in.Employments["派遣"] = matrixWithMethod(model.EmploymentScope("派遣"), "mean")
	in.EmploymentSummaries = []model.ScopeSummary{
		summaryWithHours(model.EmploymentScope("正社員"), 70),
		summaryWithHours(model.EmploymentScope("派遣"), 10),
	}

	_, err := r.Reconcile(in)
	if err == nil {
		t.Fatal("employment dimension drift of 20h should fail")
	}
}

func TestReconcile_MissingFacility(t *testing.T) {
	r, _ := NewReconciler(DefaultConfig())
	if _, err := r.Reconcile(Input{}); err == nil {
		t.Error("Reconcile() should fail without a facility matrix")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{TolerancePct: 0.01, ToleranceAbsHours: 0.5}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := (Config{TolerancePct: 1.5}).Validate(); err == nil {
		t.Error("tolerance pct above 1 should be rejected")
	}
	if err := (Config{ToleranceAbsHours: -1}).Validate(); err == nil {
		t.Error("negative absolute tolerance should be rejected")
	}
}
