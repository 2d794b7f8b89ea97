package orchestrator

import (
	"fmt"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// Violation is one reason a generated fix may not be applied automatically.
type Violation struct {
	Gate        string `json:"gate"`
	Description string `json:"description"`
}

// FixGate is a single quality check on a generated fix. All gates must
// pass before a fix becomes a pull request; any violation downgrades the
// fix to a manual issue.
type FixGate interface {
	Name() string
	Check(fix *analysis.Fix, a *analysis.Analysis) []Violation
}

// ConfidenceGate rejects fixes the generator itself is unsure about.
type ConfidenceGate struct {
	Min float64
}

func (g ConfidenceGate) Name() string { return "fix-confidence" }

func (g ConfidenceGate) Check(fix *analysis.Fix, _ *analysis.Analysis) []Violation {
	if fix.Confidence >= g.Min {
		return nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Description: fmt.Sprintf("fix confidence %.2f below minimum %.2f", fix.Confidence, g.Min),
	}}
}

// ChangeSetGate rejects fixes with no concrete code changes; there is
// nothing to commit.
type ChangeSetGate struct{}

func (g ChangeSetGate) Name() string { return "change-set" }

func (g ChangeSetGate) Check(fix *analysis.Fix, _ *analysis.Analysis) []Violation {
	if len(fix.CodeChanges) > 0 {
		return nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Description: "fix contains no code changes",
	}}
}

// RiskGate rejects fixes the generator graded high risk.
type RiskGate struct{}

func (g RiskGate) Name() string { return "risk-level" }

func (g RiskGate) Check(fix *analysis.Fix, _ *analysis.Analysis) []Violation {
	if fix.RiskLevel != analysis.RiskHigh {
		return nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Description: "fix is graded high risk",
	}}
}

// PaymentTestGate requires at least one test case on any fix touching the
// payment path. Money-moving code does not get untested automation.
type PaymentTestGate struct{}

func (g PaymentTestGate) Name() string { return "payment-tests" }

func (g PaymentTestGate) Check(fix *analysis.Fix, a *analysis.Analysis) []Violation {
	if a.Error.Type != classify.TypePayment || len(fix.TestCases) > 0 {
		return nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Description: "payment fix carries no test cases",
	}}
}

// defaultGates is the standing gate set, in evaluation order.
func defaultGates() []FixGate {
	return []FixGate{
		ConfidenceGate{Min: 0.7},
		ChangeSetGate{},
		RiskGate{},
		PaymentTestGate{},
	}
}

func checkFix(gates []FixGate, fix *analysis.Fix, a *analysis.Analysis) []Violation {
	var out []Violation
	for _, g := range gates {
		out = append(out, g.Check(fix, a)...)
	}
	return out
}
