package analysis

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// Analysis is the structured assessment of one error record.
type Analysis struct {
	ID                string                `json:"id"`
	Error             *classify.ErrorRecord `json:"error"`
	RootCause         string                `json:"root_cause"`
	Impact            string                `json:"impact"`
	Urgency           string                `json:"urgency"`
	FixRecommendation string                `json:"fix_recommendation"`
	Prevention        string                `json:"prevention"`
	RelatedFiles      []string              `json:"related_files"`
	Confidence        float64               `json:"confidence"`
	Priority          int                   `json:"priority"`
	Provider          string                `json:"provider"`
	GeneratedAt       time.Time             `json:"generated_at"`
}

// RiskLevel grades how dangerous a generated fix is to apply.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FileChange names a file a fix touches, with a short rationale.
type FileChange struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// CodeChange is one concrete edit proposed by the fix generator.
type CodeChange struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Fix is a proposed remediation for an analyzed error.
type Fix struct {
	ID            string       `json:"id"`
	Description   string       `json:"description"`
	FilesToModify []FileChange `json:"files_to_modify"`
	CodeChanges   []CodeChange `json:"code_changes"`
	TestCases     []string     `json:"test_cases"`
	RiskLevel     RiskLevel    `json:"risk_level"`
	Confidence    float64      `json:"confidence"`
	GeneratedAt   time.Time    `json:"generated_at"`
}

// Analyzer produces an Analysis for a record. Implementations must always
// return an Analysis when err is nil, even if only a low-confidence
// fallback: downstream decisions depend on one existing.
type Analyzer interface {
	Analyze(ctx context.Context, rec *classify.ErrorRecord) (*Analysis, error)
}

// FixGenerator proposes a Fix from an Analysis.
type FixGenerator interface {
	GenerateFix(ctx context.Context, a *Analysis) (*Fix, error)
}
