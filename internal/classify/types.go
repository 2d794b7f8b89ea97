package classify

import "time"

// ErrorType categorizes what subsystem a detected error belongs to.
type ErrorType string

const (
	TypePayment     ErrorType = "payment"
	TypeDatabase    ErrorType = "database"
	TypeAPI         ErrorType = "api"
	TypeSecurity    ErrorType = "security"
	TypePerformance ErrorType = "performance"
	TypeRuntime     ErrorType = "runtime"
	TypeGeneral     ErrorType = "general"
)

// Severity is the notification urgency derived from line keywords.
// It is distinct from Priority, which the auto-fix gate reads.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SourceKind identifies which pattern table applies to a log file.
type SourceKind string

const (
	SourceJava    SourceKind = "java"
	SourceNode    SourceKind = "node"
	SourceHTTP    SourceKind = "http"
	SourceGeneral SourceKind = "general"
)

// Context carries per-record deployment metadata extracted at detection time.
type Context struct {
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	UserID      string    `json:"user_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ErrorRecord is one detected log anomaly. It is constructed once by the
// classifier and never mutated afterwards; consumers receive copies or
// read-only references, which keeps the pipeline race-free without locks.
type ErrorRecord struct {
	ID         string     `json:"id"`
	RawLine    string     `json:"raw_line"`
	Type       ErrorType  `json:"type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	StackTrace string     `json:"stack_trace,omitempty"`
	Context    Context    `json:"context"`
	FilePath   string     `json:"file_path"`
	SourceKind SourceKind `json:"source_kind"`
	Pattern    string     `json:"pattern"`
}

// Priority maps the record onto the 1 (critical) .. 4 (low) scale the
// auto-fix gate consumes. Payment and database errors are boosted one level
// toward 1 because they touch revenue, with a floor of 1.
func (r *ErrorRecord) Priority() int {
	p := 3
	switch r.Severity {
	case SeverityCritical:
		p = 1
	case SeverityHigh:
		p = 2
	case SeverityMedium:
		p = 3
	case SeverityLow:
		p = 4
	}
	if r.Type == TypePayment || r.Type == TypeDatabase {
		p--
	}
	if p < 1 {
		p = 1
	}
	return p
}
