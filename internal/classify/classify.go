package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds deployment metadata stamped into every record.
type Config struct {
	Environment string
	Version     string
}

// Classifier builds ErrorRecords from raw log lines.
type Classifier struct {
	cfg   Config
	nowFn func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.nowFn = now }
}

// New creates a Classifier.
func New(cfg Config, opts ...Option) *Classifier {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Version == "" {
		cfg.Version = "0.0.0"
	}
	c := &Classifier{cfg: cfg, nowFn: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify parses one log line. It returns nil for blank lines and lines
// that match neither a structured pattern nor an error keyword; a nil
// result is a parse miss, not an error.
func (c *Classifier) Classify(line, filePath string) *ErrorRecord {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	kind := DetectSourceKind(filePath)

	for _, p := range orderedPatterns(kind) {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		msg := line
		if len(m) > 1 && m[1] != "" {
			msg = m[1]
		}
		return c.newRecord(line, filePath, kind, Categorize(line), msg, p.String())
	}

	lower := strings.ToLower(line)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return c.newRecord(line, filePath, kind, TypeGeneral, strings.TrimSpace(line), "keyword_match")
		}
	}

	return nil
}

func (c *Classifier) newRecord(line, filePath string, kind SourceKind, typ ErrorType, msg, pattern string) *ErrorRecord {
	return &ErrorRecord{
		ID:         "error_" + uuid.NewString(),
		RawLine:    line,
		Type:       typ,
		Severity:   DetermineSeverity(line),
		Message:    msg,
		StackTrace: extractStackTrace(line),
		Context: Context{
			Service:     serviceFromPath(filePath),
			Environment: c.cfg.Environment,
			Version:     c.cfg.Version,
			UserID:      firstGroup(userIDPattern, line),
			RequestID:   firstGroup(requestIDPattern, line),
			DetectedAt:  c.nowFn(),
		},
		FilePath:   filePath,
		SourceKind: kind,
		Pattern:    pattern,
	}
}

// orderedPatterns returns the recognition patterns for a source kind.
// Payment and database grammars are always tried first; order encodes
// priority and must not be shuffled. Files with no recognized kind fall
// back to the node table, whose leading pattern is the most generic.
func orderedPatterns(kind SourceKind) []*regexp.Regexp {
	table, ok := patternTable[kind]
	if !ok {
		table = patternTable[SourceNode]
	}
	out := make([]*regexp.Regexp, 0, len(paymentPatterns)+len(databasePatterns)+len(table))
	out = append(out, paymentPatterns...)
	out = append(out, databasePatterns...)
	out = append(out, table...)
	return out
}

// DetectSourceKind infers the pattern table to use from the watched path.
func DetectSourceKind(filePath string) SourceKind {
	switch {
	case strings.Contains(filePath, ".java") || strings.Contains(filePath, "backend"):
		return SourceJava
	case strings.Contains(filePath, ".js") || strings.Contains(filePath, ".ts") || strings.Contains(filePath, "frontend"):
		return SourceNode
	case strings.Contains(filePath, "nginx") || strings.Contains(filePath, "access.log"):
		return SourceHTTP
	default:
		return SourceGeneral
	}
}

// Categorize assigns the subsystem type from line keywords. Only
// structured-pattern hits are categorized; keyword-fallback records stay
// general, which keeps them out of the auto-fix ladder.
func Categorize(line string) ErrorType {
	l := strings.ToLower(line)
	switch {
	case containsAny(l, "payment", "upp", "stripe"):
		return TypePayment
	case containsAny(l, "database", "sql", "connection"):
		return TypeDatabase
	case containsAny(l, "http", "api", "request"):
		return TypeAPI
	case containsAny(l, "authentication", "authorization", "security"):
		return TypeSecurity
	case containsAny(l, "performance", "memory", "timeout"):
		return TypePerformance
	}
	return TypeRuntime
}

// DetermineSeverity scans the line for severity keywords. Precedence is
// fixed: critical/fatal beat error/exception beat warning beat info/debug,
// and a line with none of them is medium.
func DetermineSeverity(line string) Severity {
	l := strings.ToLower(line)
	switch {
	case containsAny(l, "critical", "fatal"):
		return SeverityCritical
	case containsAny(l, "error", "exception"):
		return SeverityHigh
	case containsAny(l, "warning", "warn"):
		return SeverityMedium
	case containsAny(l, "info", "debug"):
		return SeverityLow
	}
	return SeverityMedium
}

func extractStackTrace(line string) string {
	if strings.Contains(line, "at ") || strings.Contains(line, "Caused by:") {
		return strings.TrimSpace(line)
	}
	return ""
}

func serviceFromPath(filePath string) string {
	switch {
	case strings.Contains(filePath, "backend"):
		return "backend"
	case strings.Contains(filePath, "frontend"):
		return "frontend"
	case strings.Contains(filePath, "nginx"):
		return "nginx"
	default:
		return "unknown"
	}
}

func firstGroup(p *regexp.Regexp, line string) string {
	if m := p.FindStringSubmatch(line); len(m) > 1 {
		return m[1]
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
