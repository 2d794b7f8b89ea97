package analysis

import (
	"strconv"
	"strings"
)

// defaultConfidence is assumed when a model omits or mangles the
// CONFIDENCE line.
const defaultConfidence = 0.5

type parsedAnalysis struct {
	rootCause         string
	impact            string
	urgency           string
	fixRecommendation string
	prevention        string
	relatedFiles      []string
	confidence        float64
}

var analysisHeaders = []string{
	"ROOT CAUSE:", "IMPACT:", "URGENCY:", "FIX RECOMMENDATION:",
	"PREVENTION:", "RELATED FILES:", "CONFIDENCE:",
}

// parseAnalysisResponse slices a sectioned model response. Unknown text
// before the first header is dropped; missing sections stay empty.
func parseAnalysisResponse(resp string) *parsedAnalysis {
	sections := sliceSections(resp, analysisHeaders)
	p := &parsedAnalysis{
		rootCause:         sections["ROOT CAUSE:"],
		impact:            sections["IMPACT:"],
		urgency:           sections["URGENCY:"],
		fixRecommendation: sections["FIX RECOMMENDATION:"],
		prevention:        sections["PREVENTION:"],
		relatedFiles:      dashList(sections["RELATED FILES:"]),
		confidence:        parseConfidence(sections["CONFIDENCE:"]),
	}
	return p
}

var fixHeaders = []string{
	"DESCRIPTION:", "FILES:", "CHANGES:", "TESTS:", "RISK:", "CONFIDENCE:",
}

func parseFixResponse(resp string) *Fix {
	sections := sliceSections(resp, fixHeaders)

	fix := &Fix{
		Description: sections["DESCRIPTION:"],
		CodeChanges: parseChangeBlocks(sections["CHANGES:"]),
		TestCases:   dashList(sections["TESTS:"]),
		RiskLevel:   parseRisk(sections["RISK:"]),
		Confidence:  parseConfidence(sections["CONFIDENCE:"]),
	}
	for _, entry := range dashList(sections["FILES:"]) {
		path, desc, _ := strings.Cut(entry, ":")
		fix.FilesToModify = append(fix.FilesToModify, FileChange{
			Path:        strings.TrimSpace(path),
			Description: strings.TrimSpace(desc),
		})
	}
	return fix
}

// sliceSections splits text on the given headers, matched at line start,
// case-insensitively. Content on the header line itself is kept.
func sliceSections(text string, headers []string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		matched := ""
		for _, h := range headers {
			if len(trimmed) >= len(h) && strings.EqualFold(trimmed[:len(h)], h) {
				matched = h
				break
			}
		}
		if matched != "" {
			flush()
			current = matched
			if rest := strings.TrimSpace(trimmed[len(matched):]); rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func dashList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if item, ok := strings.CutPrefix(line, "- "); ok {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func parseConfidence(text string) float64 {
	field := strings.Fields(text)
	if len(field) == 0 {
		return defaultConfidence
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(field[0], "%"), 64)
	if err != nil {
		return defaultConfidence
	}
	if strings.HasSuffix(field[0], "%") || v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseRisk(text string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	default:
		// Unparseable risk is treated as high so the safety gates hold.
		return RiskHigh
	}
}

// parseChangeBlocks extracts FILE:/END FILE blocks from the CHANGES
// section. A block missing END FILE runs to the next FILE: or the end.
func parseChangeBlocks(text string) []CodeChange {
	var out []CodeChange
	var cur *CodeChange
	var buf []string

	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimSpace(strings.Join(buf, "\n"))
			out = append(out, *cur)
		}
		cur = nil
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if path, ok := strings.CutPrefix(trimmed, "FILE:"); ok {
			flush()
			cur = &CodeChange{Path: strings.TrimSpace(path)}
			continue
		}
		if strings.EqualFold(trimmed, "END FILE") {
			flush()
			continue
		}
		if cur != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}
