package domain

import (
	"fmt"
	"strings"
)

// EvidenceItem is a retrieved passage or record considered for grounding an answer.
// A non-empty Error marks an error-shaped payload from a failed source; it never
// counts as usable evidence.
type EvidenceItem struct {
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func ErrorEvidence(format string, args ...any) EvidenceItem {
	return EvidenceItem{Error: fmt.Sprintf(format, args...)}
}

func (e EvidenceItem) IsError() bool {
	return strings.TrimSpace(e.Error) != ""
}

// MetadataString returns the metadata value for key when it is a non-empty string.
func (e EvidenceItem) MetadataString(key string) (string, bool) {
	if e.Metadata == nil {
		return "", false
	}
	v, ok := e.Metadata[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// UsableEvidence drops error-shaped items, keeping order.
func UsableEvidence(items []EvidenceItem) []EvidenceItem {
	out := make([]EvidenceItem, 0, len(items))
	for _, item := range items {
		if item.IsError() {
			continue
		}
		out = append(out, item)
	}
	return out
}

// LooksLikeURL reports whether a metadata value should be surfaced as a citation.
func LooksLikeURL(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "http") {
		return "", false
	}
	return s, true
}

type GradeResult struct {
	ContentExcerpt string  `json:"content_excerpt"`
	BinaryScore    string  `json:"binary_score"`
	RelevanceScore float64 `json:"relevance_score"`
}

// CompanyRow is one line of the structured company metadata table.
type CompanyRow struct {
	Company              string
	GVKey                string
	GVKey6               string
	DataDate             string
	FiscalYear           string
	Ticker               string
	CUSIP                string
	CIK                  string
	SIC                  string
	Sale                 string
	AnnualReportURL      string
	AnnualReportSearch   string
	ProxyStatementURL    string
	ProxyStatementSearch string
}

// FetchResult is the outcome of one best-effort page fetch.
type FetchResult struct {
	URL  string
	Text string
	Err  error
}

func (r FetchResult) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Text) != ""
}

// CompanyRecord is a metadata match enriched with fetched report text.
type CompanyRecord struct {
	Row            CompanyRow
	AnnualReport   *string
	ProxyStatement *string
}

// SearchFilter is a structured constraint set inferred from a free-text query.
type SearchFilter struct {
	Conditions []FilterCondition `json:"conditions,omitempty"`
}

type FilterOp string

const (
	FilterEq  FilterOp = "eq"
	FilterGt  FilterOp = "gt"
	FilterGte FilterOp = "gte"
	FilterLt  FilterOp = "lt"
	FilterLte FilterOp = "lte"
)

type FilterCondition struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

func (f SearchFilter) IsEmpty() bool {
	return len(f.Conditions) == 0
}
