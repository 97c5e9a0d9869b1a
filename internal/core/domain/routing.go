package domain

import "strings"

type DataSource string

const (
	SourceVectorStore     DataSource = "vectorstore"
	SourceMetadata        DataSource = "metadata"
	SourceWebSearch       DataSource = "websearch"
	SourceGeneralResponse DataSource = "general_response"
)

// ParseDataSource normalizes an oracle-provided tag. Unknown tags report false.
func ParseDataSource(raw string) (DataSource, bool) {
	switch DataSource(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceVectorStore:
		return SourceVectorStore, true
	case SourceMetadata:
		return SourceMetadata, true
	case SourceWebSearch:
		return SourceWebSearch, true
	case SourceGeneralResponse:
		return SourceGeneralResponse, true
	default:
		return "", false
	}
}

type RoutingDecision struct {
	DataSource      DataSource `json:"datasource"`
	UpdatedQuery    string     `json:"updated_query"`
	GeneralResponse string     `json:"general_response,omitempty"`
}

// RetrievalOutcome is what the router hands to the answer generator.
// Response is set only for general_response; link lists only for vectorstore.
type RetrievalOutcome struct {
	Source              DataSource     `json:"source"`
	Query               string         `json:"query"`
	Results             []EvidenceItem `json:"results"`
	AnnualReportLinks   []string       `json:"annual_reports"`
	ProxyStatementLinks []string       `json:"proxy_statements"`
	Response            string         `json:"response,omitempty"`
}

func GeneralResponseOutcome(query, response string) RetrievalOutcome {
	return RetrievalOutcome{
		Source:              SourceGeneralResponse,
		Query:               query,
		Results:             []EvidenceItem{},
		AnnualReportLinks:   []string{},
		ProxyStatementLinks: []string{},
		Response:            response,
	}
}

func VectorStoreOutcome(query string, results []EvidenceItem, annual, proxy []string) RetrievalOutcome {
	return RetrievalOutcome{
		Source:              SourceVectorStore,
		Query:               query,
		Results:             results,
		AnnualReportLinks:   nonNilStrings(annual),
		ProxyStatementLinks: nonNilStrings(proxy),
	}
}

func MetadataOutcome(query string, results []EvidenceItem) RetrievalOutcome {
	return RetrievalOutcome{
		Source:              SourceMetadata,
		Query:               query,
		Results:             results,
		AnnualReportLinks:   []string{},
		ProxyStatementLinks: []string{},
	}
}

func WebSearchOutcome(query string, results []EvidenceItem) RetrievalOutcome {
	if results == nil {
		results = []EvidenceItem{}
	}
	return RetrievalOutcome{
		Source:              SourceWebSearch,
		Query:               query,
		Results:             results,
		AnnualReportLinks:   []string{},
		ProxyStatementLinks: []string{},
	}
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
