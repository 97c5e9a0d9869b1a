package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

// CompanyMetadataLookup matches the query against company names and enriches each row with report text.
type CompanyMetadataLookup struct {
	table   ports.CompanyTable
	fetcher ports.PageFetcher
	logger  *slog.Logger
}

func NewCompanyMetadataLookup(table ports.CompanyTable, fetcher ports.PageFetcher, logger *slog.Logger) *CompanyMetadataLookup {
	return &CompanyMetadataLookup{
		table:   table,
		fetcher: fetcher,
		logger:  loggerOrDiscard(logger),
	}
}

// Lookup returns nil when nothing matches or the table cannot be read.
func (l *CompanyMetadataLookup) Lookup(ctx context.Context, query string) []domain.EvidenceItem {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	rows, err := l.table.FindByCompany(ctx, query)
	if err != nil {
		l.logger.Warn("metadata_lookup_failed", "query", query, "error", err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	items := make([]domain.EvidenceItem, 0, len(rows))
	for _, row := range rows {
		record := domain.CompanyRecord{
			Row:            row,
			AnnualReport:   l.fetchFirst(ctx, row.AnnualReportURL, row.AnnualReportSearch),
			ProxyStatement: l.fetchFirst(ctx, row.ProxyStatementURL, row.ProxyStatementSearch),
		}
		items = append(items, recordEvidence(record))
	}
	return items
}

// fetchFirst tries the primary link, then the search link.
func (l *CompanyMetadataLookup) fetchFirst(ctx context.Context, urls ...string) *string {
	if l.fetcher == nil {
		return nil
	}
	for _, url := range urls {
		if !strings.HasPrefix(url, "http") {
			continue
		}
		result := l.fetcher.Fetch(ctx, url)
		if result.OK() {
			text := result.Text
			return &text
		}
		if result.Err != nil {
			l.logger.Debug("report_fetch_failed", "url", url, "error", result.Err)
		}
	}
	return nil
}

func recordEvidence(record domain.CompanyRecord) domain.EvidenceItem {
	row := record.Row
	metadata := map[string]any{
		"company":         row.Company,
		"gvkey":           row.GVKey,
		"gvkey6":          row.GVKey6,
		"datadate":        row.DataDate,
		"fyear":           row.FiscalYear,
		"ticker":          row.Ticker,
		"cusip":           row.CUSIP,
		"cik":             row.CIK,
		"sic":             row.SIC,
		"sale":            row.Sale,
		"financial_year":  row.FiscalYear,
		"annual_report":   optionalText(record.AnnualReport),
		"proxy_statement": optionalText(record.ProxyStatement),
	}

	content := row.Company
	if row.Ticker != "" {
		content = fmt.Sprintf("%s (%s)", content, row.Ticker)
	}
	if row.FiscalYear != "" {
		content = fmt.Sprintf("%s, fiscal year %s", content, row.FiscalYear)
	}
	return domain.EvidenceItem{Content: content, Metadata: metadata}
}

func optionalText(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
