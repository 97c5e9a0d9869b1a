package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// Table is an in-memory company metadata table loaded once at startup.
type Table struct {
	rows []domain.CompanyRow
}

func New(rows []domain.CompanyRow) *Table {
	return &Table{rows: rows}
}

// Load reads a .csv or .xlsx file whose header row names the columns.
func Load(path string) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("metadata table: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	rows, err := parseRecords(records)
	if err != nil {
		return nil, fmt.Errorf("metadata table %s: %w", path, err)
	}
	return New(rows), nil
}

func (t *Table) Len() int {
	return len(t.rows)
}

// FindByCompany returns every row whose company name contains query, case-insensitively.
func (t *Table) FindByCompany(ctx context.Context, query string) ([]domain.CompanyRow, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	var out []domain.CompanyRow
	for _, row := range t.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if row.Company == "" {
			continue
		}
		if strings.Contains(strings.ToLower(row.Company), needle) {
			out = append(out, row)
		}
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read metadata csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("metadata workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read metadata sheet %s: %w", sheets[0], err)
	}
	return records, nil
}

func parseRecords(records [][]string) ([]domain.CompanyRow, error) {
	if len(records) == 0 {
		return nil, errors.New("missing header row")
	}
	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["conm"]; !ok {
		return nil, errors.New(`missing "conm" column`)
	}

	rows := make([]domain.CompanyRow, 0, len(records)-1)
	for _, record := range records[1:] {
		cell := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		rows = append(rows, domain.CompanyRow{
			Company:              cell("conm"),
			GVKey:                cell("gvkey"),
			GVKey6:               cell("gvkey6"),
			DataDate:             cell("datadate"),
			FiscalYear:           cell("fyear"),
			Ticker:               cell("tic"),
			CUSIP:                cell("cusip"),
			CIK:                  cell("cik"),
			SIC:                  cell("sic"),
			Sale:                 cell("sale"),
			AnnualReportURL:      cell("annualreport"),
			AnnualReportSearch:   cell("annualreportsearch"),
			ProxyStatementURL:    cell("proxystatement"),
			ProxyStatementSearch: cell("proxystatementsearch"),
		})
	}
	return rows, nil
}
