// Package export serializes enriched receipts for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/receipt-enricher/internal/enrich"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name, defaulting to CSV when empty
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatXML, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXML:
		return "application/xml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Row is one exported receipt, flattened
type Row struct {
	XMLName           xml.Name `json:"-" xml:"receipt"`
	ID                string   `json:"id" xml:"id,attr"`
	Filename          string   `json:"filename" xml:"filename"`
	CreatedAt         string   `json:"created_at" xml:"created_at"`
	MerchantName      string   `json:"merchant_name" xml:"merchant_name"`
	TransactionDate   string   `json:"transaction_date" xml:"transaction_date"`
	Total             string   `json:"total" xml:"total"`
	TaxAmount         string   `json:"tax_amount" xml:"tax_amount"`
	Currency          string   `json:"currency" xml:"currency"`
	GSTIN             string   `json:"gstin" xml:"gstin"`
	HSN               string   `json:"hsn" xml:"hsn"`
	Items             []string `json:"items" xml:"items>item"`
	OverallConfidence int      `json:"overall_confidence" xml:"overall_confidence"`
	Category          string   `json:"category" xml:"category"`
	Status            string   `json:"status" xml:"status"`
}

// NewRow flattens an enriched receipt
func NewRow(id, filename string, createdAt time.Time, r *enrich.ParsedReceipt) Row {
	row := Row{
		ID:        id,
		Filename:  filename,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
		Items:     []string{},
	}
	if r == nil {
		return row
	}
	row.MerchantName = r.MerchantName.Text()
	row.TransactionDate = r.TransactionDate.Text()
	row.Total = r.Total.Text()
	row.TaxAmount = r.TaxAmount.Text()
	row.Currency = r.Currency
	row.GSTIN = r.GSTIN.Text()
	row.HSN = r.HSN.Text()
	row.OverallConfidence = r.OverallConfidence
	row.Category = r.Category
	row.Status = string(r.Status)
	for _, item := range r.Items {
		if d := item.Description.Text(); d != "" {
			row.Items = append(row.Items, d)
		}
	}
	return row
}

var headers = []string{
	"ID", "Filename", "Created At", "Merchant", "Transaction Date", "Total", "Tax",
	"Currency", "GSTIN", "HSN", "Items", "Confidence", "Category", "Status",
}

func (r Row) values() []string {
	return []string{
		r.ID, r.Filename, r.CreatedAt, r.MerchantName, r.TransactionDate, r.Total, r.TaxAmount,
		r.Currency, r.GSTIN, r.HSN, strings.Join(r.Items, "; "), strconv.Itoa(r.OverallConfidence), r.Category, r.Status,
	}
}

// Write serializes rows to w in the given format
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatXML:
		return writeXML(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.values()); err != nil {
			return fmt.Errorf("writing csv row %s: %w", row.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func writeXML(w io.Writer, rows []Row) error {
	doc := struct {
		XMLName xml.Name `xml:"receipts"`
		Rows    []Row `xml:"receipt"`
	}{Rows: rows}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding xml: %w", err)
	}
	return enc.Flush()
}

func writeXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Receipts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for r, row := range rows {
		for c, v := range row.values() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var value any = v
			if c == 11 {
				value = row.OverallConfidence
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("writing row %s: %w", row.ID, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
