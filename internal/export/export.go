// Package export renders completed extractions as CSV, plain-text and
// XLSX downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/gmsas95/docsheet/internal/errors"
)

// Result is one completed document in an export
type Result struct {
	Filename string
	Fields   map[string]string
	Report   string
}

// Headers returns the typed export column set. The Filename column
// always leads; unknown types degrade to a raw dump.
func Headers(docType string) []string {
	switch docType {
	case "check":
		return []string{
			"Filename",
			"Link to The file",
			"Pic Date",
			"Download Date",
			"Check Type",
			"Bank Name",
			"1st Payor First Name",
			"1st Payor Family Name",
			"2nd Payor First Name",
			"2nd Payor Family Name",
			"Payor Street Address",
			"Payor City",
			"Payor State",
			"Payor Zip code",
			"Check Amount",
			"Account Number",
			"Routing Number",
			"Payee Type",
			"1st Payee First Name",
			"1st Payee Family Name",
			"2nd Payee First Name",
			"2nd Payee Family Name",
			"Check Number",
			"Payee Street Address",
			"Payee City",
			"Payee State",
			"Payee Zip Code",
			"Market",
		}
	case "passport":
		return []string{
			"Filename",
			"Passport Country Code",
			"Passport Type",
			"Passport Number",
			"First Name",
			"Family Name",
			"Date of Birth Day",
			"Date of Birth Month",
			"Date of Birth Year",
			"Place of Birth",
			"Gender",
			"Date of Issue Day",
			"Date of Issue Month",
			"Date of Issue Year",
			"Date of Expiration Day",
			"Date of Expiration Month",
			"Date of Expiration Year",
			"Authority",
		}
	case "invoice":
		return []string{
			"Filename",
			"Invoice Number",
			"Date",
			"Due Date",
			"Total Amount",
			"Vendor Name",
			"Customer Name",
			"Payment Terms",
		}
	default:
		return []string{"Filename", "Extraction Data"}
	}
}

// Row maps one result onto the typed column set. Missing fields become
// "Not found" for checks and "NA" otherwise, matching the download
// format operators already work with.
func Row(docType string, r Result) []string {
	get := func(fallback string, keys ...string) string {
		for _, k := range keys {
			if v, ok := r.Fields[k]; ok && v != "" {
				return v
			}
		}
		return fallback
	}

	switch docType {
	case "check":
		const nf = "Not found"
		return []string{
			r.Filename,
			nf, nf, nf, nf,
			get(nf, "Bank Name"),
			get(nf, "1st Payor First Name", "Payor Name"),
			nf, nf, nf,
			get(nf, "Payor Street Address", "Payor Address"),
			nf, nf, nf,
			get(nf, "Check Amount", "Amount"),
			nf, nf, nf,
			get(nf, "1st Payee First Name", "Payee Name"),
			nf, nf, nf,
			get(nf, "Check Number"),
			get(nf, "Payee Street Address", "Payee Address"),
			nf, nf, nf, nf,
		}
	case "passport":
		const na = "NA"
		return []string{
			r.Filename,
			get(na, "Passport Country Code"),
			get(na, "Passport Type"),
			get(na, "Passport Number"),
			get(na, "First Name"),
			get(na, "Family Name"),
			get(na, "Date of Birth Day"),
			get(na, "Date of Birth Month"),
			get(na, "Date of Birth Year"),
			get(na, "Place of Birth"),
			get(na, "Gender"),
			get(na, "Date of Issue Day"),
			get(na, "Date of Issue Month"),
			get(na, "Date of Issue Year"),
			get(na, "Date of Expiration Day"),
			get(na, "Date of Expiration Month"),
			get(na, "Date of Expiration Year"),
			get(na, "Authority"),
		}
	case "invoice":
		const na = "NA"
		return []string{
			r.Filename,
			get(na, "Invoice Number"),
			get(na, "Invoice Date", "Date"),
			get(na, "Due Date"),
			get(na, "Total Amount"),
			get(na, "Vendor/Seller", "Vendor Name"),
			get(na, "Customer", "Customer Name"),
			get(na, "Payment Terms"),
		}
	default:
		return []string{r.Filename, r.Report}
	}
}

// CSV renders results as comma-separated text with the typed headers
func CSV(docType string, results []Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Headers(docType)); err != nil {
		return nil, apperrors.Wrap(err, "EXPORT_001", "csv write failed")
	}
	for _, r := range results {
		if err := w.Write(Row(docType, r)); err != nil {
			return nil, apperrors.Wrap(err, "EXPORT_001", "csv write failed")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.Wrap(err, "EXPORT_001", "csv write failed")
	}
	return buf.Bytes(), nil
}

// Text renders the plain report download: one block per document with
// the raw extraction text.
func Text(docType string, results []Result) []byte {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("=== %s (%s) ===\n", r.Filename, docType))
		report := r.Report
		if report == "" {
			for _, h := range Headers(docType)[1:] {
				if v, ok := r.Fields[h]; ok {
					sb.WriteString(fmt.Sprintf("%s: %s\n", h, v))
				}
			}
			continue
		}
		sb.WriteString(strings.TrimRight(report, "\n"))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// XLSX renders results as a single-sheet workbook with the same
// columns as the CSV download.
func XLSX(docType string, results []Result) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Sheet1"

	headers := Headers(docType)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, apperrors.Wrap(err, "EXPORT_001", "xlsx write failed")
		}
	}

	for rowIdx, r := range results {
		for colIdx, v := range Row(docType, r) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, apperrors.Wrap(err, "EXPORT_001", "xlsx write failed")
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 32)
	if len(headers) > 1 {
		end, _ := excelize.ColumnNumberToName(len(headers))
		_ = f.SetColWidth(sheet, "B", end, 20)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperrors.Wrap(err, "EXPORT_001", "xlsx write failed")
	}
	return buf.Bytes(), nil
}
