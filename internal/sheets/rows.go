package sheets

import (
	"encoding/json"
	"strings"
	"time"
)

// Worksheet names
const (
	LoginWorksheet = "Login_Logs"
)

// DataWorksheet returns the worksheet a document type's rows land in
// (Passport_Data, Check_Data, Invoice_Data).
func DataWorksheet(docType string) string {
	if docType == "" {
		return "Unknown_Data"
	}
	return strings.ToUpper(docType[:1]) + docType[1:] + "_Data"
}

// Timestamp renders the worksheet timestamp format
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// LoginRow builds the Login_Logs row for a successful login
func LoginRow(email string, at time.Time) []interface{} {
	return []interface{}{email, Timestamp(at)}
}

// DataRow builds the typed worksheet row for a saved document. Column
// order is fixed per worksheet; columns the extractor does not produce
// are padded with single spaces (check) or "Not found" (passport,
// invoice). When corrections exist they are appended JSON-encoded as a
// trailing column.
func DataRow(email, docType string, fields map[string]string, corrections map[string]string, at time.Time) []interface{} {
	row := []interface{}{email, Timestamp(at), docType}

	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := fields[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}
	getOr := func(fallback string, keys ...string) string {
		if v := get(keys...); v != "" {
			return v
		}
		return fallback
	}

	switch docType {
	case "check":
		row = append(row,
			" ", // Link to The file
			" ", // Pic Date
			" ", // Download Date
			" ", // Check Type
			get("Bank Name"),
			get("1st Payor First Name", "Payor Name"),
			" ", // 1st Payor Family Name
			" ", // 2nd Payor First Name
			" ", // 2nd Payor Family Name
			get("Payor Street Address", "Payor Address"),
			" ", // Payor City
			" ", // Payor State
			" ", // Payor Zip code
			get("Check Amount", "Amount"),
			" ", // Account Number
			" ", // Routing Number
			" ", // Payee Type
			get("1st Payee First Name", "Payee Name"),
			" ", // 1st Payee Family Name
			" ", // 2nd Payee First Name
			" ", // 2nd Payee Family Name
			get("Check Number"),
			get("Payee Street Address", "Payee Address"),
			" ", // Payee City
			" ", // Payee State
			" ", // Payee Zip Code
			" ", // Market
		)
	case "passport":
		row = append(row,
			getOr("Not found", "Passport Country Code"),
			getOr("Not found", "Passport Number"),
			getOr("Not found", "First Name"),
			getOr("Not found", "Family Name"),
			getOr("Not found", "Date of Birth"),
			getOr("Not found", "Gender"),
		)
	case "invoice":
		row = append(row,
			getOr("Not found", "Invoice Number"),
			getOr("Not found", "Invoice Date"),
			getOr("Not found", "Vendor/Seller"),
			getOr("Not found", "Total Amount"),
		)
	}

	if len(corrections) > 0 {
		encoded, _ := json.Marshal(corrections)
		row = append(row, string(encoded))
	}

	return row
}
