package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestDataWorksheet(t *testing.T) {
	cases := map[string]string{
		"passport": "Passport_Data",
		"check":    "Check_Data",
		"invoice":  "Invoice_Data",
		"":         "Unknown_Data",
	}
	for docType, want := range cases {
		if got := DataWorksheet(docType); got != want {
			t.Errorf("DataWorksheet(%q) = %q, want %q", docType, got, want)
		}
	}
}

func TestLoginRow(t *testing.T) {
	row := LoginRow("jdoe@example.com", testTime)
	if len(row) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(row))
	}
	if row[0] != "jdoe@example.com" || row[1] != "2025-03-14 09:26:53" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestPassportRow(t *testing.T) {
	fields := map[string]string{
		"Passport Country Code": "USA",
		"Passport Number":       "X123",
		"First Name":            "Jane",
		"Family Name":           "Doe",
		"Gender":                "F",
	}
	row := DataRow("jdoe@example.com", "passport", fields, nil, testTime)

	want := []interface{}{
		"jdoe@example.com", "2025-03-14 09:26:53", "passport",
		"USA", "X123", "Jane", "Doe", "Not found", "F",
	}
	if len(row) != len(want) {
		t.Fatalf("expected %d columns, got %d: %v", len(want), len(row), row)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestCheckRowLayout(t *testing.T) {
	fields := map[string]string{
		"Bank Name":             "First Trust",
		"1st Payor First Name":  "Alice",
		"Payor Street Address":  "1 Main St",
		"Check Amount":          "1,123.56",
		"1st Payee First Name":  "Bob",
		"Check Number":          "1042",
		"Payee Street Address":  "2 Oak Ave",
	}
	row := DataRow("jdoe@example.com", "check", fields, nil, testTime)

	// email + timestamp + type + the 27-column check layout
	if len(row) != 30 {
		t.Fatalf("expected 30 columns, got %d", len(row))
	}
	if row[7] != "First Trust" {
		t.Errorf("bank name in wrong column: %v", row[7])
	}
	if row[8] != "Alice" {
		t.Errorf("payor name in wrong column: %v", row[8])
	}
	if row[16] != "1,123.56" {
		t.Errorf("amount in wrong column: %v", row[16])
	}
	if row[24] != "1042" {
		t.Errorf("check number in wrong column: %v", row[24])
	}
	// padded columns stay single spaces
	for _, i := range []int{3, 4, 5, 6, 9, 10, 11, 14, 29} {
		if row[i] != " " {
			t.Errorf("column %d should be padded blank, got %v", i, row[i])
		}
	}
}

func TestCheckRowFallbackKeys(t *testing.T) {
	fields := map[string]string{
		"Payor Name": "Alice",
		"Amount":     "50.00",
	}
	row := DataRow("jdoe@example.com", "check", fields, nil, testTime)
	if row[8] != "Alice" {
		t.Errorf("expected fallback Payor Name used, got %v", row[8])
	}
	if row[16] != "50.00" {
		t.Errorf("expected fallback Amount used, got %v", row[16])
	}
}

func TestInvoiceRow(t *testing.T) {
	fields := map[string]string{
		"Invoice Number": "INV-7",
		"Invoice Date":   "2025-01-31",
		"Total Amount":   "99.00",
	}
	row := DataRow("jdoe@example.com", "invoice", fields, nil, testTime)

	want := []interface{}{
		"jdoe@example.com", "2025-03-14 09:26:53", "invoice",
		"INV-7", "2025-01-31", "Not found", "99.00",
	}
	if len(row) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(row))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestCorrectionsColumnAppended(t *testing.T) {
	corrections := map[string]string{"Invoice Number": "INV-8"}
	row := DataRow("jdoe@example.com", "invoice", map[string]string{}, corrections, testTime)

	last, ok := row[len(row)-1].(string)
	if !ok {
		t.Fatalf("corrections column missing: %v", row)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(last), &decoded); err != nil {
		t.Fatalf("corrections column not JSON: %v", err)
	}
	if decoded["Invoice Number"] != "INV-8" {
		t.Errorf("unexpected corrections: %v", decoded)
	}
}

func TestAppendRowBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	failing := func(ctx context.Context, worksheet string, row []interface{}) error {
		calls++
		return errors.New("backend down")
	}
	c := newClient("sheet-1", failing, zap.NewNop())

	for i := 0; i < 3; i++ {
		if err := c.AppendRow(context.Background(), "Invoice_Data", []interface{}{"x"}); err == nil {
			t.Fatal("expected error")
		}
	}
	// Breaker is open now; the backend must not be called again
	before := calls
	if err := c.AppendRow(context.Background(), "Invoice_Data", []interface{}{"x"}); err == nil {
		t.Fatal("expected breaker-open error")
	}
	if calls != before {
		t.Errorf("backend called while breaker open (%d -> %d)", before, calls)
	}
}

func TestAppendRowSuccess(t *testing.T) {
	var gotWorksheet string
	var gotRow []interface{}
	ok := func(ctx context.Context, worksheet string, row []interface{}) error {
		gotWorksheet = worksheet
		gotRow = row
		return nil
	}
	c := newClient("sheet-1", ok, zap.NewNop())

	if err := c.AppendRow(context.Background(), LoginWorksheet, LoginRow("a@b.com", testTime)); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if gotWorksheet != "Login_Logs" || len(gotRow) != 2 {
		t.Errorf("unexpected call: %s %v", gotWorksheet, gotRow)
	}
}

func TestDisabledAppender(t *testing.T) {
	var a Appender = Disabled{}
	if err := a.AppendRow(context.Background(), "Login_Logs", nil); err != nil {
		t.Errorf("Disabled appender must never fail: %v", err)
	}
}
